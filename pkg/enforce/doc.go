// Package enforce decides whether an owner may perform a plan-limited action.
//
// Coordinator.Check maps an Action to either a counted resource or a plan
// feature, resolves the effective owner (team members borrow the owning
// account's plan), looks up the owner's tier and current usage, and returns a
// Decision. A denial is a Decision with Allowed=false, never an error.
//
// Reason codes:
//
//   - OK: allowed, below the warning threshold (or the action is not gated)
//   - APPROACHING_LIMIT: allowed, usage at or above 80% of the quota
//   - LIMIT_REACHED: denied, usage at or above the quota
//   - FEATURE_NOT_IN_PLAN: denied, the plan does not include the feature
//
// Infrastructure failures (tier lookup, usage store) never block the user: the
// coordinator allows the action and marks the decision Degraded.
package enforce
