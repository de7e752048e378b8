package enforce

import (
	"github.com/google/uuid"

	"github.com/Cachi0001/Biz-sub011/pkg/plans"
)

// Action is a user operation subject to plan limits.
type Action string

const (
	ActionCreateInvoice    Action = "create_invoice"
	ActionCreateExpense    Action = "create_expense"
	ActionCreateCustomer   Action = "create_customer"
	ActionCreateProduct    Action = "create_product"
	ActionInviteTeamMember Action = "invite_team_member"
	ActionAccessAnalytics  Action = "access_analytics"
	ActionAccessReports    Action = "access_reports"
)

// ReasonCode explains a Decision.
type ReasonCode string

const (
	ReasonOK               ReasonCode = "OK"
	ReasonApproachingLimit ReasonCode = "APPROACHING_LIMIT"
	ReasonLimitReached     ReasonCode = "LIMIT_REACHED"
	ReasonFeatureNotInPlan ReasonCode = "FEATURE_NOT_IN_PLAN"
)

// DefaultWarningPercent is the usage share at which APPROACHING_LIMIT is reported.
const DefaultWarningPercent = 80

// Rule gates an action either by a counted resource or by a feature flag.
type Rule struct {
	Resource plans.Resource
	Feature  plans.Feature
}

// DefaultRules returns the built-in action table.
func DefaultRules() map[Action]Rule {
	return map[Action]Rule{
		ActionCreateInvoice:    {Resource: plans.ResourceInvoices},
		ActionCreateExpense:    {Resource: plans.ResourceExpenses},
		ActionCreateCustomer:   {Resource: plans.ResourceCustomers},
		ActionCreateProduct:    {Resource: plans.ResourceProducts},
		ActionInviteTeamMember: {Resource: plans.ResourceTeamMembers},
		ActionAccessAnalytics:  {Feature: plans.FeatureAnalytics},
		ActionAccessReports:    {Feature: plans.FeatureReports},
	}
}

// Subject identifies who is acting. Owner is the account whose plan applies;
// it is empty when Identity is the owner itself.
type Subject struct {
	Identity uuid.UUID
	Owner    uuid.UUID
}

// IsTeamMember reports whether the subject acts on behalf of another account.
func (s Subject) IsTeamMember() bool {
	return s.Owner != uuid.Nil && s.Owner != s.Identity
}

// Remediation suggests how to lift a restriction.
type Remediation struct {
	SuggestedTier plans.Tier `json:"suggestedTier,omitempty"`
	Message       string     `json:"message"`
}

// Decision is the outcome of a check.
type Decision struct {
	Action      Action         `json:"action"`
	Allowed     bool           `json:"allowed"`
	Reason      ReasonCode     `json:"reasonCode"`
	PercentUsed float64        `json:"percentUsed"`
	Remediation *Remediation   `json:"remediation"`
	Tier        plans.Tier     `json:"tier,omitempty"`
	Resource    plans.Resource `json:"resource,omitempty"`
	Feature     plans.Feature  `json:"feature,omitempty"`
	Current     int64          `json:"current"`
	Limit       int64          `json:"limit"`
	Degraded    bool           `json:"degraded,omitempty"`
}

// Warning reports whether the caller should show a non-blocking notice.
func (d Decision) Warning() bool {
	return d.Allowed && d.Reason == ReasonApproachingLimit
}
