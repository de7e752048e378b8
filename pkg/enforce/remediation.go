package enforce

import (
	"fmt"

	"github.com/Cachi0001/Biz-sub011/pkg/plans"
)

var resourceNouns = map[plans.Resource]string{
	plans.ResourceInvoices:    "invoices",
	plans.ResourceExpenses:    "expenses",
	plans.ResourceCustomers:   "customers",
	plans.ResourceProducts:    "products",
	plans.ResourceTeamMembers: "team members",
}

var featureNames = map[plans.Feature]string{
	plans.FeatureAnalytics: "Analytics",
	plans.FeatureReports:   "Reports",
}

func (c *Coordinator) limitRemediation(tier plans.Tier, r plans.Resource, current, limit int64) *Remediation {
	msg := fmt.Sprintf("You have reached your %s plan limit of %d %s%s.",
		c.planName(tier), limit, resourceNouns[r], periodSuffix(r))
	return c.withUpgrade(msg, func() (plans.Plan, bool) {
		return c.policy.UpgradeFor(tier, r, current)
	})
}

func (c *Coordinator) warningRemediation(tier plans.Tier, r plans.Resource, current, limit int64) *Remediation {
	msg := fmt.Sprintf("You have used %d of %d %s%s on your %s plan.",
		current, limit, resourceNouns[r], periodSuffix(r), c.planName(tier))
	return c.withUpgrade(msg, func() (plans.Plan, bool) {
		return c.policy.UpgradeFor(tier, r, current+1)
	})
}

func (c *Coordinator) featureRemediation(tier plans.Tier, f plans.Feature) *Remediation {
	name, ok := featureNames[f]
	if !ok {
		name = string(f)
	}
	msg := fmt.Sprintf("%s is not included in your %s plan.", name, c.planName(tier))
	return c.withUpgrade(msg, func() (plans.Plan, bool) {
		return c.policy.UpgradeForFeature(tier, f)
	})
}

func (c *Coordinator) withUpgrade(msg string, suggest func() (plans.Plan, bool)) *Remediation {
	plan, ok := suggest()
	if !ok {
		return &Remediation{Message: msg + " Contact support to raise your limits."}
	}
	return &Remediation{
		SuggestedTier: plan.Tier,
		Message:       fmt.Sprintf("%s Upgrade to %s (%s) to continue.", msg, plan.Name, plan.FormattedPrice()),
	}
}

func (c *Coordinator) planName(tier plans.Tier) string {
	plan, ok := c.policy.Plan(tier)
	if !ok {
		plan, _ = c.policy.Plan(plans.TierFree)
	}
	if plan.Name == "" {
		return string(plan.Tier)
	}
	return plan.Name
}

func periodSuffix(r plans.Resource) string {
	if r.Periodic() {
		return " this month"
	}
	return ""
}
