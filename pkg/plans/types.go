package plans

import "strings"

// Tier names a subscription plan.
type Tier string

const (
	TierFree    Tier = "free"
	TierWeekly  Tier = "weekly"
	TierMonthly Tier = "monthly"
	TierYearly  Tier = "yearly"
)

// ParseTier normalizes a tier name received from the remote service.
func ParseTier(s string) Tier {
	return Tier(strings.ToLower(strings.TrimSpace(s)))
}

// Resource is a countable entity tracked against a quota.
type Resource string

const (
	ResourceInvoices    Resource = "invoices"
	ResourceExpenses    Resource = "expenses"
	ResourceCustomers   Resource = "customers"
	ResourceProducts    Resource = "products"
	ResourceTeamMembers Resource = "team_members"
)

// Resources returns every tracked resource in display order.
func Resources() []Resource {
	return []Resource{
		ResourceInvoices,
		ResourceExpenses,
		ResourceCustomers,
		ResourceProducts,
		ResourceTeamMembers,
	}
}

// ParseResource accepts snake_case and camelCase names.
func ParseResource(s string) (Resource, error) {
	switch strings.TrimSpace(s) {
	case "invoices":
		return ResourceInvoices, nil
	case "expenses":
		return ResourceExpenses, nil
	case "customers":
		return ResourceCustomers, nil
	case "products":
		return ResourceProducts, nil
	case "team_members", "teamMembers":
		return ResourceTeamMembers, nil
	}
	return "", ErrUnknownResource
}

// Periodic reports whether the resource counter resets every calendar month.
func (r Resource) Periodic() bool {
	return r == ResourceInvoices || r == ResourceExpenses
}

// Feature is a plan-gated capability.
type Feature string

const (
	FeatureAnalytics Feature = "analytics"
	FeatureReports   Feature = "reports"
)

// Unlimited marks a resource without a quota.
const Unlimited int64 = -1

// Features holds the feature flags of a plan.
type Features struct {
	Analytics bool `json:"analytics"`
	Reports   bool `json:"reports"`
}

// Has reports whether f is enabled. Unknown features are disabled.
func (f Features) Has(feature Feature) bool {
	switch feature {
	case FeatureAnalytics:
		return f.Analytics
	case FeatureReports:
		return f.Reports
	}
	return false
}

// List returns the enabled features.
func (f Features) List() []Feature {
	var out []Feature
	if f.Analytics {
		out = append(out, FeatureAnalytics)
	}
	if f.Reports {
		out = append(out, FeatureReports)
	}
	return out
}

// Limits is the quota set of one tier.
type Limits struct {
	Invoices    int64    `json:"invoices"`
	Expenses    int64    `json:"expenses"`
	Customers   int64    `json:"customers"`
	Products    int64    `json:"products"`
	TeamMembers int64    `json:"team_members"`
	Features    Features `json:"features"`
}

// For returns the limit for r. The second value is false for resources the
// plan does not know, which callers treat as always allowed.
func (l Limits) For(r Resource) (int64, bool) {
	switch r {
	case ResourceInvoices:
		return l.Invoices, true
	case ResourceExpenses:
		return l.Expenses, true
	case ResourceCustomers:
		return l.Customers, true
	case ResourceProducts:
		return l.Products, true
	case ResourceTeamMembers:
		return l.TeamMembers, true
	}
	return 0, false
}

func (l *Limits) set(r Resource, v int64) {
	switch r {
	case ResourceInvoices:
		l.Invoices = v
	case ResourceExpenses:
		l.Expenses = v
	case ResourceCustomers:
		l.Customers = v
	case ResourceProducts:
		l.Products = v
	case ResourceTeamMembers:
		l.TeamMembers = v
	}
}

// Allows reports whether current usage leaves room for one more unit.
func (l Limits) Allows(r Resource, current int64) bool {
	limit, ok := l.For(r)
	if !ok || limit == Unlimited {
		return true
	}
	return current < limit
}
