package plans

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Policy is an immutable tier lookup table. It is safe for concurrent use.
type Policy struct {
	plans map[Tier]Plan
	order []Tier
}

// New validates plans and builds a Policy. A free tier is mandatory.
func New(plans []Plan) (*Policy, error) {
	if err := validate(plans); err != nil {
		return nil, err
	}

	sorted := slices.Clone(plans)
	slices.SortStableFunc(sorted, func(a, b Plan) int { return a.Rank - b.Rank })

	p := &Policy{
		plans: make(map[Tier]Plan, len(sorted)),
		order: make([]Tier, 0, len(sorted)),
	}
	for _, plan := range sorted {
		p.plans[plan.Tier] = plan
		p.order = append(p.order, plan.Tier)
	}
	return p, nil
}

// MustNew is like New but panics on invalid plans.
func MustNew(plans []Plan) *Policy {
	p, err := New(plans)
	if err != nil {
		panic(err)
	}
	return p
}

// Default returns the built-in NGN plans.
func Default() *Policy {
	return MustNew(DefaultPlans())
}

// DefaultPlans returns the built-in plan table.
func DefaultPlans() []Plan {
	return []Plan{
		{
			Tier:        TierFree,
			Name:        "Free",
			Description: "For getting started",
			Price:       decimal.Zero,
			Rank:        0,
			Limits: Limits{
				Invoices:    5,
				Expenses:    20,
				Customers:   50,
				Products:    20,
				TeamMembers: 1,
			},
		},
		{
			Tier:        TierWeekly,
			Name:        "Silver Weekly",
			Description: "Short-term access to paid features",
			Price:       decimal.NewFromInt(1400),
			Interval:    IntervalWeek,
			Rank:        1,
			Limits: Limits{
				Invoices:    100,
				Expenses:    100,
				Customers:   200,
				Products:    100,
				TeamMembers: 3,
				Features:    Features{Analytics: true},
			},
		},
		{
			Tier:        TierMonthly,
			Name:        "Silver Monthly",
			Description: "For growing businesses",
			Price:       decimal.NewFromInt(4500),
			Interval:    IntervalMonth,
			Rank:        2,
			Limits: Limits{
				Invoices:    450,
				Expenses:    500,
				Customers:   Unlimited,
				Products:    Unlimited,
				TeamMembers: 5,
				Features:    Features{Analytics: true, Reports: true},
			},
		},
		{
			Tier:        TierYearly,
			Name:        "Silver Yearly",
			Description: "Best value for established businesses",
			Price:       decimal.NewFromInt(50000),
			Interval:    IntervalYear,
			Rank:        3,
			Limits: Limits{
				Invoices:    Unlimited,
				Expenses:    Unlimited,
				Customers:   Unlimited,
				Products:    Unlimited,
				TeamMembers: 10,
				Features:    Features{Analytics: true, Reports: true},
			},
		},
	}
}

// LimitsFor returns the limits of tier, or the free tier's limits when the
// tier is unknown.
func (p *Policy) LimitsFor(tier Tier) Limits {
	return p.planOrFree(tier).Limits
}

// Plan returns the plan for tier.
func (p *Policy) Plan(tier Tier) (Plan, bool) {
	plan, ok := p.plans[tier]
	return plan, ok
}

// Known reports whether tier is configured.
func (p *Policy) Known(tier Tier) bool {
	_, ok := p.plans[tier]
	return ok
}

// Plans returns all plans in upgrade order.
func (p *Policy) Plans() []Plan {
	out := make([]Plan, 0, len(p.order))
	for _, t := range p.order {
		out = append(out, p.plans[t])
	}
	return out
}

// NextTier returns the tier directly above tier in the upgrade order.
// Unknown tiers are treated as free.
func (p *Policy) NextTier(tier Tier) (Tier, bool) {
	current := p.planOrFree(tier).Tier
	i := slices.Index(p.order, current)
	if i < 0 || i+1 >= len(p.order) {
		return "", false
	}
	return p.order[i+1], true
}

// UpgradeFor returns the lowest tier above tier whose limit for r exceeds
// current. It falls back to NextTier when no tier offers enough room.
func (p *Policy) UpgradeFor(tier Tier, r Resource, current int64) (Plan, bool) {
	return p.upgrade(tier, func(l Limits) bool { return l.Allows(r, current) })
}

// UpgradeForFeature returns the lowest tier above tier that enables f.
func (p *Policy) UpgradeForFeature(tier Tier, f Feature) (Plan, bool) {
	return p.upgrade(tier, func(l Limits) bool { return l.Features.Has(f) })
}

func (p *Policy) upgrade(tier Tier, fits func(Limits) bool) (Plan, bool) {
	current := p.planOrFree(tier)
	for _, t := range p.order {
		candidate := p.plans[t]
		if candidate.Rank > current.Rank && fits(candidate.Limits) {
			return candidate, true
		}
	}
	next, ok := p.NextTier(current.Tier)
	if !ok {
		return Plan{}, false
	}
	return p.plans[next], true
}

// Compare returns the differences between two tiers.
func (p *Policy) Compare(from, to Tier) Comparison {
	return Compare(p.planOrFree(from), p.planOrFree(to))
}

func (p *Policy) planOrFree(tier Tier) Plan {
	if plan, ok := p.plans[tier]; ok {
		return plan
	}
	return p.plans[TierFree]
}

func validate(plans []Plan) error {
	seen := make(map[Tier]struct{}, len(plans))
	var errs []error

	for _, plan := range plans {
		if plan.Tier == "" {
			errs = append(errs, fmt.Errorf("%w: empty tier", ErrInvalidPlan))
			continue
		}
		if _, dup := seen[plan.Tier]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateTier, plan.Tier))
			continue
		}
		seen[plan.Tier] = struct{}{}

		if plan.Price.IsNegative() {
			errs = append(errs, fmt.Errorf("%w: %s has negative price", ErrInvalidPlan, plan.Tier))
		}
		for _, r := range Resources() {
			if limit, _ := plan.Limits.For(r); limit < Unlimited {
				errs = append(errs, fmt.Errorf("%w: %s limit for %s is %d", ErrInvalidPlan, plan.Tier, r, limit))
			}
		}
	}

	if _, ok := seen[TierFree]; !ok {
		errs = append(errs, ErrMissingFreeTier)
	}

	return errors.Join(errs...)
}
