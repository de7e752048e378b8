package enforce

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/Cachi0001/Biz-sub011/pkg/logger"
	"github.com/Cachi0001/Biz-sub011/pkg/plans"
	"github.com/Cachi0001/Biz-sub011/pkg/usage"
)

// TierResolver returns the subscription tier of an owner.
type TierResolver func(ctx context.Context, owner uuid.UUID) (plans.Tier, error)

// OwnerResolver maps an acting identity to the account whose plan applies.
// It is consulted only when a Subject carries no explicit Owner.
type OwnerResolver func(ctx context.Context, identity uuid.UUID) (uuid.UUID, error)

// UsageReader provides the current counters of an owner.
type UsageReader interface {
	GetUsage(ctx context.Context, owner uuid.UUID) (usage.Snapshot, error)
}

// Recorder receives decision events, e.g. for Prometheus metrics.
type Recorder interface {
	DecisionMade(action, reason string, allowed, degraded bool)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRules replaces the action table.
func WithRules(rules map[Action]Rule) Option {
	return func(c *Coordinator) {
		if rules != nil {
			c.rules = rules
		}
	}
}

// WithWarningPercent sets the APPROACHING_LIMIT threshold (1-100).
func WithWarningPercent(p int64) Option {
	return func(c *Coordinator) {
		if p > 0 && p <= 100 {
			c.warnPercent = p
		}
	}
}

// WithOwnerResolver sets the identity to owner lookup.
func WithOwnerResolver(r OwnerResolver) Option {
	return func(c *Coordinator) { c.owners = r }
}

// WithLogger sets the coordinator logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches a decision recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// Coordinator evaluates actions against plan limits. It is safe for concurrent use.
type Coordinator struct {
	policy      *plans.Policy
	usage       UsageReader
	tiers       TierResolver
	owners      OwnerResolver
	rules       map[Action]Rule
	warnPercent int64
	logger      *slog.Logger
	recorder    Recorder
}

// NewCoordinator creates a Coordinator. Panics if a required dependency is nil.
func NewCoordinator(policy *plans.Policy, u UsageReader, tiers TierResolver, opts ...Option) *Coordinator {
	if policy == nil || u == nil || tiers == nil {
		panic("enforce: policy, usage reader and tier resolver are required")
	}
	c := &Coordinator{
		policy:      policy,
		usage:       u,
		tiers:       tiers,
		rules:       DefaultRules(),
		warnPercent: DefaultWarningPercent,
		logger:      slog.Default(),
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("enforce"))
	return c
}

// Check evaluates action for subject.
func (c *Coordinator) Check(ctx context.Context, action Action, subject Subject) Decision {
	rule, ok := c.rules[action]
	if !ok {
		return c.record(Decision{Action: action, Allowed: true, Reason: ReasonOK})
	}

	owner, tier, err := c.resolve(ctx, subject)
	if err != nil {
		return c.degraded(ctx, action, rule, err)
	}
	limits := c.policy.LimitsFor(tier)

	if rule.Feature != "" {
		return c.record(c.checkFeature(action, rule.Feature, tier, limits))
	}

	snap, err := c.usage.GetUsage(ctx, owner)
	if err != nil {
		return c.degraded(ctx, action, rule, errors.Join(ErrUsageUnavailable, err))
	}
	return c.record(c.checkResource(action, rule.Resource, tier, limits, snap))
}

// Actions returns the configured actions in lexical order.
func (c *Coordinator) Actions() []Action {
	actions := make([]Action, 0, len(c.rules))
	for a := range c.rules {
		actions = append(actions, a)
	}
	slices.SortFunc(actions, func(a, b Action) int { return cmp.Compare(a, b) })
	return actions
}

// Handles reports whether action has a rule.
func (c *Coordinator) Handles(action Action) bool {
	_, ok := c.rules[action]
	return ok
}

// CheckAll evaluates every configured action against one usage read.
func (c *Coordinator) CheckAll(ctx context.Context, subject Subject) []Decision {
	actions := c.Actions()

	owner, tier, err := c.resolve(ctx, subject)
	var snap usage.Snapshot
	if err == nil {
		snap, err = c.usage.GetUsage(ctx, owner)
		if err != nil {
			err = errors.Join(ErrUsageUnavailable, err)
		}
	}

	decisions := make([]Decision, 0, len(actions))
	limits := c.policy.LimitsFor(tier)
	for _, action := range actions {
		rule := c.rules[action]
		switch {
		case err != nil:
			decisions = append(decisions, c.degraded(ctx, action, rule, err))
		case rule.Feature != "":
			decisions = append(decisions, c.record(c.checkFeature(action, rule.Feature, tier, limits)))
		default:
			decisions = append(decisions, c.record(c.checkResource(action, rule.Resource, tier, limits, snap)))
		}
	}
	return decisions
}

// resolve finds the effective owner and its tier.
func (c *Coordinator) resolve(ctx context.Context, subject Subject) (uuid.UUID, plans.Tier, error) {
	owner := subject.Owner
	if owner == uuid.Nil {
		owner = subject.Identity
		if c.owners != nil && subject.Identity != uuid.Nil {
			resolved, err := c.owners(ctx, subject.Identity)
			if err != nil {
				return uuid.Nil, "", errors.Join(ErrOwnerUnresolved, err)
			}
			if resolved != uuid.Nil {
				owner = resolved
			}
		}
	}
	if owner == uuid.Nil {
		return uuid.Nil, "", ErrOwnerUnresolved
	}

	tier, err := c.tiers(ctx, owner)
	if err != nil {
		return owner, "", errors.Join(ErrTierUnavailable, err)
	}
	return owner, tier, nil
}

func (c *Coordinator) checkResource(action Action, r plans.Resource, tier plans.Tier, limits plans.Limits, snap usage.Snapshot) Decision {
	current, _ := snap.Count(r)
	limit, known := limits.For(r)

	d := Decision{
		Action:   action,
		Allowed:  true,
		Reason:   ReasonOK,
		Tier:     tier,
		Resource: r,
		Current:  current,
		Limit:    limit,
	}
	if !known || limit == plans.Unlimited {
		d.Limit = plans.Unlimited
		return d
	}

	d.PercentUsed = usage.PercentUsed(current, limit)
	switch {
	case current >= limit:
		d.Allowed = false
		d.Reason = ReasonLimitReached
		d.Remediation = c.limitRemediation(tier, r, current, limit)
	case current*100 >= limit*c.warnPercent:
		d.Reason = ReasonApproachingLimit
		d.Remediation = c.warningRemediation(tier, r, current, limit)
	}
	return d
}

func (c *Coordinator) checkFeature(action Action, f plans.Feature, tier plans.Tier, limits plans.Limits) Decision {
	d := Decision{
		Action:  action,
		Allowed: true,
		Reason:  ReasonOK,
		Tier:    tier,
		Feature: f,
	}
	if !limits.Features.Has(f) {
		d.Allowed = false
		d.Reason = ReasonFeatureNotInPlan
		d.Remediation = c.featureRemediation(tier, f)
	}
	return d
}

func (c *Coordinator) degraded(ctx context.Context, action Action, rule Rule, err error) Decision {
	c.logger.WarnContext(ctx, "allowing action on degraded enforcement",
		logger.Action(string(action)),
		logger.Error(err),
	)
	return c.record(Decision{
		Action:   action,
		Allowed:  true,
		Reason:   ReasonOK,
		Resource: rule.Resource,
		Feature:  rule.Feature,
		Degraded: true,
	})
}

func (c *Coordinator) record(d Decision) Decision {
	c.recorder.DecisionMade(string(d.Action), string(d.Reason), d.Allowed, d.Degraded)
	if !d.Allowed {
		c.logger.Debug("action denied",
			logger.Action(string(d.Action)),
			logger.Tier(string(d.Tier)),
			slog.String("reason", string(d.Reason)),
		)
	}
	return d
}

type nopRecorder struct{}

func (nopRecorder) DecisionMade(string, string, bool, bool) {}
