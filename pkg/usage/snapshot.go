package usage

import (
	"time"

	"github.com/Cachi0001/Biz-sub011/pkg/plans"
)

// Snapshot holds the counters of one owner. All counts are non-negative.
type Snapshot struct {
	Invoices    int64     `json:"invoices"`
	Expenses    int64     `json:"expenses"`
	Customers   int64     `json:"customers"`
	Products    int64     `json:"products"`
	TeamMembers int64     `json:"teamMembers"`
	PeriodStart time.Time `json:"periodStart"`
}

// NewSnapshot returns an empty snapshot for the period containing now.
func NewSnapshot(now time.Time) Snapshot {
	return Snapshot{PeriodStart: PeriodStart(now)}
}

// PeriodStart returns the first instant of the calendar month (UTC) containing t.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Count returns the counter for r.
func (s Snapshot) Count(r plans.Resource) (int64, bool) {
	switch r {
	case plans.ResourceInvoices:
		return s.Invoices, true
	case plans.ResourceExpenses:
		return s.Expenses, true
	case plans.ResourceCustomers:
		return s.Customers, true
	case plans.ResourceProducts:
		return s.Products, true
	case plans.ResourceTeamMembers:
		return s.TeamMembers, true
	}
	return 0, false
}

// Counts returns all counters keyed by resource.
func (s Snapshot) Counts() map[plans.Resource]int64 {
	out := make(map[plans.Resource]int64, len(plans.Resources()))
	for _, r := range plans.Resources() {
		out[r], _ = s.Count(r)
	}
	return out
}

func (s *Snapshot) set(r plans.Resource, v int64) bool {
	v = max(v, 0)
	switch r {
	case plans.ResourceInvoices:
		s.Invoices = v
	case plans.ResourceExpenses:
		s.Expenses = v
	case plans.ResourceCustomers:
		s.Customers = v
	case plans.ResourceProducts:
		s.Products = v
	case plans.ResourceTeamMembers:
		s.TeamMembers = v
	default:
		return false
	}
	return true
}

// Rollover resets the period-bound counters when now falls in a later month
// than PeriodStart. It reports whether the snapshot changed.
func (s Snapshot) Rollover(now time.Time) (Snapshot, bool) {
	current := PeriodStart(now)
	if !current.After(s.PeriodStart) {
		return s, false
	}

	next := s
	for _, r := range plans.Resources() {
		if r.Periodic() {
			next.set(r, 0)
		}
	}
	next.PeriodStart = current
	return next, true
}

// Reconcile merges authoritative remote counts into local. Every resource the
// remote reports overrides the local value; resources it omits keep the local
// value. Unknown resources are ignored and negative counts clamp to zero.
func Reconcile(local Snapshot, remote map[plans.Resource]int64) Snapshot {
	merged := local
	for r, v := range remote {
		merged.set(r, v)
	}
	return merged
}

// PercentUsed returns min(100, 100*current/limit). Unlimited quotas report 0
// and a zero quota reports 100.
func PercentUsed(current, limit int64) float64 {
	if limit == plans.Unlimited || current <= 0 {
		return 0
	}
	if limit <= 0 || current >= limit {
		return 100
	}
	return 100 * float64(current) / float64(limit)
}
