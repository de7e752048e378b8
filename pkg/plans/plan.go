package plans

import (
	"slices"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Interval is the billing period of a paid plan.
type Interval string

const (
	IntervalNone  Interval = ""
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Plan describes a tier together with its price and position in the upgrade path.
type Plan struct {
	Tier        Tier
	Name        string
	Description string
	Price       decimal.Decimal // NGN
	Interval    Interval
	Rank        int // upgrade order, lowest first
	Limits      Limits
}

// FormattedPrice renders the price in naira, e.g. "₦4,500.00/month".
func (p Plan) FormattedPrice() string {
	return FormatNaira(p.Price, p.Interval)
}

// FormatNaira formats an NGN amount with thousands separators.
func FormatNaira(amount decimal.Decimal, interval Interval) string {
	printer := message.NewPrinter(language.English)
	s := printer.Sprintf("₦%.2f", amount.Round(2).InexactFloat64())
	if interval != IntervalNone {
		s += "/" + string(interval)
	}
	return s
}

// ResourceChange is a limit moving between plans.
type ResourceChange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Comparison lists the differences between two plans.
type Comparison struct {
	IncreasedLimits map[Resource]ResourceChange
	DecreasedLimits map[Resource]ResourceChange
	GainedFeatures  []Feature
	LostFeatures    []Feature
}

// IsDowngrade reports whether anything is lost by moving to the target plan.
func (c Comparison) IsDowngrade() bool {
	return len(c.DecreasedLimits) > 0 || len(c.LostFeatures) > 0
}

// Compare returns the differences from current to target.
func Compare(current, target Plan) Comparison {
	c := Comparison{
		IncreasedLimits: make(map[Resource]ResourceChange),
		DecreasedLimits: make(map[Resource]ResourceChange),
	}

	for _, r := range Resources() {
		from, _ := current.Limits.For(r)
		to, _ := target.Limits.For(r)
		if from == to {
			continue
		}

		change := ResourceChange{From: from, To: to}
		switch {
		case from == Unlimited:
			c.DecreasedLimits[r] = change
		case to == Unlimited, to > from:
			c.IncreasedLimits[r] = change
		default:
			c.DecreasedLimits[r] = change
		}
	}

	currentFeatures := current.Limits.Features.List()
	targetFeatures := target.Limits.Features.List()
	for _, f := range targetFeatures {
		if !slices.Contains(currentFeatures, f) {
			c.GainedFeatures = append(c.GainedFeatures, f)
		}
	}
	for _, f := range currentFeatures {
		if !slices.Contains(targetFeatures, f) {
			c.LostFeatures = append(c.LostFeatures, f)
		}
	}

	return c
}
