package plans

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type yamlDocument struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	Tier        string           `yaml:"tier"`
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Price       string           `yaml:"price"`
	Interval    string           `yaml:"interval"`
	Limits      map[string]int64 `yaml:"limits"`
	Features    []string         `yaml:"features"`
}

// LoadYAML parses a plan table. Plans are ranked in document order.
// Resources missing from a plan's limits default to 0.
func LoadYAML(r io.Reader) (*Policy, error) {
	var doc yamlDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make([]Plan, 0, len(doc.Plans))
	for i, yp := range doc.Plans {
		plan, err := yp.toPlan(i)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadPlans, err)
		}
		plans = append(plans, plan)
	}

	p, err := New(plans)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	return p, nil
}

// LoadFile reads a YAML plan table from path.
func LoadFile(path string) (*Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	defer f.Close()

	return LoadYAML(f)
}

func (yp yamlPlan) toPlan(rank int) (Plan, error) {
	plan := Plan{
		Tier:        ParseTier(yp.Tier),
		Name:        yp.Name,
		Description: yp.Description,
		Price:       decimal.Zero,
		Interval:    Interval(yp.Interval),
		Rank:        rank,
	}

	if yp.Price != "" {
		price, err := decimal.NewFromString(yp.Price)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %s price %q: %w", ErrInvalidPlan, yp.Tier, yp.Price, err)
		}
		plan.Price = price
	}

	switch plan.Interval {
	case IntervalNone, IntervalWeek, IntervalMonth, IntervalYear:
	default:
		return Plan{}, fmt.Errorf("%w: %s interval %q", ErrInvalidPlan, yp.Tier, yp.Interval)
	}

	for name, limit := range yp.Limits {
		r, err := ParseResource(name)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: %s limit %q: %w", ErrInvalidPlan, yp.Tier, name, err)
		}
		plan.Limits.set(r, limit)
	}

	for _, name := range yp.Features {
		switch Feature(name) {
		case FeatureAnalytics:
			plan.Limits.Features.Analytics = true
		case FeatureReports:
			plan.Limits.Features.Reports = true
		default:
			return Plan{}, fmt.Errorf("%w: %s feature %q", ErrInvalidPlan, yp.Tier, name)
		}
	}

	return plan, nil
}
