package policy

import (
	"context"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// CompositeMode determines how multiple filters are combined.
type CompositeMode string

const (
	// ModeAnd requires all filters to allow (logical AND).
	ModeAnd CompositeMode = "and"
	// ModeOr requires at least one filter to allow (logical OR).
	ModeOr CompositeMode = "or"
)

// CompositeFilter combines multiple filters with AND or OR logic.
type CompositeFilter struct {
	Filters []Filter
	Mode    CompositeMode
}

// NewCompositeFilter creates a filter that combines multiple filters.
// Mode "and" requires all to allow; mode "or" requires at least one to allow.
func NewCompositeFilter(mode CompositeMode, filters ...Filter) *CompositeFilter {
	return &CompositeFilter{Filters: filters, Mode: mode}
}

// FromCleanPolicy builds the standard AND-composite the executor runs
// every classified record through: category include/exclude, age floor,
// then user glob exclusions.
func FromCleanPolicy(p core.CleanPolicy) *CompositeFilter {
	return NewCompositeFilter(ModeAnd,
		NewCategoryFilter(p),
		NewAgeFilter(p.MinAgeDays),
		NewExclusionFilter(p.ExcludeGlobs),
	)
}

func (f *CompositeFilter) Evaluate(ctx context.Context, rec core.PathRecord, env core.EnvSnapshot) Decision {
	if len(f.Filters) == 0 {
		return Decision{Allow: false, Reason: "no_filters", Score: 0}
	}

	switch f.Mode {
	case ModeAnd:
		return f.evaluateAnd(ctx, rec, env)
	case ModeOr:
		return f.evaluateOr(ctx, rec, env)
	default:
		return Decision{Allow: false, Reason: "invalid_mode", Score: 0}
	}
}

// evaluateAnd returns allow only if ALL filters allow.
func (f *CompositeFilter) evaluateAnd(ctx context.Context, rec core.PathRecord, env core.EnvSnapshot) Decision {
	minScore := int(^uint(0) >> 1) // Max int

	for _, flt := range f.Filters {
		dec := flt.Evaluate(ctx, rec, env)
		if !dec.Allow {
			return Decision{Allow: false, Reason: "and_deny:" + dec.Reason, Score: 0}
		}
		if dec.Score < minScore {
			minScore = dec.Score
		}
	}

	return Decision{Allow: true, Reason: "and_allow", Score: minScore}
}

// evaluateOr returns allow if ANY filter allows.
func (f *CompositeFilter) evaluateOr(ctx context.Context, rec core.PathRecord, env core.EnvSnapshot) Decision {
	maxScore := 0
	var allowReason string
	var denyReasons []string

	for _, flt := range f.Filters {
		dec := flt.Evaluate(ctx, rec, env)
		if dec.Allow {
			if dec.Score > maxScore || allowReason == "" {
				maxScore = dec.Score
				allowReason = dec.Reason
			}
		} else {
			denyReasons = append(denyReasons, dec.Reason)
		}
	}

	if allowReason != "" {
		return Decision{Allow: true, Reason: "or_allow:" + allowReason, Score: maxScore}
	}

	reason := "or_deny"
	if len(denyReasons) > 0 {
		reason = "or_deny:" + denyReasons[0]
	}
	return Decision{Allow: false, Reason: reason, Score: 0}
}
