package policy

import (
	"context"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// CategoryFilter implements CleanPolicy's IncludeCategories/ExcludeCategories
// gate (§3 CleanPolicy): empty IncludeCategories means all categories are
// eligible; anything in ExcludeCategories is denied regardless.
type CategoryFilter struct {
	Include map[core.Category]bool // nil/empty == allow all
	Exclude map[core.Category]bool
}

func NewCategoryFilter(policy core.CleanPolicy) *CategoryFilter {
	f := &CategoryFilter{}
	if len(policy.IncludeCategories) > 0 {
		f.Include = make(map[core.Category]bool, len(policy.IncludeCategories))
		for _, c := range policy.IncludeCategories {
			f.Include[c] = true
		}
	}
	if len(policy.ExcludeCategories) > 0 {
		f.Exclude = make(map[core.Category]bool, len(policy.ExcludeCategories))
		for _, c := range policy.ExcludeCategories {
			f.Exclude[c] = true
		}
	}
	return f
}

func (f *CategoryFilter) Evaluate(_ context.Context, rec core.PathRecord, _ core.EnvSnapshot) Decision {
	if f.Exclude[rec.Category] {
		return Decision{Allow: false, Reason: "category_excluded:" + string(rec.Category)}
	}
	if len(f.Include) > 0 && !f.Include[rec.Category] {
		return Decision{Allow: false, Reason: "category_not_included:" + string(rec.Category)}
	}
	return Decision{Allow: true, Reason: "category_ok"}
}
