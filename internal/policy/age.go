package policy

import (
	"context"
	"time"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// AgeFilter admits records at least MinAge old (CleanPolicy.MinAgeDays).
type AgeFilter struct {
	MinAge time.Duration
}

func NewAgeFilter(minAgeDays int) *AgeFilter {
	return &AgeFilter{MinAge: time.Duration(minAgeDays) * 24 * time.Hour}
}

func (f *AgeFilter) Evaluate(_ context.Context, rec core.PathRecord, env core.EnvSnapshot) Decision {
	age := env.Now.Sub(rec.ModTime)
	if age < 0 {
		age = 0
	}

	ageDays := int(age / (24 * time.Hour))
	if ageDays > 3650 {
		ageDays = 3650
	}

	sizeMiB := int(rec.SizeBytes / (1024 * 1024))
	if sizeMiB > 1024 {
		sizeMiB = 1024
	}

	// Priority score: age dominates; size is a small tie-breaker.
	score := ageDays*10 + sizeMiB

	if f.MinAge == 0 || age >= f.MinAge {
		return Decision{Allow: true, Reason: "age_ok", Score: score}
	}
	return Decision{Allow: false, Reason: "too_new", Score: 0}
}
