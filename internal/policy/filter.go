// Package policy holds the secondary filters the Executor runs a classified
// PathRecord through after the tier/level gate passes: category
// include/exclude, age floor, and user glob exclusions. Unlike the
// classifier, a Filter never changes a record's tier or category — it only
// decides whether a CleanPolicy admits it.
package policy

import (
	"context"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// Decision is a filter's verdict on one record. Score breaks ties when a
// caller wants to favor the largest or oldest admitted records first; it
// carries no weight on whether the record is admitted.
type Decision struct {
	Allow  bool
	Reason string
	Score  int
}

// Filter evaluates one classified record against a CleanPolicy's extra
// constraints (§3 CleanPolicy, §4.7).
type Filter interface {
	Evaluate(ctx context.Context, rec core.PathRecord, env core.EnvSnapshot) Decision
}
