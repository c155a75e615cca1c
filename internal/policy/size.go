package policy

import (
	"context"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// SizeFilter admits records at least MinBytes large. Not driven directly
// by CleanPolicy (which has no size floor), but available for daemon-side
// heuristics such as "only auto-clean caches over 50MB".
type SizeFilter struct {
	MinBytes int64
}

func NewSizeFilter(minMB int) *SizeFilter {
	return &SizeFilter{MinBytes: int64(minMB) * 1024 * 1024}
}

func (f *SizeFilter) Evaluate(_ context.Context, rec core.PathRecord, _ core.EnvSnapshot) Decision {
	if rec.SizeBytes >= f.MinBytes {
		sizeMB := int(rec.SizeBytes / (1024 * 1024))
		if sizeMB > 1024 {
			sizeMB = 1024
		}
		return Decision{Allow: true, Reason: "size_ok", Score: sizeMB}
	}
	return Decision{Allow: false, Reason: "too_small", Score: 0}
}
