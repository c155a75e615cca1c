// Package procinspect implements the Process Inspector (§4.3): best-effort
// answers to "is this app running" and "who has path X open". Results are
// advisory — Go has no portable syscall for file-handle ownership, so every
// platform backend fails open (empty result, nil error) rather than
// blocking a cleanup on an inconclusive answer.
package procinspect

import (
	"context"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// Inspector is the default core.ProcessInspector implementation. The actual
// enumeration is platform-specific (see inspector_unix.go / inspector_other.go),
// mirroring the teacher's getDiskUsagePercent unix/windows split.
type Inspector struct{}

func New() *Inspector { return &Inspector{} }

// IsRunning reports whether any live process matches bundleID (treated, on
// unix, as a case-insensitive substring of the process command or
// executable path — there is no macOS bundle registry to query here).
func (i *Inspector) IsRunning(ctx context.Context, bundleID string) (bool, error) {
	return isRunning(ctx, bundleID)
}

// ProcessesHolding returns the processes with an open file descriptor under
// path. An empty, nil-error result means "no holders found", which the
// executor treats identically to "could not determine" (§4.3).
func (i *Inspector) ProcessesHolding(ctx context.Context, path string) ([]core.ProcessInfo, error) {
	return processesHolding(ctx, path)
}

var _ core.ProcessInspector = (*Inspector)(nil)
