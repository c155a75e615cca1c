//go:build !unix

package procinspect

import (
	"context"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// /proc is unix-specific; on other platforms every query fails open.
func isRunning(ctx context.Context, bundleID string) (bool, error) {
	return false, nil
}

func processesHolding(ctx context.Context, path string) ([]core.ProcessInfo, error) {
	return nil, nil
}
