//go:build unix

package procinspect

import (
	"context"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

func isRunning(ctx context.Context, bundleID string) (bool, error) {
	if bundleID == "" {
		return false, nil
	}
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		// /proc unavailable: fail open, advisory only.
		return false, nil
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return false, nil
	}
	needle := strings.ToLower(bundleID)
	for _, p := range procs {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}
		if comm, err := p.Comm(); err == nil && strings.Contains(strings.ToLower(comm), needle) {
			return true, nil
		}
		if exe, err := p.Executable(); err == nil && strings.Contains(strings.ToLower(exe), needle) {
			return true, nil
		}
	}
	return false, nil
}

func processesHolding(ctx context.Context, path string) ([]core.ProcessInfo, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, nil
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, nil
	}

	var holders []core.ProcessInfo
	for _, p := range procs {
		select {
		case <-ctx.Done():
			return holders, ctx.Err()
		default:
		}
		targets, err := p.FileDescriptorTargets()
		if err != nil {
			continue
		}
		for _, t := range targets {
			if t == path || strings.HasPrefix(t, path+"/") {
				name, _ := p.Comm()
				holders = append(holders, core.ProcessInfo{PID: p.PID, Name: name})
				break
			}
		}
	}
	return holders, nil
}
