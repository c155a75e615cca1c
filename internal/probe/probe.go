// Package probe implements the Metadata Probe (§4.2): stats a path once,
// resolves a symlink at most one level, and (for directories) checks
// whether it contains any subdirectories — the signal the classifier's
// type modifier needs without a full recursive walk.
package probe

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// Probe is the default core.MetadataProbe implementation.
type Probe struct{}

func New() *Probe { return &Probe{} }

// Probe stats path and fills in a core.ProbeResult. Any stat failure is
// reported through the UnreachableReason return, never an error value —
// callers fold this into ScanReport.Unreachable (§4.5).
func (p *Probe) Probe(ctx context.Context, path string) (*core.ProbeResult, *core.UnreachableReason) {
	select {
	case <-ctx.Done():
		return nil, &core.UnreachableReason{Path: path, Reason: "cancelled"}
	default:
	}

	lst, err := os.Lstat(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &core.UnreachableReason{Path: path, Reason: "permission_denied"}
		}
		if os.IsNotExist(err) {
			return nil, &core.UnreachableReason{Path: path, Reason: "not_found"}
		}
		return nil, &core.UnreachableReason{Path: path, Reason: "stat_error:" + err.Error()}
	}

	res := &core.ProbeResult{
		CanonicalPath: filepath.Clean(path),
		ModTime:       lst.ModTime(),
		// Go's os.FileInfo carries no portable access time; ModTime is the
		// closest cross-platform signal and is what age-based layers use.
		ATime:    lst.ModTime(),
		DeviceID: deviceID(lst),
	}

	if lst.Mode()&os.ModeSymlink != 0 {
		res.IsSymlink = true
		res.Type = core.TargetSymlink
		if target, err := os.Readlink(path); err == nil {
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(path), target)
			}
			res.LinkTarget = filepath.Clean(target)
		}
		// Resolve one level to learn the target's size/kind, but never
		// follow further — §4.2 "resolves a symlink at most one level".
		if res.LinkTarget != "" {
			if target, err := os.Lstat(res.LinkTarget); err == nil {
				res.SizeBytes = target.Size()
				if target.IsDir() {
					res.HasSubdirs = hasSubdirs(res.LinkTarget)
				}
			}
		}
		return res, nil
	}

	if lst.IsDir() {
		res.Type = core.TargetDir
		res.SizeBytes = dirSize(path)
		res.HasSubdirs = hasSubdirs(path)
		return res, nil
	}

	res.Type = core.TargetFile
	res.SizeBytes = lst.Size()
	return res, nil
}

// hasSubdirs reports whether dir directly contains another directory.
// Best-effort: a read error is treated as "no subdirs" rather than
// failing the whole probe.
func hasSubdirs(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			return true
		}
	}
	return false
}

// dirSize sums the apparent size of dir's immediate file entries. The
// scanner is responsible for the full recursive total in ScanReport;
// the probe only needs a cheap first-order estimate for ordering.
func dirSize(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

var _ core.MetadataProbe = (*Probe)(nil)
