// Package cloudsync implements the Cloud Sync Probe (§4.4): detects
// whether a path sits inside a well-known cloud-sync root, and
// approximates "actively syncing" via provider sentinel files. This is a
// heuristic, not an API integration — no provider exposes a public sync
// status call on the desktop.
package cloudsync

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// root pairs a well-known sync directory (relative to $HOME unless
// absolute) with the service name reported in CloudSyncStatus.
type root struct {
	service string
	path    string // relative to home
}

var knownRoots = []root{
	{service: "icloud", path: "Library/Mobile Documents/com~apple~CloudDocs"},
	{service: "dropbox", path: "Dropbox"},
	{service: "onedrive", path: "OneDrive"},
	{service: "google_drive", path: "Google Drive"},
}

// sentinelSuffixes name provider markers left inside a directory while it is
// actively uploading or has an unresolved placeholder — a heuristic, not a
// guarantee.
var sentinelSuffixes = []string{".icloud", ".dropbox.cache", ".tmp.driveupload"}

// Probe is the default core.CloudSyncProbe implementation.
type Probe struct {
	home string
}

func New(home string) *Probe {
	return &Probe{home: home}
}

// Status reports which sync root, if any, contains path, and whether that
// directory shows a sentinel marker suggesting an in-flight sync. A path
// outside every known root returns (nil, nil) — "not cloud-tracked", not an
// error.
func (p *Probe) Status(ctx context.Context, path string) (*core.CloudSyncStatus, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	clean := filepath.Clean(path)
	for _, r := range knownRoots {
		base := r.path
		if p.home != "" && !filepath.IsAbs(base) {
			base = filepath.Join(p.home, base)
		}
		base = filepath.Clean(base)
		if !isPathOrChild(clean, base) {
			continue
		}
		return &core.CloudSyncStatus{
			Service:   r.service,
			IsSyncing: hasSentinel(filepath.Dir(clean)),
		}, nil
	}
	return nil, nil
}

func hasSentinel(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		for _, suffix := range sentinelSuffixes {
			if strings.HasSuffix(name, suffix) {
				return true
			}
		}
	}
	return false
}

// isPathOrChild mirrors internal/safety's containment check: path equals
// base or sits strictly beneath it.
func isPathOrChild(path, base string) bool {
	if path == base {
		return true
	}
	baseWithSep := base
	if !strings.HasSuffix(baseWithSep, string(os.PathSeparator)) {
		baseWithSep += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, baseWithSep)
}

var _ core.CloudSyncProbe = (*Probe)(nil)
