// Package rules holds the declarative category table the classifier's
// second layer evaluates: which well-known path patterns map to which
// Category and base SafetyTier (§4.1 layer 2), grounded on the known
// cache/artifact locations macOS developer tools leave behind.
package rules

import (
	"path/filepath"
	"strings"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// MatchKind selects how Rule.Pattern is interpreted.
type MatchKind int

const (
	MatchPrefix MatchKind = iota // path has Pattern as a path-component prefix, relative to $HOME
	MatchGlob                    // filepath.Match against the path's base name
	MatchSuffix                  // path's trailing component(s) equal Pattern (e.g. node_modules)
)

// ToolAssist names an external tool the executor should prefer over a
// direct unlink for this category, when available (§4.7 tool-assisted
// branch). Empty means always delete directly.
type ToolAssist struct {
	Command     string
	Args        []string
	Description string
}

// Rule maps one well-known artifact location to a Category and the base
// tier it starts at before the age/type modifiers apply.
type Rule struct {
	Category  core.Category
	Kind      MatchKind
	Pattern   string // interpreted per Kind; prefix patterns are relative to $HOME unless absolute
	BaseTier  core.SafetyTier
	ToolHint  *ToolAssist
}

// Table is the compile-time list of known rules, ordered most-specific
// first: Match walks it in order and returns on the first hit.
func Table() []Rule {
	return []Rule{
		{Category: core.CategoryTrash, Kind: MatchPrefix, Pattern: ".Trash", BaseTier: core.TierSafe},

		{Category: core.CategoryBrowserCache, Kind: MatchPrefix, Pattern: "Library/Caches/com.apple.Safari", BaseTier: core.TierSafe},
		{Category: core.CategoryBrowserCache, Kind: MatchPrefix, Pattern: "Library/Caches/Google/Chrome", BaseTier: core.TierSafe},
		{Category: core.CategoryBrowserCache, Kind: MatchPrefix, Pattern: "Library/Caches/Firefox", BaseTier: core.TierSafe},
		{Category: core.CategoryBrowserCache, Kind: MatchPrefix, Pattern: "Library/Application Support/Google/Chrome/Default/Cache", BaseTier: core.TierSafe},

		{
			Category: core.CategoryXcodeDerivedData, Kind: MatchPrefix,
			Pattern: "Library/Developer/Xcode/DerivedData", BaseTier: core.TierWarning,
		},
		{
			Category: core.CategoryXcodeArchive, Kind: MatchPrefix,
			Pattern: "Library/Developer/Xcode/Archives", BaseTier: core.TierWarning,
		},
		{
			Category: core.CategoryDeviceSupport, Kind: MatchPrefix,
			Pattern: "Library/Developer/Xcode/iOS DeviceSupport", BaseTier: core.TierCaution,
		},
		{
			Category: core.CategorySimulator, Kind: MatchPrefix,
			Pattern: "Library/Developer/CoreSimulator/Caches", BaseTier: core.TierSafe,
		},
		{
			Category: core.CategorySimulator, Kind: MatchPrefix,
			Pattern: "Library/Developer/CoreSimulator/Devices", BaseTier: core.TierCaution,
			ToolHint: &ToolAssist{Command: "xcrun", Args: []string{"simctl", "delete", "unavailable"}, Description: "remove unavailable simulator devices"},
		},

		{
			Category: core.CategoryPackageCache, Kind: MatchPrefix,
			Pattern: ".npm/_cacache", BaseTier: core.TierSafe,
		},
		{
			Category: core.CategoryPackageCache, Kind: MatchPrefix,
			Pattern: "Library/Caches/Yarn", BaseTier: core.TierSafe,
		},
		{
			Category: core.CategoryPackageCache, Kind: MatchPrefix,
			Pattern: "Library/Caches/Homebrew", BaseTier: core.TierSafe,
		},
		{
			Category: core.CategoryPackageCache, Kind: MatchPrefix,
			Pattern: "go/pkg/mod/cache", BaseTier: core.TierSafe,
			ToolHint: &ToolAssist{Command: "go", Args: []string{"clean", "-modcache"}, Description: "clear the Go module cache"},
		},
		{
			Category: core.CategoryPackageCache, Kind: MatchPrefix,
			Pattern: ".cargo/registry/cache", BaseTier: core.TierSafe,
		},

		{
			Category: core.CategoryDockerResource, Kind: MatchPrefix,
			Pattern: "Library/Containers/com.docker.docker/Data/vms", BaseTier: core.TierWarning,
			ToolHint: &ToolAssist{Command: "docker", Args: []string{"system", "prune", "-f"}, Description: "prune unused docker resources"},
		},

		{Category: core.CategoryNodeModules, Kind: MatchSuffix, Pattern: "node_modules", BaseTier: core.TierCaution},

		{Category: core.CategoryIDECache, Kind: MatchPrefix, Pattern: "Library/Caches/JetBrains", BaseTier: core.TierSafe},
		{Category: core.CategoryIDECache, Kind: MatchPrefix, Pattern: "Library/Application Support/Code/Cache", BaseTier: core.TierSafe},

		{Category: core.CategoryCrashReport, Kind: MatchPrefix, Pattern: "Library/Logs/DiagnosticReports", BaseTier: core.TierSafe},
		{Category: core.CategoryUserLog, Kind: MatchPrefix, Pattern: "Library/Logs", BaseTier: core.TierSafe},

		{Category: core.CategorySnapshot, Kind: MatchPrefix, Pattern: "Library/Application Support/MobileSync/Backup", BaseTier: core.TierWarning},

		{Category: core.CategoryScreenshot, Kind: MatchGlob, Pattern: "Screen Shot *.png", BaseTier: core.TierCaution},
		{Category: core.CategoryScreenshot, Kind: MatchGlob, Pattern: "Screenshot *.png", BaseTier: core.TierCaution},

		{Category: core.CategoryDownload, Kind: MatchPrefix, Pattern: "Downloads", BaseTier: core.TierCaution},

		{Category: core.CategoryUserCache, Kind: MatchPrefix, Pattern: "Library/Caches", BaseTier: core.TierSafe},
		{Category: core.CategorySystemCache, Kind: MatchPrefix, Pattern: "/Library/Caches", BaseTier: core.TierWarning},
		{Category: core.CategorySystemCache, Kind: MatchPrefix, Pattern: "/System/Library/Caches", BaseTier: core.TierDanger},
	}
}

// HintFor returns the tool-assist hint associated with category, if any
// rule in table carries one (§4.6/§4.7 tool-assisted branch).
func HintFor(category core.Category, table []Rule) *ToolAssist {
	for _, r := range table {
		if r.Category == category && r.ToolHint != nil {
			return r.ToolHint
		}
	}
	return nil
}

// Match returns the first rule whose pattern matches path (resolved
// relative to home for prefix rules), or ok=false if nothing matches —
// callers should classify as CategoryUnknown/TierDanger (fail-safe).
func Match(path, home string, table []Rule) (Rule, bool) {
	rel := path
	if home != "" {
		if r, err := filepath.Rel(home, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}

	base := filepath.Base(path)

	for _, r := range table {
		switch r.Kind {
		case MatchPrefix:
			pattern := r.Pattern
			candidate := rel
			if filepath.IsAbs(pattern) {
				candidate = path
			}
			candidate = filepath.ToSlash(candidate)
			pattern = filepath.ToSlash(pattern)
			if candidate == pattern || strings.HasPrefix(candidate, pattern+"/") {
				return r, true
			}
		case MatchGlob:
			if ok, _ := filepath.Match(r.Pattern, base); ok {
				return r, true
			}
		case MatchSuffix:
			if base == r.Pattern || strings.HasSuffix(filepath.ToSlash(path), "/"+r.Pattern) {
				return r, true
			}
		}
	}

	return Rule{}, false
}
