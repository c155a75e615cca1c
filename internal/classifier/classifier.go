// Package classifier implements the Path Classifier (§4.1): a pure,
// side-effect-free function from a path (plus probed metadata) to a
// SafetyTier and Category. Evaluation is layered, in order:
//
//  1. protected-prefix table (compile-time constant, never configurable)
//  2. category match against internal/rules.Table()
//  3. age modifier (-1 tier at or past 90 days untouched; +1 tier for
//     entries modified less than 7 days ago)
//  4. type modifier (a directory containing subdirectories rises a tier)
//  5. clamp to [Safe, Danger]
//
// Invalid or unrecognized input fails safe: Category is Unknown and Tier
// is Danger, never the reverse.
package classifier

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChrisB0-2/storage-sage/internal/core"
	"github.com/ChrisB0-2/storage-sage/internal/rules"
	"github.com/ChrisB0-2/storage-sage/internal/safety"
)

// protectedPrefixes is the compile-time table of paths that must never be
// classified as deletable, independent of SafetyConfig.ProtectedPaths
// (§4.1 layer 1, §9 design note: defense in depth).
var protectedPrefixes = []string{
	"/System",
	"/Library/Apple",
	"/private/var/db",
	"/bin",
	"/sbin",
	"/usr/bin",
	"/usr/sbin",
	"/usr/lib",
	"/Applications",
}

const (
	ageWarmDays = 7  // under this, age raises the tier by one
	ageOldDays  = 90 // at or past this, age drops the tier by one toward safe
)

// Engine is the default core.Classifier implementation.
type Engine struct {
	home   string
	safe   *safety.Engine
	cfg    core.SafetyConfig
	table  []rules.Rule
	now    func() time.Time
}

// New builds a classifier. home is used to resolve rules.Table()'s
// home-relative prefixes; cfg layers operator-supplied protected paths
// and allowed roots on top of the compile-time table.
func New(home string, cfg core.SafetyConfig, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		home:  home,
		safe:  safety.New(),
		cfg:   cfg,
		table: rules.Table(),
		now:   now,
	}
}

// Classify implements core.Classifier.
func (e *Engine) Classify(ctx context.Context, path string, probe *core.ProbeResult) core.ClassifyResult {
	if strings.TrimSpace(path) == "" {
		return failSafe("invalid_input")
	}
	clean := filepath.Clean(path)

	// Layer 1: compile-time protected prefixes, never overridable.
	for _, p := range protectedPrefixes {
		if isPathOrChild(clean, p) {
			return core.ClassifyResult{Tier: core.TierDanger, Category: core.CategoryUnknown, Reason: "protected_prefix"}
		}
	}

	// Layer 1b: operator-supplied safety gate (protected paths, allowed
	// roots, mount boundary, symlink escape).
	cand := core.Candidate{Path: clean, Root: e.rootFor(clean)}
	if probe != nil {
		cand.Type = probe.Type
		cand.SizeBytes = probe.SizeBytes
		cand.ModTime = probe.ModTime
		cand.IsSymlink = probe.IsSymlink
		cand.LinkTarget = probe.LinkTarget
		cand.DeviceID = probe.DeviceID
	}
	// The dir-delete toggle gates execution, not classification.
	cfg := e.cfg
	cfg.AllowDirDelete = true
	if v := e.safe.Validate(ctx, cand, cfg); !v.Allowed {
		return core.ClassifyResult{Tier: core.TierDanger, Category: core.CategoryUnknown, Reason: "safety_deny:" + v.Reason}
	}

	// Layer 2: category match.
	rule, ok := rules.Match(clean, e.home, e.table)
	if !ok {
		return core.ClassifyResult{Tier: core.TierDanger, Category: core.CategoryUnknown, Reason: "no_rule_match"}
	}

	tier := rule.BaseTier
	reason := "category_match:" + string(rule.Category)

	// Layer 3: age modifier. Recently-touched artifacts are still in active
	// use and riskier to remove; long-untouched ones are the safest to clean.
	if probe != nil && !probe.ModTime.IsZero() {
		age := e.now().Sub(probe.ModTime)
		if age < ageWarmDays*24*time.Hour {
			tier = (tier + 1).Clamp()
			reason += "+recently_modified"
		} else if age >= ageOldDays*24*time.Hour {
			tier = (tier - 1).Clamp()
			reason += "+age_old"
		}
	}

	// Layer 4: type modifier — a directory with subdirectories is riskier
	// to remove outright than a flat cache leaf.
	if probe != nil && probe.Type == core.TargetDir && probe.HasSubdirs {
		tier = tier + 1
		reason += "+has_subdirs"
	}

	return core.ClassifyResult{Tier: tier.Clamp(), Category: rule.Category, Reason: reason}
}

func (e *Engine) rootFor(path string) string {
	for _, r := range e.cfg.AllowedRoots {
		root := filepath.Clean(r)
		if isPathOrChild(path, root) {
			return root
		}
	}
	if e.home != "" {
		return e.home
	}
	return filepath.Dir(path)
}

var _ core.Classifier = (*Engine)(nil)

func failSafe(reason string) core.ClassifyResult {
	return core.ClassifyResult{Tier: core.TierDanger, Category: core.CategoryUnknown, Reason: reason}
}

func isPathOrChild(path, base string) bool {
	path = filepath.Clean(path)
	base = filepath.Clean(base)
	if base == string(os.PathSeparator) {
		return path == base
	}
	if path == base {
		return true
	}
	baseWithSep := base
	if !strings.HasSuffix(baseWithSep, string(os.PathSeparator)) {
		baseWithSep += string(os.PathSeparator)
	}
	return strings.HasPrefix(path, baseWithSep)
}
