package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

func rec(root, path string, tier core.SafetyTier, category core.Category, size int64) core.PathRecord {
	return core.PathRecord{
		Candidate: core.Candidate{Root: root, Path: path, Type: core.TargetFile, SizeBytes: size, ModTime: time.Now()},
		Tier:      tier,
		Category:  category,
	}
}

func reportWith(recs ...core.PathRecord) core.ScanReport {
	return core.ScanReport{TopLargest: recs}
}

func TestExecutor_Clean_RespectsLevelTierCap(t *testing.T) {
	dir := t.TempDir()
	safe := filepath.Join(dir, "safe.cache")
	warn := filepath.Join(dir, "warn.cache")
	for _, p := range []string{safe, warn} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	report := reportWith(
		rec(dir, safe, core.TierSafe, core.CategoryUserCache, 1),
		rec(dir, warn, core.TierWarning, core.CategoryXcodeArchive, 2),
	)

	ex := New(core.SafetyConfig{AllowedRoots: []string{dir}})
	out, err := ex.Clean(context.Background(), report, core.CleanPolicy{Level: core.LevelNormal})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if out.FilesRemoved != 1 {
		t.Errorf("expected 1 file removed under level=normal, got %d", out.FilesRemoved)
	}
	if _, err := os.Stat(safe); err == nil {
		t.Error("safe-tier file should have been removed")
	}
	if _, err := os.Stat(warn); err != nil {
		t.Error("warning-tier file should survive level=normal")
	}
}

func TestExecutor_Clean_NeverTouchesDangerTier(t *testing.T) {
	dir := t.TempDir()
	danger := filepath.Join(dir, "danger.bin")
	if err := os.WriteFile(danger, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := reportWith(rec(dir, danger, core.TierDanger, core.CategoryUnknown, 1))
	ex := New(core.SafetyConfig{AllowedRoots: []string{dir}})
	out, err := ex.Clean(context.Background(), report, core.CleanPolicy{Level: core.LevelSystem, Force: true})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if out.FilesRemoved != 0 {
		t.Error("danger tier must never be removed, even at level=system with force")
	}
	if _, err := os.Stat(danger); err != nil {
		t.Error("danger-tier file should survive")
	}
}

func TestExecutor_Clean_DryRunDoesNotDelete(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "cache.dat")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := reportWith(rec(dir, f, core.TierSafe, core.CategoryUserCache, 1))
	ex := New(core.SafetyConfig{AllowedRoots: []string{dir}})
	out, err := ex.Clean(context.Background(), report, core.CleanPolicy{Level: core.LevelNormal, DryRun: true})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if out.FilesRemoved != 1 || !out.DryRun {
		t.Errorf("expected dry-run to report the would-be removal, got %+v", out)
	}
	if _, err := os.Stat(f); err != nil {
		t.Error("dry-run must not delete the file")
	}
}

func TestExecutor_Clean_ProtectedPathBlocked(t *testing.T) {
	dir := t.TempDir()
	protected := filepath.Join(dir, "protected")
	if err := os.MkdirAll(protected, 0o755); err != nil {
		t.Fatal(err)
	}
	f := filepath.Join(protected, "cache.dat")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := reportWith(rec(dir, f, core.TierSafe, core.CategoryUserCache, 1))
	ex := New(core.SafetyConfig{AllowedRoots: []string{dir}, ProtectedPaths: []string{protected}})
	out, err := ex.Clean(context.Background(), report, core.CleanPolicy{Level: core.LevelNormal})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if out.FilesRemoved != 0 {
		t.Error("protected path must not be removed")
	}
}

func TestExecutor_Clean_CategoryExcludeFilter(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "cache.dat")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := reportWith(rec(dir, f, core.TierSafe, core.CategoryUserCache, 1))
	ex := New(core.SafetyConfig{AllowedRoots: []string{dir}})
	out, err := ex.Clean(context.Background(), report, core.CleanPolicy{
		Level:             core.LevelNormal,
		ExcludeCategories: []core.Category{core.CategoryUserCache},
	})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if out.FilesRemoved != 0 {
		t.Error("excluded category must not be removed")
	}
}

func TestExecutor_Clean_AlreadyGoneIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "gone.dat")
	// never created on disk

	report := reportWith(rec(dir, f, core.TierSafe, core.CategoryUserCache, 1))
	ex := New(core.SafetyConfig{AllowedRoots: []string{dir}})
	out, err := ex.Clean(context.Background(), report, core.CleanPolicy{Level: core.LevelNormal})
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	if len(out.Errors) != 0 {
		t.Errorf("a missing file should be skipped silently, not reported as an error: %+v", out.Errors)
	}
}

func TestExecutor_Clean_CancelledContextStopsEarly(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "cache.dat")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	report := reportWith(rec(dir, f, core.TierSafe, core.CategoryUserCache, 1))
	ex := New(core.SafetyConfig{AllowedRoots: []string{dir}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := ex.Clean(ctx, report, core.CleanPolicy{Level: core.LevelNormal})
	if err == nil {
		t.Error("expected context.Canceled to propagate")
	}
	if !out.Cancelled {
		t.Error("expected CleanReport.Cancelled to be true")
	}
}
