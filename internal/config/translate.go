package config

import (
	"time"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// ScanOptions builds a core.ScanOptions from the scan/policy sections.
func (c *Config) ScanOptions() core.ScanOptions {
	return core.ScanOptions{
		MaxDepth:       c.Scan.MaxDepth,
		MinAgeDays:     c.Policy.MinAgeDays,
		FollowSymlinks: false, // always lstat; see ScanConfig.FollowSymlinks comment
	}
}

// CleanPolicy builds a core.CleanPolicy from the policy section. Level falls
// back to core.LevelNormal if the configured string isn't one of the closed set.
func (c *Config) CleanPolicy() core.CleanPolicy {
	level := core.CleanupLevel(c.Policy.Level)
	if !level.Valid() {
		level = core.LevelNormal
	}
	return core.CleanPolicy{
		Level:             level,
		DryRun:            c.Execution.Mode != "execute",
		IncludeCategories: toCategories(c.Policy.IncludeCategories),
		ExcludeCategories: toCategories(c.Policy.ExcludeCategories),
		MinAgeDays:        c.Policy.MinAgeDays,
		ExcludeGlobs:      c.Policy.Exclusions,
		Force:             c.Policy.Force,
	}
}

// CoreSafetyConfig builds a core.SafetyConfig from the safety section.
func (c *Config) CoreSafetyConfig() core.SafetyConfig {
	return core.SafetyConfig{
		AllowedRoots:         c.Safety.AllowedRoots,
		ProtectedPaths:       c.Safety.ProtectedPaths,
		AllowDirDelete:       c.Safety.AllowDirDelete,
		EnforceMountBoundary: c.Safety.EnforceMountBoundary,
	}
}

// AuditRotation returns the byte threshold and generation count for the
// JSONL auditor, converting the config's megabyte setting to bytes.
func (c *Config) AuditRotation() (maxSize int64, maxBackups int) {
	return int64(c.Execution.AuditMaxSizeMB) * 1024 * 1024, c.Execution.AuditMaxBackups
}

// ToolTimeoutOrDefault returns the configured tool-assisted cleanup timeout, falling
// back to 30s when unset.
func (c *Config) ToolTimeoutOrDefault() time.Duration {
	if c.Execution.ToolTimeout <= 0 {
		return 30 * time.Second
	}
	return c.Execution.ToolTimeout
}

func toCategories(in []string) []core.Category {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.Category, len(in))
	for i, s := range in {
		out[i] = core.Category(s)
	}
	return out
}
