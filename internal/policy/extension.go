package policy

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// ExtensionFilter admits records whose extension is in the allow-list.
// Unused by the default CleanPolicy gates but kept for daemon-side
// scripted runs that want to restrict a clean to a specific file kind.
type ExtensionFilter struct {
	Extensions []string // e.g., [".tmp", ".log", ".bak"]
}

func NewExtensionFilter(extensions []string) *ExtensionFilter {
	normalized := make([]string, len(extensions))
	for i, ext := range extensions {
		normalized[i] = strings.ToLower(strings.TrimSpace(ext))
	}
	return &ExtensionFilter{Extensions: normalized}
}

func (f *ExtensionFilter) Evaluate(_ context.Context, rec core.PathRecord, _ core.EnvSnapshot) Decision {
	ext := strings.ToLower(filepath.Ext(rec.Path))
	for _, allowed := range f.Extensions {
		if ext == allowed {
			return Decision{Allow: true, Reason: "extension_match", Score: 100}
		}
	}
	return Decision{Allow: false, Reason: "extension_mismatch", Score: 0}
}
