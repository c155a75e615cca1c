package policy

import (
	"context"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// DenyAll is a Filter that never admits a record. Nothing in the module
// installs it by default.
type DenyAll struct{}

func NewDenyAll() *DenyAll { return &DenyAll{} }

func (f *DenyAll) Evaluate(_ context.Context, _ core.PathRecord, _ core.EnvSnapshot) Decision {
	return Decision{Allow: false, Reason: "policy_deny_all"}
}
