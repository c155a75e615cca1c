// Package ffi exposes the scan/classify/clean operations as JSON-in,
// JSON-out calls shaped for a C-ABI boundary (§4.9, §6.1, §6.5). The pure-Go
// surface in this file is fully testable without cgo; cabi.go adds the
// //export shims behind a cgo build tag.
package ffi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// Engine bundles the collaborators a host process wires in once at startup.
type Engine struct {
	Scanner    core.Scanner
	Classifier core.Classifier
	Probe      core.MetadataProbe
	Executor   core.Executor
}

var (
	mu      sync.RWMutex
	current *Engine
)

// Init installs the engine used by the package-level JSON entry points.
// Callers (the CLI, the daemon's HTTP handlers, or a future cgo host) call
// this once before using ScanJSON/ClassifyJSON/CleanJSON.
func Init(e *Engine) {
	mu.Lock()
	defer mu.Unlock()
	current = e
}

func engine() (*Engine, error) {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return nil, fmt.Errorf("ffi: engine not initialized")
	}
	return current, nil
}

// ScanRequest is the JSON request body for ScanJSON.
type ScanRequest struct {
	Root    string          `json:"root"`
	Options core.ScanOptions `json:"options"`
}

// ScanResponse carries the scan result plus a schema version, per §6.5.
type ScanResponse struct {
	SchemaVersion int            `json:"schema_version"`
	Report        core.ScanReport `json:"report"`
	Error         string         `json:"error,omitempty"`
}

// ScanJSON runs a scan against the installed engine and returns the
// marshaled ScanResponse. Errors are reported in the response body, not as
// a Go error, so the boundary never has to propagate a Go error value.
func ScanJSON(ctx context.Context, req []byte) []byte {
	var r ScanRequest
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse(fmt.Errorf("ffi: decode scan request: %w", err))
	}
	e, err := engine()
	if err != nil {
		return errorResponse(err)
	}
	report, err := e.Scanner.Scan(ctx, r.Root, r.Options)
	resp := ScanResponse{SchemaVersion: 1, Report: report}
	if err != nil {
		resp.Error = err.Error()
	}
	return mustMarshal(resp)
}

// ClassifyRequest is the JSON request body for ClassifyJSON.
type ClassifyRequest struct {
	Path  string           `json:"path"`
	Probe bool             `json:"probe"`
}

// ClassifyResponse carries a single classification, per §6.5.
type ClassifyResponse struct {
	SchemaVersion int               `json:"schema_version"`
	Result        core.ClassifyResult `json:"result"`
	Error         string            `json:"error,omitempty"`
}

// ClassifyJSON classifies a single path, optionally probing its metadata
// first so tier/category decisions that depend on ProbeResult (size,
// symlink target, subdirectories) are fully informed.
func ClassifyJSON(ctx context.Context, req []byte) []byte {
	var r ClassifyRequest
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse(fmt.Errorf("ffi: decode classify request: %w", err))
	}
	e, err := engine()
	if err != nil {
		return errorResponse(err)
	}

	var probe *core.ProbeResult
	if r.Probe && e.Probe != nil {
		p, unreachable := e.Probe.Probe(ctx, r.Path)
		if unreachable != nil {
			resp := ClassifyResponse{SchemaVersion: 1, Error: unreachable.Reason}
			return mustMarshal(resp)
		}
		probe = p
	}

	result := e.Classifier.Classify(ctx, r.Path, probe)
	return mustMarshal(ClassifyResponse{SchemaVersion: 1, Result: result})
}

// CleanRequest is the JSON request body for CleanJSON.
type CleanRequest struct {
	Report core.ScanReport  `json:"report"`
	Policy core.CleanPolicy `json:"policy"`
}

// CleanResponse carries the clean result, per §6.5.
type CleanResponse struct {
	SchemaVersion int             `json:"schema_version"`
	Report        core.CleanReport `json:"report"`
	Error         string          `json:"error,omitempty"`
}

// CleanJSON runs a clean operation against a previously-produced scan
// report and policy, both supplied inline so the boundary stays stateless
// between calls.
func CleanJSON(ctx context.Context, req []byte) []byte {
	var r CleanRequest
	if err := json.Unmarshal(req, &r); err != nil {
		return errorResponse(fmt.Errorf("ffi: decode clean request: %w", err))
	}
	e, err := engine()
	if err != nil {
		return errorResponse(err)
	}
	report, err := e.Executor.Clean(ctx, r.Report, r.Policy)
	resp := CleanResponse{SchemaVersion: 1, Report: report}
	if err != nil {
		resp.Error = err.Error()
	}
	return mustMarshal(resp)
}

func errorResponse(err error) []byte {
	return mustMarshal(struct {
		SchemaVersion int    `json:"schema_version"`
		Error         string `json:"error"`
	}{SchemaVersion: 1, Error: err.Error()})
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only occurs if a result type is non-marshalable, which would be a
		// programming error caught by tests, not a runtime condition.
		return []byte(fmt.Sprintf(`{"schema_version":1,"error":%q}`, err.Error()))
	}
	return b
}
