package auditor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

var errClosed = errors.New("auditor: closed")

// JSONLAuditor appends one JSON object per line (JSONL).
// It is simple, durable, and easy to ingest later.
type JSONLAuditor struct {
	mu          sync.Mutex
	path        string
	f           *os.File
	writeErr    error // first write error encountered (fail-open: doesn't block operations)
	maxSize     int64 // 0 disables rotation
	maxBackups  int   // generations kept beyond the active file
	size        int64 // tracked size of the currently open file
}

func NewJSONL(path string) (*JSONLAuditor, error) {
	return NewJSONLWithRotation(path, 0, 0)
}

// NewJSONLWithRotation creates a JSONL auditor that rotates the active file
// once it exceeds maxSize bytes, keeping up to maxBackups prior generations
// (path.1 is the newest backup, path.2 the next, ...). maxSize == 0
// disables rotation entirely.
func NewJSONLWithRotation(path string, maxSize int64, maxBackups int) (*JSONLAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &JSONLAuditor{path: path, f: f, maxSize: maxSize, maxBackups: maxBackups, size: info.Size()}, nil
}

func (a *JSONLAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

// Err returns the first write error encountered, if any.
// Auditing is fail-open: errors don't block operations, but callers can check afterward.
func (a *JSONLAuditor) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writeErr
}

func (a *JSONLAuditor) Record(_ context.Context, evt core.AuditEvent) error {
	// Make sure Time is always set.
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return errClosed
	}

	// Keep Err JSON-safe (string).
	type wire struct {
		Time     time.Time       `json:"time"`
		Level    string          `json:"level"`
		Action   string          `json:"action"`
		Path     string          `json:"path"`
		Bytes    int64           `json:"bytes,omitempty"`
		Tier     core.SafetyTier `json:"tier"`
		Category core.Category   `json:"category,omitempty"`
		Outcome  string          `json:"outcome,omitempty"`
		Reason   string          `json:"reason,omitempty"`
		Fields   map[string]any  `json:"fields,omitempty"`
		Err      string          `json:"err,omitempty"`
	}

	w := wire{
		Time:     evt.Time,
		Level:    evt.Level,
		Action:   evt.Action,
		Path:     evt.Path,
		Bytes:    evt.Bytes,
		Tier:     evt.Tier,
		Category: evt.Category,
		Outcome:  evt.Outcome,
		Reason:   evt.Reason,
		Fields:   evt.Fields,
	}
	if evt.Err != nil {
		w.Err = evt.Err.Error()
	}

	b, err := json.Marshal(w)
	if err != nil {
		if a.writeErr == nil {
			a.writeErr = err
		}
		return err
	}
	line := append(b, '\n')

	if a.maxSize > 0 && a.size+int64(len(line)) > a.maxSize {
		if err := a.rotateLocked(); err != nil {
			if a.writeErr == nil {
				a.writeErr = err
			}
			return err
		}
	}

	n, err := a.f.Write(line)
	a.size += int64(n)
	if err != nil {
		if a.writeErr == nil {
			a.writeErr = err
		}
		return err
	}
	return nil
}

// rotateLocked shifts path.(N-1) -> path.N down to maxBackups, then moves
// the active file to path.1 and opens a fresh one. Caller must hold a.mu.
func (a *JSONLAuditor) rotateLocked() error {
	if err := a.f.Close(); err != nil {
		return err
	}

	for gen := a.maxBackups; gen >= 1; gen-- {
		src := fmt.Sprintf("%s.%d", a.path, gen)
		if gen == a.maxBackups {
			os.Remove(src) // oldest generation falls off
			continue
		}
		dst := fmt.Sprintf("%s.%d", a.path, gen+1)
		if _, err := os.Stat(src); err == nil {
			os.Rename(src, dst)
		}
	}
	if a.maxBackups > 0 {
		if err := os.Rename(a.path, fmt.Sprintf("%s.1", a.path)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	a.f = f
	a.size = 0
	return nil
}

var _ core.Auditor = (*JSONLAuditor)(nil)
