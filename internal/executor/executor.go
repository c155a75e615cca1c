// Package executor implements the Cleanup Executor (§4.7): consumes a
// ScanReport and a CleanPolicy and produces a CleanReport. Gates run in a
// fixed order per candidate, any one of which can veto deletion:
//
//  0. prior audit failure (fail-closed halt)
//  1. level/tier gate: CleanupLevel.MaxTier() caps what this run may touch
//  2. policy.Filter composite (category include/exclude, age floor, glob
//     exclusions)
//  3. execute-time safety re-check (TOCTOU hard gate, immediately before
//     mutation)
//  4. live-holder check (advisory, fails open)
//  5. cloud-sync check (skip if actively syncing)
//  6. dry-run short-circuit
//  7. tool-assisted branch, else direct deletion (trash-aware)
//
// Grounded on the teacher's internal/executor.Simple.Execute gate sequence,
// generalized from a single policy.Allow/Safety.Allowed pair to tier/level
// gating and extended with the gates the teacher's binary policy model
// never needed.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/ChrisB0-2/storage-sage/internal/cloudsync"
	"github.com/ChrisB0-2/storage-sage/internal/core"
	"github.com/ChrisB0-2/storage-sage/internal/logger"
	"github.com/ChrisB0-2/storage-sage/internal/metrics"
	"github.com/ChrisB0-2/storage-sage/internal/policy"
	"github.com/ChrisB0-2/storage-sage/internal/procinspect"
	"github.com/ChrisB0-2/storage-sage/internal/rules"
	"github.com/ChrisB0-2/storage-sage/internal/safety"
	"github.com/ChrisB0-2/storage-sage/internal/trash"
)

// ErrAuditFailed is returned when deletion is halted due to a prior audit
// write failure. In fail-closed mode this prevents further unaudited
// deletions.
var ErrAuditFailed = errors.New("halted: prior audit write failed (fail-closed mode)")

type bypassTrashKey struct{}

// WithBypassTrash marks ctx so the executor permanently deletes instead of
// trashing, even when a trash.Manager is configured — used when disk usage
// is critical and a soft-delete wouldn't reclaim space.
func WithBypassTrash(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassTrashKey{}, true)
}

func bypassTrashFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(bypassTrashKey{}).(bool)
	return v
}

// Executor is the default core.Executor implementation.
type Executor struct {
	safe    *safety.Engine
	cfg     core.SafetyConfig
	proc    core.ProcessInspector
	cloud   core.CloudSyncProbe
	table   []rules.Rule
	aud     core.Auditor
	metrics core.Metrics
	trash   *trash.Manager
	log     logger.Logger
	now     func() time.Time

	failOnAuditError bool
	lastAuditErr     error

	toolTimeout time.Duration
}

// New builds an Executor with no-op auditing/metrics/logging; use the
// With* methods to attach real collaborators.
func New(cfg core.SafetyConfig) *Executor {
	return &Executor{
		safe:             safety.New(),
		cfg:              cfg,
		proc:             procinspect.New(),
		cloud:            cloudsync.New(""),
		table:            rules.Table(),
		metrics:          metrics.NewNoop(),
		log:              logger.NewNop(),
		now:              time.Now,
		failOnAuditError: true,
		toolTimeout:      30 * time.Second,
	}
}

func (e *Executor) WithAuditor(aud core.Auditor) *Executor       { e.aud = aud; return e }
func (e *Executor) WithMetrics(m core.Metrics) *Executor         { e.metrics = m; return e }
func (e *Executor) WithLogger(log logger.Logger) *Executor       { e.log = log; return e }
func (e *Executor) WithTrash(t *trash.Manager) *Executor         { e.trash = t; return e }
func (e *Executor) WithProcessInspector(p core.ProcessInspector) *Executor {
	e.proc = p
	return e
}
func (e *Executor) WithCloudSync(c core.CloudSyncProbe) *Executor { e.cloud = c; return e }
func (e *Executor) WithFailOnAuditError(fail bool) *Executor      { e.failOnAuditError = fail; return e }

// LastAuditError returns the last audit error encountered, if any.
func (e *Executor) LastAuditError() error { return e.lastAuditErr }

// ClearAuditError clears the halted state after the underlying issue (e.g.
// disk space) is resolved.
func (e *Executor) ClearAuditError() { e.lastAuditErr = nil }

// Clean implements core.Executor. It gathers the report's top-largest and
// top-oldest candidates (deduplicated by path — the same entry can appear
// in both), runs every gate per candidate, and returns an aggregated
// CleanReport.
func (e *Executor) Clean(ctx context.Context, report core.ScanReport, p core.CleanPolicy) (core.CleanReport, error) {
	started := e.now()
	out := core.CleanReport{
		CategoryFreed: make(map[core.Category]int64),
		StartedAt:     started,
		DryRun:        p.DryRun,
	}

	mode := core.ModeExecute
	if p.DryRun {
		mode = core.ModeDryRun
	}

	filter := policy.FromCleanPolicy(p)
	env := core.EnvSnapshot{Now: started}

	for _, rec := range dedupe(report.TopLargest, report.TopOldest) {
		select {
		case <-ctx.Done():
			out.Cancelled = true
			out.FinishedAt = e.now()
			return out, ctx.Err()
		default:
		}

		cerr := e.processOne(ctx, rec, p, mode, filter, env, &out)
		if cerr != nil {
			out.Errors = append(out.Errors, *cerr)
		}
	}

	out.FinishedAt = e.now()
	return out, nil
}

func dedupe(lists ...[]core.PathRecord) []core.PathRecord {
	seen := make(map[string]bool)
	var out []core.PathRecord
	for _, list := range lists {
		for _, rec := range list {
			if seen[rec.Path] {
				continue
			}
			seen[rec.Path] = true
			out = append(out, rec)
		}
	}
	return out
}

// processOne runs the full gate sequence for a single record, updating out
// in place, and returns a CleanError to attach if the outcome was an error
// (as opposed to a deliberate skip).
func (e *Executor) processOne(
	ctx context.Context,
	rec core.PathRecord,
	p core.CleanPolicy,
	mode core.Mode,
	filter *policy.CompositeFilter,
	env core.EnvSnapshot,
	out *core.CleanReport,
) *core.CleanError {
	// Gate 0: fail-closed halt.
	if e.failOnAuditError && e.lastAuditErr != nil {
		return &core.CleanError{Path: rec.Path, Kind: core.ErrKindIO, Detail: fmt.Errorf("%w: %v", ErrAuditFailed, e.lastAuditErr).Error()}
	}

	// Gate 1: level/tier cap. Danger is unconditionally blocked regardless
	// of Force (§3 CleanupLevel invariant).
	if rec.Tier == core.TierDanger || rec.Tier > p.Level.MaxTier() {
		e.auditSkip(ctx, rec, "tier_exceeds_level")
		return nil
	}

	// Gate 2: category/age/glob composite.
	if d := filter.Evaluate(ctx, rec, env); !d.Allow {
		e.auditSkip(ctx, rec, "policy_deny:"+d.Reason)
		return nil
	}

	// Gate 3: execute-time safety re-check (TOCTOU hard gate), immediately
	// before any mutation decision.
	if v := e.safe.Validate(ctx, rec.Candidate, e.cfg); !v.Allowed {
		e.auditSkip(ctx, rec, "safety_deny:"+v.Reason)
		return nil
	}

	// Gate 4: live-holder check — advisory, fails open.
	if e.proc != nil {
		if holders, err := e.proc.ProcessesHolding(ctx, rec.Path); err == nil && len(holders) > 0 {
			e.auditSkip(ctx, rec, "in_use")
			return nil
		}
	}

	// Gate 5: cloud-sync check — skip mid-upload entries outright.
	if e.cloud != nil {
		if status, err := e.cloud.Status(ctx, rec.Path); err == nil && status != nil && status.IsSyncing {
			e.auditSkip(ctx, rec, "cloud_syncing:"+status.Service)
			return nil
		}
	}

	// Gate 6: dry run.
	if mode == core.ModeDryRun {
		e.auditDelete(ctx, rec, mode)
		out.FreedBytes += rec.SizeBytes
		out.CategoryFreed[rec.Category] += rec.SizeBytes
		if rec.Type == core.TargetDir {
			out.DirsRemoved++
		} else {
			out.FilesRemoved++
		}
		return nil
	}

	// Gate 7: tool-assisted branch, else direct deletion.
	if hint := rules.HintFor(rec.Category, e.table); hint != nil {
		if err := e.runTool(ctx, hint); err != nil {
			e.metrics.IncDeleteErrors(core.ErrKindToolFailed)
			e.auditError(ctx, rec, core.ErrKindToolFailed, err.Error())
			return &core.CleanError{Path: rec.Path, Kind: core.ErrKindToolFailed, Detail: err.Error()}
		}
		e.auditDelete(ctx, rec, mode)
		out.FreedBytes += rec.SizeBytes
		out.CategoryFreed[rec.Category] += rec.SizeBytes
		e.metrics.AddBytesFreed(rec.SizeBytes, rec.Category)
		return nil
	}

	return e.deleteDirect(ctx, rec, mode, out)
}

func (e *Executor) deleteDirect(ctx context.Context, rec core.PathRecord, mode core.Mode, out *core.CleanReport) *core.CleanError {
	bypass := bypassTrashFromContext(ctx)
	useTrash := e.trash != nil && !bypass

	if useTrash {
		if _, err := e.trash.MoveToTrash(rec.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				e.auditSkip(ctx, rec, "already_gone")
				return nil
			}
			return e.deleteFailure(ctx, rec, err)
		}
		e.recordDeletion(rec, mode, out, 0) // trashed, not yet reclaimed
		e.metrics.IncFilesDeleted(rec.Root, rec.Category)
		e.auditDelete(ctx, rec, mode)
		return nil
	}

	switch rec.Type {
	case core.TargetFile:
		if err := os.Remove(rec.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				e.auditSkip(ctx, rec, "already_gone")
				return nil
			}
			return e.deleteFailure(ctx, rec, err)
		}
		e.metrics.IncFilesDeleted(rec.Root, rec.Category)
		e.metrics.AddBytesFreed(rec.SizeBytes, rec.Category)
		e.recordDeletion(rec, mode, out, rec.SizeBytes)
		e.auditDelete(ctx, rec, mode)
		return nil

	case core.TargetDir:
		// os.Remove, not RemoveAll: only an already-empty directory goes
		// here. Non-empty subtrees are walked and their files processed
		// individually by the scanner/executor, never bulk-removed.
		dirSize := dirBytes(rec.Path)
		if err := os.Remove(rec.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				e.auditSkip(ctx, rec, "already_gone")
				return nil
			}
			return e.deleteFailure(ctx, rec, err)
		}
		e.metrics.IncDirsDeleted(rec.Root, rec.Category)
		e.metrics.AddBytesFreed(dirSize, rec.Category)
		e.recordDeletion(rec, mode, out, dirSize)
		e.auditDelete(ctx, rec, mode)
		return nil

	default:
		return &core.CleanError{Path: rec.Path, Kind: core.ErrKindInvalidInput, Detail: "unknown target type"}
	}
}

func (e *Executor) deleteFailure(ctx context.Context, rec core.PathRecord, err error) *core.CleanError {
	kind := classifyOSError(err)
	e.metrics.IncDeleteErrors(kind)
	e.log.Warn("delete failed", logger.F("path", rec.Path), logger.F("error", err.Error()))
	e.auditError(ctx, rec, kind, err.Error())
	return &core.CleanError{Path: rec.Path, Kind: kind, Detail: err.Error()}
}

func (e *Executor) recordDeletion(rec core.PathRecord, mode core.Mode, out *core.CleanReport, bytesFreed int64) {
	out.FreedBytes += bytesFreed
	out.CategoryFreed[rec.Category] += bytesFreed
	if rec.Type == core.TargetDir {
		out.DirsRemoved++
	} else {
		out.FilesRemoved++
	}
}

func classifyOSError(err error) core.ErrorKind {
	switch {
	case errors.Is(err, os.ErrPermission):
		return core.ErrKindPermissionDenied
	case errors.Is(err, os.ErrNotExist):
		return core.ErrKindNotFound
	case errors.Is(err, context.Canceled):
		return core.ErrKindCancelled
	default:
		return core.ErrKindIO
	}
}

func dirBytes(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// runTool invokes a category's preferred maintenance command instead of a
// direct unlink (§4.6), capturing stdout/stderr/exit status under a
// timeout.
func (e *Executor) runTool(ctx context.Context, hint *rules.ToolAssist) error {
	runCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, hint.Command, hint.Args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", hint.Description, err, string(output))
	}
	return nil
}

func (e *Executor) auditDelete(ctx context.Context, rec core.PathRecord, mode core.Mode) {
	e.audit(ctx, core.AuditEvent{
		Action:   core.AuditActionDelete,
		Path:     rec.Path,
		Bytes:    rec.SizeBytes,
		Tier:     rec.Tier,
		Category: rec.Category,
		Outcome:  string(mode),
	})
}

func (e *Executor) auditSkip(ctx context.Context, rec core.PathRecord, reason string) {
	e.audit(ctx, core.AuditEvent{
		Action:   core.AuditActionSkip,
		Path:     rec.Path,
		Tier:     rec.Tier,
		Category: rec.Category,
		Outcome:  "skipped",
		Reason:   reason,
	})
}

func (e *Executor) auditError(ctx context.Context, rec core.PathRecord, kind core.ErrorKind, detail string) {
	e.audit(ctx, core.AuditEvent{
		Action:   core.AuditActionError,
		Path:     rec.Path,
		Tier:     rec.Tier,
		Category: rec.Category,
		Outcome:  "error",
		Reason:   string(kind),
		Fields:   map[string]any{"detail": detail},
	})
}

// audit records evt, recovering from a panicking Auditor and, in
// fail-closed mode, latching any write failure so subsequent candidates
// halt rather than delete unaudited (mirrors the teacher's
// failOnAuditError/lastAuditErr pattern).
func (e *Executor) audit(ctx context.Context, evt core.AuditEvent) {
	if e.aud == nil {
		return
	}
	evt.Time = e.now()
	defer func() {
		if r := recover(); r != nil {
			e.lastAuditErr = fmt.Errorf("auditor panic: %v", r)
			e.log.Warn("auditor panicked", logger.F("path", evt.Path), logger.F("panic", fmt.Sprint(r)))
		}
	}()
	if err := e.aud.Record(ctx, evt); err != nil {
		e.lastAuditErr = err
		e.log.Warn("audit write failed", logger.F("path", evt.Path), logger.F("error", err.Error()))
	}
}

var _ core.Executor = (*Executor)(nil)
