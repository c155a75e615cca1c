package core

import "time"

// NewScanAuditEvent standardizes the audit line written once a scan
// finishes (§4.8).
func NewScanAuditEvent(report ScanReport) AuditEvent {
	return AuditEvent{
		Time:    time.Now(),
		Level:   "info",
		Action:  AuditActionScan,
		Path:    report.Root,
		Bytes:   report.TotalBytes,
		Outcome: "completed",
		Fields: map[string]any{
			"file_count":  report.FileCount,
			"dir_count":   report.DirCount,
			"cancelled":   report.Cancelled,
			"unreachable": len(report.Unreachable),
		},
	}
}

// NewClassifyAuditEvent standardizes the audit line for a single
// classification decision (§4.1).
func NewClassifyAuditEvent(rec PathRecord) AuditEvent {
	return AuditEvent{
		Time:     time.Now(),
		Level:    "debug",
		Action:   AuditActionClassify,
		Path:     rec.Path,
		Bytes:    rec.SizeBytes,
		Tier:     rec.Tier,
		Category: rec.Category,
		Outcome:  "classified",
		Reason:   reasonKey(rec.Reason),
	}
}

// NewDeleteAuditEvent standardizes the audit line for a successful
// deletion during Clean (§4.7, §4.8).
func NewDeleteAuditEvent(root string, rec PathRecord, mode Mode) AuditEvent {
	outcome := "deleted"
	if mode == ModeDryRun {
		outcome = "would_delete"
	}
	return AuditEvent{
		Time:     time.Now(),
		Level:    "info",
		Action:   AuditActionDelete,
		Path:     rec.Path,
		Bytes:    rec.SizeBytes,
		Tier:     rec.Tier,
		Category: rec.Category,
		Outcome:  outcome,
		Reason:   reasonKey(rec.Reason),
		Fields: map[string]any{
			"root": root,
			"mode": string(mode),
			"type": string(rec.Type),
		},
	}
}

// NewSkipAuditEvent standardizes the audit line for a candidate the
// executor declined to touch (tier above the level's ceiling, held by a
// live process, mid cloud-sync, etc).
func NewSkipAuditEvent(root string, rec PathRecord, reason string) AuditEvent {
	return AuditEvent{
		Time:     time.Now(),
		Level:    "info",
		Action:   AuditActionSkip,
		Path:     rec.Path,
		Bytes:    rec.SizeBytes,
		Tier:     rec.Tier,
		Category: rec.Category,
		Outcome:  "skipped",
		Reason:   reasonKey(reason),
		Fields: map[string]any{
			"root": root,
		},
	}
}

// NewErrorAuditEvent standardizes the audit line for a single-item
// failure recorded in a CleanReport (§4.7, §7).
func NewErrorAuditEvent(root string, cerr CleanError) AuditEvent {
	return AuditEvent{
		Time:    time.Now(),
		Level:   "error",
		Action:  AuditActionError,
		Path:    cerr.Path,
		Outcome: string(cerr.Kind),
		Reason:  reasonKey(cerr.Detail),
		Err:     ErrFromKind(cerr.Kind),
		Fields: map[string]any{
			"root": root,
			"kind": string(cerr.Kind),
		},
	}
}

// ErrFromKind maps a closed ErrorKind to a sentinel error, for callers
// that want an `error` value rather than the string tag.
func ErrFromKind(k ErrorKind) error {
	switch k {
	case ErrKindInvalidInput:
		return ErrInvalidInput
	case ErrKindProtectedPath:
		return ErrProtectedPath
	default:
		return nil
	}
}

// reasonKey collapses reasons like "symlink_self:/path/to/file" -> "symlink_self"
func reasonKey(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i]
		}
	}
	return s
}
