package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/ChrisB0-2/storage-sage/internal/core"
	"github.com/ChrisB0-2/storage-sage/internal/logger"
)

// WalkDirScanner is a single-goroutine core.Scanner built directly on
// filepath.WalkDir — the original scan strategy, kept as a low-overhead
// alternative to Pool for small roots or constrained environments where
// spinning up a worker pool isn't worth it.
type WalkDirScanner struct {
	log        logger.Logger
	probe      core.MetadataProbe
	classifier core.Classifier
	cloud      core.CloudSyncProbe
}

// NewWalkDir creates a scanner with no-op logging.
func NewWalkDir(probe core.MetadataProbe, classifier core.Classifier, cloud core.CloudSyncProbe) *WalkDirScanner {
	return &WalkDirScanner{log: logger.NewNop(), probe: probe, classifier: classifier, cloud: cloud}
}

// NewWalkDirWithLogger creates a scanner with the given logger.
func NewWalkDirWithLogger(log logger.Logger, probe core.MetadataProbe, classifier core.Classifier, cloud core.CloudSyncProbe) *WalkDirScanner {
	if log == nil {
		log = logger.NewNop()
	}
	return &WalkDirScanner{log: log, probe: probe, classifier: classifier, cloud: cloud}
}

// Scan implements core.Scanner. It walks root depth-first and classifies
// every entry as it's visited, never descending into a directory whose
// Danger verdict blocks descent (see blocksDescent).
func (s *WalkDirScanner) Scan(ctx context.Context, root string, opts core.ScanOptions) (core.ScanReport, error) {
	started := time.Now()
	root = filepath.Clean(root)
	report := core.ScanReport{Root: root, StartedAt: started}

	s.log.Debug("scan starting", logger.F("root", root), logger.F("max_depth", opts.MaxDepth))

	agg := newAggregator(opts)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			agg.add(visit{rec: core.PathRecord{Candidate: core.Candidate{Path: path}}, unreachable: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == root {
			return nil // the root itself is the scan boundary, not a reportable entry
		}

		if opts.MaxDepth > 0 {
			if depth := depthOf(root, path); depth > opts.MaxDepth {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}

		result, unreachable := s.probe.Probe(ctx, path)
		if unreachable != nil {
			agg.add(visit{rec: core.PathRecord{Candidate: core.Candidate{Path: path}}, unreachable: unreachable.Reason})
			return nil
		}

		cr := s.classifier.Classify(ctx, path, result)
		rec := core.PathRecord{
			Candidate: core.Candidate{
				Root:       root,
				Path:       path,
				Type:       result.Type,
				SizeBytes:  result.SizeBytes,
				ModTime:    result.ModTime,
				ATime:      result.ATime,
				IsSymlink:  result.IsSymlink,
				LinkTarget: result.LinkTarget,
				DeviceID:   result.DeviceID,
				FoundAt:    time.Now(),
			},
			Tier:     cr.Tier,
			Category: cr.Category,
			Reason:   cr.Reason,
		}
		if s.cloud != nil {
			if status, err := s.cloud.Status(ctx, path); err == nil && status != nil {
				rec.CloudService = status.Service
			}
		}

		agg.add(visit{rec: rec, isDir: result.Type == core.TargetDir})

		if result.Type == core.TargetDir && blocksDescent(cr) {
			return fs.SkipDir
		}
		return nil
	})

	if walkErr != nil && walkErr != context.Canceled {
		s.log.Warn("scan error", logger.F("root", root), logger.F("error", walkErr.Error()))
	}
	s.log.Debug("scan complete", logger.F("root", root))

	report.TotalBytes = agg.totalBytes
	report.FileCount = agg.fileCount
	report.DirCount = agg.dirCount
	report.Categories = agg.categories()
	report.TopLargest = agg.largest.sorted()
	report.TopOldest = agg.oldest.sorted()
	report.Unreachable = agg.unreachable
	report.Cancelled = ctx.Err() != nil
	report.FinishedAt = time.Now()

	return report, ctx.Err()
}

// depthOf returns how many path separators separate path from root.
func depthOf(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	depth := 0
	for _, r := range rel {
		if r == filepath.Separator {
			depth++
		}
	}
	return depth
}

var _ core.Scanner = (*WalkDirScanner)(nil)
