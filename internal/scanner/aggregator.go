package scanner

import (
	"time"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// aggregator folds the worker pool's visit stream into a ScanReport's
// totals, per-category rollups, and bounded top-N selections. It runs
// single-threaded on the Scan goroutine that drains the visits channel, so
// it needs no locking of its own.
type aggregator struct {
	opts core.ScanOptions

	totalBytes int64
	fileCount  int
	dirCount   int

	byCategory map[core.Category]*core.CategoryAggregate
	mtimes     map[core.Category][]time.Time

	largest *boundedHeap
	oldest  *boundedHeap

	unreachable []core.UnreachableEntry

	includeSet map[core.Category]bool
}

func newAggregator(opts core.ScanOptions) *aggregator {
	topN := opts.TopNSize
	topA := opts.TopNAge

	var includeSet map[core.Category]bool
	if len(opts.CategoryFilter) > 0 {
		includeSet = make(map[core.Category]bool, len(opts.CategoryFilter))
		for _, c := range opts.CategoryFilter {
			includeSet[c] = true
		}
	}

	return &aggregator{
		opts:       opts,
		byCategory: make(map[core.Category]*core.CategoryAggregate),
		mtimes:     make(map[core.Category][]time.Time),
		largest: newBoundedHeap(topN, func(a, b core.PathRecord) bool {
			if a.SizeBytes != b.SizeBytes {
				return a.SizeBytes < b.SizeBytes
			}
			return a.Path > b.Path // tie-break keeps path-ascending order after reversal
		}),
		oldest: newBoundedHeap(topA, func(a, b core.PathRecord) bool {
			if !a.ModTime.Equal(b.ModTime) {
				return a.ModTime.After(b.ModTime)
			}
			return a.Path > b.Path
		}),
		includeSet: includeSet,
	}
}

func (a *aggregator) add(v visit) {
	rec := v.rec

	if rec.Path == "" {
		return
	}
	if v.unreachable != "" {
		a.unreachable = append(a.unreachable, core.UnreachableEntry{Path: rec.Path, Reason: v.unreachable})
		return
	}

	if a.includeSet != nil && !a.includeSet[rec.Category] {
		return
	}
	if a.opts.MinAgeDays > 0 {
		age := time.Since(rec.ModTime)
		if age < time.Duration(a.opts.MinAgeDays)*24*time.Hour {
			return
		}
	}

	if v.isDir {
		a.dirCount++
	} else {
		a.fileCount++
	}
	a.totalBytes += rec.SizeBytes

	agg, ok := a.byCategory[rec.Category]
	if !ok {
		agg = &core.CategoryAggregate{Category: rec.Category}
		a.byCategory[rec.Category] = agg
	}
	agg.Bytes += rec.SizeBytes
	agg.Count++
	a.mtimes[rec.Category] = append(a.mtimes[rec.Category], rec.ModTime)

	a.largest.offer(rec)
	a.oldest.offer(rec)
}

// categories returns the per-category rollups with MedianMTime resolved,
// ordered by descending bytes (ties broken by category name) for a stable
// report.
func (a *aggregator) categories() []core.CategoryAggregate {
	out := make([]core.CategoryAggregate, 0, len(a.byCategory))
	for cat, agg := range a.byCategory {
		times := a.mtimes[cat]
		agg.MedianMTime = median(times)
		out = append(out, *agg)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func less(a, b core.CategoryAggregate) bool {
	if a.Bytes != b.Bytes {
		return a.Bytes > b.Bytes
	}
	return a.Category < b.Category
}

func median(times []time.Time) time.Time {
	if len(times) == 0 {
		return time.Time{}
	}
	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Before(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[len(sorted)/2]
}
