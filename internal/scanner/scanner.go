// Package scanner implements the Parallel Scanner (§4.5): a bounded
// worker pool (goroutines sharing one job channel; there is no per-worker
// queue or stealing) that walks a root, classifies every entry it visits,
// and produces a single deterministic ScanReport. Subtrees with a
// deliberate Danger verdict (see blocksDescent) are recorded but never
// descended into — classifying the root
// of a dangerous subtree is enough; there is no safety value in
// enumerating what's inside it, and real value in not wasting time there.
//
// Generalized from the teacher's single-goroutine WalkDirScanner (kept
// alongside as WalkDir for callers that want the simpler, in-order
// traversal) into the concurrent pool the spec's throughput targets
// require.
package scanner

import (
	"container/heap"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// Pool is the default core.Scanner implementation: a bounded pool of
// worker goroutines that walk a directory tree breadth-first, classifying
// every visited entry and feeding bounded top-N min-heaps.
type Pool struct {
	probe      core.MetadataProbe
	classifier core.Classifier
	cloud      core.CloudSyncProbe
}

// New builds a Pool. cloud may be nil if cloud-sync tagging is disabled.
func New(probe core.MetadataProbe, classifier core.Classifier, cloud core.CloudSyncProbe) *Pool {
	return &Pool{probe: probe, classifier: classifier, cloud: cloud}
}

// job is one directory queued for a worker to read.
type job struct {
	path  string
	depth int
}

// visit is one classified filesystem entry a worker reports back to the
// aggregator goroutine.
type visit struct {
	rec         core.PathRecord
	isDir       bool
	unreachable string // non-empty means rec only carries a Path, skip aggregation
}

// Scan implements core.Scanner.
func (p *Pool) Scan(ctx context.Context, root string, opts core.ScanOptions) (core.ScanReport, error) {
	started := time.Now()
	root = filepath.Clean(root)

	report := core.ScanReport{Root: root, StartedAt: started}

	info, err := os.Lstat(root)
	if err != nil {
		report.FinishedAt = time.Now()
		report.Unreachable = append(report.Unreachable, core.UnreachableEntry{Path: root, Reason: err.Error()})
		return report, nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	watermark := opts.QueueWatermark

	rootDevice, _ := probeDevice(info)

	jobs := make(chan job, max(watermark, workers*4))
	visits := make(chan visit, workers*4)

	var wg sync.WaitGroup
	var pending sync.WaitGroup // outstanding directory jobs, including root
	pending.Add(1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go p.worker(runCtx, &wg, &pending, jobs, visits, opts, rootDevice)
	}

	// Feed the root.
	go func() {
		jobs <- job{path: root, depth: 0}
	}()

	// Closer: once every outstanding directory job has been processed,
	// there is nothing left to produce and the channels can close.
	go func() {
		pending.Wait()
		close(jobs)
		wg.Wait()
		close(visits)
	}()

	agg := newAggregator(opts)
	for v := range visits {
		agg.add(v)
	}

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

func (p *Pool) worker(
	ctx context.Context,
	wg *sync.WaitGroup,
	pending *sync.WaitGroup,
	jobs chan job,
	visits chan<- visit,
	opts core.ScanOptions,
	rootDevice uint64,
) {
	defer wg.Done()
	for j := range jobs {
		p.processDir(ctx, j, pending, jobs, visits, opts, rootDevice)
		pending.Done()
	}
}

func (p *Pool) processDir(
	ctx context.Context,
	j job,
	pending *sync.WaitGroup,
	jobs chan<- job,
	visits chan<- visit,
	opts core.ScanOptions,
	rootDevice uint64,
) {
	select {
	case <-ctx.Done():
		return
	default:
	}

	if opts.MaxDepth > 0 && j.depth > opts.MaxDepth {
		return
	}

	entries, err := os.ReadDir(j.path)
	if err != nil {
		visits <- visit{rec: core.PathRecord{Candidate: core.Candidate{Path: j.path}}, unreachable: err.Error()}
		return
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}

		full := filepath.Join(j.path, entry.Name())
		result, unreachableReason := p.probe.Probe(ctx, full)
		if unreachableReason != nil {
			visits <- visit{rec: core.PathRecord{Candidate: core.Candidate{Path: full}}, unreachable: unreachableReason.Reason}
			continue
		}

		if result.IsSymlink && !opts.FollowSymlinks {
			continue
		}

		if rootDevice != 0 && result.DeviceID != 0 && result.DeviceID != rootDevice {
			// Crossed a mount boundary: record it but don't descend.
			visits <- visit{rec: core.PathRecord{Candidate: core.Candidate{Path: full, DeviceID: result.DeviceID}}, unreachable: "mount_boundary"}
			continue
		}

		cr := p.classifier.Classify(ctx, full, result)

		cand := core.Candidate{
			Root:       j.path,
			Path:       full,
			Type:       result.Type,
			SizeBytes:  result.SizeBytes,
			ModTime:    result.ModTime,
			ATime:      result.ATime,
			IsSymlink:  result.IsSymlink,
			LinkTarget: result.LinkTarget,
			DeviceID:   result.DeviceID,
			RootDeviceID: rootDevice,
			FoundAt:    time.Now(),
		}
		rec := core.PathRecord{
			Candidate: cand,
			Tier:      cr.Tier,
			Category:  cr.Category,
			Reason:    cr.Reason,
		}
		if p.cloud != nil {
			if status, err := p.cloud.Status(ctx, full); err == nil && status != nil {
				rec.CloudService = status.Service
			}
		}

		visits <- visit{rec: rec, isDir: result.Type == core.TargetDir}

		// A Danger-tier directory is recorded but never descended into
		// (§4.5): no safety value in enumerating what's beneath a subtree
		// that is already fully denied. An *unmatched* ancestor directory
		// (e.g. ~/Library itself) also fails safe to Danger/Unknown, but
		// that's a fail-safe default, not a deliberate verdict — pruning
		// there would stop the walk from ever reaching a real cache
		// beneath it, so only a rule-backed or protected-path Danger
		// blocks descent.
		if result.Type == core.TargetDir && !blocksDescent(cr) {
			pending.Add(1)
			select {
			case jobs <- job{path: full, depth: j.depth + 1}:
			case <-ctx.Done():
				pending.Done()
			}
		}
	}
}

func probeDevice(info os.FileInfo) (uint64, bool) {
	return getDeviceID(info)
}

// blocksDescent reports whether a classification should stop the walk from
// descending further: a deliberate Danger verdict (protected prefix, an
// operator deny, or a rule that itself carries Danger), not the generic
// no-rule-matched fail-safe default.
func blocksDescent(cr core.ClassifyResult) bool {
	return cr.Tier == core.TierDanger && cr.Reason != "no_rule_match"
}

var _ core.Scanner = (*Pool)(nil)

// boundedHeap is a fixed-capacity min-heap keeping the N "largest"/"oldest"
// records seen so far, evicting the current minimum whenever a strictly
// larger candidate arrives — the teacher's planner aggregation pass
// reworked as an online top-N selector instead of a sort-then-slice.
type boundedHeap struct {
	cap  int
	less func(a, b core.PathRecord) bool // a < b under this heap's ordering
	data []core.PathRecord
}

func newBoundedHeap(capacity int, less func(a, b core.PathRecord) bool) *boundedHeap {
	return &boundedHeap{cap: capacity, less: less}
}

func (h *boundedHeap) Len() int            { return len(h.data) }
func (h *boundedHeap) Less(i, j int) bool  { return h.less(h.data[i], h.data[j]) }
func (h *boundedHeap) Swap(i, j int)       { h.data[i], h.data[j] = h.data[j], h.data[i] }
func (h *boundedHeap) Push(x any)         { h.data = append(h.data, x.(core.PathRecord)) }
func (h *boundedHeap) Pop() any {
	old := h.data
	n := len(old)
	item := old[n-1]
	h.data = old[:n-1]
	return item
}

// offer adds rec if the heap isn't full, or if rec would displace the
// current minimum. No-op when cap <= 0 (top-N disabled).
func (h *boundedHeap) offer(rec core.PathRecord) {
	if h.cap <= 0 {
		return
	}
	if h.Len() < h.cap {
		heap.Push(h, rec)
		return
	}
	if h.less(h.data[0], rec) {
		heap.Pop(h)
		heap.Push(h, rec)
	}
}

// sorted returns the heap's contents ordered by the ScanReport contract:
// size-sorted sections descend by size then ascend by path; age-sorted
// sections ascend by mtime then ascend by path. The heap's internal
// ordering is the inverse (min-first) so it can evict correctly; sorted
// reverses it back into the deterministic reporting order.
func (h *boundedHeap) sorted() []core.PathRecord {
	out := make([]core.PathRecord, len(h.data))
	copy(out, h.data)
	// Reverse selection sort by re-popping the heap (small N, no need for
	// sort.Slice precision games with the eviction comparator).
	tmp := &boundedHeap{cap: h.cap, less: h.less, data: out}
	heap.Init(tmp)
	result := make([]core.PathRecord, 0, len(out))
	for tmp.Len() > 0 {
		result = append([]core.PathRecord{heap.Pop(tmp).(core.PathRecord)}, result...)
	}
	return result
}
