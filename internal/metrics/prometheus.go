package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ChrisB0-2/storage-sage/internal/core"
)

// Prometheus implements core.Metrics using Prometheus client.
type Prometheus struct {
	// Scanning metrics
	filesScanned *prometheus.CounterVec
	dirsScanned  *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec

	// Classification metrics
	classifications *prometheus.CounterVec
	bytesEligible   prometheus.Gauge
	filesEligible   prometheus.Gauge

	// Execution metrics
	filesDeleted *prometheus.CounterVec
	dirsDeleted  *prometheus.CounterVec
	bytesFreed   *prometheus.CounterVec
	deleteErrors *prometheus.CounterVec

	// System metrics
	diskUsage       prometheus.Gauge
	cpuUsage        prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
}

// NewPrometheus creates a new Prometheus metrics collector.
// All metrics are registered with the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Prometheus{
		// Scanning metrics
		filesScanned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storagesage",
			Subsystem: "scanner",
			Name:      "files_scanned_total",
			Help:      "Total number of files scanned",
		}, []string{"root"}),

		dirsScanned: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storagesage",
			Subsystem: "scanner",
			Name:      "dirs_scanned_total",
			Help:      "Total number of directories scanned",
		}, []string{"root"}),

		scanDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storagesage",
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Time spent scanning roots",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		}, []string{"root"}),

		// Classification metrics
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storagesage",
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Total classification decisions by tier and category",
		}, []string{"tier", "category"}),

		bytesEligible: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "storagesage",
			Subsystem: "scanner",
			Name:      "bytes_eligible",
			Help:      "Total bytes eligible for deletion in the current report",
		}),

		filesEligible: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "storagesage",
			Subsystem: "scanner",
			Name:      "files_eligible",
			Help:      "Total files eligible for deletion in the current report",
		}),

		// Execution metrics
		filesDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storagesage",
			Subsystem: "executor",
			Name:      "files_deleted_total",
			Help:      "Total number of files deleted",
		}, []string{"root", "category"}),

		dirsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storagesage",
			Subsystem: "executor",
			Name:      "dirs_deleted_total",
			Help:      "Total number of directories deleted",
		}, []string{"root", "category"}),

		bytesFreed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storagesage",
			Subsystem: "executor",
			Name:      "bytes_freed_total",
			Help:      "Total bytes freed by deletions",
		}, []string{"category"}),

		deleteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storagesage",
			Subsystem: "executor",
			Name:      "delete_errors_total",
			Help:      "Total delete errors by error kind",
		}, []string{"kind"}),

		// System metrics
		diskUsage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "storagesage",
			Subsystem: "system",
			Name:      "disk_usage_percent",
			Help:      "Current disk usage percentage",
		}),

		cpuUsage: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "storagesage",
			Subsystem: "system",
			Name:      "cpu_usage_percent",
			Help:      "Current CPU usage percentage",
		}),

		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "storagesage",
			Subsystem: "daemon",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last completed run",
		}),
	}
}

// Scanning metrics

func (p *Prometheus) IncFilesScanned(root string) {
	p.filesScanned.WithLabelValues(root).Inc()
}

func (p *Prometheus) IncDirsScanned(root string) {
	p.dirsScanned.WithLabelValues(root).Inc()
}

func (p *Prometheus) ObserveScanDuration(root string, duration time.Duration) {
	p.scanDuration.WithLabelValues(root).Observe(duration.Seconds())
}

// Classification metrics

func (p *Prometheus) IncClassification(tier core.SafetyTier, category core.Category) {
	p.classifications.WithLabelValues(tier.String(), string(category)).Inc()
}

func (p *Prometheus) SetBytesEligible(bytes int64) {
	p.bytesEligible.Set(float64(bytes))
}

func (p *Prometheus) SetFilesEligible(count int) {
	p.filesEligible.Set(float64(count))
}

// Execution metrics

func (p *Prometheus) IncFilesDeleted(root string, category core.Category) {
	p.filesDeleted.WithLabelValues(root, string(category)).Inc()
}

func (p *Prometheus) IncDirsDeleted(root string, category core.Category) {
	p.dirsDeleted.WithLabelValues(root, string(category)).Inc()
}

func (p *Prometheus) AddBytesFreed(bytes int64, category core.Category) {
	p.bytesFreed.WithLabelValues(string(category)).Add(float64(bytes))
}

func (p *Prometheus) IncDeleteErrors(kind core.ErrorKind) {
	p.deleteErrors.WithLabelValues(string(kind)).Inc()
}

// System metrics

func (p *Prometheus) SetDiskUsage(percent float64) {
	p.diskUsage.Set(percent)
}

func (p *Prometheus) SetCPUUsage(percent float64) {
	p.cpuUsage.Set(percent)
}

// SetLastRunTimestamp records when the last scheduled or triggered run
// completed. Not part of core.Metrics; daemon-only convenience.
func (p *Prometheus) SetLastRunTimestamp(t time.Time) {
	p.lastRunTimestamp.Set(float64(t.Unix()))
}

// Ensure Prometheus implements core.Metrics
var _ core.Metrics = (*Prometheus)(nil)
