package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"vipctl/internal/progress"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes import metrics
type Collector struct {
	registry        *prometheus.Registry
	filesTotal      *prometheus.CounterVec
	skippedTotal    *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	inflightWorkers prometheus.Gauge
	duration        prometheus.Histogram
	progressTracker *progress.Tracker
}

// New creates a new metrics collector on its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		filesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_files_total",
				Help: "Total number of files processed by outcome",
			},
			[]string{"status"},
		),
		skippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "import_files_skipped_total",
				Help: "Files rejected by the import filter by reason",
			},
			[]string{"reason"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "import_bytes_total",
				Help: "Total bytes uploaded",
			},
		),
		inflightWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "import_inflight_workers",
				Help: "Number of queue workers currently processing an item",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "import_file_duration_seconds",
				Help:    "Time taken to import a file",
				Buckets: prometheus.DefBuckets,
			},
		),
		progressTracker: progress.NewTracker(),
	}

	c.registry.MustRegister(c.filesTotal, c.skippedTotal, c.bytesTotal, c.inflightWorkers, c.duration)

	return c
}

// IncUploaded counts an uploaded file and updates progress
func (c *Collector) IncUploaded(bytes int64) {
	c.filesTotal.WithLabelValues("uploaded").Inc()
	c.bytesTotal.Add(float64(bytes))
	c.progressTracker.AddUploaded(bytes)
}

// IncExisting counts a file already present remotely and updates progress
func (c *Collector) IncExisting(bytes int64) {
	c.filesTotal.WithLabelValues("existing").Inc()
	c.progressTracker.AddExisting(bytes)
}

// IncFailed counts a failed file and updates progress
func (c *Collector) IncFailed() {
	c.filesTotal.WithLabelValues("failed").Inc()
	c.progressTracker.AddFailed()
}

// IncSkipped counts a file rejected by the filter
func (c *Collector) IncSkipped(reason string) {
	c.skippedTotal.WithLabelValues(reason).Inc()
}

// WorkerStarted marks a worker as busy
func (c *Collector) WorkerStarted() {
	c.inflightWorkers.Inc()
}

// WorkerFinished marks a worker as idle
func (c *Collector) WorkerFinished() {
	c.inflightWorkers.Dec()
}

// ObserveDuration observes import duration
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.duration.Observe(duration.Seconds())
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the /metrics HTTP handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until ctx is done
func (c *Collector) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GetProgressTracker returns the progress tracker
func (c *Collector) GetProgressTracker() *progress.Tracker {
	return c.progressTracker
}

// SetTotalCounts sets the total counts for progress tracking
func (c *Collector) SetTotalCounts(files, bytes int64) {
	c.progressTracker.SetTotal(files, bytes)
}
