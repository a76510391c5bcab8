package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"vipctl/internal/checkpoint"
	"vipctl/internal/filter"
	"vipctl/internal/metrics"
	"vipctl/internal/progress"
	"vipctl/internal/storage"
	"vipctl/internal/worker"

	"go.uber.org/zap"
)

// ErrInvalidUploadsDir is returned when the import directory is missing,
// is not a directory, or is not inside an uploads tree
var ErrInvalidUploadsDir = errors.New("invalid uploads directory")

// Options configures one import run
type Options struct {
	SiteID       int
	Rules        filter.Rules
	Parallel     int
	DryRun       bool
	Worker       worker.Config
	LogDir       string
	ShowProgress bool
	BatchSize    int
}

// Summary reports what a run did
type Summary struct {
	SiteID        int
	DryRun        bool
	Fast          bool
	Eligible      int64
	EligibleBytes int64
	Skipped       map[filter.Decision]int64
	Uploaded      int64
	Existing      int64
	Resumed       int64
	Failed        int64
	Errors        int64
	LogPath       string
	Duration      time.Duration
}

// Importer runs the count and import passes over an uploads tree
type Importer struct {
	opts       Options
	client     storage.Client
	checkpoint checkpoint.Store
	metrics    *metrics.Collector
	logger     *zap.Logger

	progressOut io.Writer
	now         func() time.Time
}

// New creates an importer. client may be nil for dry runs; store may be nil
// when resume is not used. A nil collector gets a private one.
func New(opts Options, client storage.Client, store checkpoint.Store, metricsCollector *metrics.Collector, logger *zap.Logger) *Importer {
	if opts.Parallel <= 0 {
		opts.Parallel = worker.DefaultPoolSize
	}
	if opts.LogDir == "" {
		opts.LogDir = os.TempDir()
	}
	if metricsCollector == nil {
		metricsCollector = metrics.New()
	}
	opts.Worker.SiteID = opts.SiteID

	return &Importer{
		opts:        opts,
		client:      client,
		checkpoint:  store,
		metrics:     metricsCollector,
		logger:      logger,
		progressOut: os.Stdout,
		now:         time.Now,
	}
}

// Run counts the eligible files under dir and, unless this is a dry run,
// imports them. The skip log is always written once counting completes.
func (im *Importer) Run(ctx context.Context, dir string) (*Summary, error) {
	root, err := im.preflight(dir)
	if err != nil {
		return nil, err
	}

	start := im.now()
	summary := &Summary{
		SiteID: im.opts.SiteID,
		DryRun: im.opts.DryRun,
		Fast:   im.opts.Worker.Fast,
	}

	logPath := filepath.Join(im.opts.LogDir, fmt.Sprintf("import-%d-%d.log", im.opts.SiteID, start.UnixMilli()))
	skips := NewSkipLog(logPath)
	defer skips.Close()

	im.logger.Info("Starting import",
		zap.Int("site_id", im.opts.SiteID),
		zap.String("dir", root),
		zap.Int("parallel", im.opts.Parallel),
		zap.Bool("fast", im.opts.Worker.Fast),
		zap.Bool("dry_run", im.opts.DryRun),
	)

	processor := worker.NewTaskProcessor(im.opts.Worker, im.client, im.checkpoint, im.metrics, im.logger)

	im.logger.Info("Counting files...")
	counted, countErrors, err := im.runPass(ctx, root, worker.ModeCounting, processor, skips)
	if err != nil {
		return nil, fmt.Errorf("counting pass: %w", err)
	}
	summary.Eligible = counted.eligible.Load()
	summary.EligibleBytes = counted.eligibleBytes.Load()
	summary.Errors = countErrors
	summary.Skipped = skips.Counts()

	im.logger.Info("File counting completed",
		zap.Int64("eligible_files", summary.Eligible),
		zap.String("eligible_size", progress.FormatBytes(summary.EligibleBytes)),
	)

	if !im.opts.DryRun {
		if im.client == nil {
			return nil, errors.New("no files client configured for import")
		}
		if err := im.importPass(ctx, root, processor, summary); err != nil {
			return nil, err
		}
	}

	if err := skips.Finalize(); err != nil {
		return nil, err
	}
	summary.LogPath = logPath
	summary.Duration = im.now().Sub(start)

	im.logger.Info("Import finished",
		zap.Int64("uploaded", summary.Uploaded),
		zap.Int64("existing", summary.Existing),
		zap.Int64("failed", summary.Failed),
		zap.String("log", logPath),
	)
	return summary, nil
}

func (im *Importer) importPass(ctx context.Context, root string, processor *worker.TaskProcessor, summary *Summary) error {
	im.metrics.SetTotalCounts(summary.Eligible, summary.EligibleBytes)

	var display *progress.Display
	if im.opts.ShowProgress {
		display = progress.NewDisplayTo(im.progressOut, im.metrics.GetProgressTracker(), 500*time.Millisecond)
		display.Start()
	} else {
		im.logger.Info("Progress display disabled")
	}

	im.logger.Info("Importing files...", zap.Int64("files", summary.Eligible))
	stats, importErrors, err := im.runPass(ctx, root, worker.ModeImporting, processor, nil)

	if display != nil {
		display.Stop()
	}
	if err != nil {
		return fmt.Errorf("import pass: %w", err)
	}

	summary.Uploaded = stats.uploaded.Load()
	summary.Existing = stats.existing.Load()
	summary.Resumed = stats.resumed.Load()
	summary.Failed = stats.failed.Load()
	summary.Errors += importErrors
	return nil
}

// runPass walks the whole tree once. skips is nil when decisions are not recorded.
func (im *Importer) runPass(ctx context.Context, root string, mode worker.Mode, processor *worker.TaskProcessor, skips *SkipLog) (*passStats, int64, error) {
	stats := &passStats{}
	handler := &queueHandler{
		mode:      mode,
		lister:    Lister{BatchSize: im.opts.BatchSize},
		rules:     im.opts.Rules,
		processor: processor,
		skips:     skips,
		metrics:   im.metrics,
		stats:     stats,
		logger:    im.logger.With(zap.Stringer("pass", mode)),
	}

	pool := worker.NewPool(im.opts.Parallel, handler, im.metrics, im.logger)
	pool.Push(worker.Directory{Path: root}, worker.RootPriority)
	pool.Start(ctx)
	if err := pool.Wait(); err != nil {
		return nil, pool.Failed(), err
	}
	return stats, pool.Failed(), nil
}

// preflight validates dir against the configured uploads root
func (im *Importer) preflight(dir string) (string, error) {
	return ValidateDir(dir, im.opts.Rules.UploadsRoot)
}

// ValidateDir checks that dir is an existing directory inside an uploads
// root and returns its absolute form. An empty uploadsRoot means the default.
func ValidateDir(dir, uploadsRoot string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: no directory given", ErrInvalidUploadsDir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUploadsDir, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUploadsDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidUploadsDir, abs)
	}

	if uploadsRoot == "" {
		uploadsRoot = filter.DefaultUploadsRoot
	}
	if !filter.HasUploadsRoot(filepath.ToSlash(abs), uploadsRoot) {
		return "", fmt.Errorf("%w: uploads must be in %s/", ErrInvalidUploadsDir, uploadsRoot)
	}
	return abs, nil
}
