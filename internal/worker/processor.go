package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"vipctl/internal/checkpoint"
	"vipctl/internal/metrics"
	"vipctl/internal/storage"

	"go.uber.org/zap"
)

// countReportInterval is how often the counting pass reports its running total
const countReportInterval = 10000

// Result is what happened to one eligible file
type Result int

const (
	ResultCounted Result = iota
	ResultUploaded
	ResultExists
	ResultResumed
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultCounted:
		return "counted"
	case ResultUploaded:
		return "uploaded"
	case ResultExists:
		return "exists"
	case ResultResumed:
		return "resumed"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is reported back to the queue handler for every processed file
type Outcome struct {
	Result Result
	Err    error
}

// TaskProcessor counts or uploads eligible files
type TaskProcessor struct {
	config     Config
	client     storage.Client
	checkpoint checkpoint.Store
	metrics    *metrics.Collector
	logger     *zap.Logger

	counted atomic.Int64
}

// NewTaskProcessor creates a processor. client may be nil when only counting;
// checkpointStore and metricsCollector may be nil.
func NewTaskProcessor(
	config Config,
	client storage.Client,
	checkpointStore checkpoint.Store,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *TaskProcessor {
	return &TaskProcessor{
		config:     config,
		client:     client,
		checkpoint: checkpointStore,
		metrics:    metricsCollector,
		logger:     logger,
	}
}

// Counted returns the number of files seen by counting passes
func (p *TaskProcessor) Counted() int64 {
	return p.counted.Load()
}

// Process handles a single eligible file in the given mode
func (p *TaskProcessor) Process(ctx context.Context, task FileTask, mode Mode) Outcome {
	if mode == ModeCounting {
		n := p.counted.Add(1)
		if n%countReportInterval == 0 {
			p.logger.Info("Counting files", zap.Int64("counted", n))
		}
		return Outcome{Result: ResultCounted}
	}

	if p.client == nil {
		return p.fail(task, errors.New("no files client configured"))
	}

	startTime := time.Now()

	if p.config.Resume && p.alreadyImported(task) {
		p.logger.Debug("Skipping file imported by an earlier run", zap.String("path", task.RemotePath))
		p.incExisting(task.Size)
		return Outcome{Result: ResultResumed}
	}

	if !p.config.Fast {
		exists, err := p.client.Exists(ctx, task.RemotePath)
		if err != nil {
			return p.fail(task, err)
		}
		if exists {
			p.logger.Debug("Skipping existing file", zap.String("path", task.RemotePath))
			p.markCompleted(task, 0)
			p.incExisting(task.Size)
			return Outcome{Result: ResultExists}
		}
	}

	retries := p.config.Retries
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		err := p.upload(ctx, task)
		if err == nil {
			p.markCompleted(task, attempt)
			if p.metrics != nil {
				p.metrics.IncUploaded(task.Size)
				p.metrics.ObserveDuration(time.Since(startTime))
			}
			p.logger.Debug("File uploaded",
				zap.String("path", task.RemotePath),
				zap.Int64("size", task.Size),
				zap.Duration("duration", time.Since(startTime)),
			)
			return Outcome{Result: ResultUploaded}
		}

		lastErr = err
		p.logger.Debug("Upload attempt failed",
			zap.String("path", task.RemotePath),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if ctx.Err() != nil || !p.isRetriableError(err) {
			break
		}

		if attempt < retries {
			select {
			case <-time.After(p.calculateBackoff(attempt)):
			case <-ctx.Done():
				return p.fail(task, ctx.Err())
			}
		}
	}

	return p.fail(task, lastErr)
}

func (p *TaskProcessor) upload(ctx context.Context, task FileTask) error {
	f, err := os.Open(task.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", task.Path, err)
	}
	defer f.Close()

	opts := storage.PutOptions{
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(task.Path))),
	}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	return p.client.Put(ctx, task.RemotePath, f, task.Size, opts)
}

func (p *TaskProcessor) fail(task FileTask, err error) Outcome {
	p.markFailed(task, err)
	if p.metrics != nil {
		p.metrics.IncFailed()
	}
	p.logger.Warn("File import failed",
		zap.String("path", task.Path),
		zap.Error(err),
	)
	return Outcome{Result: ResultFailed, Err: err}
}

func (p *TaskProcessor) incExisting(size int64) {
	if p.metrics != nil {
		p.metrics.IncExisting(size)
	}
}

func (p *TaskProcessor) alreadyImported(task FileTask) bool {
	if p.checkpoint == nil {
		return false
	}
	record, err := p.checkpoint.GetFile(p.config.SiteID, task.RemotePath)
	if err != nil {
		p.logger.Warn("Failed to read checkpoint", zap.String("path", task.RemotePath), zap.Error(err))
		return false
	}
	return record != nil && record.Status == checkpoint.StatusCompleted && record.Size == task.Size
}

func (p *TaskProcessor) markCompleted(task FileTask, attempts int) {
	if p.checkpoint == nil {
		return
	}
	record := &checkpoint.FileRecord{
		SiteID:   p.config.SiteID,
		Path:     task.RemotePath,
		Size:     task.Size,
		Status:   checkpoint.StatusCompleted,
		Attempts: attempts,
	}
	if err := p.checkpoint.SaveFile(record); err != nil {
		p.logger.Error("Failed to save completed file",
			zap.String("path", task.RemotePath),
			zap.Error(err))
	}
}

func (p *TaskProcessor) markFailed(task FileTask, err error) {
	if p.checkpoint == nil || err == nil {
		return
	}
	record := &checkpoint.FileRecord{
		SiteID:    p.config.SiteID,
		Path:      task.RemotePath,
		Size:      task.Size,
		Status:    checkpoint.StatusFailed,
		Attempts:  1,
		LastError: err.Error(),
	}
	if saveErr := p.checkpoint.SaveFile(record); saveErr != nil {
		if errors.Is(saveErr, checkpoint.ErrClosed) {
			p.logger.Warn("Cannot save failed file - checkpoint store is closed",
				zap.String("path", task.RemotePath),
				zap.String("original_error", err.Error()))
		} else {
			p.logger.Error("Failed to save failed file",
				zap.String("path", task.RemotePath),
				zap.Error(saveErr))
		}
	}
}

func (p *TaskProcessor) isRetriableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "temporary") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "dns") ||
		strings.Contains(errStr, "status 500") ||
		strings.Contains(errStr, "status 502") ||
		strings.Contains(errStr, "status 503") ||
		strings.Contains(errStr, "status 504")
}

func (p *TaskProcessor) calculateBackoff(attempt int) time.Duration {
	base := time.Duration(p.config.RetryBackoffMs) * time.Millisecond
	return base * time.Duration(math.Pow(2, float64(attempt-1)))
}
