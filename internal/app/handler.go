package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"vipctl/internal/filter"
	"vipctl/internal/metrics"
	"vipctl/internal/worker"

	"go.uber.org/zap"
)

// passStats are the per-pass tallies shared by all queue workers
type passStats struct {
	eligible      atomic.Int64
	eligibleBytes atomic.Int64
	uploaded      atomic.Int64
	existing      atomic.Int64
	resumed       atomic.Int64
	failed        atomic.Int64
}

// queueHandler turns queue items into directory pages, file items and
// processor calls for one pass over the tree
type queueHandler struct {
	mode      worker.Mode
	lister    Lister
	rules     filter.Rules
	processor *worker.TaskProcessor
	skips     *SkipLog // nil on passes that do not record skips
	metrics   *metrics.Collector
	stats     *passStats
	logger    *zap.Logger
}

func (h *queueHandler) Handle(ctx context.Context, item worker.Item, priority int, push worker.PushFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch it := item.(type) {
	case worker.Directory:
		return h.expand(it.Path, 0, push)
	case worker.Continuation:
		return h.expand(it.Path, it.Offset, push)
	case worker.FileBatch:
		for _, path := range it.Paths {
			push(worker.File{Path: path}, priority)
		}
		return nil
	case worker.File:
		return h.handleFile(ctx, it.Path, push)
	default:
		return fmt.Errorf("unexpected queue item %T", item)
	}
}

// expand queues one page of dir at the directory's depth priority and, when
// the directory has more entries, a continuation that runs just after it
func (h *queueHandler) expand(dir string, offset int, push worker.PushFunc) error {
	batch, next, err := h.lister.Expand(dir, offset)
	if err != nil {
		return err
	}

	priority := worker.DirPriority(dir)
	if len(batch) > 0 {
		push(worker.FileBatch{Paths: batch}, priority)
	}
	if next != nil {
		h.logger.Debug("Queued directory continuation",
			zap.String("dir", dir),
			zap.Int("offset", next.Offset))
		push(*next, priority+1)
	}
	return nil
}

func (h *queueHandler) handleFile(ctx context.Context, path string, push worker.PushFunc) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", worker.ErrSymlink, path, err)
		}
		info, err = os.Stat(target)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", worker.ErrSymlink, path, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s", worker.ErrSymlink, path)
		}
		path = target
	}

	if info.IsDir() {
		return h.expand(path, 0, push)
	}
	if !info.Mode().IsRegular() {
		h.logger.Debug("Ignoring special file", zap.String("path", path))
		return nil
	}

	decision := h.rules.Classify(path, info.Size())
	if decision != filter.Allowed {
		return h.recordSkip(decision, path)
	}

	remote, _ := filter.RemotePath(path, h.rules.UploadsRoot)
	outcome := h.processor.Process(ctx, worker.FileTask{
		Path:       path,
		RemotePath: remote,
		Size:       info.Size(),
	}, h.mode)

	switch outcome.Result {
	case worker.ResultCounted:
		h.stats.eligible.Add(1)
		h.stats.eligibleBytes.Add(info.Size())
	case worker.ResultUploaded:
		h.stats.uploaded.Add(1)
	case worker.ResultExists:
		h.stats.existing.Add(1)
	case worker.ResultResumed:
		h.stats.resumed.Add(1)
	case worker.ResultFailed:
		h.stats.failed.Add(1)
	}
	// Processor failures are already logged and counted per file.
	return nil
}

func (h *queueHandler) recordSkip(decision filter.Decision, path string) error {
	if h.skips == nil {
		return nil
	}
	if h.metrics != nil {
		h.metrics.IncSkipped(decision.String())
	}
	h.logger.Debug("Skipping file",
		zap.String("path", path),
		zap.Stringer("reason", decision))
	return h.skips.Record(decision, path)
}
