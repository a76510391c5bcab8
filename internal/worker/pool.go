package worker

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"vipctl/internal/metrics"

	"go.uber.org/zap"
)

// DefaultPoolSize is the number of workers used when none is configured
const DefaultPoolSize = 5

// PushFunc enqueues follow-up work from inside a handler
type PushFunc func(item Item, priority int)

// Handler processes one queue item. Items pushed through push are counted as
// pending before the handler returns, so the pool cannot drain early.
type Handler interface {
	Handle(ctx context.Context, item Item, priority int, push PushFunc) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, item Item, priority int, push PushFunc) error

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, item Item, priority int, push PushFunc) error {
	return f(ctx, item, priority, push)
}

// Pool is a fixed set of workers pulling from a shared priority queue.
// Lower priority values run first; equal priorities run in push order.
type Pool struct {
	size    int
	handler Handler
	metrics *metrics.Collector
	logger  *zap.Logger
	onDrain func()

	mu      sync.Mutex
	cond    *sync.Cond
	queue   itemHeap
	seq     uint64
	pending int
	started bool
	stopped bool
	drained bool
	err     error
	done    chan struct{}
	wg      sync.WaitGroup

	failed atomic.Int64
}

// NewPool creates a new worker pool. metricsCollector may be nil.
func NewPool(size int, handler Handler, metricsCollector *metrics.Collector, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &Pool{
		size:    size,
		handler: handler,
		metrics: metricsCollector,
		logger:  logger,
		done:    make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// OnDrain registers fn to run once, after the last pending item completes.
// Must be called before Start.
func (p *Pool) OnDrain(fn func()) {
	p.onDrain = fn
}

// Start starts the workers. Cancelling ctx stops them after their current item.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			if !p.drained {
				p.stop(ctx.Err())
			}
			p.mu.Unlock()
		case <-p.done:
		}
	}()
}

// Push enqueues an item. Pushing to a drained or stopped pool is a no-op.
func (p *Pool) Push(item Item, priority int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		p.logger.Warn("Dropping item pushed to stopped pool", zap.String("item", describe(item)))
		return
	}

	p.pending++
	heap.Push(&p.queue, &entry{item: item, priority: priority, seq: p.seq})
	p.seq++
	p.cond.Signal()
}

// Wait blocks until the queue drains or the context passed to Start is cancelled
func (p *Pool) Wait() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return errors.New("pool not started")
	}
	var drainNow bool
	if p.pending == 0 && !p.stopped {
		drainNow = p.markDrained()
	}
	p.mu.Unlock()

	if drainNow && p.onDrain != nil {
		p.onDrain()
	}

	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once every pushed item has been handled
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Failed returns the number of items whose handler returned an error
func (p *Pool) Failed() int64 {
	return p.failed.Load()
}

// stop must be called with the lock held
func (p *Pool) stop(err error) {
	p.stopped = true
	if p.err == nil {
		p.err = err
	}
	p.cond.Broadcast()
}

// markDrained must be called with the lock held
func (p *Pool) markDrained() bool {
	if p.drained {
		return false
	}
	p.drained = true
	p.stopped = true
	close(p.done)
	p.cond.Broadcast()
	return true
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("Worker started")

	for {
		p.mu.Lock()
		for p.queue.Len() == 0 && !p.stopped {
			p.cond.Wait()
		}
		if err := ctx.Err(); err != nil && !p.drained {
			p.stop(err)
		}
		if p.stopped {
			p.mu.Unlock()
			logger.Debug("Worker finished")
			return
		}
		e := heap.Pop(&p.queue).(*entry)
		p.mu.Unlock()

		p.run(ctx, logger, e)

		p.mu.Lock()
		p.pending--
		var drainNow bool
		if p.pending == 0 && !p.stopped {
			drainNow = p.markDrained()
		}
		p.mu.Unlock()

		if drainNow && p.onDrain != nil {
			p.onDrain()
		}
	}
}

func (p *Pool) run(ctx context.Context, logger *zap.Logger, e *entry) {
	if p.metrics != nil {
		p.metrics.WorkerStarted()
		defer p.metrics.WorkerFinished()
	}

	if err := p.handler.Handle(ctx, e.item, e.priority, p.Push); err != nil {
		p.failed.Add(1)
		logger.Warn("Queue item failed",
			zap.String("item", describe(e.item)),
			zap.Int("priority", e.priority),
			zap.Error(err),
		)
	}
}

func describe(item Item) string {
	switch it := item.(type) {
	case Directory:
		return "dir:" + it.Path
	case Continuation:
		return fmt.Sprintf("continuation:%s@%d", it.Path, it.Offset)
	case FileBatch:
		return fmt.Sprintf("batch:%d files", len(it.Paths))
	case File:
		return "file:" + it.Path
	default:
		return fmt.Sprintf("%T", item)
	}
}

type entry struct {
	item     Item
	priority int
	seq      uint64
}

// itemHeap is a min-heap on (priority, seq)
type itemHeap []*entry

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
