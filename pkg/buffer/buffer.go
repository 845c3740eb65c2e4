package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/JoshuaRamirez/ACS-sub014/pkg/errdefs"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/log"
	"github.com/JoshuaRamirez/ACS-sub014/pkg/metrics"
)

const (
	// DefaultCapacity bounds the queue; beyond it producers feel backpressure
	DefaultCapacity = 10000
	// DefaultEnqueueTimeout is how long a waiting producer blocks before Overloaded
	DefaultEnqueueTimeout = 5 * time.Second

	rateWindow = 10 * time.Second
)

// Task is one unit of serialized work. It returns the binary-encoded result,
// or nil for void commands.
type Task func(ctx context.Context) ([]byte, error)

// Result is the outcome of a completed task
type Result struct {
	Data []byte
	Err  error
}

// Completion resolves exactly once when its task finishes, fails, or is
// cancelled while still queued.
type Completion struct {
	ch chan Result
}

// Await blocks until the task completes. Await returning on ctx expiry does
// not stop the task: a command that has begun executing runs to completion.
func (c *Completion) Await(ctx context.Context) ([]byte, error) {
	select {
	case res := <-c.ch:
		return res.Data, res.Err
	case <-ctx.Done():
		return nil, errdefs.Wrap(ctx.Err(), errdefs.KindCancelled, "caller gave up waiting for command")
	}
}

type item struct {
	ctx        context.Context
	name       string
	task       Task
	completion *Completion
	enqueuedAt time.Time
}

// Buffer is a bounded FIFO with a single consumer goroutine. Any number of
// producers may enqueue concurrently; tasks execute strictly in enqueue
// order and never in parallel.
type Buffer struct {
	items          chan *item
	enqueueTimeout time.Duration

	mu        sync.Mutex
	processed int64
	inFlight  int
	recent    []time.Time
	closed    bool
	started   bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// Stats is a point-in-time snapshot of buffer activity
type Stats struct {
	CommandsProcessed int64
	CommandsInFlight  int
	QueueDepth        int
	CommandsPerSecond float64
}

// New creates a buffer. Zero capacity or timeout select the defaults.
func New(capacity int, enqueueTimeout time.Duration) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if enqueueTimeout <= 0 {
		enqueueTimeout = DefaultEnqueueTimeout
	}
	return &Buffer{
		items:          make(chan *item, capacity),
		enqueueTimeout: enqueueTimeout,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start launches the consumer goroutine
func (b *Buffer) Start() {
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()
	go b.consume()
}

// Stop shuts the consumer down. Queued items are resolved as cancelled; the
// currently running task, if any, finishes first.
func (b *Buffer) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	started := b.started
	b.mu.Unlock()

	close(b.stopCh)
	if started {
		<-b.doneCh
	}

	b.drainCancelled()
}

// drainCancelled resolves everything still queued as cancelled. Producers
// racing Stop call it too, so no item can be left queued with an unresolved
// completion after the consumer is gone.
func (b *Buffer) drainCancelled() {
	for {
		select {
		case it := <-b.items:
			it.completion.ch <- Result{Err: errdefs.New(errdefs.KindCancelled, "worker shutting down")}
		default:
			return
		}
	}
}

// Enqueue appends a task, blocking for space up to the configured enqueue
// timeout. It fails with Overloaded when the queue stays full, or Cancelled
// when ctx expires while waiting.
func (b *Buffer) Enqueue(ctx context.Context, name string, task Task) (*Completion, error) {
	return b.enqueue(ctx, name, task, true)
}

// TryEnqueue appends a task without waiting for space
func (b *Buffer) TryEnqueue(ctx context.Context, name string, task Task) (*Completion, error) {
	return b.enqueue(ctx, name, task, false)
}

func (b *Buffer) enqueue(ctx context.Context, name string, task Task, wait bool) (*Completion, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, errdefs.New(errdefs.KindCancelled, "command buffer is stopped")
	}

	it := &item{
		ctx:        ctx,
		name:       name,
		task:       task,
		completion: &Completion{ch: make(chan Result, 1)},
		enqueuedAt: time.Now(),
	}

	if !wait {
		select {
		case b.items <- it:
		default:
			return nil, errdefs.New(errdefs.KindOverloaded, "command buffer is full")
		}
		metrics.CommandQueueDepth.Set(float64(len(b.items)))
		b.sweepIfStopped()
		return it.completion, nil
	}

	timer := time.NewTimer(b.enqueueTimeout)
	defer timer.Stop()

	select {
	case b.items <- it:
		metrics.CommandQueueDepth.Set(float64(len(b.items)))
		b.sweepIfStopped()
		return it.completion, nil
	case <-timer.C:
		return nil, errdefs.New(errdefs.KindOverloaded,
			"command buffer full after waiting %s", b.enqueueTimeout)
	case <-ctx.Done():
		return nil, errdefs.Wrap(ctx.Err(), errdefs.KindCancelled, "enqueue cancelled")
	case <-b.stopCh:
		return nil, errdefs.New(errdefs.KindCancelled, "command buffer is stopped")
	}
}

// sweepIfStopped re-checks for a shutdown that completed between the closed
// check at the top of enqueue and the channel send. Without it an item landed
// after Stop's drain would never resolve.
func (b *Buffer) sweepIfStopped() {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		b.drainCancelled()
	}
}

func (b *Buffer) consume() {
	defer close(b.doneCh)
	logger := log.WithComponent("command-buffer")

	for {
		select {
		case it := <-b.items:
			metrics.CommandQueueDepth.Set(float64(len(b.items)))

			// A cancel that lands while the item is still queued wins;
			// once the task starts it runs to completion.
			if err := it.ctx.Err(); err != nil {
				it.completion.ch <- Result{Err: errdefs.Wrap(err, errdefs.KindCancelled,
					"command cancelled while queued")}
				continue
			}

			b.setInFlight(1)
			start := time.Now()
			data, err := it.task(context.WithoutCancel(it.ctx))
			b.setInFlight(0)

			metrics.CommandsProcessed.Inc()
			metrics.CommandDuration.WithLabelValues(it.name).Observe(time.Since(start).Seconds())
			b.recordProcessed()

			if err != nil {
				logger.Debug().
					Err(err).
					Str("command", it.name).
					Msg("command failed")
			}
			it.completion.ch <- Result{Data: data, Err: err}

		case <-b.stopCh:
			return
		}
	}
}

func (b *Buffer) setInFlight(n int) {
	b.mu.Lock()
	b.inFlight = n
	b.mu.Unlock()
}

func (b *Buffer) recordProcessed() {
	now := time.Now()
	b.mu.Lock()
	b.processed++
	b.recent = append(b.recent, now)
	cutoff := now.Add(-rateWindow)
	trim := 0
	for trim < len(b.recent) && b.recent[trim].Before(cutoff) {
		trim++
	}
	b.recent = b.recent[trim:]
	b.mu.Unlock()
}

// Stats returns a snapshot of buffer activity
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-rateWindow)
	inWindow := 0
	for _, t := range b.recent {
		if !t.Before(cutoff) {
			inWindow++
		}
	}
	return Stats{
		CommandsProcessed: b.processed,
		CommandsInFlight:  b.inFlight,
		QueueDepth:        len(b.items),
		CommandsPerSecond: float64(inWindow) / rateWindow.Seconds(),
	}
}
