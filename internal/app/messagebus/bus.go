package messagebus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/burenotti/go_course_backend/internal/domain"
)

var (
	ErrQueueFull = errors.New("message bus queue is full")
	ErrClosed    = errors.New("message bus is closed")
)

type EventHandler func(ctx context.Context, event domain.Event) error

type job struct {
	event   domain.Event
	handler EventHandler
}

// MessageBus fans events out to registered handlers through a bounded queue
// drained by a fixed pool of workers. Publishing never blocks.
type MessageBus struct {
	logger   *slog.Logger
	timeout  time.Duration
	workers  int
	handlers map[string][]EventHandler
	queue    chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(logger *slog.Logger, workers, queueSize int, handlerTimeout time.Duration) *MessageBus {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &MessageBus{
		logger:   logger,
		timeout:  handlerTimeout,
		workers:  workers,
		handlers: make(map[string][]EventHandler),
		queue:    make(chan job, queueSize),
	}
}

// Register must be called before Start.
func (b *MessageBus) Register(eventType string, handler EventHandler) {
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Start launches the workers. They stop once Close has drained the queue.
func (b *MessageBus) Start(ctx context.Context) {
	for range b.workers {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for j := range b.queue {
				b.handle(ctx, j)
			}
		}()
	}
}

func (b *MessageBus) handle(ctx context.Context, j job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "type", j.event.Type(), "panic", r)
		}
	}()

	if err := j.handler(ctx, j.event); err != nil {
		b.logger.Error("failed to handle event", "type", j.event.Type(), "error", err)
	}
}

// PublishEvents enqueues one job per (event, handler) pair. Jobs that do not
// fit into the queue are dropped; the returned error reports that.
func (b *MessageBus) PublishEvents(events ...domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	var dropped int
	for _, event := range events {
		for _, handler := range b.handlers[event.Type()] {
			select {
			case b.queue <- job{event: event, handler: handler}:
			default:
				dropped++
				b.logger.Error("dropped event", "type", event.Type(), "error", ErrQueueFull)
			}
		}
	}
	if dropped > 0 {
		return ErrQueueFull
	}
	return nil
}

// Close stops accepting events and waits for queued jobs to finish.
func (b *MessageBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
}
