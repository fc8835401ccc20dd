package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/account-service/internal/core/port"
)

const (
	defaultQueueWorkers = 2
	defaultQueueSize    = 256
	defaultQueueTimeout = 30 * time.Second
)

var (
	// ErrQueueFull is returned when every queue slot is taken.
	ErrQueueFull = errors.New("mail queue is full")
	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("mail queue is closed")
)

// QueueConfig bounds background delivery.
type QueueConfig struct {
	Workers int
	Size    int
	Timeout time.Duration
}

type queuedEmail struct {
	ctx      context.Context
	template string
	to       []string
	data     map[string]any
}

// Queue accepts templates and delivers them from a fixed set of workers, so request
// latency never depends on the mail relay.
type Queue struct {
	next    port.Mailer
	jobs    chan queuedEmail
	timeout time.Duration
	logger  *zap.Logger

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

var _ port.Mailer = (*Queue)(nil)

// NewQueue starts cfg.Workers goroutines delivering through next.
func NewQueue(next port.Mailer, cfg QueueConfig, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultQueueWorkers
	}
	if cfg.Size <= 0 {
		cfg.Size = defaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultQueueTimeout
	}

	q := &Queue{
		next:    next,
		jobs:    make(chan queuedEmail, cfg.Size),
		timeout: cfg.Timeout,
		logger:  log,
	}
	q.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go q.work()
	}
	return q
}

// SendTemplate enqueues the email and returns without waiting for delivery.
// Request-scoped values such as the trace survive; cancellation does not.
func (q *Queue) SendTemplate(ctx context.Context, template string, to []string, data map[string]any) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- queuedEmail{ctx: context.WithoutCancel(ctx), template: template, to: to, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for email := range q.jobs {
		ctx, cancel := context.WithTimeout(email.ctx, q.timeout)
		if err := q.next.SendTemplate(ctx, email.template, email.to, email.data); err != nil {
			q.logger.Warn("queued email not delivered",
				zap.String("template", email.template),
				zap.Strings("to", maskAll(email.to)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Close stops accepting mail and waits for queued emails to drain or for ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
