// Package queue provides the in-process feedback ingestion queue: two
// priority classes over buffered channels, a fixed consumer pool, and
// retry with exponential backoff before a job lands in the failed list.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eventpulse/eventpulse/internal/domain"
	"github.com/eventpulse/eventpulse/internal/logger"
	"github.com/eventpulse/eventpulse/internal/metrics"
	"github.com/eventpulse/eventpulse/internal/retry"
)

// Priority is the job's scheduling class. High-priority jobs are drained
// before normal ones whenever both are waiting.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

var (
	// ErrQueueFull is returned when the priority class buffer is at capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned when enqueueing after shutdown began.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrNoRetry marks a handler failure as terminal. Jobs failing with it
	// go straight to the failed list without retries.
	ErrNoRetry = errors.New("job failed terminally")
)

// Handler processes one queued feedback item.
type Handler func(ctx context.Context, item *domain.FeedbackItem) error

// FailedJob is a job that exhausted its retries or failed terminally.
type FailedJob struct {
	Item     *domain.FeedbackItem `json:"item"`
	Error    string               `json:"error"`
	Attempts int                  `json:"attempts"`
	FailedAt time.Time            `json:"failedAt"`
}

// Config controls queue sizing and retry behavior.
type Config struct {
	Workers         int           `yaml:"workers" env:"QUEUE_WORKERS"`
	Capacity        int           `yaml:"capacity" env:"QUEUE_CAPACITY"`
	MaxAttempts     int           `yaml:"max_attempts" env:"QUEUE_MAX_ATTEMPTS"`
	InitialBackoff  time.Duration `yaml:"initial_backoff" env:"QUEUE_INITIAL_BACKOFF"`
	MaxBackoff      time.Duration `yaml:"max_backoff" env:"QUEUE_MAX_BACKOFF"`
	FailedRetention int           `yaml:"failed_retention" env:"QUEUE_FAILED_RETENTION"`
}

// WithDefaults fills zero-valued settings.
func (c Config) WithDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Capacity <= 0 {
		c.Capacity = 1000
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.FailedRetention <= 0 {
		c.FailedRetention = 100
	}
	return c
}

// Queue is an in-memory two-priority job queue with a fixed worker pool.
type Queue struct {
	cfg     Config
	handler Handler
	log     logger.Logger
	metrics *metrics.Metrics

	high   chan *domain.FeedbackItem
	normal chan *domain.FeedbackItem

	mu     sync.RWMutex
	closed bool

	failedMu sync.Mutex
	failed   []FailedJob

	wg sync.WaitGroup
}

// New creates a queue. Call Start to launch the worker pool.
func New(cfg Config, handler Handler, log logger.Logger, m *metrics.Metrics) *Queue {
	cfg = cfg.WithDefaults()
	return &Queue{
		cfg:     cfg,
		handler: handler,
		log:     log,
		metrics: m,
		high:    make(chan *domain.FeedbackItem, cfg.Capacity),
		normal:  make(chan *domain.FeedbackItem, cfg.Capacity),
	}
}

// Start launches the consumer pool. Workers run until Stop is called or
// the context is cancelled.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.log.Info("queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.Int("capacity", q.cfg.Capacity))
}

// Enqueue submits a job without blocking. It fails fast with ErrQueueFull
// when the priority class buffer is at capacity.
func (q *Queue) Enqueue(ctx context.Context, item *domain.FeedbackItem, priority Priority) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	ch := q.normal
	if priority == PriorityHigh {
		ch = q.high
	}

	select {
	case ch <- item:
		q.metrics.QueueDepth.WithLabelValues(string(priority)).Set(float64(len(ch)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Depth returns the number of waiting jobs in a priority class.
func (q *Queue) Depth(priority Priority) int {
	if priority == PriorityHigh {
		return len(q.high)
	}
	return len(q.normal)
}

// FailedJobs returns a copy of the retained failed jobs, most recent last.
func (q *Queue) FailedJobs() []FailedJob {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()
	return append([]FailedJob(nil), q.failed...)
}

// Stop closes the queue and waits for workers to drain in-flight jobs.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.high)
	close(q.normal)
	q.mu.Unlock()

	q.wg.Wait()
	q.log.Info("queue stopped")
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()

	high, normal := q.high, q.normal
	for high != nil || normal != nil {
		// Drain high priority first when both classes have work.
		select {
		case item, ok := <-high:
			if !ok {
				high = nil
				continue
			}
			q.process(ctx, item, PriorityHigh)
			continue
		default:
		}

		select {
		case item, ok := <-high:
			if !ok {
				high = nil
				continue
			}
			q.process(ctx, item, PriorityHigh)
		case item, ok := <-normal:
			if !ok {
				normal = nil
				continue
			}
			q.process(ctx, item, PriorityNormal)
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, item *domain.FeedbackItem, priority Priority) {
	defer q.metrics.QueueDepth.WithLabelValues(string(priority)).Set(float64(q.Depth(priority)))

	attempts := 0
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  q.cfg.MaxAttempts,
		InitialDelay: q.cfg.InitialBackoff,
		MaxDelay:     q.cfg.MaxBackoff,
		IsRetryable: func(err error) bool {
			return !errors.Is(err, ErrNoRetry)
		},
		OnRetry: func(attempt int, err error) {
			q.metrics.QueueRetries.Inc()
			q.log.Warn("feedback job failed, retrying",
				logger.String("feedback_id", item.ID),
				logger.Int("attempt", attempt),
				logger.Error(err))
		},
	}, func() error {
		attempts++
		return q.handler(ctx, item)
	})
	if err == nil {
		return
	}

	q.metrics.FeedbackFailed.Inc()
	q.log.Error("feedback job failed permanently",
		logger.String("feedback_id", item.ID),
		logger.String("event_id", item.EventID),
		logger.Int("attempts", attempts),
		logger.Error(err))
	q.recordFailure(item, err, attempts)
}

func (q *Queue) recordFailure(item *domain.FeedbackItem, err error, attempts int) {
	q.failedMu.Lock()
	defer q.failedMu.Unlock()

	q.failed = append(q.failed, FailedJob{
		Item:     item,
		Error:    err.Error(),
		Attempts: attempts,
		FailedAt: time.Now(),
	})
	if len(q.failed) > q.cfg.FailedRetention {
		q.failed = q.failed[len(q.failed)-q.cfg.FailedRetention:]
	}
}
