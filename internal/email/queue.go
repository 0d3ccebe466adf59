package email

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/metrics"
)

var (
	ErrQueueFull    = errors.New("email queue is full")
	ErrQueueStopped = errors.New("email queue is stopped")
)

// Job is a rendered message waiting for delivery.
type Job struct {
	ID        string
	Message   Message
	Attempts  int
	CreatedAt time.Time
}

type QueueConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	RatePerSec float64
	// BaseBackoff is multiplied by attempts squared between retries.
	BaseBackoff time.Duration
}

// Queue sends email on background workers. Enqueue never blocks.
type Queue struct {
	sender   Sender
	renderer *Renderer
	cfg      QueueConfig
	limiter  *rate.Limiter
	jobs     chan Job
	// pending counts accepted jobs without a final outcome, retries included.
	pending atomic.Int64

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func NewQueue(sender Sender, renderer *Renderer, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Queue{
		sender:   sender,
		renderer: renderer,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		jobs:     make(chan Job, cfg.QueueSize),
	}
}

// Start launches the workers. They run until Stop or until ctx is done.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Stop refuses new jobs and waits for the workers to exit. Jobs still
// buffered are dropped and counted.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()

	for {
		select {
		case job := <-q.jobs:
			q.pending.Add(-1)
			metrics.EmailQueue.WithLabelValues("dropped").Inc()
			logger.Warn("Dropping queued email on shutdown", "jobID", job.ID, "to", job.Message.To)
		default:
			return
		}
	}
}

// EnqueueTemplate renders name with data and queues the result. Render
// failures are returned to the caller.
func (q *Queue) EnqueueTemplate(to, toName, subject, name string, data map[string]any) error {
	if q.renderer == nil {
		return errors.New("email renderer not configured")
	}
	view := make(map[string]any, len(data)+1)
	for k, v := range data {
		view[k] = v
	}
	if _, ok := view["Name"]; !ok {
		view["Name"] = toName
	}

	html, err := q.renderer.Render(name, view)
	if err != nil {
		metrics.EmailQueue.WithLabelValues("failed").Inc()
		return err
	}
	return q.Enqueue(Message{To: to, ToName: toName, Subject: subject, HTML: html})
}

func (q *Queue) Enqueue(msg Message) error {
	q.pending.Add(1)
	if err := q.push(Job{ID: uuid.NewString(), Message: msg, CreatedAt: time.Now()}); err != nil {
		q.pending.Add(-1)
		return err
	}
	return nil
}

// Drain waits until every accepted job has been sent or given up on, or
// until ctx is done. One-shot processes call it before Stop.
func (q *Queue) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for q.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (q *Queue) push(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return ErrQueueStopped
	}

	select {
	case q.jobs <- job:
		return nil
	default:
		metrics.EmailQueue.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	logger.Debug("Email worker started", "worker", id)

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Email worker stopping", "worker", id)
			return
		case job := <-q.jobs:
			if err := q.limiter.Wait(ctx); err != nil {
				// Shutting down; hand the job back to the drain in Stop.
				select {
				case q.jobs <- job:
				default:
					q.pending.Add(-1)
					metrics.EmailQueue.WithLabelValues("dropped").Inc()
				}
				return
			}
			q.process(ctx, job)
		}
	}
}

func (q *Queue) process(ctx context.Context, job Job) {
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := q.sender.Send(sendCtx, job.Message)
	if err == nil {
		q.pending.Add(-1)
		metrics.EmailQueue.WithLabelValues("sent").Inc()
		logger.Debug("Email sent", "jobID", job.ID, "to", job.Message.To)
		return
	}

	job.Attempts++
	if job.Attempts > q.cfg.MaxRetries {
		q.pending.Add(-1)
		metrics.EmailQueue.WithLabelValues("failed").Inc()
		logger.Error("Email failed after retries", "jobID", job.ID, "to", job.Message.To, "attempts", job.Attempts, "error", err)
		return
	}

	backoff := time.Duration(job.Attempts*job.Attempts) * q.cfg.BaseBackoff
	metrics.EmailQueue.WithLabelValues("retried").Inc()
	logger.Warn("Retrying email", "jobID", job.ID, "to", job.Message.To, "attempt", job.Attempts, "backoff", backoff, "error", err)
	time.AfterFunc(backoff, func() {
		if err := q.push(job); err != nil {
			q.pending.Add(-1)
			logger.Error("Failed to requeue email", "jobID", job.ID, "error", err)
		}
	})
}
