package decision

import (
	"context"
	"log/slog"
	"time"

	"github.com/Malcan-Technologies/creditxpress-kyc/internal/session/models"
	dErrors "github.com/Malcan-Technologies/creditxpress-kyc/pkg/domain-errors"
	"github.com/Malcan-Technologies/creditxpress-kyc/pkg/platform/circuit"
)

const (
	// DefaultPollInterval paces the worker. Capture-to-decision latency is
	// user-visible, so ticks are frequent; each tick is one indexed read.
	DefaultPollInterval = 5 * time.Second

	// DefaultBatchSize bounds how many sessions one tick evaluates.
	DefaultBatchSize = 16
)

// SessionSource lists sessions awaiting a decision.
type SessionSource interface {
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Session, error)
}

// Worker drives PROCESSING sessions through evaluation on an interval.
// Sessions whose evaluation fails stay PROCESSING and are picked up again
// on a later tick.
//
// A circuit breaker tracks scorer health. While it is open the worker
// shrinks each batch to a single probe session, so a down engine is hit
// once per tick instead of batchSize times.
type Worker struct {
	service   *Service
	sessions  SessionSource
	breaker   *circuit.Breaker
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

type WorkerOption func(w *Worker)

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithBatchSize(size int) WorkerOption {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker constructs a Worker.
func NewWorker(service *Service, sessions SessionSource, opts ...WorkerOption) *Worker {
	w := &Worker{
		service:   service,
		sessions:  sessions,
		breaker:   circuit.New("verification-scorers"),
		interval:  DefaultPollInterval,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run ticks until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick evaluates one batch. Exported so tests and operational tooling can
// drive the worker without the timer.
func (w *Worker) Tick(ctx context.Context) {
	limit := w.batchSize
	if w.breaker.IsOpen() {
		limit = 1
	}

	sessions, err := w.sessions.ListByStatus(ctx, models.StatusProcessing, limit)
	if err != nil {
		if w.logger != nil {
			w.logger.WarnContext(ctx, "failed to list processing sessions", "error", err)
		}
		return
	}

	for _, session := range sessions {
		if ctx.Err() != nil {
			return
		}
		// Evaluate logs its own failures; a failed session simply stays in
		// the queue for the next tick.
		_, err := w.service.Evaluate(ctx, session)
		if w.observe(ctx, err) {
			return
		}
	}
}

// observe feeds an evaluation outcome to the breaker and reports whether
// the rest of the batch should be abandoned. Only scorer trouble counts
// as a failure; version conflicts and state races say nothing about
// engine health.
func (w *Worker) observe(ctx context.Context, err error) bool {
	if err == nil {
		_, change := w.breaker.RecordSuccess()
		if change.Closed && w.logger != nil {
			w.logger.InfoContext(ctx, "scorer circuit closed, resuming full batches",
				"breaker", w.breaker.Name())
		}
		return false
	}

	if !dErrors.HasCode(err, dErrors.CodeDependency) && !dErrors.HasCode(err, dErrors.CodeTimeout) {
		return false
	}

	useFallback, change := w.breaker.RecordFailure()
	if change.Opened && w.logger != nil {
		w.logger.WarnContext(ctx, "scorer circuit opened, probing one session per tick",
			"breaker", w.breaker.Name())
	}
	return useFallback
}
