package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tmsclinic/intake/internal/platform/connectivity"
)

// Worker drains the queue on a fixed interval while upstreams are
// reachable. Retries are time-triggered, never cancelled mid-pass; the
// context only stops scheduling of further passes.
type Worker struct {
	queue    *Queue
	checker  connectivity.Checker
	submit   SubmitFunc
	interval time.Duration
	log      zerolog.Logger
}

// NewWorker wires a drain Worker.
func NewWorker(q *Queue, checker connectivity.Checker, submit SubmitFunc, interval time.Duration, log zerolog.Logger) *Worker {
	return &Worker{
		queue:    q,
		checker:  checker,
		submit:   submit,
		interval: interval,
		log:      log.With().Str("component", "queue-worker").Logger(),
	}
}

// Run blocks until ctx is cancelled, draining once per interval.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	if !w.checker.Online(ctx) {
		w.log.Debug().Msg("upstreams unreachable, skipping drain")
		return
	}
	stats, err := w.queue.Drain(ctx, w.submit)
	if err != nil {
		w.log.Error().Err(err).Msg("drain pass failed")
		return
	}
	if stats.Delivered > 0 || stats.Failed > 0 {
		w.log.Info().
			Int("delivered", stats.Delivered).
			Int("failed", stats.Failed).
			Int("remaining", stats.Remaining).
			Msg("drain pass complete")
	}
}
