package jobs

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"tasktimer/internal/metrics"
)

// ErrPermanent marks a job failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent job failure")

type Handler func(ctx context.Context, job *Job) error

type Worker struct {
	ID       string
	Repo     *Repo
	Handlers map[string]Handler
	Interval time.Duration
	Now      func() time.Time
}

func (w *Worker) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				log.Printf("[WORKER] %s claim error: %v\n", w.ID, err)
			}
		}
	}
}

// RunOnce claims and handles at most one due job. It reports whether a job
// was found.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.Repo.Claim(w.ID, w.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.handle(ctx, job)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, job *Job) {
	h, ok := w.Handlers[job.Type]
	if !ok {
		metrics.JobsProcessed.WithLabelValues(job.Type, "failed").Inc()
		_ = w.Repo.MarkFailed(job.ID, "unknown job type")
		return
	}

	err := h(ctx, job)
	switch {
	case err == nil:
		metrics.JobsProcessed.WithLabelValues(job.Type, "done").Inc()
		_ = w.Repo.MarkDone(job.ID)
	case errors.Is(err, ErrPermanent):
		log.Printf("[WORKER] job=%d type=%s failed: %v\n", job.ID, job.Type, err)
		metrics.JobsProcessed.WithLabelValues(job.Type, "failed").Inc()
		_ = w.Repo.MarkFailed(job.ID, err.Error())
	default:
		metrics.JobsProcessed.WithLabelValues(job.Type, "retry").Inc()
		w.retry(job, err.Error())
	}
}

func (w *Worker) retry(job *Job, errMsg string) {
	attempts := job.Attempts + 1
	if attempts >= job.MaxAttempts {
		_ = w.Repo.MarkFailed(job.ID, errMsg)
		return
	}

	_ = w.Repo.RetryLater(job.ID, attempts, w.now().Add(Backoff(attempts)), errMsg)
}

// Backoff is 2^attempts seconds, capped at ten minutes.
func Backoff(attempts int) time.Duration {
	sec := math.Min(math.Pow(2, float64(attempts)), 600)
	return time.Duration(sec) * time.Second
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
