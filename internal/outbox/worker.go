// Package outbox delivers queued side effects, currently password-reset
// mails, from the SQLite job queue.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/infobmscommunity-ai/kohen-caption/internal/auth"
	"github.com/infobmscommunity-ai/kohen-caption/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(ctx context.Context, types []string) (*storage.Job, error)
	CompleteJob(ctx context.Context, id string) error
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Mailer sends a password-reset link to a user.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// Worker processes password_reset_email jobs.
type Worker struct {
	store  JobStore
	mailer Mailer
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 1s.
func NewWorker(store JobStore, mailer Mailer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		store:  store,
		mailer: mailer,
		poll:   pollInterval,
		logger: slog.Default().With("component", "outbox"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single job. It returns true if a job was
// processed, whether or not delivery succeeded.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(ctx, []string{auth.JobPasswordResetEmail})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.deliver(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "attempt", job.Attempts+1, "error", err)
		if failErr := w.store.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(ctx, job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	w.logger.Debug("job completed", "job_id", job.ID, "type", job.Type)
	return true, nil
}

func (w *Worker) deliver(ctx context.Context, job *storage.Job) error {
	var mail auth.ResetEmail
	if err := json.Unmarshal([]byte(job.PayloadJSON), &mail); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}
	if mail.Email == "" || mail.Link == "" {
		return fmt.Errorf("payload missing email or link")
	}
	if err := w.mailer.SendPasswordReset(ctx, mail.Email, mail.Link); err != nil {
		return fmt.Errorf("sending reset mail: %w", err)
	}
	return nil
}
