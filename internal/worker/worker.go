// Package worker runs the dispatch loop: it polls the job queue, claims one
// job at a time, heartbeats it while processing, and settles every item
// through the dispatch service.
//
// Ownership and recovery follow the queue's compare-and-swap semantics. The
// claim is a conditional UPDATE, so only one worker process wins a queued
// job. While it runs, the worker refreshes the heartbeat on a fixed cadence;
// a worker that dies stops heartbeating, and the next poll of any live worker
// reclaims the stale job back to the queue. A lost heartbeat write tells this
// worker it no longer owns the job, at which point it abandons processing
// without touching the job row again.
//
// Delivery failures stay on the item that hit them: the dispatch service
// retries transient errors per item and finalizes the item failed once its
// attempt budget is spent, so the batch always runs to the end. A job only
// finishes failed when the run itself cannot proceed, such as an unreadable
// invoice snapshot. The statement-run audit keeps resumed attempts from
// delivering twice.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/clock"
	"github.com/redwaygroup/ar-dispatch/internal/config"
	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
	"github.com/redwaygroup/ar-dispatch/internal/services"
)

// Worker drives queued dispatch jobs to completion.
type Worker struct {
	DB       *gorm.DB
	Clock    clock.Clock
	Dispatch *services.DispatchService
	// Jobs enqueues schedule-triggered jobs during the periodic sweep. May
	// be nil when the sweep is disabled.
	Jobs *services.JobService
	Cfg  config.WorkerConfig
	Log  zerolog.Logger

	limiter *rate.Limiter
}

// New builds a worker with an outbound send limiter derived from cfg.
func New(db *gorm.DB, clk clock.Clock, dispatch *services.DispatchService, jobs *services.JobService, cfg config.WorkerConfig, log zerolog.Logger) *Worker {
	limit := rate.Inf
	if cfg.SendRPS > 0 {
		limit = rate.Limit(cfg.SendRPS)
	}
	return &Worker{
		DB:       db,
		Clock:    clk,
		Dispatch: dispatch,
		Jobs:     jobs,
		Cfg:      cfg,
		Log:      log,
		limiter:  rate.NewLimiter(limit, cfg.SendBurst),
	}
}

// Run polls the queue until ctx is canceled.
func (w *Worker) Run(ctx context.Context) {
	w.Log.Info().
		Dur("poll_interval", w.Cfg.PollInterval).
		Dur("stale_after", w.Cfg.StaleAfter).
		Int("max_attempts", w.Cfg.MaxAttempts()).
		Msg("dispatch worker started")

	poll := time.NewTicker(w.Cfg.PollInterval)
	defer poll.Stop()

	var sweep <-chan time.Time
	if w.Cfg.SweepInterval > 0 && w.Jobs != nil {
		t := time.NewTicker(w.Cfg.SweepInterval)
		defer t.Stop()
		sweep = t.C
	}

	for {
		select {
		case <-ctx.Done():
			w.Log.Info().Msg("dispatch worker stopped")
			return
		case <-sweep:
			w.Sweep(ctx)
		case <-poll.C:
			w.Tick(ctx)
		}
	}
}

// Sweep enqueues a schedule-triggered job when any recipient is due. An
// occupied queue or an empty due set is the normal case, not an error.
func (w *Worker) Sweep(ctx context.Context) {
	job, err := w.Jobs.Enqueue(ctx, domain.TriggerSchedule)
	switch {
	case err == nil:
		w.Log.Info().Str("job_id", job.ID).Int("items", job.ItemsTotal).Msg("schedule sweep enqueued job")
	case errors.Is(err, services.ErrNothingDue),
		errors.Is(err, services.ErrJobAlreadyActive):
		w.Log.Debug().Err(err).Msg("schedule sweep found nothing to enqueue")
	case errors.Is(err, services.ErrNoInvoiceFile):
		w.Log.Warn().Msg("schedule sweep skipped: no invoice source registered")
	default:
		w.Log.Error().Err(err).Msg("schedule sweep failed")
	}
}

// Tick performs one queue pass: reclaim stale jobs, claim the next queued
// job, and run it to a terminal state.
func (w *Worker) Tick(ctx context.Context) {
	now := w.Clock.Now()

	if n, err := repo.ReclaimStale(ctx, w.DB, now.Add(-w.Cfg.StaleAfter)); err != nil {
		w.Log.Error().Err(err).Msg("stale job reclaim failed")
	} else if n > 0 {
		JobsReclaimed.Add(float64(n))
		w.Log.Warn().Int64("count", n).Msg("reclaimed stale jobs")
	}

	job, err := repo.NextQueuedJob(ctx, w.DB)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			w.Log.Error().Err(err).Msg("queue poll failed")
		}
		return
	}

	ok, err := repo.ClaimJob(ctx, w.DB, job.ID, now)
	if err != nil {
		w.Log.Error().Err(err).Str("job_id", job.ID).Msg("job claim failed")
		return
	}
	if !ok {
		// Another worker won the race.
		return
	}

	// Reload for the bumped attempt counter and timestamps.
	job, err = repo.GetJob(ctx, w.DB, job.ID)
	if err != nil {
		w.Log.Error().Err(err).Msg("claimed job reload failed")
		return
	}

	JobAttempts.Inc()
	w.Log.Info().
		Str("job_id", job.ID).
		Int("attempt", job.AttemptCount).
		Int("max_attempts", job.MaxAttempts).
		Int("items", job.ItemsTotal).
		Msg("job claimed")

	w.runJob(ctx, job)
}

func (w *Worker) runJob(ctx context.Context, job *domain.ScheduledJob) {
	// jobCtx is canceled when the heartbeat discovers lost ownership.
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hbDone := make(chan struct{})
	defer close(hbDone)
	go w.heartbeat(jobCtx, cancel, job.ID, hbDone)

	book, err := w.Dispatch.LoadBook(jobCtx, job)
	if err != nil {
		// The run cannot proceed without its invoice snapshot.
		w.finish(ctx, job, domain.JobFailed, err.Error())
		return
	}

	items, err := repo.ListOpenItems(jobCtx, w.DB, job.ID)
	if err != nil {
		w.finish(ctx, job, domain.JobFailed, err.Error())
		return
	}

	for i := range items {
		if err := w.limiter.Wait(jobCtx); err != nil {
			// Shutdown or lost ownership; leave the job as-is. A live
			// worker reclaims it once the heartbeat goes stale.
			return
		}
		if err := w.Dispatch.ProcessItem(jobCtx, job, &items[i], book); err != nil {
			if jobCtx.Err() != nil {
				return
			}
			// Storage hiccup on one item; the rest of the batch still runs.
			w.Log.Error().Err(err).
				Str("job_id", job.ID).
				Str("recipient_id", items[i].RecipientID).
				Msg("item processing error")
		}
	}

	if jobCtx.Err() != nil {
		return
	}

	sample, err := repo.FailureSample(ctx, w.DB, job.ID)
	if err != nil {
		w.Log.Error().Err(err).Str("job_id", job.ID).Msg("failure sample lookup failed")
	}
	w.finish(ctx, job, domain.JobSucceeded, sample)
}

// heartbeat refreshes the job's liveness stamp until done closes. A write
// that matches no running row means ownership was lost; cancel stops the
// dispatch loop for this job.
func (w *Worker) heartbeat(ctx context.Context, cancel context.CancelFunc, jobID string, done <-chan struct{}) {
	t := time.NewTicker(w.Cfg.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			if err := repo.Heartbeat(ctx, w.DB, jobID, w.Clock.Now()); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					w.Log.Warn().Str("job_id", jobID).Msg("job ownership lost, abandoning attempt")
					cancel()
					return
				}
				w.Log.Error().Err(err).Str("job_id", jobID).Msg("heartbeat write failed")
			}
		}
	}
}

// finish settles the job in a terminal state and records outcome metrics.
func (w *Worker) finish(ctx context.Context, job *domain.ScheduledJob, status domain.JobStatus, lastError string) {
	if err := repo.RefreshJobCounters(ctx, w.DB, job.ID); err != nil {
		w.Log.Error().Err(err).Str("job_id", job.ID).Msg("job counter refresh failed")
	}
	if err := repo.FinishJob(ctx, w.DB, job.ID, status, lastError, w.Clock.Now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			w.Log.Warn().Str("job_id", job.ID).Msg("job no longer running, not finishing")
			return
		}
		w.Log.Error().Err(err).Str("job_id", job.ID).Msg("job finish failed")
		return
	}

	final, err := repo.GetJob(ctx, w.DB, job.ID)
	if err != nil {
		w.Log.Error().Err(err).Str("job_id", job.ID).Msg("finished job reload failed")
		return
	}

	JobsFinished.WithLabelValues(string(status)).Inc()
	StatementsSent.Add(float64(final.ItemsSent))
	StatementsFailed.Add(float64(final.ItemsFailed))
	StatementsSkipped.Add(float64(final.ItemsSkipped))

	evt := w.Log.Info()
	if status == domain.JobFailed {
		evt = w.Log.Error().Str("last_error", lastError)
	}
	evt.
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int("sent", final.ItemsSent).
		Int("failed", final.ItemsFailed).
		Int("skipped", final.ItemsSkipped).
		Msg("job finished")
}
