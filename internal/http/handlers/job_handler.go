// Dispatch job HTTP handlers.
//
// This file exposes REST endpoints for the dispatch queue:
//   - POST /jobs           (enqueue a dispatch run)
//   - GET  /jobs           (list, ETag support)
//   - GET  /jobs/active    (the queued or running job)
//   - GET  /jobs/stats     (queue counters by status)
//   - GET  /jobs/{id}      (job with items)
//   - GET  /jobs/{id}/runs (delivery audit for one job)
//   - GET  /runs           (recent deliveries across jobs)
//
// Enqueueing is asynchronous: the endpoint freezes the due recipients into a
// queued job and returns 202; the background worker claims and runs it.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
	"github.com/redwaygroup/ar-dispatch/internal/services"
)

// EnqueueJobResponse reports the outcome of an enqueue request that queued
// nothing because no recipient was due.
type EnqueueJobResponse struct {
	Queued bool   `json:"queued"`
	Reason string `json:"reason,omitempty"`
}

// JobStatsResponse reports queue occupancy by job status.
type JobStatsResponse struct {
	Jobs map[domain.JobStatus]int64 `json:"jobs"`
}

// EnqueueJob godoc
// @ID          enqueueJob
// @Summary     Enqueue a dispatch run
// @Description Freezes every recipient due today into a new queued job. At most one job may be queued or running; a second enqueue returns 409. When no recipient is due, returns 200 with queued=false.
// @Tags        Jobs
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Dedupe key for safe retries"
//
// @Success     202  {object}  domain.ScheduledJob
// @Success     200  {object}  handlers.EnqueueJobResponse  "Nothing due"
// @Failure     409  {object}  handlers.ErrorResponse       "Job already active or no invoice source"
// @Failure     500  {object}  handlers.ErrorResponse       "Internal error"
// @Router      /jobs [post]
func (h *Handlers) EnqueueJob(c *gin.Context) {
	if rec, replay := h.replayRecord(c); replay {
		if detail, err := h.jobSvc.Get(c.Request.Context(), rec.ObjectID); err == nil {
			ok(c, rec.Status, detail.Job)
			return
		}
	}

	job, err := h.jobSvc.Enqueue(c.Request.Context(), domain.TriggerAPI)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNothingDue):
			ok(c, http.StatusOK, EnqueueJobResponse{Queued: false, Reason: err.Error()})
		case errors.Is(err, services.ErrJobAlreadyActive):
			msg := err.Error()
			if job != nil {
				msg = fmt.Sprintf("dispatch job %s is already %s", job.ID, job.Status)
			}
			fail(c, http.StatusConflict, ErrCodeJobActive, msg)
		case errors.Is(err, services.ErrNoInvoiceFile):
			fail(c, http.StatusConflict, ErrCodeNoInvoiceFile, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	h.recordIdempotency(c, job.ID, http.StatusAccepted)
	ok(c, http.StatusAccepted, job)
}

// ListJobs godoc
// @ID          listJobs
// @Summary     List dispatch jobs
// @Description Returns recent jobs, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Jobs
// @Produce     json
//
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       limit          query   int     false  "Max jobs"  minimum(1) maximum(100) default(50)
//
// @Success     200  {array}  domain.ScheduledJob
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /jobs [get]
func (h *Handlers) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()
	limit := limitParam(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.jobSvc.(*services.JobService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.JobsStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"jobs:%d:%d:%d"`, count, ts, limit)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	jobs, err := h.jobSvc.List(ctx, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, jobs)
}

// ActiveJob godoc
// @ID          activeJob
// @Summary     Fetch the active job
// @Description Returns the queued or running job, or 404 when the queue is idle.
// @Tags        Jobs
// @Produce     json
//
// @Success     200  {object}  domain.ScheduledJob
// @Failure     404  {object}  handlers.ErrorResponse  "No active job"
// @Router      /jobs/active [get]
func (h *Handlers) ActiveJob(c *gin.Context) {
	job, err := h.jobSvc.Active(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no active job")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, job)
}

// JobStats godoc
// @ID          jobStats
// @Summary     Queue counters by status
// @Tags        Jobs
// @Produce     json
//
// @Success     200  {object}  handlers.JobStatsResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /jobs/stats [get]
func (h *Handlers) JobStats(c *gin.Context) {
	var db *gorm.DB
	if svc, okSvc := h.jobSvc.(*services.JobService); okSvc {
		db = svc.DB
	}
	if db == nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "stats unavailable")
		return
	}
	counts, err := repo.CountJobsByStatus(c.Request.Context(), db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, JobStatsResponse{Jobs: counts})
}

// GetJob godoc
// @ID          getJob
// @Summary     Fetch one job with its items
// @Tags        Jobs
// @Produce     json
//
// @Param       id  path  string  true  "Job ID"
//
// @Success     200  {object}  services.JobDetail
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /jobs/{id} [get]
func (h *Handlers) GetJob(c *gin.Context) {
	detail, err := h.jobSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrJobNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "job not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, detail)
}

// ListJobRuns godoc
// @ID          listJobRuns
// @Summary     Delivery audit for one job
// @Description Returns every statement run recorded for the job, across all attempts.
// @Tags        Jobs
// @Produce     json
//
// @Param       id  path  string  true  "Job ID"
//
// @Success     200  {array}   domain.StatementRun
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /jobs/{id}/runs [get]
func (h *Handlers) ListJobRuns(c *gin.Context) {
	runs, err := h.dspSvc.RunsForJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, runs)
}

// ListRecentRuns godoc
// @ID          listRecentRuns
// @Summary     Recent deliveries
// @Description Returns the newest statement runs across jobs and manual sends.
// @Tags        Jobs
// @Produce     json
//
// @Param       limit  query  int  false  "Max runs"  minimum(1) maximum(100) default(50)
//
// @Success     200  {array}   domain.StatementRun
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /runs [get]
func (h *Handlers) ListRecentRuns(c *gin.Context) {
	runs, err := h.dspSvc.RecentRuns(c.Request.Context(), limitParam(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, runs)
}
