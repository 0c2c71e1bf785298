// Idempotent replay support for mutating endpoints.
//
// The IdempotencyValidator middleware flags requests whose (route, key) pair
// matches a stored record. The helpers here let handlers serve the original
// object back on a replay and persist the outcome of a fresh request so the
// next retry replays instead of re-executing side effects.
package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/http/middleware"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
	"github.com/redwaygroup/ar-dispatch/internal/services"
)

// db digs the GORM handle out of the concrete job service. Handlers built on
// pure interface fakes (tests) get nil, which disables replay persistence.
func (h *Handlers) db() *gorm.DB {
	if svc, okSvc := h.jobSvc.(*services.JobService); okSvc {
		return svc.DB
	}
	return nil
}

// replayRecord returns the stored idempotency record when the middleware
// flagged this request as a replay.
func (h *Handlers) replayRecord(c *gin.Context) (*domain.Idempotency, bool) {
	if !middleware.IsReplay(c) {
		return nil, false
	}
	key, okKey := middleware.GetIdempotencyKey(c)
	db := h.db()
	if !okKey || db == nil {
		return nil, false
	}
	rec, err := repo.GetIdempotency(c.Request.Context(), db, c.FullPath(), key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	return rec, true
}

// recordIdempotency persists the outcome of a successful mutating request.
// Best effort: a write failure only costs the client its replay.
func (h *Handlers) recordIdempotency(c *gin.Context, objectID string, status int) {
	key, okKey := middleware.GetIdempotencyKey(c)
	db := h.db()
	if !okKey || db == nil || h.idemTTL <= 0 {
		return
	}
	_, _ = repo.CreateIdempotency(c.Request.Context(), db, c.FullPath(), key, objectID, status, h.idemTTL)
}
