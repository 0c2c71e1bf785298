// Recipient HTTP handlers.
//
// This file exposes REST endpoints for the recipient directory:
//   - POST   /recipients                      (create)
//   - GET    /recipients                      (list; ?groups_only=true)
//   - GET    /recipients/match                (name suggestions)
//   - GET    /recipients/{id}                 (fetch)
//   - PUT    /recipients/{id}                 (update)
//   - DELETE /recipients/{id}                 (delete)
//   - PUT    /recipients/{id}/group           (attach to / detach from a group)
//   - GET    /recipients/{id}/members         (group members)
//   - GET    /recipients/{id}/aliases         (list aliases)
//   - POST   /recipients/{id}/aliases         (add alias)
//   - DELETE /recipients/{id}/aliases/{aliasID}
//   - POST   /recipients/{id}/send            (manual statement send)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate service sentinels into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/match"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
	"github.com/redwaygroup/ar-dispatch/internal/services"
	"github.com/redwaygroup/ar-dispatch/internal/utils"
)

//
// Service contracts (context-aware)
//

// RecipientService defines directory operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RecipientService interface {
	// Create adds a recipient or group to the directory.
	Create(ctx context.Context, in services.RecipientInput) (*domain.Recipient, error)
	// Update rewrites the writable fields of an existing entry.
	Update(ctx context.Context, id string, in services.RecipientInput) (*domain.Recipient, error)
	// Get fetches one entry by ID.
	Get(ctx context.Context, id string) (*domain.Recipient, error)
	// List returns the directory, optionally groups only.
	List(ctx context.Context, groupsOnly bool) ([]domain.Recipient, error)
	// Delete removes an entry and detaches any members.
	Delete(ctx context.Context, id string) error
	// AssignGroup attaches a recipient to a group, or detaches when groupID
	// is empty.
	AssignGroup(ctx context.Context, recipientID, groupID string) error
	// Members lists the recipients attached to a group.
	Members(ctx context.Context, groupID string) ([]domain.Recipient, error)
	// AddAlias records an alternate source-file spelling.
	AddAlias(ctx context.Context, recipientID, alias string) (*domain.RecipientAlias, error)
	// RemoveAlias deletes one alias by ID.
	RemoveAlias(ctx context.Context, aliasID string) error
	// Aliases lists a recipient's aliases.
	Aliases(ctx context.Context, recipientID string) ([]domain.RecipientAlias, error)
	// Suggest ranks directory entries by similarity to an unresolved name.
	Suggest(ctx context.Context, name string, k int) ([]match.Candidate, error)
}

// JobService defines dispatch queue operations consumed by HTTP handlers.
type JobService interface {
	// Enqueue freezes the due recipients into a new queued job.
	Enqueue(ctx context.Context, trigger domain.JobTrigger) (*domain.ScheduledJob, error)
	// Active returns the queued or running job, if any.
	Active(ctx context.Context) (*domain.ScheduledJob, error)
	// Get returns one job with its items.
	Get(ctx context.Context, id string) (*services.JobDetail, error)
	// List returns recent jobs, newest first.
	List(ctx context.Context, limit int) ([]domain.ScheduledJob, error)
}

// ReportService defines aging report operations consumed by HTTP handlers.
type ReportService interface {
	// Generate builds and persists a report from the current source.
	Generate(ctx context.Context) (*services.Report, error)
	// Latest returns the most recent persisted report.
	Latest(ctx context.Context) (*services.Report, error)
	// Get returns one persisted report by run ID.
	Get(ctx context.Context, id string) (*services.Report, error)
}

// DispatchService defines the manual send path and the delivery audit trail.
type DispatchService interface {
	// SendNow renders and delivers one statement outside the queue.
	SendNow(ctx context.Context, recipientID string) (*domain.StatementRun, error)
	// RunsForJob returns the delivery records for one job.
	RunsForJob(ctx context.Context, jobID string) ([]domain.StatementRun, error)
	// RecentRuns returns the newest delivery records.
	RecentRuns(ctx context.Context, limit int) ([]domain.StatementRun, error)
}

// InvoiceFileService defines the uploaded invoice file registry.
type InvoiceFileService interface {
	// Register validates and records a stored upload.
	Register(ctx context.Context, path, originalName string) (*domain.InvoiceFile, error)
	// Get returns one registered file by ID.
	Get(ctx context.Context, id string) (*domain.InvoiceFile, error)
	// List returns registered files, newest first.
	List(ctx context.Context, limit int) ([]domain.InvoiceFile, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for recipients, jobs, reports, invoice
// files, and statement runs. It depends on abstract service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	recSvc  RecipientService
	jobSvc  JobService
	repSvc  ReportService
	dspSvc  DispatchService
	fileSvc InvoiceFileService

	uploadDir string
	idemTTL   time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
// uploadDir is where raw invoice uploads are stored before registration;
// idemTTL bounds how long a mutating request can be replayed (0 disables
// replay persistence).
func New(recSvc RecipientService, jobSvc JobService, repSvc ReportService, dspSvc DispatchService, fileSvc InvoiceFileService, uploadDir string, idemTTL time.Duration) *Handlers {
	return &Handlers{
		recSvc:    recSvc,
		jobSvc:    jobSvc,
		repSvc:    repSvc,
		dspSvc:    dspSvc,
		fileSvc:   fileSvc,
		uploadDir: uploadDir,
		idemTTL:   idemTTL,
	}
}

//
// DTOs
//

// RecipientRequest is the JSON payload for creating or updating a recipient.
type RecipientRequest struct {
	// Name is the canonical customer name (required, 1–255 chars).
	Name string `json:"name" binding:"required,min=1,max=255" example:"Acme Corporation"`
	// Email receives statements; may be empty for group members.
	Email string `json:"email" example:"ap@acme.example"`
	// Terms is free-form payment terms, normalized server side ("Net 30").
	Terms string `json:"terms" example:"net_30"`
	// ScheduleType is weekly, biweekly, monthly, or manual (default).
	ScheduleType string `json:"schedule_type" example:"weekly"`
	// ScheduleDay is a weekday 0–6 (Monday-anchored) or day of month 1–28.
	ScheduleDay int `json:"schedule_day" example:"0"`
	// IsGroup marks the entry as a group container.
	IsGroup bool `json:"is_group"`
}

// AssignGroupRequest is the JSON payload for group membership changes.
type AssignGroupRequest struct {
	// GroupID is the target group; empty detaches the recipient.
	GroupID string `json:"group_id" example:"9f3c1c5e-1111-4f6e-aaaa-1234567890ab"`
}

// AddAliasRequest is the JSON payload for recording a name alias.
type AddAliasRequest struct {
	// Alias is the source-file spelling to map to this recipient.
	Alias string `json:"alias" binding:"required,min=1,max=255" example:"ACME Corp."`
}

// MatchResponse wraps ranked directory suggestions for an unresolved name.
type MatchResponse struct {
	Name       string            `json:"name"`
	Candidates []match.Candidate `json:"candidates"`
}

//
// Helpers
//

// limitParam parses and bounds a ?limit query param.
func limitParam(c *gin.Context) int {
	const (
		defaultLimit = 50
		maxLimit     = 100
	)
	n := utils.AtoiDefault(c.Query("limit"), defaultLimit)
	if n < 1 {
		n = 1
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n
}

// recipientInput converts the transport DTO into the service input type.
func recipientInput(req RecipientRequest) services.RecipientInput {
	return services.RecipientInput{
		Name:         req.Name,
		Email:        req.Email,
		Terms:        req.Terms,
		ScheduleType: domain.ScheduleType(req.ScheduleType),
		ScheduleDay:  req.ScheduleDay,
		IsGroup:      req.IsGroup,
	}
}

//
// Handlers
//

// CreateRecipient godoc
// @ID          createRecipient
// @Summary     Create a recipient or group
// @Description Adds an entry to the recipient directory. Terms and schedule are validated and normalized.
// @Tags        Recipients
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RecipientRequest  true  "Recipient payload"
//
// @Success     201  {object}  domain.Recipient
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /recipients [post]
func (h *Handlers) CreateRecipient(c *gin.Context) {
	var req RecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	r, err := h.recSvc.Create(c.Request.Context(), recipientInput(req))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmptyName),
			errors.Is(err, services.ErrInvalidTerms),
			errors.Is(err, services.ErrInvalidSchedule):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListRecipients godoc
// @ID          listRecipients
// @Summary     List the recipient directory
// @Tags        Recipients
// @Produce     json
//
// @Param       groups_only  query  bool  false  "Return group containers only"
//
// @Success     200  {array}   domain.Recipient
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /recipients [get]
func (h *Handlers) ListRecipients(c *gin.Context) {
	groupsOnly := strings.EqualFold(c.Query("groups_only"), "true")
	items, err := h.recSvc.List(c.Request.Context(), groupsOnly)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// GetRecipient godoc
// @ID          getRecipient
// @Summary     Fetch one recipient
// @Tags        Recipients
// @Produce     json
//
// @Param       id  path  string  true  "Recipient ID"
//
// @Success     200  {object}  domain.Recipient
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /recipients/{id} [get]
func (h *Handlers) GetRecipient(c *gin.Context) {
	r, err := h.recSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrRecipientNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "recipient not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, r)
}

// UpdateRecipient godoc
// @ID          updateRecipient
// @Summary     Update a recipient
// @Tags        Recipients
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                     true  "Recipient ID"
// @Param       body  body  handlers.RecipientRequest  true  "Recipient payload"
//
// @Success     200  {object}  domain.Recipient
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /recipients/{id} [put]
func (h *Handlers) UpdateRecipient(c *gin.Context) {
	var req RecipientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	r, err := h.recSvc.Update(c.Request.Context(), c.Param("id"), recipientInput(req))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRecipientNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "recipient not found")
		case errors.Is(err, services.ErrEmptyName),
			errors.Is(err, services.ErrInvalidTerms),
			errors.Is(err, services.ErrInvalidSchedule):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteRecipient godoc
// @ID          deleteRecipient
// @Summary     Delete a recipient
// @Description Removes the entry; members of a deleted group are detached, not deleted.
// @Tags        Recipients
//
// @Param       id  path  string  true  "Recipient ID"
//
// @Success     204  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /recipients/{id} [delete]
func (h *Handlers) DeleteRecipient(c *gin.Context) {
	if err := h.recSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, services.ErrRecipientNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "recipient not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// AssignGroup godoc
// @ID          assignGroup
// @Summary     Attach a recipient to a group
// @Description Sets or clears group membership. An empty group_id detaches the recipient.
// @Tags        Recipients
// @Accept      json
//
// @Param       id    path  string                       true  "Recipient ID"
// @Param       body  body  handlers.AssignGroupRequest  true  "Membership payload"
//
// @Success     204  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Target is not a group"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /recipients/{id}/group [put]
func (h *Handlers) AssignGroup(c *gin.Context) {
	var req AssignGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	err := h.recSvc.AssignGroup(c.Request.Context(), c.Param("id"), strings.TrimSpace(req.GroupID))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRecipientNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "recipient not found")
		case errors.Is(err, services.ErrNotAGroup):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// ListGroupMembers godoc
// @ID          listGroupMembers
// @Summary     List the members of a group
// @Tags        Recipients
// @Produce     json
//
// @Param       id  path  string  true  "Group ID"
//
// @Success     200  {array}   domain.Recipient
// @Failure     400  {object}  handlers.ErrorResponse  "Entry is not a group"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /recipients/{id}/members [get]
func (h *Handlers) ListGroupMembers(c *gin.Context) {
	members, err := h.recSvc.Members(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRecipientNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "recipient not found")
		case errors.Is(err, services.ErrNotAGroup):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, members)
}

// ListAliases godoc
// @ID          listAliases
// @Summary     List a recipient's aliases
// @Tags        Recipients
// @Produce     json
//
// @Param       id  path  string  true  "Recipient ID"
//
// @Success     200  {array}   domain.RecipientAlias
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /recipients/{id}/aliases [get]
func (h *Handlers) ListAliases(c *gin.Context) {
	aliases, err := h.recSvc.Aliases(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, aliases)
}

// AddAlias godoc
// @ID          addAlias
// @Summary     Add a name alias
// @Description Maps an alternate source-file spelling to this recipient for invoice matching.
// @Tags        Recipients
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                    true  "Recipient ID"
// @Param       body  body  handlers.AddAliasRequest  true  "Alias payload"
//
// @Success     201  {object}  domain.RecipientAlias
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /recipients/{id}/aliases [post]
func (h *Handlers) AddAlias(c *gin.Context) {
	var req AddAliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	a, err := h.recSvc.AddAlias(c.Request.Context(), c.Param("id"), req.Alias)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRecipientNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "recipient not found")
		case errors.Is(err, services.ErrEmptyName):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, a)
}

// RemoveAlias godoc
// @ID          removeAlias
// @Summary     Remove a name alias
// @Tags        Recipients
//
// @Param       id       path  string  true  "Recipient ID"
// @Param       aliasID  path  string  true  "Alias ID"
//
// @Success     204  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /recipients/{id}/aliases/{aliasID} [delete]
func (h *Handlers) RemoveAlias(c *gin.Context) {
	if err := h.recSvc.RemoveAlias(c.Request.Context(), c.Param("aliasID")); err != nil {
		if errors.Is(err, services.ErrAliasNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "alias not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// MatchRecipients godoc
// @ID          matchRecipients
// @Summary     Suggest recipients for an unresolved name
// @Description Ranks directory entries by name similarity. Useful for mapping source-file customer names that did not resolve during a report or dispatch run.
// @Tags        Recipients
// @Produce     json
//
// @Param       name  query  string  true   "Name to match"  example(ACME Corp)
// @Param       k     query  int     false  "Max candidates" default(3)
//
// @Success     200  {object}  handlers.MatchResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing name"
// @Router      /recipients/match [get]
func (h *Handlers) MatchRecipients(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name query parameter is required")
		return
	}
	k := utils.AtoiDefault(c.Query("k"), 3)
	candidates, err := h.recSvc.Suggest(c.Request.Context(), name, k)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, MatchResponse{Name: name, Candidates: candidates})
}

// SendStatement godoc
// @ID          sendStatement
// @Summary     Send a statement now
// @Description Renders and delivers a statement for one recipient immediately, outside the job queue. The delivery is recorded as a statement run.
// @Tags        Recipients
// @Produce     json
//
// @Param       id  path  string  true  "Recipient ID"
//
// @Success     200  {object}  domain.StatementRun
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "No invoice source registered"
// @Failure     422  {object}  handlers.ErrorResponse  "Nothing to send"
// @Failure     502  {object}  handlers.ErrorResponse  "Delivery failed"
// @Router      /recipients/{id}/send [post]
func (h *Handlers) SendStatement(c *gin.Context) {
	if rec, replay := h.replayRecord(c); replay {
		if db := h.db(); db != nil {
			if run, err := repo.GetStatementRun(c.Request.Context(), db, rec.ObjectID); err == nil {
				ok(c, rec.Status, run)
				return
			}
		}
	}

	run, err := h.dspSvc.SendNow(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRecipientNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "recipient not found")
		case errors.Is(err, services.ErrNoInvoiceFile):
			fail(c, http.StatusConflict, ErrCodeNoInvoiceFile, err.Error())
		case errors.Is(err, services.ErrMissingEmail),
			errors.Is(err, services.ErrGroupEmpty),
			errors.Is(err, services.ErrNoOutstanding),
			errors.Is(err, services.ErrNoMatchingRows):
			fail(c, http.StatusUnprocessableEntity, ErrCodeNothingToSend, err.Error())
		default:
			fail(c, http.StatusBadGateway, ErrCodeDispatchFailed, err.Error())
		}
		return
	}
	h.recordIdempotency(c, run.ID, http.StatusOK)
	ok(c, http.StatusOK, run)
}
