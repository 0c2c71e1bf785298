// Aging report HTTP handlers.
//
// This file exposes REST endpoints for accounts receivable aging reports:
//   - POST /reports/aging         (generate from the current source)
//   - GET  /reports/aging/latest  (most recent persisted report)
//   - GET  /reports/aging/{id}    (one persisted report)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redwaygroup/ar-dispatch/internal/services"
)

// GenerateReport godoc
// @ID          generateReport
// @Summary     Generate an aging report
// @Description Parses the current invoice source, ages every outstanding balance against today, and persists the result.
// @Tags        Reports
// @Produce     json
//
// @Success     201  {object}  services.Report
// @Failure     409  {object}  handlers.ErrorResponse  "No invoice source registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reports/aging [post]
func (h *Handlers) GenerateReport(c *gin.Context) {
	rep, err := h.repSvc.Generate(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoInvoiceFile) {
			fail(c, http.StatusConflict, ErrCodeNoInvoiceFile, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, rep)
}

// LatestReport godoc
// @ID          latestReport
// @Summary     Fetch the most recent aging report
// @Tags        Reports
// @Produce     json
//
// @Success     200  {object}  services.Report
// @Failure     404  {object}  handlers.ErrorResponse  "No report generated yet"
// @Router      /reports/aging/latest [get]
func (h *Handlers) LatestReport(c *gin.Context) {
	rep, err := h.repSvc.Latest(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no report generated yet")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, rep)
}

// GetReport godoc
// @ID          getReport
// @Summary     Fetch one aging report
// @Tags        Reports
// @Produce     json
//
// @Param       id  path  string  true  "Report run ID"
//
// @Success     200  {object}  services.Report
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /reports/aging/{id} [get]
func (h *Handlers) GetReport(c *gin.Context) {
	rep, err := h.repSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "report not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, rep)
}
