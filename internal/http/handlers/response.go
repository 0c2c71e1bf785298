// Package handlers implements the HTTP control surface: recipient CRUD and
// matching, invoice file registration, job enqueue/inspection, and aging
// report generation.
//
// This file holds the response helpers shared by every endpoint. All failures
// go through fail() so that clients always receive the same envelope with a
// stable machine-readable code, and 5xx responses are logged with request
// context before they leave the process.
//
// Example error response:
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "job_active",
//	  "message": "job j-42 is already running"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/redwaygroup/ar-dispatch/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: correlation ID echoed from X-Request-ID, for matching server
//     logs to a failed client call.
//   - Code: stable machine-readable string (see errors.go constants).
//   - Message: human-readable description, safe to surface in a UI.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"resource not found"`
}

// fail aborts the request with a structured error envelope.
//
// Server errors (>=500) are also logged through the request-scoped logger so
// operators can find the failing dispatch call by request_id.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail, used by router-level handlers such as
// the NoRoute fallback.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes body as JSON with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 response for operations with no body, such as
// recipient deletion.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
