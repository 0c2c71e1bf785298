// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file handles the Idempotency-Key header on unsafe routes. Enqueueing a
// dispatch job or registering an invoice file must survive client retries
// without duplicating work, so the middleware validates the key, stashes it in
// the request context, and flags requests whose (route, key) pair already
// completed. Handlers stay in charge of serving the stored result; the
// middleware never caches payloads itself.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey names the request header clients send on POST routes.
// The value must be stable across retries of the same logical operation.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys for idempotency state. Unexported; read them through the
// accessor helpers below.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // true when a stored result exists
	ctxKeyRateBypass = "rate.bypass" // true to skip rate limiting
)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
// Handlers should use this rather than re-reading the header, since only
// validated keys are stashed.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request repeats an already-completed
// operation for the same route and key. Handlers use it to return the
// persisted result instead of enqueueing a second job or re-registering a
// file.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures key validation. TTL expiry belongs in the
// lookup, not here, since only the store knows when a record was written.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. When nil, keys must match
	// ^[A-Za-z0-9._~\-:]+$ (token characters plus a few safe separators).
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether a successful, still-valid result exists
// for (route, key) at the given time. The repo-backed implementation checks
// the idempotency table and its TTL window.
//
// Lookup errors must not block normal processing; callers treat a failed
// lookup as "no replay".
type IdempotencyLookup func(ctx context.Context, route, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates any Idempotency-Key header, stashes the key,
// and consults lookup for a prior completion.
//
//   - No header: pass through untouched.
//   - Malformed key: 400 with a compact error body.
//   - Known (route, key): mark the request as a replay and let it bypass
//     rate limiting, since serving a stored result costs nothing.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			// Scope the key to the route template so the same key may be
			// reused across different operations.
			route := c.FullPath()
			if route == "" {
				route = c.Request.URL.Path
			}
			if exists, _ := lookup(c.Request.Context(), route, key, time.Now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
