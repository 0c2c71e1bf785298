// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redwaygroup/ar-dispatch/internal/clock"
	"github.com/redwaygroup/ar-dispatch/internal/config"
	"github.com/redwaygroup/ar-dispatch/internal/http/handlers"
	"github.com/redwaygroup/ar-dispatch/internal/http/middleware"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
	"github.com/redwaygroup/ar-dispatch/internal/services"
	"github.com/redwaygroup/ar-dispatch/internal/statement"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// Deps carries the non-database dependencies the API needs. The caller owns
// construction so tests can substitute fakes (fixed clock, stub sender).
type Deps struct {
	// Clock supplies the reference time for scheduling and aging.
	Clock clock.Clock
	// Renderer produces statement HTML and artifact files.
	Renderer *statement.Renderer
	// Sender delivers rendered statements.
	Sender statement.Sender
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Response compression
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key", // project-specific sensitive header example
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (8 MiB; invoice uploads need headroom)
	r.Use(limitBody(8 << 20))

	// 6) Compress API responses; /metrics stays uncompressed for scrapers
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, route, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, route, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/clock
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	recSvc := &services.RecipientService{DB: db}
	jobSvc := &services.JobService{
		DB:            db,
		Clock:         clk,
		MaxAttempts:   cfg.Worker.MaxAttempts(),
		MaxRecipients: cfg.Worker.MaxRecipientsPerJob,
		SourcePath:    cfg.InvoicePath,
	}
	repSvc := &services.ReportService{DB: db, Clock: clk, SourcePath: cfg.InvoicePath}
	dspSvc := &services.DispatchService{
		DB:           db,
		Clock:        clk,
		Renderer:     deps.Renderer,
		Sender:       deps.Sender,
		SourcePath:   cfg.InvoicePath,
		RetryBackoff: cfg.Worker.RetryBackoff,
	}
	fileSvc := &services.InvoiceFileService{DB: db}
	h := handlers.New(recSvc, jobSvc, repSvc, dspSvc, fileSvc, cfg.UploadDir, cfg.IdempotencyTTL)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Recipients
		api.POST("/recipients", h.CreateRecipient)
		api.GET("/recipients", h.ListRecipients)
		api.GET("/recipients/match", h.MatchRecipients)
		api.GET("/recipients/:id", h.GetRecipient)
		api.PUT("/recipients/:id", h.UpdateRecipient)
		api.DELETE("/recipients/:id", h.DeleteRecipient)
		api.PUT("/recipients/:id/group", h.AssignGroup)
		api.GET("/recipients/:id/members", h.ListGroupMembers)
		api.GET("/recipients/:id/aliases", h.ListAliases)
		api.POST("/recipients/:id/aliases", h.AddAlias)
		api.DELETE("/recipients/:id/aliases/:aliasID", h.RemoveAlias)
		api.POST("/recipients/:id/send", h.SendStatement)

		// Jobs
		api.POST("/jobs", h.EnqueueJob)
		api.GET("/jobs", h.ListJobs)
		api.GET("/jobs/active", h.ActiveJob)
		api.GET("/jobs/stats", h.JobStats)
		api.GET("/jobs/:id", h.GetJob)
		api.GET("/jobs/:id/runs", h.ListJobRuns)
		api.GET("/runs", h.ListRecentRuns)

		// Reports
		api.POST("/reports/aging", h.GenerateReport)
		api.GET("/reports/aging/latest", h.LatestReport)
		api.GET("/reports/aging/:id", h.GetReport)

		// Invoice files
		api.POST("/invoice-files", h.UploadInvoiceFile)
		api.GET("/invoice-files", h.ListInvoiceFiles)
		api.GET("/invoice-files/:id", h.GetInvoiceFile)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
