// Command server runs the statement dispatch service: the HTTP API, the
// queue worker, and the schedule sweep, all over one SQLite database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/redwaygroup/ar-dispatch/internal/clock"
	"github.com/redwaygroup/ar-dispatch/internal/config"
	httpapi "github.com/redwaygroup/ar-dispatch/internal/http"
	"github.com/redwaygroup/ar-dispatch/internal/observability"
	"github.com/redwaygroup/ar-dispatch/internal/repo"
	"github.com/redwaygroup/ar-dispatch/internal/services"
	"github.com/redwaygroup/ar-dispatch/internal/statement"
	"github.com/redwaygroup/ar-dispatch/internal/sysutil"
	"github.com/redwaygroup/ar-dispatch/internal/worker"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "ar-dispatch").Logger()
	if cfg.LogPretty {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	}

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTEL.Enabled {
		shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
		if err != nil {
			log.Fatal().Err(err).Msg("otel setup failed")
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(flushCtx); err != nil {
				log.Error().Err(err).Msg("otel shutdown failed")
			}
		}()
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	worker.InitMetrics()

	clk := clock.Real{}
	renderer := &statement.Renderer{
		ArtifactDir:  cfg.ArtifactDir,
		CompanyName:  cfg.Company.Name,
		CompanyEmail: cfg.Company.Email,
		CompanyPhone: cfg.Company.Phone,
	}
	sender := &statement.SMTPSender{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		UseTLS:   cfg.SMTP.UseTLS,
		Timeout:  cfg.SMTP.Timeout,
	}

	dispatchSvc := &services.DispatchService{
		DB:           db,
		Clock:        clk,
		Renderer:     renderer,
		Sender:       sender,
		SourcePath:   cfg.InvoicePath,
		RetryBackoff: cfg.Worker.RetryBackoff,
	}
	jobSvc := &services.JobService{
		DB:            db,
		Clock:         clk,
		MaxAttempts:   cfg.Worker.MaxAttempts(),
		MaxRecipients: cfg.Worker.MaxRecipientsPerJob,
		SourcePath:    cfg.InvoicePath,
	}

	w := worker.New(db, clk, dispatchSvc, jobSvc, cfg.Worker, log)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		w.Run(ctx)
	}()

	r := gin.New()
	httpapi.RegisterRoutes(r, db, httpapi.Deps{Clock: clk, Renderer: renderer, Sender: sender}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}

	// The worker stops on ctx cancellation; give in-flight job processing a
	// moment to write terminal state before closing the database.
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("worker did not stop in time")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("shutdown complete")
}
