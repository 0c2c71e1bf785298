// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, SMTP delivery, the
// dispatch worker, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "ar-dispatch")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SMTPConfig defines outbound email delivery settings.
type SMTPConfig struct {
	Host     string        // SMTP_HOST
	Port     int           // SMTP_PORT
	Username string        // SMTP_USER
	Password string        // SMTP_PASS
	From     string        // SMTP_FROM
	UseTLS   bool          // SMTP_TLS
	Timeout  time.Duration // SMTP_TIMEOUT per delivery attempt
}

// WorkerConfig defines the dispatch worker's queue behavior.
type WorkerConfig struct {
	Retries           int           // WORKER_RETRIES extra attempts after the first
	PollInterval      time.Duration // WORKER_POLL_INTERVAL queue poll cadence
	HeartbeatInterval time.Duration // WORKER_HEARTBEAT_INTERVAL liveness stamp cadence
	StaleAfter        time.Duration // JOB_STALE_AFTER heartbeat age before reclaim
	RetryBackoff      time.Duration // WORKER_RETRY_BACKOFF base delay between attempts
	SendRPS           float64       // SEND_RPS outbound email rate (>= 0, 0 = unlimited)
	SendBurst         int           // SEND_BURST outbound email burst size (>= 1)
	SweepInterval     time.Duration // SCHEDULE_SWEEP_INTERVAL; 0 disables the sweep

	// MaxRecipientsPerJob caps how many due recipients one job may freeze at
	// enqueue time; overflow waits for the next run. 0 means no cap.
	MaxRecipientsPerJob int // MAX_RECIPIENTS_PER_JOB
}

// MaxAttempts is the per-item delivery budget: the first attempt plus the
// configured retries.
func (w WorkerConfig) MaxAttempts() int { return w.Retries + 1 }

// CompanyConfig defines the identity printed on rendered statements.
type CompanyConfig struct {
	Name  string // COMPANY_NAME
	Email string // COMPANY_EMAIL
	Phone string // COMPANY_PHONE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath      string // SQLite path
	InvoicePath string // optional pinned invoice source; empty = latest upload
	UploadDir   string // where uploaded invoice files are stored
	ArtifactDir string // where rendered statements are archived; empty disables

	Company CompanyConfig

	// Delivery and dispatch
	SMTP   SMTPConfig
	Worker WorkerConfig

	// Rate limiting (HTTP)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:      getenv("DB_PATH", "app.db"),
		InvoicePath: getenv("INVOICE_PATH", ""),
		UploadDir:   getenv("UPLOAD_DIR", "data/uploads"),
		ArtifactDir: getenv("ARTIFACT_DIR", "data/statements"),

		Company: CompanyConfig{
			Name:  getenv("COMPANY_NAME", "Accounts Receivable"),
			Email: getenv("COMPANY_EMAIL", ""),
			Phone: getenv("COMPANY_PHONE", ""),
		},

		// Delivery
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", "localhost"),
			Port:     getint("SMTP_PORT", 587),
			Username: getenv("SMTP_USER", ""),
			Password: getenv("SMTP_PASS", ""),
			From:     getenv("SMTP_FROM", ""),
			UseTLS:   getbool("SMTP_TLS", true),
			Timeout:  getdur("SMTP_TIMEOUT", 30*time.Second),
		},

		// Dispatch worker
		Worker: WorkerConfig{
			Retries:           getint("WORKER_RETRIES", 2),
			PollInterval:      getdur("WORKER_POLL_INTERVAL", 5*time.Second),
			HeartbeatInterval: getdur("WORKER_HEARTBEAT_INTERVAL", 10*time.Second),
			StaleAfter:        getdur("JOB_STALE_AFTER", 2*time.Minute),
			RetryBackoff:      getdur("WORKER_RETRY_BACKOFF", 30*time.Second),
			SendRPS:           getfloat("SEND_RPS", 1.0),
			SendBurst:         getint("SEND_BURST", 1),
			SweepInterval:     getdur("SCHEDULE_SWEEP_INTERVAL", 0),

			MaxRecipientsPerJob: getint("MAX_RECIPIENTS_PER_JOB", 0),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "ar-dispatch"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.UploadDir) == "" {
		return cfg, errors.New("UPLOAD_DIR must not be empty")
	}
	if cfg.SMTP.Port < 1 || cfg.SMTP.Port > 65535 {
		return cfg, errors.New("SMTP_PORT must be a valid port")
	}
	if cfg.SMTP.Timeout <= 0 {
		return cfg, errors.New("SMTP_TIMEOUT must be > 0")
	}
	if cfg.Worker.Retries < 0 {
		return cfg, errors.New("WORKER_RETRIES must be >= 0")
	}
	if cfg.Worker.PollInterval <= 0 || cfg.Worker.HeartbeatInterval <= 0 {
		return cfg, errors.New("worker intervals must be positive durations")
	}
	if cfg.Worker.StaleAfter <= cfg.Worker.HeartbeatInterval {
		return cfg, errors.New("JOB_STALE_AFTER must exceed WORKER_HEARTBEAT_INTERVAL")
	}
	if cfg.Worker.RetryBackoff < 0 {
		return cfg, errors.New("WORKER_RETRY_BACKOFF must be >= 0")
	}
	if cfg.Worker.SendRPS < 0 {
		return cfg, errors.New("SEND_RPS must be >= 0")
	}
	if cfg.Worker.SendBurst < 1 {
		return cfg, errors.New("SEND_BURST must be >= 1")
	}
	if cfg.Worker.SweepInterval < 0 {
		return cfg, errors.New("SCHEDULE_SWEEP_INTERVAL must be >= 0")
	}
	if cfg.Worker.MaxRecipientsPerJob < 0 {
		return cfg, errors.New("MAX_RECIPIENTS_PER_JOB must be >= 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
