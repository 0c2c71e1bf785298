package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/redwaygroup/ar-dispatch/internal/clock"
	"github.com/redwaygroup/ar-dispatch/internal/config"
	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/http/middleware"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Recipient{},
		&domain.RecipientAlias{},
		&domain.InvoiceFile{},
		&domain.ScheduledJob{},
		&domain.ScheduledJobItem{},
		&domain.StatementRun{},
		&domain.AgingReportRun{},
		&domain.AgingReportItem{},
		&domain.Idempotency{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig(base string) config.Config {
	return config.Config{
		APIBasePath: base,
		// Generous burst: the end-to-end flow below fires well over ten
		// requests back to back from one address.
		RateRPS:        100,
		RateBurst:      100,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
		UploadDir:      "",
		Worker:         config.WorkerConfig{Retries: 2},
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	db := newTestDB(t)
	RegisterRoutes(r, db, Deps{}, testConfig("/api/v1"))

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/api/v2")
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	db := newTestDB(t)
	RegisterRoutes(r, db, Deps{}, cfg)

	// Any request runs through CORS middleware; header should reflect origin.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

// End-to-end pass over the directory and queue endpoints: upload a source,
// create a due recipient, enqueue, inspect the job.
func TestRegisterRoutes_DirectoryAndQueueFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// Monday noon; a weekly day-0 recipient is due.
	monday := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cfg := testConfig("/api/v1")
	cfg.UploadDir = t.TempDir()
	db := newTestDB(t)
	RegisterRoutes(r, db, Deps{Clock: clock.NewFake(monday)}, cfg)

	do := func(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
		t.Helper()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, body)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		r.ServeHTTP(w, req)
		return w
	}

	// Upload an invoice CSV.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "orders.csv")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fmt.Fprintln(part, "Customer Name,Order ID,Order Total,Shipping Date,Paid Amount,Location")
	fmt.Fprintln(part, "Acme,1001,150.00,2026-01-05,,East")
	mw.Close()
	w := do(http.MethodPost, "/api/v1/invoice-files", &buf, mw.FormDataContentType())
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d body=%s", w.Code, w.Body.String())
	}
	var file domain.InvoiceFile
	if err := json.Unmarshal(w.Body.Bytes(), &file); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	if file.RowCount != 1 {
		t.Fatalf("RowCount = %d, want 1", file.RowCount)
	}

	// Create a weekly Monday recipient.
	body := `{"name":"Acme","email":"ap@acme.test","terms":"Net 30","schedule_type":"weekly","schedule_day":0}`
	w = do(http.MethodPost, "/api/v1/recipients", bytes.NewBufferString(body), "application/json")
	if w.Code != http.StatusCreated {
		t.Fatalf("create recipient = %d body=%s", w.Code, w.Body.String())
	}
	var rec domain.Recipient
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode recipient: %v", err)
	}
	if rec.Terms != "net_30" {
		t.Fatalf("Terms = %q, want net_30", rec.Terms)
	}

	// Directory list and name matching.
	w = do(http.MethodGet, "/api/v1/recipients", nil, "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("Acme")) {
		t.Fatalf("list recipients = %d body=%s", w.Code, w.Body.String())
	}
	w = do(http.MethodGet, "/api/v1/recipients/match?name=ACME%20Corp", nil, "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(rec.ID)) {
		t.Fatalf("match = %d body=%s", w.Code, w.Body.String())
	}

	// Queue idle before enqueue.
	w = do(http.MethodGet, "/api/v1/jobs/active", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("active (idle) = %d", w.Code)
	}

	// Enqueue freezes the due recipient.
	w = do(http.MethodPost, "/api/v1/jobs", nil, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("enqueue = %d body=%s", w.Code, w.Body.String())
	}
	var job domain.ScheduledJob
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Status != domain.JobQueued || job.ItemsTotal != 1 {
		t.Fatalf("job = %+v", job)
	}

	// Second enqueue conflicts.
	w = do(http.MethodPost, "/api/v1/jobs", nil, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("second enqueue = %d body=%s", w.Code, w.Body.String())
	}

	// The job is visible as active and by ID with its items.
	w = do(http.MethodGet, "/api/v1/jobs/active", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("active = %d", w.Code)
	}
	w = do(http.MethodGet, "/api/v1/jobs/"+job.ID, nil, "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(rec.ID)) {
		t.Fatalf("get job = %d body=%s", w.Code, w.Body.String())
	}

	// Queue counters.
	w = do(http.MethodGet, "/api/v1/jobs/stats", nil, "")
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("queued")) {
		t.Fatalf("stats = %d body=%s", w.Code, w.Body.String())
	}

	// Reports: none yet, then generate one.
	w = do(http.MethodGet, "/api/v1/reports/aging/latest", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("latest report (none) = %d", w.Code)
	}
	w = do(http.MethodPost, "/api/v1/reports/aging", nil, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("generate report = %d body=%s", w.Code, w.Body.String())
	}
	w = do(http.MethodGet, "/api/v1/reports/aging/latest", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("latest report = %d", w.Code)
	}
}

// Replaying an enqueue with the same Idempotency-Key returns the original
// job instead of conflicting with it.
func TestRegisterRoutes_EnqueueIdempotencyReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	monday := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	cfg := testConfig("/api/v1")
	cfg.InvoicePath = writeCSV(t, "Acme,1001,150.00,2026-01-05,,East")
	db := newTestDB(t)
	RegisterRoutes(r, db, Deps{Clock: clock.NewFake(monday)}, cfg)

	seed := `{"name":"Acme","email":"ap@acme.test","schedule_type":"weekly","schedule_day":0}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipients", bytes.NewBufferString(seed))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create recipient = %d body=%s", w.Code, w.Body.String())
	}

	enqueue := func(key string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", nil)
		req.Header.Set(middleware.HeaderIdempotencyKey, key)
		r.ServeHTTP(w, req)
		return w
	}

	first := enqueue("enqueue-1")
	if first.Code != http.StatusAccepted {
		t.Fatalf("first enqueue = %d body=%s", first.Code, first.Body.String())
	}
	var job domain.ScheduledJob
	if err := json.Unmarshal(first.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}

	// Same key replays the original job; a fresh key conflicts.
	second := enqueue("enqueue-1")
	if second.Code != http.StatusAccepted {
		t.Fatalf("replay = %d body=%s", second.Code, second.Body.String())
	}
	var replayed domain.ScheduledJob
	if err := json.Unmarshal(second.Body.Bytes(), &replayed); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if replayed.ID != job.ID {
		t.Fatalf("replay returned job %s, want %s", replayed.ID, job.ID)
	}
	third := enqueue("enqueue-2")
	if third.Code != http.StatusConflict {
		t.Fatalf("fresh key = %d, want 409", third.Code)
	}
}

func writeCSV(t *testing.T, rows ...string) string {
	t.Helper()
	path := t.TempDir() + "/orders.csv"
	var buf bytes.Buffer
	buf.WriteString("Customer Name,Order ID,Order Total,Shipping Date,Paid Amount,Location\n")
	for _, row := range rows {
		buf.WriteString(row + "\n")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	// Hit all three
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/one", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "one" {
		t.Fatalf("GET /one got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/two", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "two" {
		t.Fatalf("GET /two got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("GET /api/ping got %d %q", rec.Code, rec.Body.String())
	}
}

// Smoke test that a request traverses idempotency + ratelimit + otel + security headers pipeline.
func TestPipeline_Smoke(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/api/v1")
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour} // enabled (but only set on https)
	db := newTestDB(t)
	RegisterRoutes(r, db, Deps{}, cfg)

	// Any request goes through the middleware stack
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	// simulate https so HSTS could be eligible if middleware checks scheme
	req.URL.Scheme = "https"
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("pipeline GET /health = %d", w.Code)
	}
	// RequestID header should be present (from RequestID middleware)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRegisterRoutes_IdempotencyCallback_ErrorBranch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	cfg := testConfig("/api/v1")

	// Make a fresh in-memory DB and migrate normally.
	db := newTestDB(t)

	// Wire routes first...
	RegisterRoutes(r, db, Deps{}, cfg)

	// ...then force queries to fail by closing the underlying connection.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	// Now any repo.GetIdempotency call should error → drives (err != nil) branch.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/health", bytes.NewBufferString("{}"))
	req.Header.Set(middleware.HeaderIdempotencyKey, "force-error")
	r.ServeHTTP(w, req)

	// 405 is expected for POST /health; goal is to exercise the middleware branch.
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
