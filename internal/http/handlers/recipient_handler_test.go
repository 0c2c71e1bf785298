package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/redwaygroup/ar-dispatch/internal/domain"
	"github.com/redwaygroup/ar-dispatch/internal/match"
	"github.com/redwaygroup/ar-dispatch/internal/services"
)

//
// Stub services. Each method returns the canned field plus the stub error,
// which is enough because a handler calls exactly one method per request.
//

type recipientsStub struct {
	rec        *domain.Recipient
	recs       []domain.Recipient
	alias      *domain.RecipientAlias
	aliases    []domain.RecipientAlias
	candidates []match.Candidate
	err        error
}

func (s *recipientsStub) Create(context.Context, services.RecipientInput) (*domain.Recipient, error) {
	return s.rec, s.err
}
func (s *recipientsStub) Update(context.Context, string, services.RecipientInput) (*domain.Recipient, error) {
	return s.rec, s.err
}
func (s *recipientsStub) Get(context.Context, string) (*domain.Recipient, error) {
	return s.rec, s.err
}
func (s *recipientsStub) List(context.Context, bool) ([]domain.Recipient, error) {
	return s.recs, s.err
}
func (s *recipientsStub) Delete(context.Context, string) error { return s.err }
func (s *recipientsStub) AssignGroup(context.Context, string, string) error {
	return s.err
}
func (s *recipientsStub) Members(context.Context, string) ([]domain.Recipient, error) {
	return s.recs, s.err
}
func (s *recipientsStub) AddAlias(context.Context, string, string) (*domain.RecipientAlias, error) {
	return s.alias, s.err
}
func (s *recipientsStub) RemoveAlias(context.Context, string) error { return s.err }
func (s *recipientsStub) Aliases(context.Context, string) ([]domain.RecipientAlias, error) {
	return s.aliases, s.err
}
func (s *recipientsStub) Suggest(context.Context, string, int) ([]match.Candidate, error) {
	return s.candidates, s.err
}

type jobsStub struct {
	job    *domain.ScheduledJob
	jobs   []domain.ScheduledJob
	detail *services.JobDetail
	err    error
}

func (s *jobsStub) Enqueue(context.Context, domain.JobTrigger) (*domain.ScheduledJob, error) {
	return s.job, s.err
}
func (s *jobsStub) Active(context.Context) (*domain.ScheduledJob, error) { return s.job, s.err }
func (s *jobsStub) Get(context.Context, string) (*services.JobDetail, error) {
	return s.detail, s.err
}
func (s *jobsStub) List(context.Context, int) ([]domain.ScheduledJob, error) {
	return s.jobs, s.err
}

type reportsStub struct {
	rep *services.Report
	err error
}

func (s *reportsStub) Generate(context.Context) (*services.Report, error) { return s.rep, s.err }
func (s *reportsStub) Latest(context.Context) (*services.Report, error)   { return s.rep, s.err }
func (s *reportsStub) Get(context.Context, string) (*services.Report, error) {
	return s.rep, s.err
}

type dispatchStub struct {
	run  *domain.StatementRun
	runs []domain.StatementRun
	err  error
}

func (s *dispatchStub) SendNow(context.Context, string) (*domain.StatementRun, error) {
	return s.run, s.err
}
func (s *dispatchStub) RunsForJob(context.Context, string) ([]domain.StatementRun, error) {
	return s.runs, s.err
}
func (s *dispatchStub) RecentRuns(context.Context, int) ([]domain.StatementRun, error) {
	return s.runs, s.err
}

type filesStub struct {
	file  *domain.InvoiceFile
	files []domain.InvoiceFile
	err   error
}

func (s *filesStub) Register(context.Context, string, string) (*domain.InvoiceFile, error) {
	return s.file, s.err
}
func (s *filesStub) Get(context.Context, string) (*domain.InvoiceFile, error) {
	return s.file, s.err
}
func (s *filesStub) List(context.Context, int) ([]domain.InvoiceFile, error) {
	return s.files, s.err
}

type stubs struct {
	rec   *recipientsStub
	jobs  *jobsStub
	reps  *reportsStub
	dsp   *dispatchStub
	files *filesStub
}

func newHandlers(t *testing.T, st stubs) *Handlers {
	t.Helper()
	if st.rec == nil {
		st.rec = &recipientsStub{}
	}
	if st.jobs == nil {
		st.jobs = &jobsStub{}
	}
	if st.reps == nil {
		st.reps = &reportsStub{}
	}
	if st.dsp == nil {
		st.dsp = &dispatchStub{}
	}
	if st.files == nil {
		st.files = &filesStub{}
	}
	return New(st.rec, st.jobs, st.reps, st.dsp, st.files, t.TempDir(), time.Hour)
}

func perform(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRecipient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("created", func(t *testing.T) {
		h := newHandlers(t, stubs{rec: &recipientsStub{rec: &domain.Recipient{ID: "r1", Name: "Acme"}}})
		r := gin.New()
		r.POST("/recipients", h.CreateRecipient)

		w := perform(r, http.MethodPost, "/recipients", `{"name":"Acme"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("code = %d body=%s", w.Code, w.Body.String())
		}
		var got domain.Recipient
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil || got.ID != "r1" {
			t.Fatalf("body = %s err=%v", w.Body.String(), err)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		h := newHandlers(t, stubs{})
		r := gin.New()
		r.POST("/recipients", h.CreateRecipient)

		w := perform(r, http.MethodPost, "/recipients", `{not json`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("code = %d", w.Code)
		}
	})

	t.Run("validation errors map to 400", func(t *testing.T) {
		for _, sentinel := range []error{
			services.ErrEmptyName,
			services.ErrInvalidTerms,
			services.ErrInvalidSchedule,
		} {
			h := newHandlers(t, stubs{rec: &recipientsStub{err: sentinel}})
			r := gin.New()
			r.POST("/recipients", h.CreateRecipient)

			w := perform(r, http.MethodPost, "/recipients", `{"name":"x"}`)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("%v: code = %d", sentinel, w.Code)
			}
		}
	})
}

func TestGetUpdateDeleteRecipient_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHandlers(t, stubs{rec: &recipientsStub{err: services.ErrRecipientNotFound}})
	r := gin.New()
	r.GET("/recipients/:id", h.GetRecipient)
	r.PUT("/recipients/:id", h.UpdateRecipient)
	r.DELETE("/recipients/:id", h.DeleteRecipient)

	if w := perform(r, http.MethodGet, "/recipients/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get code = %d", w.Code)
	}
	if w := perform(r, http.MethodPut, "/recipients/nope", `{"name":"x"}`); w.Code != http.StatusNotFound {
		t.Fatalf("put code = %d", w.Code)
	}
	if w := perform(r, http.MethodDelete, "/recipients/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("delete code = %d", w.Code)
	}
}

func TestAssignGroup_NotAGroup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHandlers(t, stubs{rec: &recipientsStub{err: services.ErrNotAGroup}})
	r := gin.New()
	r.PUT("/recipients/:id/group", h.AssignGroup)

	w := perform(r, http.MethodPut, "/recipients/r1/group", `{"group_id":"g1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d body=%s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.Code != ErrCodeBadRequest {
		t.Fatalf("body = %s err=%v", w.Body.String(), err)
	}
}

func TestAliases(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("add", func(t *testing.T) {
		h := newHandlers(t, stubs{rec: &recipientsStub{alias: &domain.RecipientAlias{ID: "a1", Alias: "ACME Corp."}}})
		r := gin.New()
		r.POST("/recipients/:id/aliases", h.AddAlias)

		w := perform(r, http.MethodPost, "/recipients/r1/aliases", `{"alias":"ACME Corp."}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("code = %d body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("remove missing", func(t *testing.T) {
		h := newHandlers(t, stubs{rec: &recipientsStub{err: services.ErrAliasNotFound}})
		r := gin.New()
		r.DELETE("/recipients/:id/aliases/:aliasID", h.RemoveAlias)

		w := perform(r, http.MethodDelete, "/recipients/r1/aliases/a9", "")
		if w.Code != http.StatusNotFound {
			t.Fatalf("code = %d", w.Code)
		}
	})
}

func TestMatchRecipients(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("missing name", func(t *testing.T) {
		h := newHandlers(t, stubs{})
		r := gin.New()
		r.GET("/recipients/match", h.MatchRecipients)

		w := perform(r, http.MethodGet, "/recipients/match", "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("code = %d", w.Code)
		}
	})

	t.Run("candidates", func(t *testing.T) {
		h := newHandlers(t, stubs{rec: &recipientsStub{candidates: []match.Candidate{
			{RecipientID: "r1", Name: "Acme", Score: 1},
		}}})
		r := gin.New()
		r.GET("/recipients/match", h.MatchRecipients)

		w := perform(r, http.MethodGet, "/recipients/match?name=ACME+Corp", "")
		if w.Code != http.StatusOK {
			t.Fatalf("code = %d", w.Code)
		}
		var resp MatchResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Name != "ACME Corp" || len(resp.Candidates) != 1 || resp.Candidates[0].RecipientID != "r1" {
			t.Fatalf("resp = %+v", resp)
		}
	})
}

func TestSendStatement_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err  error
		want int
	}{
		{services.ErrRecipientNotFound, http.StatusNotFound},
		{services.ErrNoInvoiceFile, http.StatusConflict},
		{services.ErrMissingEmail, http.StatusUnprocessableEntity},
		{services.ErrGroupEmpty, http.StatusUnprocessableEntity},
		{services.ErrNoOutstanding, http.StatusUnprocessableEntity},
		{services.ErrNoMatchingRows, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		h := newHandlers(t, stubs{dsp: &dispatchStub{err: tc.err}})
		r := gin.New()
		r.POST("/recipients/:id/send", h.SendStatement)

		w := perform(r, http.MethodPost, "/recipients/r1/send", "")
		if w.Code != tc.want {
			t.Fatalf("%v: code = %d, want %d", tc.err, w.Code, tc.want)
		}
	}

	// Delivery failures surface as 502.
	h := newHandlers(t, stubs{dsp: &dispatchStub{err: context.DeadlineExceeded}})
	r := gin.New()
	r.POST("/recipients/:id/send", h.SendStatement)
	if w := perform(r, http.MethodPost, "/recipients/r1/send", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("delivery failure code = %d", w.Code)
	}
}

func TestSendStatement_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHandlers(t, stubs{dsp: &dispatchStub{run: &domain.StatementRun{ID: "run-1", Status: domain.RunSent}}})
	r := gin.New()
	r.POST("/recipients/:id/send", h.SendStatement)

	w := perform(r, http.MethodPost, "/recipients/r1/send", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", w.Code, w.Body.String())
	}
	var run domain.StatementRun
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil || run.ID != "run-1" {
		t.Fatalf("body = %s err=%v", w.Body.String(), err)
	}
}
