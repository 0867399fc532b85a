package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/tbourn/go-rewards-backend/internal/domain"
	"github.com/tbourn/go-rewards-backend/internal/http/middleware"
	"github.com/tbourn/go-rewards-backend/internal/ingest"
	"github.com/tbourn/go-rewards-backend/internal/repo"
	"github.com/tbourn/go-rewards-backend/internal/services"
)

const couponHeader = "code,mrp,company,points\n"

func newIngestionRouter(h *Handlers, mws ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mws...)
	r.POST("/ingestions", h.CreateIngestion)
	r.GET("/ingestions", h.ListIngestions)
	r.GET("/ingestions/:id", h.GetIngestion)
	r.GET("/ingestions/:id/report", h.DownloadReport)
	return r
}

// upload builds a multipart request carrying body as the "file" field.
func upload(t *testing.T, filename, body string, fields, hdr map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.WriteString(fw, body)
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ingestions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	return req
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// streamRecorder lets gin's Stream run against a recorder.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (s *streamRecorder) CloseNotify() <-chan bool { return s.closed }

func newIngestionFixture(t *testing.T) (*Handlers, *gin.Engine) {
	t.Helper()
	h := newRealHandlers(newHandlerDB(t))
	seedHandlerCompany(t, h, "acme", 10)
	return h, newIngestionRouter(h)
}

func TestCreateIngestion_Batch201(t *testing.T) {
	_, r := newIngestionFixture(t)

	w := serve(r, upload(t, "coupons.csv", couponHeader+"A1,100,acme,\nA2,250,Acme,7\n", nil, map[string]string{"X-User-ID": "u1"}))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var run domain.IngestionRun
	_ = json.Unmarshal(w.Body.Bytes(), &run)
	if run.Status != domain.RunCompleted || run.Mode != "batch" || run.Succeeded != 2 || len(run.Records) != 2 {
		t.Fatalf("unexpected run: %+v", run)
	}

	// visible to its owner only
	if w := doJSON(r, http.MethodGet, "/ingestions/"+run.ID, nil, map[string]string{"X-User-ID": "u1"}); w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/ingestions/"+run.ID, nil, map[string]string{"X-User-ID": "u2"}); w.Code != http.StatusNotFound {
		t.Fatalf("get other user: %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/ingestions", nil, map[string]string{"X-User-ID": "u1"})
	var list ListIngestionsResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || len(list.Runs) != 1 || list.Pagination.Total != 1 {
		t.Fatalf("list: %d %+v", w.Code, list)
	}
}

func TestCreateIngestion_PartialBatch(t *testing.T) {
	h, r := newIngestionFixture(t)
	if _, err := h.couponSvc.Create(context.Background(), services.CreateCouponInput{Code: "A2", MRP: 10, CompanyName: "acme"}); err != nil {
		t.Fatal(err)
	}

	w := serve(r, upload(t, "coupons.csv", couponHeader+"A1,100,acme,\nA2,100,acme,\n", nil, nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var run domain.IngestionRun
	_ = json.Unmarshal(w.Body.Bytes(), &run)
	if run.Status != domain.RunCompletedWithErrors || run.Succeeded != 1 || run.Failed != 1 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Records[1].Status != string(ingest.StatusFailed) || run.Records[1].Message == "" {
		t.Fatalf("record: %+v", run.Records[1])
	}
}

func TestCreateIngestion_ValidationErrors422(t *testing.T) {
	_, r := newIngestionFixture(t)

	w := serve(r, upload(t, "coupons.csv", couponHeader+"A1,100,acme,\nA2,abc,acme,\nA3,100,globex,\n", nil, nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("want 422, got %d %s", w.Code, w.Body.String())
	}
	er := decodeErr(t, w)
	if er.Code != ErrCodeUnprocessable || len(er.Errors) != 2 {
		t.Fatalf("unexpected body: %+v", er)
	}
	if !strings.HasPrefix(er.Errors[1], "Row 4: company 'globex' does not exist") {
		t.Fatalf("unexpected message: %q", er.Errors[1])
	}
}

func TestCreateIngestion_RequestErrors(t *testing.T) {
	_, r := newIngestionFixture(t)

	cases := []struct {
		name   string
		req    *http.Request
		status int
		code   string
	}{
		{"missing file", upload(t, "", "", nil, nil), http.StatusBadRequest, ErrCodeBadRequest},
		{"header only", upload(t, "coupons.csv", couponHeader, nil, nil), http.StatusBadRequest, ErrCodeEmptySource},
		{"bad mode", upload(t, "coupons.csv", couponHeader+"A1,100,acme,\n", map[string]string{"mode": "bulk"}, nil), http.StatusBadRequest, ErrCodeInvalidMode},
		{"legacy xls", upload(t, "coupons.xls", "whatever", nil, nil), http.StatusUnsupportedMediaType, ErrCodeUnsupportedType},
		{"broken quotes", upload(t, "coupons.csv", couponHeader+"\"A1,100,acme\n", nil, nil), http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tc := range cases {
		w := serve(r, tc.req)
		if w.Code != tc.status {
			t.Fatalf("%s: want %d, got %d %s", tc.name, tc.status, w.Code, w.Body.String())
		}
		if er := decodeErr(t, w); er.Code != tc.code {
			t.Fatalf("%s: want code %q, got %q", tc.name, tc.code, er.Code)
		}
	}
}

func TestCreateIngestion_TooLarge413(t *testing.T) {
	h, _ := newIngestionFixture(t)
	r := newIngestionRouter(h, func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 64)
		c.Next()
	})
	w := serve(r, upload(t, "coupons.csv", couponHeader+strings.Repeat("A1,100,acme,\n", 50), nil, nil))
	if w.Code != http.StatusRequestEntityTooLarge || decodeErr(t, w).Code != ErrCodeTooLarge {
		t.Fatalf("want 413, got %d %s", w.Code, w.Body.String())
	}
}

func TestCreateIngestion_IdempotentReplay(t *testing.T) {
	db := newHandlerDB(t)
	h := newRealHandlers(db)
	seedHandlerCompany(t, h, "acme", 10)
	r := newIngestionRouter(h, middleware.IdempotencyValidator(middleware.IdempotencyOptions{},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			return err == nil && rec != nil, nil
		}))

	hdr := map[string]string{"X-User-ID": "u1", middleware.HeaderIdempotencyKey: "upload-1"}
	first := serve(r, upload(t, "coupons.csv", couponHeader+"A1,100,acme,\n", nil, hdr))
	if first.Code != http.StatusCreated {
		t.Fatalf("first: %d %s", first.Code, first.Body.String())
	}
	var run1 domain.IngestionRun
	_ = json.Unmarshal(first.Body.Bytes(), &run1)

	second := serve(r, upload(t, "coupons.csv", couponHeader+"A1,100,acme,\n", nil, hdr))
	if second.Code != http.StatusOK || second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d %s", second.Code, second.Body.String())
	}
	var run2 domain.IngestionRun
	_ = json.Unmarshal(second.Body.Bytes(), &run2)
	if run2.ID != run1.ID {
		t.Fatalf("replay returned run %s, want %s", run2.ID, run1.ID)
	}

	// same key, different user: a fresh run whose A1 collides
	hdr["X-User-ID"] = "u2"
	third := serve(r, upload(t, "coupons.csv", couponHeader+"A1,100,acme,\n", nil, hdr))
	var run3 domain.IngestionRun
	_ = json.Unmarshal(third.Body.Bytes(), &run3)
	if third.Code != http.StatusCreated || run3.ID == run1.ID || run3.Status != domain.RunCompletedWithErrors {
		t.Fatalf("other user: %d %+v", third.Code, run3)
	}
}

func TestCreateIngestion_EventStream(t *testing.T) {
	_, r := newIngestionFixture(t)

	req := upload(t, "coupons.csv", couponHeader+"A1,100,acme,\nA2,100,acme,\n",
		map[string]string{"mode": "individual"}, map[string]string{"Accept": "text/event-stream"})
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	r.ServeHTTP(w, req)

	body := w.Body.String()
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type: %q", ct)
	}
	for _, want := range []string{"event:transition", "event:completed", "event:run"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in stream:\n%s", want, body)
		}
	}
	if strings.Index(body, "event:run") < strings.LastIndex(body, "event:completed") {
		t.Fatalf("run event must be last:\n%s", body)
	}
}

func TestCreateIngestion_EventStreamError(t *testing.T) {
	_, r := newIngestionFixture(t)

	req := upload(t, "coupons.csv", couponHeader+"A1,100,globex,\n", nil, map[string]string{"Accept": "text/event-stream"})
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	r.ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "event:error") || !strings.Contains(body, ErrCodeUnprocessable) {
		t.Fatalf("expected error event:\n%s", body)
	}
}

// ---------- stubbed service ----------

type stubIngestSvc struct {
	run    *domain.IngestionRun
	err    error
	rows   []ingest.ReportRow
	keyErr error
}

func (s *stubIngestSvc) Start(context.Context, string, ingest.Source, ingest.Mode, ingest.Observer) (*domain.IngestionRun, *ingest.Result, error) {
	return s.run, nil, s.err
}
func (s *stubIngestSvc) Get(context.Context, string, string) (*domain.IngestionRun, error) {
	return nil, s.err
}
func (s *stubIngestSvc) ListPage(context.Context, string, int, int) ([]domain.IngestionRun, int64, error) {
	return nil, 0, s.err
}
func (s *stubIngestSvc) Report(context.Context, string, string) ([]ingest.ReportRow, error) {
	return s.rows, s.err
}
func (s *stubIngestSvc) FindByKey(context.Context, string, string) (*domain.IngestionRun, error) {
	return nil, services.ErrRunNotFound
}
func (s *stubIngestSvc) RememberKey(context.Context, string, string, string, int) error {
	return s.keyErr
}

func TestCreateIngestion_KeyStoreFailureIsLogged(t *testing.T) {
	for _, accept := range []string{"application/json", "text/event-stream"} {
		t.Run(accept, func(t *testing.T) {
			var logs bytes.Buffer
			logger := zerolog.New(&logs)
			svc := &stubIngestSvc{
				run:    &domain.IngestionRun{ID: "run-7", Status: domain.RunCompleted},
				keyErr: errors.New("database is locked"),
			}
			r := newIngestionRouter(New(nil, nil, svc),
				func(c *gin.Context) { c.Set("logger", &logger) },
				middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))

			req := upload(t, "coupons.csv", couponHeader+"A1,100,acme,\n", nil,
				map[string]string{"Accept": accept, middleware.HeaderIdempotencyKey: "upload-7"})
			w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
			r.ServeHTTP(w, req)

			if w.Code != http.StatusCreated && w.Code != http.StatusOK {
				t.Fatalf("status %d: %s", w.Code, w.Body.String())
			}
			out := logs.String()
			for _, want := range []string{"store idempotency key", "database is locked", "run-7"} {
				if !strings.Contains(out, want) {
					t.Fatalf("log missing %q: %s", want, out)
				}
			}
		})
	}
}

func TestCreateIngestion_SubmissionFailed502(t *testing.T) {
	svc := &stubIngestSvc{
		run: &domain.IngestionRun{ID: "run-1", Status: domain.RunFailed},
		err: fmt.Errorf("%w: connection refused", ingest.ErrSubmissionFailed),
	}
	r := newIngestionRouter(New(nil, nil, svc))

	w := serve(r, upload(t, "coupons.csv", couponHeader+"A1,100,acme,\n", nil, nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("want 502, got %d", w.Code)
	}
	er := decodeErr(t, w)
	if er.Code != ErrCodeBadGateway || !strings.Contains(er.Message, "run-1") {
		t.Fatalf("unexpected body: %+v", er)
	}
}

func TestIngestionHandlers_InternalErrors(t *testing.T) {
	r := newIngestionRouter(New(nil, nil, &stubIngestSvc{err: errors.New("db down")}))

	if w := serve(r, upload(t, "coupons.csv", couponHeader+"A1,100,acme,\n", nil, nil)); w.Code != http.StatusInternalServerError || decodeErr(t, w).Code != ErrCodeIngestFailed {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(r, http.MethodGet, "/ingestions", nil, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("list: %d", w.Code)
	}
	if w := doJSON(r, http.MethodGet, "/ingestions/x/report", nil, nil); w.Code != http.StatusInternalServerError || decodeErr(t, w).Code != ErrCodeReportFailed {
		t.Fatalf("report: %d", w.Code)
	}
}

func TestDownloadReport(t *testing.T) {
	rows := []ingest.ReportRow{
		{Code: "A1", Result: "SUCCESS", Message: ingest.MsgCreated},
		{Code: "A2", Result: "FAILED", Message: "Failed to create record. code: Value must be unique."},
	}
	r := newIngestionRouter(New(nil, nil, &stubIngestSvc{rows: rows}))

	w := doJSON(r, http.MethodGet, "/ingestions/run-1/report?format=csv", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("csv: %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="ingestion-run-1.csv"` {
		t.Fatalf("disposition: %q", cd)
	}
	recs, err := csv.NewReader(w.Body).ReadAll()
	if err != nil || len(recs) != 3 || recs[2][0] != "A2" || recs[2][1] != "FAILED" {
		t.Fatalf("csv body: %v %v", recs, err)
	}

	w = doJSON(r, http.MethodGet, "/ingestions/run-1/report", nil, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != contentTypeXLSX {
		t.Fatalf("xlsx: %d %q", w.Code, w.Header().Get("Content-Type"))
	}
	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	got, _ := f.GetRows(f.GetSheetList()[0])
	if len(got) != 3 || got[1][0] != "A1" || got[1][1] != "SUCCESS" {
		t.Fatalf("xlsx rows: %v", got)
	}

	if w := doJSON(r, http.MethodGet, "/ingestions/run-1/report?format=pdf", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("pdf: %d", w.Code)
	}
}

func TestDownloadReport_NotFound(t *testing.T) {
	_, r := newIngestionFixture(t)
	if w := doJSON(r, http.MethodGet, "/ingestions/missing/report", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", w.Code)
	}
}
