package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// envelopeRouter stands in for RequestID: a fixed request id and a logger
// writing to buf.
func envelopeRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.New(buf)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return er
}

func TestFail_Envelope(t *testing.T) {
	var logs bytes.Buffer
	r := envelopeRouter(&logs)
	r.GET("/companies/:id", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "company not found")
		c.String(http.StatusOK, "unreachable")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/companies/x", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	er := decodeError(t, w)
	if er.RequestID != "rid-1" || er.Code != "not_found" || er.Message != "company not found" || er.Errors != nil {
		t.Fatalf("body = %+v", er)
	}
	if strings.Contains(w.Body.String(), `"errors"`) || strings.Contains(w.Body.String(), "unreachable") {
		t.Fatalf("errors must be omitted and the chain aborted: %s", w.Body.String())
	}
	if logs.Len() != 0 {
		t.Fatalf("client errors should not be logged here: %s", logs.String())
	}
}

func TestAbortWith_ServerErrorsAreLogged(t *testing.T) {
	var logs bytes.Buffer
	r := envelopeRouter(&logs)
	r.GET("/ingestions/:id/report", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeReportFailed, "database is locked")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ingestions/r/report", nil))
	if w.Code != http.StatusInternalServerError || decodeError(t, w).Code != "report_failed" {
		t.Fatalf("%d %s", w.Code, w.Body.String())
	}
	line := logs.String()
	for _, want := range []string{`"level":"error"`, `"code":"report_failed"`, `"error":"database is locked"`, `"status":500`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log %q missing %s", line, want)
		}
	}
}

func TestAbortWith_ItemizedErrors(t *testing.T) {
	var logs bytes.Buffer
	r := envelopeRouter(&logs)
	r.POST("/ingestions", func(c *gin.Context) {
		abortWith(c, http.StatusUnprocessableEntity, errorBody(c, ErrCodeUnprocessable, "source contains invalid rows",
			[]string{"Row 2: code is required", "Row 4: company 'globex' does not exist"}))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ingestions", nil))
	er := decodeError(t, w)
	if w.Code != http.StatusUnprocessableEntity || er.Code != "validation_failed" || len(er.Errors) != 2 || er.RequestID != "rid-1" {
		t.Fatalf("%d %+v", w.Code, er)
	}
}

func TestOK(t *testing.T) {
	r := envelopeRouter(&bytes.Buffer{})
	r.POST("/companies", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"name": "acme", "conversion_factor": 10})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/companies", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"conversion_factor":10`) {
		t.Fatalf("%d %s", w.Code, w.Body.String())
	}
}
