// Ingestion HTTP handlers.
//
// This file exposes REST endpoints for bulk coupon ingestion:
//   - POST /ingestions               (upload a CSV/XLSX source and run it)
//   - GET  /ingestions               (list the user's runs, paginated)
//   - GET  /ingestions/{id}          (run with per-record state)
//   - GET  /ingestions/{id}/report   (download the outcome table)
//
// Streaming:
// When the client sends Accept: text/event-stream, POST /ingestions answers
// with Server-Sent Events: one event per progress update ("transition",
// "retry", "completed"), then a final "run" or "error" event. The run itself
// executes on a context detached from the request, so it finishes and is
// recorded even if the client disconnects.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a run was already
// started with it, the handler returns that run with 200 and sets
// `Idempotency-Replayed: true` instead of ingesting the file again.
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rewards-backend/internal/domain"
	"github.com/tbourn/go-rewards-backend/internal/http/middleware"
	"github.com/tbourn/go-rewards-backend/internal/ingest"
	"github.com/tbourn/go-rewards-backend/internal/services"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv; charset=utf-8"
)

// ListIngestionsResponse wraps a page of runs and pagination information.
type ListIngestionsResponse struct {
	Runs       []domain.IngestionRun `json:"runs"`
	Pagination Pagination            `json:"pagination"`
}

// ingestFailure maps an ingestion error onto a status and envelope. run is
// the persisted run, if the failure happened after it was created.
func ingestFailure(c *gin.Context, run *domain.IngestionRun, err error) (int, ErrorResponse) {
	var ve *ingest.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, errorBody(c, ErrCodeUnprocessable, "source contains invalid rows", ve.Messages)
	case errors.Is(err, ingest.ErrEmptySource):
		return http.StatusBadRequest, errorBody(c, ErrCodeEmptySource, err.Error(), nil)
	case errors.Is(err, ingest.ErrInvalidMode):
		return http.StatusBadRequest, errorBody(c, ErrCodeInvalidMode, err.Error(), nil)
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, errorBody(c, ErrCodeUnsupportedType, "file must be .csv or .xlsx", nil)
	case errors.Is(err, ingest.ErrMalformedSource):
		return http.StatusBadRequest, errorBody(c, ErrCodeBadRequest, err.Error(), nil)
	case errors.Is(err, ingest.ErrSubmissionFailed):
		msg := err.Error()
		if run != nil {
			msg = fmt.Sprintf("%s (run %s)", msg, run.ID)
		}
		return http.StatusBadGateway, errorBody(c, ErrCodeBadGateway, msg, nil)
	}
	return http.StatusInternalServerError, errorBody(c, ErrCodeIngestFailed, err.Error(), nil)
}

// readUpload loads the multipart "file" field into memory. The body is
// already capped by the router, so the copy is bounded.
func readUpload(c *gin.Context) (ingest.Source, int, string) {
	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			return ingest.Source{}, http.StatusRequestEntityTooLarge, "upload exceeds the size limit"
		}
		return ingest.Source{}, http.StatusBadRequest, "multipart field 'file' is required"
	}
	f, err := fh.Open()
	if err != nil {
		return ingest.Source{}, http.StatusBadRequest, "cannot open uploaded file"
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return ingest.Source{}, http.StatusBadRequest, "cannot read uploaded file"
	}
	return ingest.Source{Name: fh.Filename, Body: bytes.NewReader(data)}, 0, ""
}

func wantsEventStream(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

// CreateIngestion godoc
// @ID          createIngestion
// @Summary     Ingest a coupon source file
// @Description Parses, validates and submits a CSV/XLSX file of coupons (columns code, mrp, company, points).
// @Description Send Accept: text/event-stream to receive progress as Server-Sent Events.
// @Tags        Ingestions
// @Accept      multipart/form-data
// @Produce     json
// @Produce     text/event-stream
// @Param       X-User-ID        header    string  false  "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header    string  false  "Replays the run started with the same key"
// @Param       file             formData  file    true   "Source file (.csv or .xlsx)"
// @Param       mode             formData  string  false  "Upload strategy"  Enums(batch, individual)
// @Success     201  {object}  domain.IngestionRun
// @Success     200  {object}  domain.IngestionRun  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty source, bad mode or malformed file"
// @Failure     413  {object}  handlers.ErrorResponse  "Upload too large"
// @Failure     415  {object}  handlers.ErrorResponse  "Unsupported format"
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid rows (see errors[])"
// @Failure     502  {object}  handlers.ErrorResponse  "Grouped submission failed"
// @Router      /ingestions [post]
func (h *Handlers) CreateIngestion(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && middleware.IsReplay(c) {
		if run, err := h.ingestSvc.FindByKey(ctx, uid, key); err == nil {
			middleware.TagRun(c, run.ID)
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, run)
			return
		}
	}

	mode, err := ingest.ParseMode(strings.TrimSpace(c.PostForm("mode")), "")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidMode, err.Error())
		return
	}
	src, status, msg := readUpload(c)
	if status != 0 {
		code := ErrCodeBadRequest
		if status == http.StatusRequestEntityTooLarge {
			code = ErrCodeTooLarge
		}
		fail(c, status, code, msg)
		return
	}

	if wantsEventStream(c) {
		h.streamIngestion(c, uid, key, src, mode)
		return
	}

	run, _, err := h.ingestSvc.Start(ctx, uid, src, mode, nil)
	if run != nil {
		middleware.TagRun(c, run.ID)
	}
	if run != nil && hasKey {
		if kerr := h.ingestSvc.RememberKey(context.WithoutCancel(ctx), uid, key, run.ID, http.StatusCreated); kerr != nil {
			middleware.LoggerFrom(c).Warn().Err(kerr).Str("run_id", run.ID).Msg("store idempotency key")
		}
	}
	if err != nil {
		status, body := ingestFailure(c, run, err)
		abortWith(c, status, body)
		return
	}
	ok(c, http.StatusCreated, run)
}

type ingestOutcome struct {
	run *domain.IngestionRun
	err error
}

// streamIngestion runs the ingestion in the background and relays its
// events as SSE until the run ends or the client goes away.
func (h *Handlers) streamIngestion(c *gin.Context, uid, key string, src ingest.Source, mode ingest.Mode) {
	bg := context.WithoutCancel(c.Request.Context())
	logger := middleware.LoggerFrom(c) // c is recycled once the handler returns
	events := make(chan ingest.Event, 64)
	done := make(chan ingestOutcome, 1)
	gone := make(chan struct{})
	defer close(gone)

	go func() {
		run, _, err := h.ingestSvc.Start(bg, uid, src, mode, func(ev ingest.Event) {
			select {
			case events <- ev:
			case <-gone:
			}
		})
		if run != nil && key != "" {
			if kerr := h.ingestSvc.RememberKey(bg, uid, key, run.ID, http.StatusCreated); kerr != nil {
				logger.Warn().Err(kerr).Str("run_id", run.ID).Msg("store idempotency key")
			}
		}
		done <- ingestOutcome{run: run, err: err}
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		select {
		case ev := <-events:
			c.SSEvent(string(ev.Kind), ev)
			return true
		case out := <-done:
			if out.run != nil {
				middleware.TagRun(c, out.run.ID)
			}
			for drained := false; !drained; {
				select {
				case ev := <-events:
					c.SSEvent(string(ev.Kind), ev)
				default:
					drained = true
				}
			}
			if out.err != nil {
				_, body := ingestFailure(c, out.run, out.err)
				c.SSEvent("error", body)
				return false
			}
			c.SSEvent("run", out.run)
			return false
		}
	})
}

// ListIngestions godoc
// @ID          listIngestions
// @Summary     List ingestion runs (paginated)
// @Tags        Ingestions
// @Produce     json
// @Param       X-User-ID  header  string  false  "User ID (demo header)"
// @Param       page       query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListIngestionsResponse
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /ingestions [get]
func (h *Handlers) ListIngestions(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.ingestSvc.ListPage(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListIngestionsResponse{Runs: items, Pagination: paginate(page, pageSize, total)})
}

// GetIngestion godoc
// @ID          getIngestion
// @Summary     Get an ingestion run
// @Description Returns the run with every record's status, message and attempt count.
// @Tags        Ingestions
// @Produce     json
// @Param       X-User-ID  header  string  false  "User ID (demo header)"
// @Param       id         path    string  true   "Run ID"  format(uuid)
// @Success     200  {object}  domain.IngestionRun
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /ingestions/{id} [get]
func (h *Handlers) GetIngestion(c *gin.Context) {
	run, err := h.ingestSvc.Get(c.Request.Context(), userID(c), c.Param("id"))
	if errors.Is(err, services.ErrRunNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "ingestion run not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, run)
}

// DownloadReport godoc
// @ID          downloadIngestionReport
// @Summary     Download the outcome report of a run
// @Description Columns: Code, Result (SUCCESS/FAILED/PENDING/PROCESSING), Message.
// @Tags        Ingestions
// @Produce     application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce     text/csv
// @Param       X-User-ID  header  string  false  "User ID (demo header)"
// @Param       id         path    string  true   "Run ID"  format(uuid)
// @Param       format     query   string  false  "Report format"  Enums(xlsx, csv) default(xlsx)
// @Success     200  {file}    file
// @Failure     400  {object}  handlers.ErrorResponse "Unknown format"
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /ingestions/{id}/report [get]
func (h *Handlers) DownloadReport(c *gin.Context) {
	id := c.Param("id")
	format := strings.ToLower(c.DefaultQuery("format", "xlsx"))
	if format != "xlsx" && format != "csv" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "format must be xlsx or csv")
		return
	}

	rows, err := h.ingestSvc.Report(c.Request.Context(), userID(c), id)
	if errors.Is(err, services.ErrRunNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "ingestion run not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeReportFailed, err.Error())
		return
	}

	var buf bytes.Buffer
	contentType := contentTypeXLSX
	if format == "csv" {
		contentType = contentTypeCSV
		err = ingest.WriteCSV(&buf, rows)
	} else {
		err = ingest.WriteXLSX(&buf, rows)
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeReportFailed, err.Error())
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="ingestion-%s.%s"`, id, format))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}
