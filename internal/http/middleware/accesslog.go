package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	runIDKey = "ingestionRunID"
	// maxQueryLogLength caps the logged query, in bytes.
	maxQueryLogLength = 2048
)

// AccessLogOptions tunes AccessLog.
type AccessLogOptions struct {
	// MaskHeaders are masked in addition to Authorization, Cookie and Set-Cookie.
	MaskHeaders []string
	// IDParams are query parameters logged verbatim next to company_id and run_id.
	IDParams []string
	// SkipPaths are route patterns that only get a line when they fail.
	SkipPaths []string
}

// TagRun records the ingestion run a request produced or touched so the
// access log line can be joined with the run's own logs.
func TagRun(c *gin.Context, runID string) {
	if runID != "" {
		c.Set(runIDKey, runID)
	}
}

// AccessLog writes one structured line per request through the request-scoped
// logger. Bodies are never logged; queries and headers pass through a
// redactor first. Level follows the outcome: error for 5xx or handler errors,
// warn for 4xx, info otherwise.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	red := newRedactor(opts.MaskHeaders, opts.IDParams)
	skip := make(map[string]struct{}, len(opts.SkipPaths))
	for _, p := range opts.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		if _, quiet := skip[route]; quiet && status < 400 {
			return
		}

		lg := LoggerFrom(c)
		var ev *zerolog.Event
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
		case status >= 400:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if id := c.GetString(runIDKey); id != "" {
			ev = ev.Str("run_id", id)
		}
		if IsReplay(c) {
			ev = ev.Bool("replayed", true)
		}

		ev.Str("method", c.Request.Method).
			Str("route", route).
			Str("query", truncate(red.query(c.Request.URL.RawQuery), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", red.headers(c.Request.Header)).
			Msg("http_request")
	}
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
