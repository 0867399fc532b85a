// Package middleware holds the Gin middleware shared by the rewards API:
// correlation ids and request-scoped loggers, access logging with
// redaction, panic recovery, metrics, rate limiting, idempotency keys and
// security headers.
//
// Recommended order is RequestID, AccessLog, Recovery so that every log line
// and every 500 body carries the same request id.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	userIDHeader    = "X-User-ID"
	loggerKey       = "logger"
)

// RequestID reuses an incoming X-Request-ID or mints a UUID, echoes it on the
// response and attaches a logger carrying request_id (and user_id when the
// caller identified itself) to both the Gin context and the request context.
// Services pick that logger up with zerolog.Ctx.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)

		lc := log.With().Str("request_id", rid)
		if uid := c.GetHeader(userIDHeader); uid != "" {
			lc = lc.Str("user_id", uid)
		}
		l := lc.Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// RequestID did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.Logger
	return &l
}

// Recovery turns a panic into a JSON 500 with the request id, or a bare 500
// when the handler had already started writing (an SSE stream, say).
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("route", routeOf(c)).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// routeOf is the matched route pattern, or the raw path for unmatched requests.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
