package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries a client-chosen key on POSTs. Re-sending an
// upload with the same key returns the run it started instead of ingesting
// the file twice.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a stored result exists for the request's key.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyIdemReplay)
}

// IdempotencyOptions tunes key validation. Expiry belongs to the lookup.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 means 200
	Pattern *regexp.Regexp // nil means ^[A-Za-z0-9._~\-:]+$
	Scope   func(*gin.Context) string
}

// IdempotencyLookup reports whether a live record exists for
// (userID, scope, key) at now.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// IdempotencyValidator checks the Idempotency-Key header, stores it for the
// handler and, on POSTs, asks lookup whether this is a replay. A replay is
// flagged for the handler and exempted from rate limiting. Malformed keys get
// a 400; lookup failures are logged and the request proceeds as new.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	scopeOf := opts.Scope
	if scopeOf == nil {
		scopeOf = RouteScope
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil && c.Request.Method == http.MethodPost {
			exists, err := lookup(c.Request.Context(), UserID(c), scopeOf(c), key, time.Now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Str("idempotency_key", key).Msg("idempotency lookup failed")
			case exists:
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

// RouteScope is the last static segment of the matched route, so
// POST /api/v1/ingestions is scoped "ingestions".
func RouteScope(c *gin.Context) string {
	segs := strings.Split(strings.Trim(c.FullPath(), "/"), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if s := segs[i]; s != "" && !strings.HasPrefix(s, ":") && !strings.HasPrefix(s, "*") {
			return s
		}
	}
	return ""
}
