package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	defaultHSTSMaxAge = 180 * 24 * time.Hour
	exposeHeadersName = "Access-Control-Expose-Headers"
)

// SecurityOptions selects the optional security headers.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	HSTSMaxAge time.Duration // <= 0 means 180 days
	// NoStore marks every response uncacheable.
	NoStore bool
	// EnablePolicy sends Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
	// ExposeHeaders are exposed to browsers alongside X-Request-ID, e.g.
	// Content-Disposition so a web client can name a downloaded report.
	ExposeHeaders []string
}

type headerPair struct{ name, value string }

// SecurityHeaders hardens API responses. The header set is fixed when the
// middleware is built; only HSTS and the expose list depend on the request.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := []headerPair{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		static = append(static,
			headerPair{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			headerPair{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	if opt.NoStore {
		static = append(static,
			headerPair{"Cache-Control", "no-store"},
			headerPair{"Pragma", "no-cache"},
			headerPair{"Expires", "0"},
		)
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"
	exposed := append([]string{requestIDHeader}, opt.ExposeHeaders...)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, p := range static {
			h.Set(p.name, p.value)
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		// nothing to correlate without a request id
		if h.Get(requestIDHeader) != "" {
			for _, name := range exposed {
				expose(h, name)
			}
		}
		c.Next()
	}
}

// isHTTPS trusts X-Forwarded-Proto from the fronting proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// expose adds name to Access-Control-Expose-Headers once.
func expose(h http.Header, name string) {
	cur := h.Get(exposeHeadersName)
	if cur == "" {
		h.Set(exposeHeadersName, name)
		return
	}
	for _, have := range strings.Split(cur, ",") {
		if strings.EqualFold(strings.TrimSpace(have), name) {
			return
		}
	}
	h.Set(exposeHeadersName, cur+", "+name)
}
