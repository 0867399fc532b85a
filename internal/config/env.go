package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-rewards-backend/internal/sysutil"
)

// envReader reads typed environment variables. Unset or empty variables take
// the default; malformed ones are collected as errors so a typo in
// INGEST_MAX_BACKOFF fails startup instead of silently running with 10s.
type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func newEnvReader() *envReader { return &envReader{lookup: os.LookupEnv} }

func (e *envReader) raw(k string) (string, bool) {
	v, ok := e.lookup(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) bad(k, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s: %q is not %s", k, v, want))
}

func (e *envReader) str(k, def string) string {
	if v, ok := e.raw(k); ok {
		return v
	}
	return def
}

func (e *envReader) lower(k, def string) string {
	return strings.ToLower(e.str(k, def))
}

func (e *envReader) int(k string, def int) int {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.bad(k, v, "an integer")
		return def
	}
	return i
}

func (e *envReader) float(k string, def float64) float64 {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.bad(k, v, "a number")
		return def
	}
	return f
}

func (e *envReader) bool(k string, def bool) bool {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	b, known := sysutil.ParseSwitch(v)
	if !known {
		e.bad(k, v, "a boolean")
		return def
	}
	return b
}

func (e *envReader) dur(k string, def time.Duration) time.Duration {
	v, ok := e.raw(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.bad(k, v, "a duration")
		return def
	}
	return d
}

// list splits a comma-separated value, dropping blanks.
func (e *envReader) list(k string) []string {
	v, ok := e.raw(k)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// empty means root.
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
