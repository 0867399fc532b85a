package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

const redacted = "[REDACTED]"

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// digits only, so hex runs never look like a phone number
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// defaultMaskedHeaders are always replaced wholesale.
var defaultMaskedHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// defaultIDParams name query parameters that carry resource ids. They are
// logged verbatim since a company or run id is what an operator greps for.
var defaultIDParams = []string{"company_id", "run_id"}

// redactor scrubs contact details out of query strings and header values.
type redactor struct {
	masked   map[string]struct{}
	idParams map[string]struct{}
}

func newRedactor(maskHeaders, idParams []string) *redactor {
	r := &redactor{
		masked:   make(map[string]struct{}),
		idParams: make(map[string]struct{}),
	}
	for _, h := range append(defaultMaskedHeaders, maskHeaders...) {
		if h = strings.TrimSpace(h); h != "" {
			r.masked[http.CanonicalHeaderKey(h)] = struct{}{}
		}
	}
	for _, p := range append(defaultIDParams, idParams...) {
		r.idParams[p] = struct{}{}
	}
	return r
}

// text redacts free-form text. UUIDs go first: the phone pattern could
// otherwise bite into their all-digit groups.
func (r *redactor) text(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// query rebuilds raw with every value redacted except id parameters. An
// unparsable query is redacted as plain text.
func (r *redactor) query(raw string) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return r.text(raw)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		_, isID := r.idParams[k]
		for _, v := range vals[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			if !isID {
				v = r.text(v)
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(v)
		}
	}
	return b.String()
}

// headers flattens h, masking sensitive headers and redacting the rest.
func (r *redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.masked[http.CanonicalHeaderKey(k)]; ok {
			out[k] = redacted
			continue
		}
		out[k] = r.text(strings.Join(vv, ", "))
	}
	return out
}
