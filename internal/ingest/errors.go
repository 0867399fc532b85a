package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrEmptySource is returned when a source yields no data rows.
	ErrEmptySource = errors.New("source contains no rows")

	// ErrValidationFailed matches any *ValidationError.
	ErrValidationFailed = errors.New("validation failed")

	// ErrSubmissionFailed wraps failures of the grouped batch call itself.
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrInvalidMode is returned for an unknown upload mode.
	ErrInvalidMode = errors.New("mode must be batch or individual")

	// ErrUnsupportedFormat is returned for source files that are neither CSV nor XLSX.
	ErrUnsupportedFormat = errors.New("unsupported source format")

	// ErrMalformedSource wraps CSV/XLSX decoding failures.
	ErrMalformedSource = errors.New("malformed source")
)

// ValidationError carries every message collected while validating a source.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string { return strings.Join(e.Messages, "\n") }

// Is lets errors.Is(err, ErrValidationFailed) match.
func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

// StructuredError is the shape of a storage collaborator rejection: a summary
// message plus an optional payload, usually keyed by field name.
type StructuredError struct {
	Message string
	Data    map[string]any
}

func (e *StructuredError) Error() string { return DescribeError(e) }

// DescribeError renders err for display. Structured errors list their field
// details in key order after the summary; anything else falls back to the raw
// error text.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	var se *StructuredError
	if !errors.As(err, &se) {
		return err.Error()
	}
	if len(se.Data) == 0 {
		return se.Message
	}
	keys := make([]string, 0, len(se.Data))
	for k := range se.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+detailText(se.Data[k]))
	}
	if se.Message == "" {
		return strings.Join(parts, "; ")
	}
	return se.Message + " " + strings.Join(parts, "; ")
}

// detailText flattens one payload value. Nested {"message": "..."} objects are
// reduced to their message.
func detailText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if m, ok := t["message"].(string); ok {
			return m
		}
	}
	return fmt.Sprint(v)
}
