package handlers

// Error codes carried in ErrorResponse.Code. Clients branch on these, not on
// messages. Middleware answers with its own codes: rate_limited,
// bad_idempotency_key and internal_error.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Upload rejections.
	ErrCodeTooLarge        = "payload_too_large"
	ErrCodeUnsupportedType = "unsupported_format"
	ErrCodeEmptySource     = "empty_source"
	ErrCodeInvalidMode     = "invalid_mode"

	// ErrCodeUnprocessable comes with one errors[] entry per invalid row.
	ErrCodeUnprocessable = "validation_failed"
	// ErrCodeBadGateway means the grouped coupon submission itself failed.
	ErrCodeBadGateway = "submission_failed"

	ErrCodeCreateFailed = "create_failed"
	ErrCodeListFailed   = "list_failed"
	ErrCodeReportFailed = "report_failed"
	ErrCodeIngestFailed = "ingest_failed"
)
