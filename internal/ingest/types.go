// Package ingest implements bulk coupon ingestion: parsing an uploaded
// spreadsheet into raw rows, validating and normalizing them against a company
// catalog, submitting the result with one of two upload strategies, and
// reporting the outcome.
//
// The package has no knowledge of HTTP or of the storage engine. Collaborators
// (catalog, record creation) are injected through the small interfaces below,
// and progress is reported through an Observer callback so callers decide how
// to present it.
package ingest

import (
	"context"
	"time"
)

// HeaderRows is the number of header lines preceding data in a source file.
// Row i (0-based) of the parsed data is shown to users as "Row i+HeaderRows+1".
const HeaderRows = 1

// Mode selects the upload strategy.
type Mode string

const (
	// ModeBatch submits every record in one grouped call without retries.
	ModeBatch Mode = "batch"
	// ModeIndividual submits records one at a time with bounded retry.
	ModeIndividual Mode = "individual"
)

// ParseMode maps a user supplied value to a Mode. Empty input yields def.
func ParseMode(s string, def Mode) (Mode, error) {
	switch Mode(s) {
	case "":
		return def, nil
	case ModeBatch, ModeIndividual:
		return Mode(s), nil
	default:
		return "", ErrInvalidMode
	}
}

// RawRow is one data line of an uploaded source, projected onto the known
// columns. Cells are kept as trimmed text; an empty string means absent.
// Line is the 1-based line in the source, or 0 when rows were built in code.
type RawRow struct {
	Line    int
	Code    string
	MRP     string
	Company string
	Points  string
}

// CompanyRecord is the catalog view of an issuing company.
type CompanyRecord struct {
	ID               string
	Name             string
	ConversionFactor float64
}

// ValidatedCoupon is a normalized row ready for submission.
type ValidatedCoupon struct {
	Row       int     `json:"row"`
	Code      string  `json:"code"`
	MRP       float64 `json:"mrp"`
	CompanyID string  `json:"company_id"`
	Points    int     `json:"points"`
}

// Status is the per-record state in individual mode.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusFailed }

// RecordStatus tracks one coupon through individual-mode submission.
type RecordStatus struct {
	Position int    `json:"position"`
	Row      int    `json:"row"`
	Code     string `json:"code"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts"`
}

// FailedEntry describes a record rejected in batch mode.
type FailedEntry struct {
	Row    int    `json:"row"`
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// BatchResult is the aggregate outcome of one grouped submission.
type BatchResult struct {
	SuccessCount  int           `json:"success_count"`
	FailedEntries []FailedEntry `json:"failed_entries"`
}

// Complete reports whether every record was accepted.
func (r BatchResult) Complete() bool { return len(r.FailedEntries) == 0 }

// CreateOutcome is the collaborator's answer for one record of a grouped call.
// Err is nil on success.
type CreateOutcome struct {
	RowIndex int
	Success  bool
	Err      error
}

// CatalogSource loads the company catalog snapshot used for one run.
type CatalogSource interface {
	Catalog(ctx context.Context) ([]CompanyRecord, error)
}

// BatchCreator creates many coupons in one grouped call. The returned slice
// must have one outcome per input, in input order.
type BatchCreator interface {
	CreateMany(ctx context.Context, coupons []ValidatedCoupon) ([]CreateOutcome, error)
}

// SingleCreator creates one coupon.
type SingleCreator interface {
	CreateOne(ctx context.Context, coupon ValidatedCoupon) error
}

// EventKind classifies progress events.
type EventKind string

const (
	EventTransition EventKind = "transition"
	EventRetry      EventKind = "retry"
	EventCompleted  EventKind = "completed"
)

// Event is emitted for every per-record state change in individual mode, for
// every retry, and once when a run completes.
type Event struct {
	Kind         EventKind     `json:"kind"`
	Record       RecordStatus  `json:"record"`
	From         Status        `json:"from,omitempty"`
	RetryIn      time.Duration `json:"retry_in,omitempty"`
	SuccessCount int           `json:"success_count,omitempty"`
	Total        int           `json:"total,omitempty"`
}

// Observer receives progress events synchronously.
type Observer func(Event)

func (o Observer) emit(ev Event) {
	if o != nil {
		o(ev)
	}
}
