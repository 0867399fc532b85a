package ingest

import (
	"context"
	"fmt"
	"time"
)

// Result is the end state of one pipeline run.
type Result struct {
	Mode         Mode           `json:"mode"`
	Total        int            `json:"total"`
	SuccessCount int            `json:"success_count"`
	FailedCount  int            `json:"failed_count"`
	Batch        *BatchResult   `json:"batch,omitempty"`
	Records      []RecordStatus `json:"records,omitempty"`
	Complete     bool           `json:"complete"`
}

// Summary returns the count view of r.
func (r *Result) Summary() Summary {
	if r.Batch != nil {
		return SummarizeBatch(*r.Batch, r.Total)
	}
	s := Summary{Total: r.Total, Succeeded: r.SuccessCount, Failed: r.FailedCount}
	for _, rec := range r.Records {
		if rec.Status == StatusFailed {
			s.Failures = append(s.Failures, FailedEntry{Row: rec.Row, Code: rec.Code, Reason: rec.Message})
		}
	}
	return s
}

// Pipeline wires parse, validate and submit together.
type Pipeline struct {
	Catalog CatalogSource
	Batch   BatchCreator
	Single  SingleCreator

	DefaultMode      Mode
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	SuggestThreshold float64

	// OnValidated, when set, runs after validation succeeds and before any
	// submission. An error aborts the run.
	OnValidated func(ctx context.Context, mode Mode, coupons []ValidatedCoupon) error
}

// Prepare parses and validates src without submitting anything.
func (p *Pipeline) Prepare(ctx context.Context, src Source) ([]ValidatedCoupon, error) {
	rows, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if p.Catalog == nil {
		return nil, fmt.Errorf("ingest: no catalog source")
	}
	records, err := p.Catalog.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	opts := []CatalogOption{}
	if p.SuggestThreshold != 0 {
		opts = append(opts, WithSuggestThreshold(p.SuggestThreshold))
	}
	return Validate(rows, NewCatalog(records, opts...))
}

// Run executes every stage for src in mode. An empty mode uses DefaultMode,
// then batch. Observer events are delivered on the calling goroutine.
func (p *Pipeline) Run(ctx context.Context, src Source, mode Mode, obs Observer) (*Result, error) {
	def := p.DefaultMode
	if def == "" {
		def = ModeBatch
	}
	mode, err := ParseMode(string(mode), def)
	if err != nil {
		return nil, err
	}

	coupons, err := p.Prepare(ctx, src)
	if err != nil {
		return nil, err
	}
	if p.OnValidated != nil {
		if err := p.OnValidated(ctx, mode, coupons); err != nil {
			return nil, err
		}
	}
	return p.Submit(ctx, coupons, mode, obs)
}

// Submit runs the upload strategy for mode over already validated coupons.
func (p *Pipeline) Submit(ctx context.Context, coupons []ValidatedCoupon, mode Mode, obs Observer) (*Result, error) {
	res := &Result{Mode: mode, Total: len(coupons)}

	switch mode {
	case ModeBatch:
		br, err := BatchUploader{Creator: p.Batch}.Run(ctx, coupons)
		if err != nil {
			return nil, err
		}
		res.Batch = &br
		res.SuccessCount = br.SuccessCount
		res.FailedCount = len(br.FailedEntries)
		res.Complete = br.Complete()
		obs.emit(Event{Kind: EventCompleted, SuccessCount: res.SuccessCount, Total: res.Total})
		return res, nil

	case ModeIndividual:
		up := IndividualUploader{
			Creator:      p.Single,
			MaxAttempts:  p.MaxAttempts,
			InitialDelay: p.InitialDelay,
			MaxDelay:     p.MaxDelay,
		}
		table, err := up.Run(ctx, coupons, obs)
		res.Records = table
		res.SuccessCount = CountSuccess(table)
		for _, r := range table {
			if r.Status == StatusFailed {
				res.FailedCount++
			}
		}
		res.Complete = err == nil && res.FailedCount == 0
		if err != nil {
			return res, err
		}
		return res, nil

	default:
		return nil, ErrInvalidMode
	}
}
