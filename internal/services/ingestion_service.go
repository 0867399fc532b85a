// Package services – IngestionService
//
// This file implements IngestionService, which runs the coupon ingestion
// pipeline against the database: the catalog comes from CompanyService,
// coupons are written through CouponStore, and every run is recorded with
// per-record state so it can be inspected and exported afterwards.
//
// A run row is created only after the source validated; a rejected file
// leaves no trace beyond the returned error and the rejected-runs metric.
//
// Observability: Start is OpenTelemetry-instrumented and updates the
// ingestion_runs_total / ingestion_records_total counters.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/domain"
	"github.com/tbourn/go-rewards-backend/internal/ingest"
	"github.com/tbourn/go-rewards-backend/internal/observability"
	"github.com/tbourn/go-rewards-backend/internal/repo"
	"github.com/tbourn/go-rewards-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// IdempotencyScope is the idempotency scope of ingestion uploads.
const IdempotencyScope = "ingestions"

// runRejected labels runs that never started because the source was invalid.
const runRejected = "rejected"

// IngestionConfig tunes the pipeline.
type IngestionConfig struct {
	DefaultMode      ingest.Mode
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	SuggestThreshold float64
	IdempotencyTTL   time.Duration
}

// IngestionService runs and records coupon ingestions.
type IngestionService struct {
	DB     *gorm.DB
	Config IngestionConfig
}

// NewIngestionService constructs an IngestionService.
func NewIngestionService(db *gorm.DB, cfg IngestionConfig) *IngestionService {
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ingest.ModeBatch
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &IngestionService{DB: db, Config: cfg}
}

// Start ingests src for userID. obs, when non-nil, receives every progress
// event after it has been persisted.
//
// Errors:
//   - ingest.ErrEmptySource, *ingest.ValidationError, ingest.ErrInvalidMode:
//     nothing was stored and run is nil.
//   - ingest.ErrSubmissionFailed or a context error: the run exists and was
//     finalized as failed; both run and the partial result are returned.
func (s *IngestionService) Start(ctx context.Context, userID string, src ingest.Source, mode ingest.Mode, obs ingest.Observer) (*domain.IngestionRun, *ingest.Result, error) {
	tr := otel.Tracer("services/IngestionService")
	ctx, span := tr.Start(ctx, "Start",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("ingest.file", src.Name),
			attribute.String("ingest.mode", string(mode)),
		),
	)
	defer span.End()

	lg := zerolog.Ctx(ctx)
	// Bookkeeping writes must land even when the caller goes away mid-run.
	persist := context.WithoutCancel(ctx)

	runID := uuid.NewString()
	store := &CouponStore{DB: s.DB, RunID: runID}

	var (
		run     *domain.IngestionRun
		coupons []ingest.ValidatedCoupon
	)
	p := &ingest.Pipeline{
		Catalog:          &CompanyService{DB: s.DB},
		Batch:            store,
		Single:           store,
		DefaultMode:      s.Config.DefaultMode,
		MaxAttempts:      s.Config.MaxAttempts,
		InitialDelay:     s.Config.InitialDelay,
		MaxDelay:         s.Config.MaxDelay,
		SuggestThreshold: s.Config.SuggestThreshold,
		OnValidated: func(_ context.Context, m ingest.Mode, cs []ingest.ValidatedCoupon) error {
			coupons = cs
			r := &domain.IngestionRun{
				ID:       runID,
				UserID:   userID,
				Mode:     string(m),
				FileName: src.Name,
				Status:   domain.RunRunning,
				Total:    len(cs),
				Records:  make([]domain.IngestionRecord, len(cs)),
			}
			for i, c := range cs {
				r.Records[i] = domain.IngestionRecord{
					Position: i,
					Row:      c.Row,
					Code:     c.Code,
					Status:   string(ingest.StatusPending),
				}
			}
			if err := repo.CreateRun(persist, s.DB, r); err != nil {
				return err
			}
			run = r
			return nil
		},
	}

	spanEvents := observability.IngestObserver(ctx)
	observe := func(ev ingest.Event) {
		if run != nil && ev.Kind != ingest.EventCompleted && ev.Record.Status != ingest.StatusPending {
			err := repo.UpdateRecord(persist, s.DB, runID, ev.Record.Position, repo.RecordUpdate{
				Status:   string(ev.Record.Status),
				Message:  ev.Record.Message,
				Attempts: ev.Record.Attempts,
			})
			if err != nil {
				lg.Error().Err(err).Str("run_id", runID).Int("position", ev.Record.Position).Msg("persist record state")
			}
		}
		if ev.Kind == ingest.EventRetry {
			ingestionRetries.Inc()
		}
		if spanEvents != nil {
			spanEvents(ev)
		}
		if obs != nil {
			obs(ev)
		}
	}

	res, err := p.Run(ctx, src, mode, observe)
	if run == nil {
		// Nothing was persisted: parse, validation, mode or catalog failure.
		label := string(mode)
		if label == "" {
			label = string(s.Config.DefaultMode)
		}
		if errors.Is(err, ingest.ErrInvalidMode) {
			label = "unknown"
		}
		ingestionRuns.WithLabelValues(label, runRejected).Inc()
		span.SetStatus(codes.Error, "rejected")
		if err == nil {
			err = errors.New("ingestion produced no run")
		}
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("run.id", runID))

	if err == nil && res.Batch != nil {
		if uerr := s.applyBatch(persist, runID, coupons, *res.Batch); uerr != nil {
			lg.Error().Err(uerr).Str("run_id", runID).Msg("persist batch outcome")
		}
	}

	outcome := repo.RunOutcome{Total: run.Total, Status: domain.RunCompleted}
	if res != nil {
		outcome.Succeeded, outcome.Failed = res.SuccessCount, res.FailedCount
		if !res.Complete {
			outcome.Status = domain.RunCompletedWithErrors
		}
	}
	if err != nil {
		outcome.Status = domain.RunFailed
		outcome.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
	}
	if ferr := repo.FinishRun(persist, s.DB, runID, outcome); ferr != nil {
		lg.Error().Err(ferr).Str("run_id", runID).Msg("finalize run")
	}

	ingestionRuns.WithLabelValues(run.Mode, outcome.Status).Inc()
	ingestionRecords.WithLabelValues(run.Mode, "success").Add(float64(outcome.Succeeded))
	ingestionRecords.WithLabelValues(run.Mode, "failed").Add(float64(outcome.Failed))

	lg.Info().
		Str("run_id", runID).
		Str("mode", run.Mode).
		Str("status", outcome.Status).
		Int("total", outcome.Total).
		Int("succeeded", outcome.Succeeded).
		Int("failed", outcome.Failed).
		Msg("ingestion finished")

	final, gerr := repo.GetRun(persist, s.DB, runID, userID, true)
	if gerr != nil {
		final = run
	}
	return final, res, err
}

// applyBatch writes the per-record result of a grouped submission.
func (s *IngestionService) applyBatch(ctx context.Context, runID string, cs []ingest.ValidatedCoupon, br ingest.BatchResult) error {
	reasons := make(map[int]string, len(br.FailedEntries))
	for _, f := range br.FailedEntries {
		reasons[f.Row] = f.Reason
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, c := range cs {
			u := repo.RecordUpdate{Status: string(ingest.StatusSuccess), Message: ingest.MsgCreated, Attempts: 1}
			if reason, failed := reasons[c.Row]; failed {
				u = repo.RecordUpdate{Status: string(ingest.StatusFailed), Message: reason, Attempts: 1}
			}
			if err := repo.UpdateRecord(ctx, tx, runID, i, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns a run with its records.
func (s *IngestionService) Get(ctx context.Context, userID, id string) (*domain.IngestionRun, error) {
	run, err := repo.GetRun(ctx, s.DB, id, userID, true)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// ListPage returns a page of the user's runs (without records) and the total.
func (s *IngestionService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.IngestionRun, int64, error) {
	ctx, span := otel.Tracer("services/IngestionService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	page, pageSize = utils.Normalize(page, pageSize)
	total, err := repo.CountRuns(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.IngestionRun{}, 0, nil
	}
	items, err := repo.ListRunsPage(ctx, s.DB, userID, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Report returns the exportable outcome table of a run.
func (s *IngestionService) Report(ctx context.Context, userID, id string) ([]ingest.ReportRow, error) {
	ctx, span := otel.Tracer("services/IngestionService").Start(ctx, "Report",
		trace.WithAttributes(attribute.String("ingestion.run_id", id)))
	defer span.End()

	// ownership check only; records are read separately
	if _, err := repo.GetRun(ctx, s.DB, id, userID, false); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	recs, err := repo.ListRecords(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	return ingest.ReportRows(RecordStatuses(recs)), nil
}

// RecordStatuses converts stored records into pipeline statuses.
func RecordStatuses(recs []domain.IngestionRecord) []ingest.RecordStatus {
	out := make([]ingest.RecordStatus, len(recs))
	for i, r := range recs {
		out[i] = ingest.RecordStatus{
			Position: r.Position,
			Row:      r.Row,
			Code:     r.Code,
			Status:   ingest.Status(r.Status),
			Message:  r.Message,
			Attempts: r.Attempts,
		}
	}
	return out
}

// FindByKey returns the run previously bound to an Idempotency-Key, or
// ErrRunNotFound.
func (s *IngestionService) FindByKey(ctx context.Context, userID, key string) (*domain.IngestionRun, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, IdempotencyScope, key, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return s.Get(ctx, userID, rec.ResourceID)
}

// RememberKey binds key to runID. Binding the same key twice keeps the first.
func (s *IngestionService) RememberKey(ctx context.Context, userID, key, runID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, IdempotencyScope, key, runID, status, s.Config.IdempotencyTTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}
