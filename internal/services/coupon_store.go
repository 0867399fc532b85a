package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/domain"
	"github.com/tbourn/go-rewards-backend/internal/ingest"
	"github.com/tbourn/go-rewards-backend/internal/repo"
)

// Rejection payloads returned to the ingestion pipeline.
const (
	MsgCreateFailed  = "Failed to create record."
	MsgValueUnique   = "Value must be unique."
	MsgUnknownParent = "Referenced record does not exist."
)

// CouponStore persists validated coupons on behalf of the ingestion pipeline.
// It implements ingest.SingleCreator and ingest.BatchCreator.
type CouponStore struct {
	DB *gorm.DB
	// RunID, when set, tags created coupons with the ingestion run.
	RunID string
}

var (
	_ ingest.SingleCreator = (*CouponStore)(nil)
	_ ingest.BatchCreator  = (*CouponStore)(nil)
)

func (s *CouponStore) model(c ingest.ValidatedCoupon) domain.Coupon {
	m := domain.Coupon{
		Code:      c.Code,
		MRP:       c.MRP,
		CompanyID: c.CompanyID,
		Points:    c.Points,
	}
	if s.RunID != "" {
		id := s.RunID
		m.RunID = &id
	}
	return m
}

// CreateOne inserts a single coupon. Constraint violations come back as
// *ingest.StructuredError; other errors are returned as is.
func (s *CouponStore) CreateOne(ctx context.Context, c ingest.ValidatedCoupon) error {
	m := s.model(c)
	return rejection(repo.CreateCoupon(ctx, s.DB, &m))
}

// CreateMany inserts all coupons in one transaction with per-record
// savepoints. Rejected records do not affect accepted ones.
func (s *CouponStore) CreateMany(ctx context.Context, cs []ingest.ValidatedCoupon) ([]ingest.CreateOutcome, error) {
	models := make([]domain.Coupon, len(cs))
	for i, c := range cs {
		models[i] = s.model(c)
	}
	errs, err := repo.CreateCouponsBatch(ctx, s.DB, models)
	if err != nil {
		return nil, err
	}
	out := make([]ingest.CreateOutcome, len(cs))
	for i, e := range errs {
		out[i] = ingest.CreateOutcome{RowIndex: i, Success: e == nil, Err: rejection(e)}
	}
	return out, nil
}

// rejection converts repository constraint errors into the structured
// payload shown to operators.
func rejection(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrDuplicate):
		return &ingest.StructuredError{Message: MsgCreateFailed, Data: map[string]any{"code": MsgValueUnique}}
	case errors.Is(err, repo.ErrForeignKey):
		return &ingest.StructuredError{Message: MsgCreateFailed, Data: map[string]any{"company_id": MsgUnknownParent}}
	}
	return err
}
