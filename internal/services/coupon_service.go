// Package services – CouponService
//
// This file implements CouponService: single coupon creation with the same
// point derivation the bulk ingestion uses, lookup by code, and paginated
// listing with filters.
package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/domain"
	"github.com/tbourn/go-rewards-backend/internal/ingest"
	"github.com/tbourn/go-rewards-backend/internal/repo"
	"github.com/tbourn/go-rewards-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CreateCouponInput describes one coupon. Exactly one of CompanyID or
// CompanyName is needed; Points is derived from the company's conversion
// factor when nil or <= 0.
type CreateCouponInput struct {
	Code        string
	MRP         float64
	CompanyID   string
	CompanyName string
	Points      *int
}

// CouponService manages individual coupons.
type CouponService struct {
	DB *gorm.DB
}

// NewCouponService constructs a CouponService.
func NewCouponService(db *gorm.DB) *CouponService {
	return &CouponService{DB: db}
}

// Create validates in and stores a coupon.
func (s *CouponService) Create(ctx context.Context, in CreateCouponInput) (*domain.Coupon, error) {
	ctx, span := otel.Tracer("services/CouponService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("coupon.code", in.Code)))
	defer span.End()

	code := strings.TrimSpace(in.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidCoupon)
	}
	if math.IsNaN(in.MRP) || math.IsInf(in.MRP, 0) || in.MRP < 1 {
		return nil, fmt.Errorf("%w: mrp must be a number >= 1", ErrInvalidCoupon)
	}

	company, err := s.resolveCompany(ctx, in)
	if err != nil {
		return nil, err
	}

	override := ""
	if in.Points != nil && *in.Points > 0 {
		override = strconv.Itoa(*in.Points)
	}
	points := ingest.Points(override, in.MRP, company.ConversionFactor)
	if points < 1 {
		return nil, fmt.Errorf("%w: points must be >= 1", ErrInvalidCoupon)
	}

	c := &domain.Coupon{Code: code, MRP: in.MRP, CompanyID: company.ID, Points: points}
	if err := repo.CreateCoupon(ctx, s.DB, c); err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			return nil, ErrCouponExists
		case errors.Is(err, repo.ErrForeignKey):
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *CouponService) resolveCompany(ctx context.Context, in CreateCouponInput) (*domain.Company, error) {
	companies := &CompanyService{DB: s.DB}
	switch {
	case strings.TrimSpace(in.CompanyID) != "":
		return companies.Get(ctx, strings.TrimSpace(in.CompanyID))
	case strings.TrimSpace(in.CompanyName) != "":
		return companies.GetByName(ctx, in.CompanyName)
	}
	return nil, fmt.Errorf("%w: company is required", ErrInvalidCoupon)
}

// GetByCode returns the coupon with the given code.
func (s *CouponService) GetByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	c, err := repo.GetCouponByCode(ctx, s.DB, strings.TrimSpace(code))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCouponNotFound
	}
	return c, err
}

// ListPage returns a filtered page of coupons and the total count.
func (s *CouponService) ListPage(ctx context.Context, f repo.CouponFilter, page, pageSize int) ([]domain.Coupon, int64, error) {
	ctx, span := otel.Tracer("services/CouponService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("company.id", f.CompanyID),
			attribute.String("run.id", f.RunID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		))
	defer span.End()

	page, pageSize = utils.Normalize(page, pageSize)
	total, err := repo.CountCoupons(ctx, s.DB, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Coupon{}, 0, nil
	}
	items, err := repo.ListCouponsPage(ctx, s.DB, f, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// Stats returns count and last modification time for f, used for ETags.
func (s *CouponService) Stats(ctx context.Context, f repo.CouponFilter) (int64, *time.Time, error) {
	return repo.CouponsStats(ctx, s.DB, f)
}
