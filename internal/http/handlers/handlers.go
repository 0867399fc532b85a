// Package handlers implements the rewards REST API on Gin: company and
// coupon CRUD, and coupon ingestion runs with their reports. Errors always
// use the ErrorResponse envelope.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rewards-backend/internal/domain"
	"github.com/tbourn/go-rewards-backend/internal/http/middleware"
	"github.com/tbourn/go-rewards-backend/internal/ingest"
	"github.com/tbourn/go-rewards-backend/internal/repo"
	"github.com/tbourn/go-rewards-backend/internal/services"
	"github.com/tbourn/go-rewards-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// CompanyService manages the company catalog.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CompanyService interface {
	Create(ctx context.Context, name string, factor float64) (*domain.Company, error)
	Get(ctx context.Context, id string) (*domain.Company, error)
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Company, int64, error)
	UpdateConversionFactor(ctx context.Context, id string, factor float64) (*domain.Company, error)
	// Stats returns the catalog size and last update, used for weak ETags.
	Stats(ctx context.Context) (int64, *time.Time, error)
}

// CouponService manages individual coupons.
type CouponService interface {
	Create(ctx context.Context, in services.CreateCouponInput) (*domain.Coupon, error)
	GetByCode(ctx context.Context, code string) (*domain.Coupon, error)
	ListPage(ctx context.Context, f repo.CouponFilter, page, pageSize int) ([]domain.Coupon, int64, error)
	Stats(ctx context.Context, f repo.CouponFilter) (int64, *time.Time, error)
}

// IngestionService runs and inspects bulk coupon ingestions.
type IngestionService interface {
	// Start ingests src; obs receives progress events after they are stored.
	Start(ctx context.Context, userID string, src ingest.Source, mode ingest.Mode, obs ingest.Observer) (*domain.IngestionRun, *ingest.Result, error)
	Get(ctx context.Context, userID, id string) (*domain.IngestionRun, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.IngestionRun, int64, error)
	Report(ctx context.Context, userID, id string) ([]ingest.ReportRow, error)
	FindByKey(ctx context.Context, userID, key string) (*domain.IngestionRun, error)
	RememberKey(ctx context.Context, userID, key, runID string, status int) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for companies, coupons and ingestions.
type Handlers struct {
	companySvc CompanyService
	couponSvc  CouponService
	ingestSvc  IngestionService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(companySvc CompanyService, couponSvc CouponService, ingestSvc IngestionService) *Handlers {
	return &Handlers{companySvc: companySvc, couponSvc: couponSvc, ingestSvc: ingestSvc}
}

// userID is the caller that owns runs and idempotency keys.
func userID(c *gin.Context) string { return middleware.UserID(c) }

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}

func paginate(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

// notModified sets etag and reports whether the
// client already holds it (in which case 304 has been written).
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}
