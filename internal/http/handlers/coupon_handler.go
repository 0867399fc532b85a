// Coupon HTTP handlers.
//
// This file exposes REST endpoints for single coupons:
//   - POST /coupons          (create one; points derived when omitted)
//   - GET  /coupons          (list, paginated, filterable, ETag support)
//   - GET  /coupons/{code}   (fetch by code)
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rewards-backend/internal/domain"
	"github.com/tbourn/go-rewards-backend/internal/repo"
	"github.com/tbourn/go-rewards-backend/internal/services"
)

// CreateCouponRequest is the JSON payload for creating one coupon. Either
// company_id or company (name) identifies the issuer.
type CreateCouponRequest struct {
	Code      string  `json:"code"       binding:"required" example:"SUMMER-001"`
	MRP       float64 `json:"mrp"        binding:"required" example:"250"`
	CompanyID string  `json:"company_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Company   string  `json:"company"    example:"acme foods"`
	// Points overrides the derived value when > 0.
	Points *int `json:"points,omitempty" example:"25"`
}

// ListCouponsResponse wraps a page of coupons and pagination information.
type ListCouponsResponse struct {
	Coupons    []domain.Coupon `json:"coupons"`
	Pagination Pagination      `json:"pagination"`
}

// CreateCoupon godoc
// @ID          createCoupon
// @Summary     Create a coupon
// @Description Creates one coupon. Points default to round(mrp * conversion_factor / 100).
// @Tags        Coupons
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreateCouponRequest  true  "Coupon"
// @Success     201   {object}  domain.Coupon
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse "Unknown company"
// @Failure     409   {object}  handlers.ErrorResponse "Code taken"
// @Router      /coupons [post]
func (h *Handlers) CreateCoupon(c *gin.Context) {
	var req CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code and mrp are required")
		return
	}
	cp, err := h.couponSvc.Create(c.Request.Context(), services.CreateCouponInput{
		Code:        req.Code,
		MRP:         req.MRP,
		CompanyID:   req.CompanyID,
		CompanyName: req.Company,
		Points:      req.Points,
	})
	switch {
	case err == nil:
		ok(c, http.StatusCreated, cp)
	case errors.Is(err, services.ErrInvalidCoupon):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrCompanyNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "company not found")
	case errors.Is(err, services.ErrCouponExists):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
	}
}

// ListCoupons godoc
// @ID          listCoupons
// @Summary     List coupons (paginated)
// @Description Returns a page of coupons, newest first. Supports weak ETag via If-None-Match.
// @Tags        Coupons
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       company_id     query   string  false  "Only coupons of this company"
// @Param       run_id         query   string  false  "Only coupons created by this ingestion run"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListCouponsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /coupons [get]
func (h *Handlers) ListCoupons(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)
	f := repo.CouponFilter{CompanyID: c.Query("company_id"), RunID: c.Query("run_id")}

	if count, maxTS, err := h.couponSvc.Stats(ctx, f); err == nil {
		etag := fmt.Sprintf(`W/"coupons:%s:%s:%d:%d:%d:%d"`, f.CompanyID, f.RunID, count, unixOrZero(maxTS), page, pageSize)
		if notModified(c, etag) {
			return
		}
	}

	items, total, err := h.couponSvc.ListPage(ctx, f, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListCouponsResponse{Coupons: items, Pagination: paginate(page, pageSize, total)})
}

// GetCoupon godoc
// @ID          getCoupon
// @Summary     Get a coupon by code
// @Tags        Coupons
// @Produce     json
// @Param       code  path      string  true  "Coupon code"
// @Success     200   {object}  domain.Coupon
// @Failure     404   {object}  handlers.ErrorResponse "Not found"
// @Router      /coupons/{code} [get]
func (h *Handlers) GetCoupon(c *gin.Context) {
	cp, err := h.couponSvc.GetByCode(c.Request.Context(), c.Param("code"))
	if errors.Is(err, services.ErrCouponNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "coupon not found")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, cp)
}
