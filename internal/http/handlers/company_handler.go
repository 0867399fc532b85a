// Company HTTP handlers.
//
// This file exposes REST endpoints for the company catalog:
//   - POST /companies                         (register)
//   - GET  /companies                         (list, paginated, ETag support)
//   - GET  /companies/{id}                    (fetch)
//   - PUT  /companies/{id}/conversion-factor  (update factor)
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rewards-backend/internal/domain"
	"github.com/tbourn/go-rewards-backend/internal/services"
)

// CreateCompanyRequest is the JSON payload for registering a company.
type CreateCompanyRequest struct {
	// Name is stored lowercase; lookups ignore case.
	Name string `json:"name" binding:"required" example:"Acme Foods"`
	// ConversionFactor is the percentage of MRP awarded as points.
	ConversionFactor float64 `json:"conversion_factor" binding:"required" example:"10"`
}

// UpdateConversionFactorRequest is the JSON payload for changing a factor.
type UpdateConversionFactorRequest struct {
	ConversionFactor float64 `json:"conversion_factor" binding:"required" example:"2.5"`
}

// ListCompaniesResponse wraps a page of companies and pagination information.
type ListCompaniesResponse struct {
	Companies  []domain.Company `json:"companies"`
	Pagination Pagination       `json:"pagination"`
}

func (h *Handlers) companyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrCompanyNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "company not found")
	case errors.Is(err, services.ErrCompanyExists):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCompanyName), errors.Is(err, services.ErrInvalidConversionFactor):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// CreateCompany godoc
// @ID          createCompany
// @Summary     Register a company
// @Description Registers an issuing company. Names are unique ignoring case.
// @Tags        Companies
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CreateCompanyRequest  true  "Company"
// @Success     201   {object}  domain.Company
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409   {object}  handlers.ErrorResponse  "Name taken"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /companies [post]
func (h *Handlers) CreateCompany(c *gin.Context) {
	var req CreateCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and conversion_factor are required")
		return
	}
	co, err := h.companySvc.Create(c.Request.Context(), req.Name, req.ConversionFactor)
	if err != nil {
		h.companyError(c, err)
		return
	}
	ok(c, http.StatusCreated, co)
}

// ListCompanies godoc
// @ID          listCompanies
// @Summary     List companies (paginated)
// @Description Returns a page of companies ordered by name. Supports weak ETag via If-None-Match.
// @Tags        Companies
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListCompaniesResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /companies [get]
func (h *Handlers) ListCompanies(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	if count, maxTS, err := h.companySvc.Stats(ctx); err == nil {
		etag := fmt.Sprintf(`W/"companies:%d:%d:%d:%d"`, count, unixOrZero(maxTS), page, pageSize)
		if notModified(c, etag) {
			return
		}
	}

	items, total, err := h.companySvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListCompaniesResponse{Companies: items, Pagination: paginate(page, pageSize, total)})
}

// GetCompany godoc
// @ID          getCompany
// @Summary     Get a company
// @Tags        Companies
// @Produce     json
// @Param       id   path      string  true  "Company ID"  format(uuid)
// @Success     200  {object}  domain.Company
// @Failure     404  {object}  handlers.ErrorResponse "Not found"
// @Router      /companies/{id} [get]
func (h *Handlers) GetCompany(c *gin.Context) {
	co, err := h.companySvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.companyError(c, err)
		return
	}
	ok(c, http.StatusOK, co)
}

// UpdateConversionFactor godoc
// @ID          updateConversionFactor
// @Summary     Change a company's conversion factor
// @Description Affects points of coupons created afterwards only.
// @Tags        Companies
// @Accept      json
// @Produce     json
// @Param       id    path      string  true  "Company ID"  format(uuid)
// @Param       body  body      handlers.UpdateConversionFactorRequest  true  "New factor"
// @Success     200   {object}  domain.Company
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     404   {object}  handlers.ErrorResponse "Not found"
// @Router      /companies/{id}/conversion-factor [put]
func (h *Handlers) UpdateConversionFactor(c *gin.Context) {
	var req UpdateConversionFactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversion_factor is required")
		return
	}
	co, err := h.companySvc.UpdateConversionFactor(c.Request.Context(), c.Param("id"), req.ConversionFactor)
	if err != nil {
		h.companyError(c, err)
		return
	}
	ok(c, http.StatusOK, co)
}
