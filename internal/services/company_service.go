// Package services – CompanyService
//
// This file implements CompanyService, which owns the company catalog:
// registration with canonical (lowercase) names, lookups, paginated listing
// and conversion factor updates. It also serves the full catalog snapshot to
// the ingestion pipeline.
package services

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/domain"
	"github.com/tbourn/go-rewards-backend/internal/ingest"
	"github.com/tbourn/go-rewards-backend/internal/repo"
	"github.com/tbourn/go-rewards-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxCompanyNameRunes = 255

// CompanyService manages the company catalog.
type CompanyService struct {
	DB *gorm.DB
}

// NewCompanyService constructs a CompanyService.
func NewCompanyService(db *gorm.DB) *CompanyService {
	return &CompanyService{DB: db}
}

// Create registers a company. Names are canonicalized to lowercase, so
// "ACME" and "acme" collide.
func (s *CompanyService) Create(ctx context.Context, name string, factor float64) (*domain.Company, error) {
	ctx, span := otel.Tracer("services/CompanyService").Start(ctx, "Create")
	defer span.End()

	name = ingest.CanonicalCompanyName(normalizeWhitespace(name))
	if name == "" || utf8.RuneCountInString(name) > maxCompanyNameRunes {
		return nil, ErrInvalidCompanyName
	}
	if !validFactor(factor) {
		return nil, ErrInvalidConversionFactor
	}
	span.SetAttributes(attribute.String("company.name", name))

	c, err := repo.CreateCompany(ctx, s.DB, name, factor)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrCompanyExists
	}
	return c, err
}

// Get returns a company by id.
func (s *CompanyService) Get(ctx context.Context, id string) (*domain.Company, error) {
	c, err := repo.GetCompany(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCompanyNotFound
	}
	return c, err
}

// GetByName resolves a company by name, ignoring case.
func (s *CompanyService) GetByName(ctx context.Context, name string) (*domain.Company, error) {
	c, err := repo.GetCompanyByName(ctx, s.DB, ingest.CanonicalCompanyName(normalizeWhitespace(name)))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCompanyNotFound
	}
	return c, err
}

// List returns every company ordered by name.
func (s *CompanyService) List(ctx context.Context) ([]domain.Company, error) {
	return repo.ListCompanies(ctx, s.DB)
}

// ListPage returns a page of companies and the total count. Invalid
// page/pageSize values fall back to 1/20.
func (s *CompanyService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Company, int64, error) {
	ctx, span := otel.Tracer("services/CompanyService").Start(ctx, "ListPage",
		trace.WithAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize)))
	defer span.End()

	page, pageSize = utils.Normalize(page, pageSize)
	total, err := repo.CountCompanies(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Company{}, 0, nil
	}
	items, err := repo.ListCompaniesPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// UpdateConversionFactor changes the factor used for future point
// derivations. Existing coupons keep their points.
func (s *CompanyService) UpdateConversionFactor(ctx context.Context, id string, factor float64) (*domain.Company, error) {
	ctx, span := otel.Tracer("services/CompanyService").Start(ctx, "UpdateConversionFactor",
		trace.WithAttributes(attribute.String("company.id", id)))
	defer span.End()

	if !validFactor(factor) {
		return nil, ErrInvalidConversionFactor
	}
	if err := repo.UpdateConversionFactor(ctx, s.DB, id, factor); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// Stats returns count and last modification time of the catalog, used for ETags.
func (s *CompanyService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.CompaniesStats(ctx, s.DB)
}

// Catalog loads the full company list as an ingestion catalog snapshot.
func (s *CompanyService) Catalog(ctx context.Context) ([]ingest.CompanyRecord, error) {
	cs, err := repo.ListCompanies(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	out := make([]ingest.CompanyRecord, len(cs))
	for i, c := range cs {
		out[i] = ingest.CompanyRecord{ID: c.ID, Name: c.Name, ConversionFactor: c.ConversionFactor}
	}
	return out, nil
}

func validFactor(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// normalizeWhitespace trims and collapses runs of whitespace to one space.
func normalizeWhitespace(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
