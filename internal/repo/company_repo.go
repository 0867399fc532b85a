package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/domain"
)

// CreateCompany inserts a company. The caller passes the canonical name.
// A name collision returns ErrDuplicate.
func CreateCompany(ctx context.Context, db *gorm.DB, name string, factor float64) (*domain.Company, error) {
	now := time.Now().UTC()
	c := &domain.Company{
		ID:               uuid.NewString(),
		Name:             name,
		ConversionFactor: factor,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, classify(err)
	}
	return c, nil
}

// GetCompany fetches a company by id, or ErrNotFound.
func GetCompany(ctx context.Context, db *gorm.DB, id string) (*domain.Company, error) {
	var c domain.Company
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCompanyByName fetches a company by canonical name, or ErrNotFound.
func GetCompanyByName(ctx context.Context, db *gorm.DB, name string) (*domain.Company, error) {
	var c domain.Company
	if err := db.WithContext(ctx).Where("name = ?", name).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCompanies returns every company ordered by name.
func ListCompanies(ctx context.Context, db *gorm.DB) ([]domain.Company, error) {
	var out []domain.Company
	err := db.WithContext(ctx).Order("name asc").Find(&out).Error
	return out, err
}

// CountCompanies returns the number of companies.
func CountCompanies(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Company{}).Count(&total).Error
	return total, err
}

// ListCompaniesPage returns a page of companies ordered by name.
func ListCompaniesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Company, error) {
	var out []domain.Company
	err := db.WithContext(ctx).
		Order("name asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateConversionFactor sets a company's factor. Returns ErrNotFound when no
// row matched.
func UpdateConversionFactor(ctx context.Context, db *gorm.DB, id string, factor float64) error {
	res := db.WithContext(ctx).
		Model(&domain.Company{}).
		Where("id = ?", id).
		Update("conversion_factor", factor)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
