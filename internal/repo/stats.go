package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/domain"
)

// CouponsStats reports how many coupons match f and when the newest of them
// last changed. List ETags are derived from the pair; an empty set yields
// (0, nil).
func CouponsStats(ctx context.Context, db *gorm.DB, f CouponFilter) (int64, *time.Time, error) {
	return freshness(f.apply(db.WithContext(ctx).Model(&domain.Coupon{})))
}

// CompaniesStats is CouponsStats for the company catalog.
func CompaniesStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return freshness(db.WithContext(ctx).Model(&domain.Company{}))
}

func freshness(scope *gorm.DB) (int64, *time.Time, error) {
	var n int64
	if err := scope.Session(&gorm.Session{}).Count(&n).Error; err != nil || n == 0 {
		return 0, nil, err
	}
	// ORDER BY instead of MAX(): the sqlite driver hands MAX(datetime) back as text
	var newest struct{ UpdatedAt time.Time }
	err := scope.Session(&gorm.Session{}).
		Select("updated_at").
		Order("updated_at DESC").
		Limit(1).
		Scan(&newest).Error
	if err != nil {
		return 0, nil, err
	}
	return n, &newest.UpdatedAt, nil
}
