package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/domain"
)

func prepareCoupon(c *domain.Coupon, now time.Time) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
}

// CreateCoupon inserts one coupon. Constraint errors are mapped to
// ErrDuplicate (code taken) or ErrForeignKey (unknown company).
func CreateCoupon(ctx context.Context, db *gorm.DB, c *domain.Coupon) error {
	prepareCoupon(c, time.Now().UTC())
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return classify(err)
	}
	return nil
}

// CreateCouponsBatch inserts coupons inside one transaction, guarding each
// insert with a savepoint. A rejected coupon is rolled back to its savepoint
// and reported at its index in errs; accepted coupons commit together.
//
// The returned error is non-nil only when the transaction itself fails, in
// which case nothing was committed.
func CreateCouponsBatch(ctx context.Context, db *gorm.DB, coupons []domain.Coupon) (errs []error, err error) {
	errs = make([]error, len(coupons))
	now := time.Now().UTC()

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range coupons {
			if err := ctx.Err(); err != nil {
				return err
			}
			prepareCoupon(&coupons[i], now)

			sp := fmt.Sprintf("coupon_%d", i)
			if err := tx.SavePoint(sp).Error; err != nil {
				return err
			}
			if err := tx.Create(&coupons[i]).Error; err != nil {
				if rbErr := tx.RollbackTo(sp).Error; rbErr != nil {
					return rbErr
				}
				errs[i] = classify(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return errs, nil
}

// GetCouponByCode fetches a coupon by its unique code, or ErrNotFound.
func GetCouponByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Coupon, error) {
	var c domain.Coupon
	if err := db.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CouponFilter narrows coupon listings. Zero values match everything.
type CouponFilter struct {
	CompanyID string
	RunID     string
}

func (f CouponFilter) apply(q *gorm.DB) *gorm.DB {
	if f.CompanyID != "" {
		q = q.Where("company_id = ?", f.CompanyID)
	}
	if f.RunID != "" {
		q = q.Where("run_id = ?", f.RunID)
	}
	return q
}

// CountCoupons returns the number of coupons matching f.
func CountCoupons(ctx context.Context, db *gorm.DB, f CouponFilter) (int64, error) {
	var total int64
	err := f.apply(db.WithContext(ctx).Model(&domain.Coupon{})).Count(&total).Error
	return total, err
}

// ListCouponsPage returns a page of coupons matching f, newest first.
func ListCouponsPage(ctx context.Context, db *gorm.DB, f CouponFilter, offset, limit int) ([]domain.Coupon, error) {
	var out []domain.Coupon
	err := f.apply(db.WithContext(ctx)).
		Order("created_at desc").
		Order("code asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
