package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-rewards-backend/internal/domain"
)

// GetIdempotency finds the unexpired record stored for (userID, scope, key).
// Blank scopes or keys never match.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(scope) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	q := db.WithContext(ctx).Where(map[string]any{"user_id": userID, "scope": scope, "key": key})
	switch err := q.Where("expires_at > ?", now).Take(&rec).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency remembers that key produced resourceID with status for
// ttl. A second writer for the same triple gets ErrDuplicate.
func CreateIdempotency(ctx context.Context, db *gorm.DB, userID, scope, key, resourceID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	created := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		UserID:     userID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		Status:     status,
		CreatedAt:  created,
		ExpiresAt:  created.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, classify(err)
	}
	return rec, nil
}

// PurgeExpiredIdempotency drops every record whose TTL ran out by now.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}
