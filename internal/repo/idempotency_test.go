package repo

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-rewards-backend/internal/domain"
)

func TestGetIdempotency_BlankScopeOrKey_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, true)
	now := time.Now().UTC()

	for _, tc := range [][2]string{{"   ", "k1"}, {"ingestions", ""}} {
		rec, err := GetIdempotency(context.Background(), db, "u1", tc[0], tc[1], now)
		if rec != nil || err != ErrNotFound {
			t.Fatalf("expected (nil, ErrNotFound) for %q/%q, got (%v, %v)", tc[0], tc[1], rec, err)
		}
	}
}

func TestGetIdempotency_ExpiredOrMissing_ReturnsNotFound(t *testing.T) {
	db := newTestDB(t, true)
	now := time.Now().UTC()

	exp := &domain.Idempotency{
		ID: "expired", UserID: "u1", Scope: "ingestions", Key: "k1", ResourceID: "r1",
		Status: 201, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	if err := db.Create(exp).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := GetIdempotency(context.Background(), db, "u1", "ingestions", "k1", now); err != ErrNotFound {
		t.Fatalf("expired record should be invisible, got %v", err)
	}
	if _, err := GetIdempotency(context.Background(), db, "u1", "ingestions", "other", now); err != ErrNotFound {
		t.Fatalf("missing record should be ErrNotFound, got %v", err)
	}
}

func TestCreateAndGetIdempotency(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()

	rec, err := CreateIdempotency(ctx, db, "u1", "ingestions", "k1", "run-1", 201, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || !rec.ExpiresAt.After(rec.CreatedAt) {
		t.Fatalf("unexpected record %+v", rec)
	}

	got, err := GetIdempotency(ctx, db, "u1", "ingestions", "k1", time.Now().UTC())
	if err != nil || got.ResourceID != "run-1" || got.Status != 201 {
		t.Fatalf("get = %+v, %v", got, err)
	}

	// same key, other user or scope: independent
	if _, err := GetIdempotency(ctx, db, "u2", "ingestions", "k1", time.Now().UTC()); err != ErrNotFound {
		t.Fatalf("other user must not see the record, got %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "coupons", "k1", "c-1", 201, time.Hour); err != nil {
		t.Fatalf("other scope should be accepted: %v", err)
	}

	if _, err := CreateIdempotency(ctx, db, "u1", "ingestions", "k1", "run-2", 201, time.Hour); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestCreateIdempotency_Error_NoTable(t *testing.T) {
	db := newTestDB(t, false)
	_, err := CreateIdempotency(context.Background(), db, "u1", "s", "k", "r", 201, time.Minute)
	if err == nil || err == ErrDuplicate {
		t.Fatalf("expected raw DB error, got %v", err)
	}
}

func TestPurgeExpiredIdempotency(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	if _, err := CreateIdempotency(ctx, db, "u1", "s", "old", "r", 201, time.Millisecond); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "u1", "s", "new", "r", 201, time.Hour); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err := PurgeExpiredIdempotency(ctx, db, time.Now().UTC().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("purge = (%d,%v), want (1,nil)", n, err)
	}
}
