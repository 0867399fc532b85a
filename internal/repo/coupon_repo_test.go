package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-rewards-backend/internal/domain"
)

func TestCreateCoupon_MapsConstraintErrors(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	a := seedCompany(t, db, "acme", 10)

	c := &domain.Coupon{Code: "A1", MRP: 100, CompanyID: a.ID, Points: 10}
	if err := CreateCoupon(ctx, db, c); err != nil {
		t.Fatalf("CreateCoupon: %v", err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		t.Fatalf("id/timestamps not set: %+v", c)
	}

	if err := CreateCoupon(ctx, db, &domain.Coupon{Code: "A1", MRP: 100, CompanyID: a.ID, Points: 10}); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := CreateCoupon(ctx, db, &domain.Coupon{Code: "A2", MRP: 100, CompanyID: "nope", Points: 10}); err != ErrForeignKey {
		t.Fatalf("expected ErrForeignKey, got %v", err)
	}

	got, err := GetCouponByCode(ctx, db, "A1")
	if err != nil || got.Points != 10 {
		t.Fatalf("GetCouponByCode = %+v, %v", got, err)
	}
	if _, err := GetCouponByCode(ctx, db, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateCouponsBatch_PartialCommit(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	a := seedCompany(t, db, "acme", 10)

	if err := CreateCoupon(ctx, db, &domain.Coupon{Code: "TAKEN", MRP: 10, CompanyID: a.ID, Points: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	batch := []domain.Coupon{
		{Code: "TAKEN", MRP: 10, CompanyID: a.ID, Points: 1},
		{Code: "OK1", MRP: 10, CompanyID: a.ID, Points: 1},
		{Code: "BADCO", MRP: 10, CompanyID: "nope", Points: 1},
		{Code: "OK2", MRP: 10, CompanyID: a.ID, Points: 1},
		{Code: "OK1", MRP: 10, CompanyID: a.ID, Points: 1}, // duplicate within the same batch
	}
	errs, err := CreateCouponsBatch(ctx, db, batch)
	if err != nil {
		t.Fatalf("CreateCouponsBatch: %v", err)
	}
	want := []error{ErrDuplicate, nil, ErrForeignKey, nil, ErrDuplicate}
	for i := range want {
		if errs[i] != want[i] {
			t.Fatalf("errs[%d] = %v, want %v", i, errs[i], want[i])
		}
	}

	// accepted rows committed, no rollback of successes
	n, err := CountCoupons(ctx, db, CouponFilter{})
	if err != nil || n != 3 {
		t.Fatalf("CountCoupons = %d, %v; want 3", n, err)
	}
	for _, code := range []string{"OK1", "OK2"} {
		if _, err := GetCouponByCode(ctx, db, code); err != nil {
			t.Fatalf("%s should be committed: %v", code, err)
		}
	}
	if _, err := GetCouponByCode(ctx, db, "BADCO"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected coupon must not be stored, got %v", err)
	}
}

func TestCreateCouponsBatch_CancelledContext(t *testing.T) {
	db := newTestDB(t, true)
	a := seedCompany(t, db, "acme", 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CreateCouponsBatch(ctx, db, []domain.Coupon{{Code: "X", MRP: 10, CompanyID: a.ID, Points: 1}})
	if err == nil {
		t.Fatalf("expected an error for a cancelled context")
	}
	if n, _ := CountCoupons(context.Background(), db, CouponFilter{}); n != 0 {
		t.Fatalf("nothing may be committed, got %d", n)
	}
}

func TestListCouponsPage_Filters(t *testing.T) {
	db := newTestDB(t, true)
	ctx := context.Background()
	a := seedCompany(t, db, "acme", 10)
	b := seedCompany(t, db, "globex", 10)
	run := "run-1"

	for _, c := range []*domain.Coupon{
		{Code: "A1", MRP: 10, CompanyID: a.ID, Points: 1, RunID: &run},
		{Code: "A2", MRP: 10, CompanyID: a.ID, Points: 1},
		{Code: "B1", MRP: 10, CompanyID: b.ID, Points: 1, RunID: &run},
	} {
		if err := CreateCoupon(ctx, db, c); err != nil {
			t.Fatalf("seed %s: %v", c.Code, err)
		}
	}

	got, err := ListCouponsPage(ctx, db, CouponFilter{CompanyID: a.ID}, 0, 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("company filter = %+v, %v", got, err)
	}
	got, err = ListCouponsPage(ctx, db, CouponFilter{RunID: run}, 0, 10)
	if err != nil || len(got) != 2 {
		t.Fatalf("run filter = %+v, %v", got, err)
	}
	if n, _ := CountCoupons(ctx, db, CouponFilter{CompanyID: b.ID, RunID: run}); n != 1 {
		t.Fatalf("combined filter count = %d", n)
	}
	got, _ = ListCouponsPage(ctx, db, CouponFilter{}, 2, 10)
	if len(got) != 1 {
		t.Fatalf("offset not applied: %d", len(got))
	}
}
