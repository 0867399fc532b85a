// Package services defines the business logic for companies, coupons and
// ingestion runs. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Company-related errors.
var (
	// ErrCompanyNotFound indicates that the requested company does not exist.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrCompanyExists is returned when a company with the same canonical name
	// is already registered.
	ErrCompanyExists = errors.New("company already exists")

	// ErrInvalidCompanyName is returned for blank or overlong names.
	ErrInvalidCompanyName = errors.New("company name is required (max 255 characters)")

	// ErrInvalidConversionFactor is returned when a factor is not a finite
	// number greater than zero.
	ErrInvalidConversionFactor = errors.New("conversion factor must be a number > 0")
)

// Coupon-related errors.
var (
	// ErrCouponNotFound indicates that no coupon has the requested code.
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrCouponExists is returned when the coupon code is already taken.
	ErrCouponExists = errors.New("coupon code already exists")

	// ErrInvalidCoupon is returned when a single coupon fails validation.
	ErrInvalidCoupon = errors.New("invalid coupon")
)

// Ingestion-related errors.
var (
	// ErrRunNotFound indicates that the run does not exist or is not owned by
	// the current user.
	ErrRunNotFound = errors.New("ingestion run not found")
)
