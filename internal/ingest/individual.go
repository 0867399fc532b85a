package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retry defaults for individual mode.
const (
	DefaultMaxAttempts  = 2
	DefaultInitialDelay = 500 * time.Millisecond
	MaxDelayCeiling     = 10 * time.Second
)

// Messages recorded on status transitions.
const (
	MsgCreating = "Creating…"
	MsgCreated  = "Created"

	msgCancelled = "Cancelled after attempt %d/%d"
)

// IndividualUploader submits coupons one at a time, in input order, retrying
// each failed creation with exponential backoff.
type IndividualUploader struct {
	Creator SingleCreator

	// MaxAttempts is the total number of calls per record. Zero means 2.
	MaxAttempts int
	// InitialDelay is the wait before the first retry. It doubles per retry.
	InitialDelay time.Duration
	// MaxDelay caps a single wait. Values above 10s are clamped.
	MaxDelay time.Duration
}

func (u IndividualUploader) attempts() int {
	if u.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return u.MaxAttempts
}

func (u IndividualUploader) backOff() *backoff.ExponentialBackOff {
	initial := u.InitialDelay
	if initial <= 0 {
		initial = DefaultInitialDelay
	}
	maxDelay := u.MaxDelay
	if maxDelay <= 0 || maxDelay > MaxDelayCeiling {
		maxDelay = MaxDelayCeiling
	}
	if initial > maxDelay {
		initial = maxDelay
	}
	return &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxDelay,
	}
}

// Run processes coupons sequentially and returns the final per-record table.
// obs sees every transition as it happens, then one completed event.
//
// When ctx is cancelled the loop stops; records not yet attempted stay
// pending and ctx's error is returned along with the table. A record caught
// between attempts fails with a cancellation message and keeps the number of
// calls actually made.
func (u IndividualUploader) Run(ctx context.Context, coupons []ValidatedCoupon, obs Observer) ([]RecordStatus, error) {
	if u.Creator == nil {
		return nil, fmt.Errorf("%w: no single creator", ErrSubmissionFailed)
	}

	table := make([]RecordStatus, len(coupons))
	for i, c := range coupons {
		table[i] = RecordStatus{Position: i, Row: c.Row, Code: c.Code, Status: StatusPending}
		obs.emit(Event{Kind: EventTransition, Record: table[i]})
	}

	maxTries := u.attempts()
	success := 0
	for i, c := range coupons {
		if err := ctx.Err(); err != nil {
			return table, err
		}
		rec := &table[i]
		u.transition(rec, StatusProcessing, MsgCreating, obs)

		var lastErr error
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			rec.Attempts++
			lastErr = u.Creator.CreateOne(ctx, c)
			return struct{}{}, lastErr
		},
			backoff.WithBackOff(u.backOff()),
			backoff.WithMaxTries(uint(maxTries)),
			backoff.WithNotify(func(err error, next time.Duration) {
				rec.Message = fmt.Sprintf("Retrying (attempt %d/%d): %s", rec.Attempts+1, maxTries, DescribeError(err))
				obs.emit(Event{Kind: EventRetry, Record: *rec, From: StatusProcessing, RetryIn: next})
			}),
		)

		switch {
		case err == nil:
			success++
			u.transition(rec, StatusSuccess, MsgCreated, obs)
		case ctx.Err() != nil:
			// cancelled while this record was in flight or waiting to retry
			msg := fmt.Sprintf(msgCancelled, rec.Attempts, maxTries)
			if lastErr != nil && !errors.Is(lastErr, ctx.Err()) {
				msg += ": " + DescribeError(lastErr)
			}
			u.transition(rec, StatusFailed, msg, obs)
			return table, ctx.Err()
		default:
			u.transition(rec, StatusFailed, DescribeError(err), obs)
		}
	}

	obs.emit(Event{Kind: EventCompleted, SuccessCount: success, Total: len(coupons)})
	return table, nil
}

func (u IndividualUploader) transition(rec *RecordStatus, to Status, msg string, obs Observer) {
	from := rec.Status
	rec.Status = to
	rec.Message = msg
	obs.emit(Event{Kind: EventTransition, Record: *rec, From: from})
}

// CountSuccess returns how many records ended in success.
func CountSuccess(table []RecordStatus) int {
	n := 0
	for _, r := range table {
		if r.Status == StatusSuccess {
			n++
		}
	}
	return n
}
