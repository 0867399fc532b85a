package ingest

import (
	"context"
	"errors"
	"fmt"
)

// BatchUploader submits all coupons in a single grouped call.
type BatchUploader struct {
	Creator BatchCreator
}

// Run makes exactly one CreateMany call and pairs outcomes with coupons by
// position. Rejected records are reported, never retried, and accepted ones
// are not undone. A failure of the call itself wraps ErrSubmissionFailed.
func (u BatchUploader) Run(ctx context.Context, coupons []ValidatedCoupon) (BatchResult, error) {
	if u.Creator == nil {
		return BatchResult{}, fmt.Errorf("%w: no batch creator", ErrSubmissionFailed)
	}
	if len(coupons) == 0 {
		return BatchResult{FailedEntries: []FailedEntry{}}, nil
	}

	outcomes, err := u.Creator.CreateMany(ctx, coupons)
	if err != nil {
		if errors.Is(err, ErrSubmissionFailed) {
			return BatchResult{}, err
		}
		return BatchResult{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}
	if len(outcomes) != len(coupons) {
		return BatchResult{}, fmt.Errorf("%w: got %d outcomes for %d records",
			ErrSubmissionFailed, len(outcomes), len(coupons))
	}

	res := BatchResult{FailedEntries: []FailedEntry{}}
	for i, o := range outcomes {
		if o.Success && o.Err == nil {
			res.SuccessCount++
			continue
		}
		reason := "rejected"
		if o.Err != nil {
			reason = DescribeError(o.Err)
		}
		c := coupons[i]
		res.FailedEntries = append(res.FailedEntries, FailedEntry{
			Row:    c.Row,
			Code:   c.Code,
			Reason: reason,
		})
	}
	return res, nil
}
