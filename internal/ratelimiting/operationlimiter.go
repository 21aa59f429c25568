package ratelimiting

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Spaces out operations against a shared upstream.
//
// An operation is only started if it can complete before the deadline of its
// context, given the time it has to wait for a token and minOperationTime.
type OperationLimiter struct {
	limiter   *rate.Limiter
	nowFunc   func() time.Time
	afterFunc func(time.Duration) <-chan time.Time
}

// Allows limit operations per window, with bursts of up to burst operations
func NewOperationLimiter(
	limit int,
	window time.Duration,
	burst int,
	nowFunc func() time.Time,
	afterFunc func(time.Duration) <-chan time.Time,
) *OperationLimiter {
	return &OperationLimiter{
		limiter:   rate.NewLimiter(rate.Every(window/time.Duration(limit)), burst),
		nowFunc:   nowFunc,
		afterFunc: afterFunc,
	}
}

// Runs operation once a token is available. Returns false if the operation was not run.
func (l *OperationLimiter) Limit(ctx context.Context, minOperationTime time.Duration, operation func(ctx context.Context)) bool {
	now := l.nowFunc()
	reservation := l.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false
	}

	wait := reservation.DelayFrom(now)
	if deadline, ok := ctx.Deadline(); ok && wait+minOperationTime > deadline.Sub(now) {
		reservation.CancelAt(now)
		return false
	}

	if wait > 0 {
		select {
		case <-ctx.Done():
			reservation.CancelAt(l.nowFunc())
			return false
		case <-l.afterFunc(wait):
		}
	}

	operation(ctx)
	return true
}
