// Package retry runs fallible operations under a bounded constant-delay
// policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Policy is a constant delay between attempts and a cap on the total number
// of attempts, the first one included.
type Policy struct {
	Delay       time.Duration
	MaxAttempts int
}

// Default is shared by sensor initialization and every measurement cycle.
var Default = Policy{Delay: 100 * time.Millisecond, MaxAttempts: 20}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), retries), ctx)
}

// Do invokes op until it succeeds or the policy is exhausted, in which case
// the error of the last attempt is returned unchanged. Cancelling ctx ends a
// pending wait and returns ctx.Err().
func Do[T any](ctx context.Context, p Policy, log logrus.FieldLogger, op func() (T, error)) (T, error) {
	notify := func(err error, wait time.Duration) {
		if log == nil {
			return
		}
		log.WithError(err).Error("attempt failed")
		log.WithField("wait", wait).Infof("retrying in %s", wait)
	}
	return backoff.RetryNotifyWithData[T](op, p.backOff(ctx), notify)
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, log logrus.FieldLogger, op func() error) error {
	_, err := Do(ctx, p, log, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
