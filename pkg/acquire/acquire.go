// Package acquire drives the periodic measure-and-store cycle.
package acquire

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ericogr/home-env-log/pkg/metrics"
	"github.com/ericogr/home-env-log/pkg/output"
	"github.com/ericogr/home-env-log/pkg/retry"
	"github.com/ericogr/home-env-log/pkg/sensor"
	"github.com/ericogr/home-env-log/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Interval is the fixed time between two acquisition cycles.
const Interval = 60 * time.Second

type State int32

const (
	Idle State = iota
	Acquiring
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	}
	return "unknown"
}

// Measurer produces one complete measurement or fails as a whole.
type Measurer interface {
	Measure() (sensor.Measurement, error)
}

type Loop struct {
	sensor  Measurer
	store   storage.Storage
	outputs []output.Output
	policy  retry.Policy
	log     logrus.FieldLogger
	metrics *metrics.Recorder
	state   atomic.Int32
}

type Option func(*Loop)

func WithPolicy(p retry.Policy) Option {
	return func(l *Loop) { l.policy = p }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Loop) { l.log = log }
}

// WithOutputs adds outputs that receive every stored measurement.
func WithOutputs(outs ...output.Output) Option {
	return func(l *Loop) { l.outputs = append(l.outputs, outs...) }
}

func WithMetrics(r *metrics.Recorder) Option {
	return func(l *Loop) { l.metrics = r }
}

func New(s Measurer, store storage.Storage, opts ...Option) *Loop {
	l := &Loop{
		sensor: s,
		store:  store,
		policy: retry.Default,
		log:    logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Loop) State() State { return State(l.state.Load()) }

// Cycle measures once under the retry policy and stores the result. A
// measurement that cannot be stored is dropped. The returned error is only
// informational; the next cycle does not depend on it.
func (l *Loop) Cycle(ctx context.Context) error {
	l.state.Store(int32(Acquiring))
	defer l.state.Store(int32(Idle))

	attempts := 0
	m, err := retry.Do(ctx, l.policy, l.log.WithField("stage", "measure"), func() (sensor.Measurement, error) {
		attempts++
		return l.sensor.Measure()
	})
	l.metrics.Retried(attempts - 1)
	if errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		l.log.WithError(err).Error("Failed to read sensor data")
		l.metrics.Skipped()
		return err
	}

	// A measurement that was read is stored even when shutdown has begun.
	if err := l.store.Insert(context.WithoutCancel(ctx), m); err != nil {
		l.log.WithError(err).Error("Failed to store measurement")
		l.metrics.Dropped()
		return err
	}
	l.metrics.Stored(m)
	l.log.Info(m.String())

	for _, o := range l.outputs {
		if err := o.Publish(m); err != nil {
			l.log.WithError(err).Warn("output publish failed")
		}
	}
	return nil
}

// Run performs one cycle per tick until ctx is done or ticks is closed.
// Ticks that arrive during a cycle are coalesced by the sender.
func (l *Loop) Run(ctx context.Context, ticks <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ticks:
			if !ok {
				return nil
			}
			_ = l.Cycle(ctx)
		}
	}
}

// RunEvery runs a first cycle immediately and then one every interval.
func (l *Loop) RunEvery(ctx context.Context, interval time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = l.Cycle(ctx)
	return l.Run(ctx, ticker.C)
}
