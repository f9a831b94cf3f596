package acquire

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ericogr/home-env-log/pkg/metrics"
	"github.com/ericogr/home-env-log/pkg/retry"
	"github.com/ericogr/home-env-log/pkg/sensor"
	"github.com/ericogr/home-env-log/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = retry.Policy{Delay: 0, MaxAttempts: 3}

type result struct {
	m   sensor.Measurement
	err error
}

// scriptedSensor returns the scripted results in order, then keeps
// returning the last one.
type scriptedSensor struct {
	mu      sync.Mutex
	results []result
	calls   int
	onCall  func()
}

func (s *scriptedSensor) Measure() (sensor.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onCall != nil {
		s.onCall()
	}
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i].m, s.results[i].err
}

type memStore struct {
	mu       sync.Mutex
	rows     []sensor.Measurement
	failNext int
}

func (s *memStore) Init(context.Context) error { return nil }

func (s *memStore) Insert(_ context.Context, m sensor.Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return storage.ErrStorage
	}
	s.rows = append(s.rows, m)
	return nil
}

func (s *memStore) Close() error { return nil }

type recordingOutput struct {
	got []sensor.Measurement
	err error
}

func (o *recordingOutput) Publish(m sensor.Measurement) error {
	o.got = append(o.got, m)
	return o.err
}

func (o *recordingOutput) Close() error { return nil }

func measurement(co2 uint16) sensor.Measurement {
	return sensor.Measurement{
		Timestamp:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Temperature: 21,
		Humidity:    40,
		Pressure:    1012,
		CO2:         co2,
	}
}

func ticks(n int) <-chan time.Time {
	ch := make(chan time.Time, n)
	for i := 0; i < n; i++ {
		ch <- time.Now()
	}
	close(ch)
	return ch
}

func messages(hook *test.Hook, level logrus.Level) []string {
	var out []string
	for _, e := range hook.AllEntries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

func TestCycleStores(t *testing.T) {
	s := &scriptedSensor{results: []result{{m: measurement(500)}}}
	store := &memStore{}
	out := &recordingOutput{}
	log, hook := test.NewNullLogger()
	reg := prometheus.NewRegistry()

	l := New(s, store, WithPolicy(fastPolicy), WithLogger(log), WithOutputs(out), WithMetrics(metrics.New(reg)))
	require.NoError(t, l.Cycle(context.Background()))

	assert.Equal(t, []sensor.Measurement{measurement(500)}, store.rows)
	assert.Equal(t, store.rows, out.got)
	assert.Equal(t, []string{
		"Measurement { timestamp: 2024-03-01T12:00:00Z, temperature: 21.00°C, humidity: 40.00%, pressure: 1012.00hPa, co2_concentration: 500ppm }",
	}, messages(hook, logrus.InfoLevel))
	assert.Equal(t, Idle, l.State())
}

func TestCycleRetriesThenStores(t *testing.T) {
	s := &scriptedSensor{results: []result{
		{err: errors.New("checksum")},
		{m: measurement(650)},
	}}
	store := &memStore{}
	log, _ := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	l := New(s, store, WithPolicy(fastPolicy), WithLogger(log), WithMetrics(rec))
	require.NoError(t, l.Cycle(context.Background()))
	assert.Equal(t, 2, s.calls)
	assert.Len(t, store.rows, 1)

	expected := `
# HELP home_env_retries_total Sensor attempts that failed and were retried
# TYPE home_env_retries_total counter
home_env_retries_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "home_env_retries_total"))
}

func TestCycleSkipsAfterExhaustedRetries(t *testing.T) {
	readErr := errors.New("short read")
	s := &scriptedSensor{results: []result{{err: readErr}}}
	store := &memStore{}
	out := &recordingOutput{}
	log, hook := test.NewNullLogger()

	l := New(s, store, WithPolicy(fastPolicy), WithLogger(log), WithOutputs(out))
	err := l.Cycle(context.Background())
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, 3, s.calls)
	assert.Empty(t, store.rows)
	assert.Empty(t, out.got)
	assert.Contains(t, messages(hook, logrus.ErrorLevel), "Failed to read sensor data")
}

func TestFailedCycleDoesNotAffectNext(t *testing.T) {
	readErr := errors.New("no response")
	s := &scriptedSensor{results: []result{
		{err: readErr}, {err: readErr}, {err: readErr},
		{m: measurement(700)},
	}}
	store := &memStore{}
	log, _ := test.NewNullLogger()

	l := New(s, store, WithPolicy(fastPolicy), WithLogger(log))
	require.NoError(t, l.Run(context.Background(), ticks(2)))
	assert.Equal(t, 4, s.calls)
	assert.Equal(t, []sensor.Measurement{measurement(700)}, store.rows)
}

func TestStorageFailureDoesNotStopLoop(t *testing.T) {
	s := &scriptedSensor{results: []result{{m: measurement(500)}, {m: measurement(510)}}}
	store := &memStore{failNext: 1}
	out := &recordingOutput{}
	log, hook := test.NewNullLogger()
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	l := New(s, store, WithPolicy(fastPolicy), WithLogger(log), WithOutputs(out), WithMetrics(rec))
	require.NoError(t, l.Run(context.Background(), ticks(2)))

	assert.Equal(t, 2, s.calls, "a storage failure must not trigger a measurement retry")
	assert.Equal(t, []sensor.Measurement{measurement(510)}, store.rows)
	assert.Equal(t, store.rows, out.got, "dropped measurements are not published")
	assert.Contains(t, messages(hook, logrus.ErrorLevel), "Failed to store measurement")
}

func TestOutputFailureIsLogged(t *testing.T) {
	s := &scriptedSensor{results: []result{{m: measurement(500)}}}
	store := &memStore{}
	out := &recordingOutput{err: errors.New("broker gone")}
	log, hook := test.NewNullLogger()

	l := New(s, store, WithPolicy(fastPolicy), WithLogger(log), WithOutputs(out))
	require.NoError(t, l.Cycle(context.Background()))
	assert.Len(t, store.rows, 1)
	assert.Equal(t, []string{"output publish failed"}, messages(hook, logrus.WarnLevel))
}

func openSQLite(t *testing.T) (*storage.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "home-env-log.db")
	store, err := storage.Open("sqlite3", path)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	return store, path
}

func countRows(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM measurements`).Scan(&n))
	return n
}

func TestCancelDuringMeasureStillStores(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &scriptedSensor{results: []result{{m: measurement(530)}}}
	s.onCall = cancel
	store, path := openSQLite(t)
	log, hook := test.NewNullLogger()

	l := New(s, store, WithPolicy(fastPolicy), WithLogger(log))
	require.NoError(t, l.Cycle(ctx))
	require.NoError(t, store.Close())

	assert.Equal(t, 1, countRows(t, path))
	assert.Empty(t, messages(hook, logrus.ErrorLevel))
}

func TestCancelDuringRetryWaitIsQuiet(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &scriptedSensor{results: []result{{err: errors.New("no response")}}}
	s.onCall = cancel
	store := &memStore{}
	log, hook := test.NewNullLogger()
	reg := prometheus.NewRegistry()

	l := New(s, store, WithPolicy(retry.Policy{Delay: time.Hour, MaxAttempts: 20}), WithLogger(log), WithMetrics(metrics.New(reg)))
	err := l.Cycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.calls)
	assert.Empty(t, store.rows)
	assert.NotContains(t, messages(hook, logrus.ErrorLevel), "Failed to read sensor data")

	expected := `
# HELP home_env_cycles_total Acquisition cycles by result
# TYPE home_env_cycles_total counter
home_env_cycles_total{result="dropped"} 0
home_env_cycles_total{result="skipped"} 0
home_env_cycles_total{result="stored"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "home_env_cycles_total"))
}

func TestState(t *testing.T) {
	var l *Loop
	var during State
	s := &scriptedSensor{results: []result{{m: measurement(500)}}}
	s.onCall = func() { during = l.State() }
	log, _ := test.NewNullLogger()

	l = New(s, &memStore{}, WithPolicy(fastPolicy), WithLogger(log))
	assert.Equal(t, Idle, l.State())
	require.NoError(t, l.Cycle(context.Background()))
	assert.Equal(t, Acquiring, during)
	assert.Equal(t, Idle, l.State())
	assert.Equal(t, "acquiring", Acquiring.String())
	assert.Equal(t, "idle", Idle.String())
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	log, _ := test.NewNullLogger()
	s := &scriptedSensor{results: []result{{m: measurement(500)}}}

	l := New(s, &memStore{}, WithLogger(log))
	assert.ErrorIs(t, l.Run(ctx, make(chan time.Time)), context.Canceled)
	assert.ErrorIs(t, l.RunEvery(ctx, time.Hour), context.Canceled)
	assert.Equal(t, 0, s.calls)
}

func TestRunEveryFirstCycleImmediate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	measured := make(chan struct{}, 1)
	s := &scriptedSensor{results: []result{{m: measurement(500)}}}
	s.onCall = func() {
		select {
		case measured <- struct{}{}:
		default:
		}
	}
	store := &memStore{}
	log, _ := test.NewNullLogger()
	l := New(s, store, WithPolicy(fastPolicy), WithLogger(log))

	done := make(chan error, 1)
	go func() { done <- l.RunEvery(ctx, time.Hour) }()

	select {
	case <-measured:
	case <-time.After(time.Second):
		t.Fatal("first cycle did not run immediately")
	}
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunEvery did not return after cancel")
	}
	assert.Len(t, store.rows, 1)
}

type constCO2 struct{ ppm uint16 }

func (c constCO2) Init() error                        { return nil }
func (c constCO2) ReadConcentration() (uint16, error) { return c.ppm, nil }

type constClimate struct{ c sensor.Climate }

func (c constClimate) Init() error                      { return nil }
func (c constClimate) Measure() (sensor.Climate, error) { return c.c, nil }

func TestThreeCyclesSQLite(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start
	clock := func() time.Time {
		now = now.Add(Interval)
		return now
	}
	s := sensor.New(constCO2{ppm: 615}, constClimate{c: sensor.Climate{Temperature: 22.5, Humidity: 41, Pressure: 100950}},
		sensor.WithClock(clock))

	store, path := openSQLite(t)
	ctx := context.Background()

	log, _ := test.NewNullLogger()
	l := New(s, store, WithPolicy(fastPolicy), WithLogger(log))
	require.NoError(t, l.Run(ctx, ticks(3)))
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	rows, err := db.Query(`SELECT timestamp, temperature, humidity, pressure, co2_concentration FROM measurements ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	var stamps []time.Time
	for rows.Next() {
		var (
			ts               string
			temp, hum, press float64
			co2              int64
		)
		require.NoError(t, rows.Scan(&ts, &temp, &hum, &press, &co2))
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		require.NoError(t, err)
		stamps = append(stamps, parsed)
		assert.Equal(t, 22.5, temp)
		assert.Equal(t, 41.0, hum)
		assert.Equal(t, 1009.5, press)
		assert.Equal(t, int64(615), co2)
	}
	require.NoError(t, rows.Err())
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.True(t, stamps[i].After(stamps[i-1]), "timestamps must increase: %v", stamps)
	}
}
