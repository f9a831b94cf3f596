// Package metrics exposes acquisition counters and the last stored values to
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ericogr/home-env-log/pkg/sensor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Cycle results.
const (
	ResultStored  = "stored"
	ResultSkipped = "skipped"
	ResultDropped = "dropped"
)

// Recorder holds the collectors of one acquisition loop. A nil *Recorder
// records nothing.
type Recorder struct {
	cycles      *prometheus.CounterVec
	retries     prometheus.Counter
	co2         prometheus.Gauge
	temperature prometheus.Gauge
	humidity    prometheus.Gauge
	pressure    prometheus.Gauge
	lastStored  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "home_env_cycles_total",
			Help: "Acquisition cycles by result",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "home_env_retries_total",
			Help: "Sensor attempts that failed and were retried",
		}),
		co2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "home_env_co2_ppm",
			Help: "Last stored CO2 concentration",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "home_env_temperature_celsius",
			Help: "Last stored temperature",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "home_env_humidity_percent",
			Help: "Last stored relative humidity",
		}),
		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "home_env_pressure_hpa",
			Help: "Last stored pressure",
		}),
		lastStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "home_env_last_stored_timestamp_seconds",
			Help: "Unix time of the last stored measurement",
		}),
	}
	for _, res := range []string{ResultStored, ResultSkipped, ResultDropped} {
		r.cycles.WithLabelValues(res)
	}
	reg.MustRegister(r.cycles, r.retries, r.co2, r.temperature, r.humidity, r.pressure, r.lastStored)
	return r
}

// Stored counts a successful cycle and remembers its values.
func (r *Recorder) Stored(m sensor.Measurement) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(ResultStored).Inc()
	r.co2.Set(float64(m.CO2))
	r.temperature.Set(m.Temperature)
	r.humidity.Set(m.Humidity)
	r.pressure.Set(m.Pressure)
	r.lastStored.Set(float64(m.Timestamp.Unix()))
}

// Skipped counts a cycle whose measurement failed.
func (r *Recorder) Skipped() {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(ResultSkipped).Inc()
}

// Dropped counts a cycle whose measurement could not be stored.
func (r *Recorder) Dropped() {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(ResultDropped).Inc()
}

func (r *Recorder) Retried(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.retries.Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes g on addr under /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("metrics server shutdown")
		}
	}()

	log.WithField("addr", addr).Info("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
