package sensor

import (
	"errors"
	"fmt"
	"time"
)

// Sub-sensor names used in errors and logs.
const (
	NameCO2     = "mh-z19c"
	NameClimate = "bme280"
)

// Measurement is one combined reading of both sensors.
type Measurement struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	CO2         uint16    `json:"co2_concentration"`
}

func (m Measurement) String() string {
	return fmt.Sprintf("Measurement { timestamp: %s, temperature: %.2f°C, humidity: %.2f%%, pressure: %.2fhPa, co2_concentration: %dppm }",
		m.Timestamp.Format(time.RFC3339), m.Temperature, m.Humidity, m.Pressure, m.CO2)
}

// Climate is a reading of the climate sensor in its native units.
type Climate struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
	Pressure    float64 // Pa
}

type CO2Sensor interface {
	Init() error
	ReadConcentration() (uint16, error)
}

type ClimateSensor interface {
	Init() error
	Measure() (Climate, error)
}

// Error reports which sub-sensor failed and at which stage.
type Error struct {
	Sensor string
	Stage  string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Stage, e.Sensor, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Sensor combines the CO2 and climate sensors into single measurements.
type Sensor struct {
	co2     CO2Sensor
	climate ClimateSensor
	now     func() time.Time
}

type Option func(*Sensor)

// WithClock sets the source of measurement timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Sensor) { s.now = now }
}

func New(co2 CO2Sensor, climate ClimateSensor, opts ...Option) *Sensor {
	s := &Sensor{co2: co2, climate: climate, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Init initializes the climate sensor, then the CO2 sensor.
func (s *Sensor) Init() error {
	if err := s.climate.Init(); err != nil {
		return &Error{Sensor: NameClimate, Stage: "initialize", Err: err}
	}
	if err := s.co2.Init(); err != nil {
		return &Error{Sensor: NameCO2, Stage: "initialize", Err: err}
	}
	return nil
}

// Measure reads CO2 first and only queries the climate sensor when that
// succeeded. The timestamp is taken once both reads are done.
func (s *Sensor) Measure() (Measurement, error) {
	ppm, err := s.co2.ReadConcentration()
	if err != nil {
		return Measurement{}, &Error{Sensor: NameCO2, Stage: "read", Err: err}
	}
	c, err := s.climate.Measure()
	if err != nil {
		return Measurement{}, &Error{Sensor: NameClimate, Stage: "read", Err: err}
	}
	return Measurement{
		Timestamp:   s.now(),
		Temperature: c.Temperature,
		Humidity:    c.Humidity,
		Pressure:    c.Pressure / 100,
		CO2:         ppm,
	}, nil
}

// Close releases the hardware handles of both sensors.
func (s *Sensor) Close() error {
	var errs []error
	for _, r := range []any{s.co2, s.climate} {
		if c, ok := r.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
