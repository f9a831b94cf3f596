package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
)

// BME280Address is the primary I2C address of the BME280 (SDO to ground).
const BME280Address = 0x76

// BME280Sensor reads temperature, humidity and pressure from a Bosch BME280.
type BME280Sensor struct {
	bus  i2c.Bus
	addr uint16
	dev  *bmxx80.Dev
}

// NewBME280Sensor returns a climate sensor on bus. The device is probed by
// Init.
func NewBME280Sensor(bus i2c.Bus, addr uint16) *BME280Sensor {
	return &BME280Sensor{bus: bus, addr: addr}
}

// Init probes the chip and loads its calibration.
func (s *BME280Sensor) Init() error {
	if s.dev != nil {
		_ = s.dev.Halt()
		s.dev = nil
	}
	dev, err := bmxx80.NewI2C(s.bus, s.addr, &bmxx80.Opts{
		Temperature: bmxx80.O1x,
		Pressure:    bmxx80.O1x,
		Humidity:    bmxx80.O1x,
	})
	if err != nil {
		return fmt.Errorf("bme280 at 0x%02x: %w", s.addr, err)
	}
	s.dev = dev
	return nil
}

func (s *BME280Sensor) Measure() (Climate, error) {
	if s.dev == nil {
		return Climate{}, fmt.Errorf("bme280 at 0x%02x: not initialized", s.addr)
	}
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return Climate{}, fmt.Errorf("bme280 sense: %w", err)
	}
	return climateFromEnv(env), nil
}

// Close halts the device and closes the bus if it owns it.
func (s *BME280Sensor) Close() error {
	if s.dev != nil {
		_ = s.dev.Halt()
		s.dev = nil
	}
	if c, ok := s.bus.(i2c.BusCloser); ok {
		return c.Close()
	}
	return nil
}

// climateFromEnv converts periph units to °C, %RH and Pa.
func climateFromEnv(env physic.Env) Climate {
	return Climate{
		Temperature: env.Temperature.Celsius(),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
		Pressure:    float64(env.Pressure) / float64(physic.Pascal),
	}
}
