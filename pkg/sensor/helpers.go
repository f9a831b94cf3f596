package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/home-env-log/pkg/config"
	"github.com/ericogr/home-env-log/pkg/mhz19c"
	"github.com/ericogr/home-env-log/pkg/serial"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// NewFromConfig builds the sensor pair selected by cfg.SensorType. Real
// sensors open their bus and port here; probing happens in Init.
func NewFromConfig(cfg config.Config) (*Sensor, error) {
	if cfg.SensorType == config.SensorTypeSimulation {
		seed := time.Now().UnixNano()
		return New(NewFakeCO2Sensor(seed), NewFakeClimateSensor(seed+1)), nil
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	port, err := serial.Open(cfg.SerialPort, cfg.SerialBaud)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("failed to initialize %s: %w", NameCO2, err)
	}
	return New(mhz19c.New(port), NewBME280Sensor(bus, uint16(cfg.I2CAddress))), nil
}
