package console

import (
	"fmt"
	"time"

	"github.com/ericogr/home-env-log/pkg/output"
	"github.com/ericogr/home-env-log/pkg/sensor"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(m sensor.Measurement) error {
	fmt.Printf("%s temperature=%.2f humidity=%.2f pressure=%.2f co2=%d\n",
		m.Timestamp.Format(time.RFC3339), m.Temperature, m.Humidity, m.Pressure, m.CO2)
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
