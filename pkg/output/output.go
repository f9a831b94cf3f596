package output

import "github.com/ericogr/home-env-log/pkg/sensor"

// Output receives every stored measurement.
type Output interface {
	Publish(sensor.Measurement) error
	Close() error
}

// helper constructors are in subpackages
