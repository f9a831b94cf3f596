package sensor

import (
	"math/rand"
	"sync"
)

// FakeCO2Sensor simulates an MH-Z19C for running without hardware.
type FakeCO2Sensor struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewFakeCO2Sensor(seed int64) *FakeCO2Sensor {
	return &FakeCO2Sensor{rnd: rand.New(rand.NewSource(seed))}
}

func (f *FakeCO2Sensor) Init() error { return nil }

func (f *FakeCO2Sensor) ReadConcentration() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// outdoor baseline plus occupancy
	return uint16(400 + f.rnd.Intn(1600)), nil
}

// FakeClimateSensor simulates a BME280.
type FakeClimateSensor struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewFakeClimateSensor(seed int64) *FakeClimateSensor {
	return &FakeClimateSensor{rnd: rand.New(rand.NewSource(seed))}
}

func (f *FakeClimateSensor) Init() error { return nil }

func (f *FakeClimateSensor) Measure() (Climate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Climate{
		Temperature: 18 + f.rnd.Float64()*8,
		Humidity:    35 + f.rnd.Float64()*30,
		Pressure:    100000 + f.rnd.Float64()*3000,
	}, nil
}
