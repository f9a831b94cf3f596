// Package serial opens UART devices for sensor drivers.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// device is the part of *serial.Port used here.
type device interface {
	io.ReadWriteCloser
	Flush() error
}

var openDevice = func(cfg *serial.Config) (device, error) {
	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Port is an open 8N1 serial port.
type Port struct {
	cfg  serial.Config
	size int
	p    device
}

// Open opens the named device at baud, 8 data bits, no parity, 1 stop bit.
func Open(name string, baud int) (*Port, error) {
	cfg := serial.Config{
		Name:     name,
		Baud:     baud,
		Size:     serial.DefaultSize,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1,
	}
	p, err := openDevice(&cfg)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return &Port{cfg: cfg, p: p}, nil
}

// SetReadMode reopens the port so that reads give up after timeout. The
// underlying termios timer has a resolution of 100ms, shorter timeouts are
// rounded up by the OS driver.
func (s *Port) SetReadMode(size int, timeout time.Duration) error {
	if size <= 0 {
		return fmt.Errorf("serial %s: invalid read size %d", s.cfg.Name, size)
	}
	if s.p != nil {
		if err := s.p.Close(); err != nil {
			return fmt.Errorf("serial %s: close: %w", s.cfg.Name, err)
		}
		s.p = nil
	}
	cfg := s.cfg
	cfg.ReadTimeout = timeout
	p, err := openDevice(&cfg)
	if err != nil {
		return fmt.Errorf("serial %s: reopen: %w", s.cfg.Name, err)
	}
	s.cfg, s.size, s.p = cfg, size, p
	// Drop anything the sensor sent before the mode change.
	if err := s.p.Flush(); err != nil {
		return fmt.Errorf("serial %s: flush: %w", s.cfg.Name, err)
	}
	return nil
}

func (s *Port) Read(b []byte) (int, error) {
	if s.p == nil {
		return 0, errors.New("serial: port closed")
	}
	return s.p.Read(b)
}

func (s *Port) Write(b []byte) (int, error) {
	if s.p == nil {
		return 0, errors.New("serial: port closed")
	}
	return s.p.Write(b)
}

// Close releases the device.
func (s *Port) Close() error {
	if s.p == nil {
		return nil
	}
	err := s.p.Close()
	s.p = nil
	return err
}

func (s *Port) String() string {
	if s.size > 0 {
		return fmt.Sprintf("%s@%d (%d byte frames, %s timeout)", s.cfg.Name, s.cfg.Baud, s.size, s.cfg.ReadTimeout)
	}
	return fmt.Sprintf("%s@%d", s.cfg.Name, s.cfg.Baud)
}
