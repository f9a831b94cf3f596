// Package mhz19c drives the Winsen MH-Z19C NDIR CO2 sensor over its UART
// interface.
//
// Every exchange is a single 9 byte command followed by a single 9 byte
// response. The driver does not retry; callers decide how to handle failed
// transactions.
package mhz19c

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Serial line parameters required by the sensor.
const (
	BaudRate = 9600
	DataBits = 8
	StopBits = 1
	// Parity is none.
	Parity = 'N'
)

// ReadTimeout is how long the link waits for the response frame.
const ReadTimeout = 10 * time.Millisecond

var (
	// ErrLinkConfig is returned by Init when the link rejects the read mode.
	ErrLinkConfig = errors.New("mhz19c: failed to set read mode")
	// ErrWrite is returned when the command frame could not be written.
	ErrWrite = errors.New("mhz19c: failed to write command")
	// ErrRead is returned when a full response frame could not be read.
	ErrRead = errors.New("mhz19c: failed to read response")
)

// Link is the serial connection to the sensor. It is owned by a single Dev.
type Link interface {
	io.ReadWriter
	// SetReadMode configures reads to return after size bytes or after
	// timeout elapsed without data.
	SetReadMode(size int, timeout time.Duration) error
}

// Dev is a handle to an MH-Z19C sensor.
type Dev struct {
	link Link
}

// New returns a Dev talking over link. Call Init before reading.
func New(link Link) *Dev {
	return &Dev{link: link}
}

// Init configures the link for fixed size response frames.
func (d *Dev) Init() error {
	if err := d.link.SetReadMode(FrameSize, ReadTimeout); err != nil {
		return fmt.Errorf("%w: %w", ErrLinkConfig, err)
	}
	return nil
}

// ReadConcentration requests a reading and returns the CO2 concentration in
// PPM.
func (d *Dev) ReadConcentration() (uint16, error) {
	cmd := Command()
	n, err := d.link.Write(cmd[:])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if n != len(cmd) {
		return 0, fmt.Errorf("%w: %w", ErrWrite, io.ErrShortWrite)
	}

	var resp [FrameSize]byte
	// A timeout leaves the frame short, which ReadFull reports.
	if _, err := io.ReadFull(d.link, resp[:]); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRead, err)
	}
	return Validate(resp)
}

// Close closes the link if it supports it.
func (d *Dev) Close() error {
	if c, ok := d.link.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("mhz19c: %v", d.link)
}
