package mhz19c

import "fmt"

// FrameSize is the length of every frame exchanged with the sensor.
const FrameSize = 9

const (
	startByte   = 0xff
	cmdReadCO2  = 0x86
	checksumPos = FrameSize - 1
)

// ReadCommand asks the sensor for its current CO2 concentration.
var ReadCommand = [FrameSize]byte{startByte, 0x01, cmdReadCO2, 0x00, 0x00, 0x00, 0x00, 0x00, 0x79}

// FramingError is returned when a response does not start with the expected
// start and command bytes.
type FramingError struct {
	WantStart, GotStart     byte
	WantCommand, GotCommand byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("mhz19c: invalid response: expected start byte 0x%02x and command 0x%02x, got 0x%02x and 0x%02x",
		e.WantStart, e.WantCommand, e.GotStart, e.GotCommand)
}

// ChecksumError is returned when the checksum byte of a response does not
// match the payload.
type ChecksumError struct {
	Want, Got byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("mhz19c: invalid checksum: expected 0x%02x, got 0x%02x", e.Want, e.Got)
}

// Command returns the frame requesting a CO2 reading.
func Command() [FrameSize]byte {
	return ReadCommand
}

// Checksum computes the checksum over bytes 1 to 7 of frame. The start byte
// and the checksum byte itself are excluded.
func Checksum(frame [FrameSize]byte) byte {
	var sum byte
	for _, b := range frame[1:checksumPos] {
		sum += b
	}
	return 0xff - sum + 1
}

// Validate checks the framing and checksum of a response and returns the
// concentration in PPM it carries.
func Validate(frame [FrameSize]byte) (uint16, error) {
	if frame[0] != startByte || frame[1] != cmdReadCO2 {
		return 0, &FramingError{
			WantStart:   startByte,
			GotStart:    frame[0],
			WantCommand: cmdReadCO2,
			GotCommand:  frame[1],
		}
	}
	if sum := Checksum(frame); frame[checksumPos] != sum {
		return 0, &ChecksumError{Want: sum, Got: frame[checksumPos]}
	}
	return uint16(frame[2])<<8 | uint16(frame[3]), nil
}
