package mhz19c

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLink replays a canned response and records what was written.
type fakeLink struct {
	written  bytes.Buffer
	response *bytes.Reader
	writeErr error
	readErr  error
	modeErr  error

	size    int
	timeout time.Duration
}

func newFakeLink(resp []byte) *fakeLink {
	return &fakeLink{response: bytes.NewReader(resp)}
}

func (f *fakeLink) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	return f.written.Write(p)
}

func (f *fakeLink) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.response.Read(p)
}

func (f *fakeLink) SetReadMode(size int, timeout time.Duration) error {
	f.size, f.timeout = size, timeout
	return f.modeErr
}

func (f *fakeLink) String() string { return "fake" }

func TestInit(t *testing.T) {
	link := newFakeLink(nil)
	require.NoError(t, New(link).Init())
	assert.Equal(t, FrameSize, link.size)
	assert.Equal(t, 10*time.Millisecond, link.timeout)
}

func TestInitLinkConfigError(t *testing.T) {
	link := newFakeLink(nil)
	link.modeErr = errors.New("ioctl failed")
	err := New(link).Init()
	require.ErrorIs(t, err, ErrLinkConfig)
	assert.Contains(t, err.Error(), "ioctl failed")
}

func TestReadConcentration(t *testing.T) {
	link := newFakeLink([]byte{0xff, 0x86, 0x01, 0xf4, 0, 0, 0, 0, 0x85})
	dev := New(link)
	require.NoError(t, dev.Init())

	ppm, err := dev.ReadConcentration()
	require.NoError(t, err)
	assert.Equal(t, uint16(500), ppm)
	assert.Equal(t, ReadCommand[:], link.written.Bytes())
}

func TestReadConcentrationWriteError(t *testing.T) {
	link := newFakeLink(nil)
	link.writeErr = errors.New("broken pipe")
	_, err := New(link).ReadConcentration()
	assert.ErrorIs(t, err, ErrWrite)
}

func TestReadConcentrationReadError(t *testing.T) {
	link := newFakeLink(nil)
	link.readErr = errors.New("device gone")
	_, err := New(link).ReadConcentration()
	assert.ErrorIs(t, err, ErrRead)
}

func TestReadConcentrationTimeout(t *testing.T) {
	// No data before the timeout.
	_, err := New(newFakeLink(nil)).ReadConcentration()
	require.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, io.EOF)

	// Partial frame before the timeout.
	_, err = New(newFakeLink([]byte{0xff, 0x86, 0x01, 0xf4, 0})).ReadConcentration()
	require.ErrorIs(t, err, ErrRead)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadConcentrationInvalidFrame(t *testing.T) {
	_, err := New(newFakeLink([]byte{0xff, 0x01, 0x01, 0xf4, 0, 0, 0, 0, 0x85})).ReadConcentration()
	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, byte(0x01), fe.GotCommand)

	_, err = New(newFakeLink([]byte{0xff, 0x86, 0x01, 0xf4, 0, 0, 0, 0, 0x00})).ReadConcentration()
	var ce *ChecksumError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, byte(0x85), ce.Want)
}

func TestString(t *testing.T) {
	assert.Equal(t, "mhz19c: fake", New(newFakeLink(nil)).String())
}
