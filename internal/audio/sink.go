package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
)

// Common errors for audio operations
var (
	// ErrSinkClosed is returned when writing to a sink after Close
	ErrSinkClosed = errors.New("audio sink closed")

	// ErrBackendUnavailable is returned when the binary was built without
	// the requested backend
	ErrBackendUnavailable = errors.New("audio backend unavailable")

	// ErrFormatMismatch is returned when a device is asked for a stream format
	// it cannot provide after initialization
	ErrFormatMismatch = errors.New("audio format mismatch")
)

// SinkConfig describes the stream a Sink plays.
type SinkConfig struct {
	SampleRate int
	BlockSize  int
}

// DefaultSinkConfig returns the default stream format.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		SampleRate: DefaultSampleRate,
		BlockSize:  DefaultBlockSize,
	}
}

// Validate checks the stream parameters.
func (c SinkConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("invalid block size: %d", c.BlockSize)
	}
	return nil
}

// Sink is one open playback stream.
type Sink interface {
	// Write plays the chunk after everything written before it. It may block
	// while the device drains its buffer.
	Write(chunk Chunk) error

	// Close flushes pending audio and releases the stream.
	Close() error
}

// Device opens playback streams. Only one sink should be open at a time.
type Device interface {
	Open(cfg SinkConfig) (Sink, error)
	Name() string
}

// Backend names accepted by NewDevice.
const (
	BackendOto   = "oto"
	BackendMalgo = "malgo"
	BackendMock  = "mock"
)

// NewDevice returns the device for the named backend.
func NewDevice(backend string, logger *log.Logger) (Device, error) {
	if logger == nil {
		logger = log.Default()
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendOto:
		return NewOtoDevice(logger), nil
	case BackendMalgo:
		return NewMalgoDevice(logger), nil
	case BackendMock:
		logger.Debug("Using mock audio device")
		dev := NewMockDevice()
		// Dry runs keep the timing of real playback.
		dev.RealTime = true
		return dev, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}
