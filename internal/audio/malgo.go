//go:build !nocgo
// +build !nocgo

package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
)

// MalgoDevice plays through miniaudio. One malgo context is shared by every
// sink the device opens.
type MalgoDevice struct {
	logger *log.Logger

	mu      sync.Mutex
	context *malgo.AllocatedContext
}

// NewMalgoDevice creates a miniaudio-backed device.
func NewMalgoDevice(logger *log.Logger) *MalgoDevice {
	return &MalgoDevice{logger: logger}
}

// Name returns the backend name.
func (d *MalgoDevice) Name() string { return BackendMalgo }

func (d *MalgoDevice) initContext() (*malgo.AllocatedContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.context != nil {
		return d.context, nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		d.logger.Debug("malgo", "msg", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	d.context = ctx
	return ctx, nil
}

// Open starts a playback device whose callback drains a bounded buffer.
func (d *MalgoDevice) Open(cfg SinkConfig) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, err := d.initContext()
	if err != nil {
		return nil, err
	}

	blockBytes := cfg.BlockSize * BytesPerSample
	buf := newPCMBuffer(blockBytes * 2)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = Channels
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.BlockSize)

	var callbacks malgo.DeviceCallbacks
	callbacks.Data = func(pOutputSample, _ []byte, _ uint32) {
		n, _ := buf.readAvailable(pOutputSample)
		// Underrun plays silence.
		clear(pOutputSample[n:])
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start device: %w", err)
	}

	d.logger.Debug("Opened malgo playback device",
		"sample_rate", cfg.SampleRate,
		"period_frames", cfg.BlockSize)

	return &malgoSink{
		buf:        buf,
		device:     device,
		sampleRate: cfg.SampleRate,
		logger:     d.logger,
	}, nil
}

// Close releases the shared malgo context.
func (d *MalgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.context == nil {
		return nil
	}
	err := d.context.Uninit()
	d.context.Free()
	d.context = nil
	return err
}

type malgoSink struct {
	buf        *pcmBuffer
	device     *malgo.Device
	sampleRate int
	logger     *log.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *malgoSink) Write(chunk Chunk) error {
	if len(chunk) == 0 {
		return nil
	}
	_, err := s.buf.Write(chunk.Bytes())
	return err
}

func (s *malgoSink) Close() error {
	s.closeOnce.Do(func() {
		pending := s.buf.Len() / BytesPerSample
		s.buf.closeWrite()

		// A stalled callback must not hold the device forever.
		if !s.buf.waitDrained(SamplesDuration(pending, s.sampleRate) + time.Second) {
			s.logger.Warn("Playback buffer not drained at close deadline", "pending_bytes", s.buf.Len())
		}
		if err := s.device.Stop(); err != nil {
			s.closeErr = fmt.Errorf("failed to stop device: %w", err)
		}
		s.device.Uninit()
	})
	return s.closeErr
}
