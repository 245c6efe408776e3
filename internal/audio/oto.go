//go:build !nocgo
// +build !nocgo

package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce    sync.Once
	otoContext *oto.Context
	otoFormat  SinkConfig
	otoErr     error
)

const (
	otoReadyTimeout = 5 * time.Second
	otoPollInterval = 10 * time.Millisecond
)

// OtoDevice plays through the process-wide oto context.
type OtoDevice struct {
	logger *log.Logger
}

// NewOtoDevice creates an oto-backed device. The context itself is created
// lazily on the first Open.
func NewOtoDevice(logger *log.Logger) *OtoDevice {
	return &OtoDevice{logger: logger}
}

// Name returns the backend name.
func (d *OtoDevice) Name() string { return BackendOto }

func (d *OtoDevice) context(cfg SinkConfig) (*oto.Context, error) {
	otoOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Duration(cfg.BlockSize) * time.Second / time.Duration(cfg.SampleRate),
		}

		d.logger.Debug("Initializing oto audio context",
			"sample_rate", options.SampleRate,
			"buffer_size", options.BufferSize)

		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			otoErr = fmt.Errorf("failed to create audio context: %w", err)
			return
		}

		select {
		case <-ready:
			otoContext = ctx
			otoFormat = cfg
		case <-time.After(otoReadyTimeout):
			otoErr = fmt.Errorf("audio context initialization timeout after %v", otoReadyTimeout)
		}
	})

	if otoErr != nil {
		return nil, otoErr
	}
	if otoFormat.SampleRate != cfg.SampleRate {
		return nil, fmt.Errorf("%w: context runs at %d Hz, sink wants %d Hz",
			ErrFormatMismatch, otoFormat.SampleRate, cfg.SampleRate)
	}
	return otoContext, nil
}

// Open starts a new player fed from a bounded buffer.
func (d *OtoDevice) Open(cfg SinkConfig) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, err := d.context(cfg)
	if err != nil {
		return nil, err
	}

	blockBytes := cfg.BlockSize * BytesPerSample
	buf := newPCMBuffer(blockBytes * 2)
	player := ctx.NewPlayer(&otoSource{buf: buf, block: blockBytes})
	player.SetBufferSize(blockBytes)
	player.Play()

	return &otoSink{
		buf:        buf,
		player:     player,
		sampleRate: cfg.SampleRate,
		logger:     d.logger,
	}, nil
}

// otoSource never blocks the oto mixer: on underrun it hands back silence.
type otoSource struct {
	buf   *pcmBuffer
	block int
}

func (s *otoSource) Read(p []byte) (int, error) {
	n, eof := s.buf.readAvailable(p)
	if n > 0 {
		return n, nil
	}
	if eof {
		return 0, io.EOF
	}

	n = min(len(p), s.block)
	n -= n % BytesPerSample
	clear(p[:n])
	return n, nil
}

type otoSink struct {
	buf        *pcmBuffer
	player     *oto.Player
	sampleRate int
	logger     *log.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *otoSink) Write(chunk Chunk) error {
	if len(chunk) == 0 {
		return nil
	}
	if _, err := s.buf.Write(chunk.Bytes()); err != nil {
		return err
	}
	return s.player.Err()
}

func (s *otoSink) Close() error {
	s.closeOnce.Do(func() {
		pending := s.buf.Len() / BytesPerSample
		s.buf.closeWrite()

		// Give the player time to play what is queued before tearing it down.
		deadline := time.Now().Add(SamplesDuration(pending, s.sampleRate) + time.Second)
		for s.player.IsPlaying() && time.Now().Before(deadline) {
			time.Sleep(otoPollInterval)
		}
		if s.player.IsPlaying() {
			s.logger.Warn("Player still running at close deadline")
		}
		s.closeErr = s.player.Close()
	})
	return s.closeErr
}
