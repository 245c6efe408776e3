package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/tickspeak/internal/audio"
)

// Provider produces speech for a text in a voice.
type Provider interface {
	// Synthesize starts synthesis. Chunks arrive through the returned Stream.
	Synthesize(ctx context.Context, text, voice string) (Stream, error)

	// Name identifies the engine, used in cache keys and logs.
	Name() string
}

// Stream yields audio chunks in playback order.
type Stream interface {
	// Next returns the next chunk, or io.EOF once synthesis is complete. The
	// caller owns the returned chunk and may modify it.
	Next() (audio.Chunk, error)

	// Close releases the stream. Closing before io.EOF abandons synthesis.
	Close() error
}

// Engine names accepted by New.
const (
	EnginePiper = "piper"
	EngineTone  = "tone"
)

// ErrEmptyText is returned when asked to synthesize nothing.
var ErrEmptyText = errors.New("empty text")

// EngineError describes a failure inside a synthesis engine.
type EngineError struct {
	Engine  string
	Type    string
	Message string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Engine, e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Engine, e.Type, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Config selects and configures a provider.
type Config struct {
	Engine          string
	Command         string
	ModelDir        string
	InputSampleRate int
	SampleRate      int
	BlockSize       int
}

// New builds the provider named by cfg.Engine.
func New(cfg Config, logger *log.Logger) (Provider, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = audio.DefaultBlockSize
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "", EnginePiper:
		return NewPiperProvider(cfg, logger)
	case EngineTone:
		return NewToneProvider(cfg.SampleRate, cfg.BlockSize), nil
	default:
		return nil, fmt.Errorf("unknown synthesis engine %q", cfg.Engine)
	}
}
