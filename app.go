package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/dgnsrekt/tickspeak/internal/audio"
	"github.com/dgnsrekt/tickspeak/internal/cache"
	"github.com/dgnsrekt/tickspeak/internal/config"
	"github.com/dgnsrekt/tickspeak/internal/metrics"
	"github.com/dgnsrekt/tickspeak/internal/speech"
	"github.com/dgnsrekt/tickspeak/internal/synth"
)

// runEnv holds process-level switches read from the environment.
type runEnv struct {
	// MockAudio replaces the configured backend with the silent mock device
	MockAudio bool `env:"TICKSPEAK_MOCK_AUDIO"`
	// NoClipCache disables the on-disk lead-in cache for this run
	NoClipCache bool `env:"TICKSPEAK_NO_CLIP_CACHE"`
}

// app is the playback half of the daemon: device, provider, lead-in clips
// and the coordinator that ties them together.
type app struct {
	device   audio.Device
	provider synth.Provider
	clips    *cache.DiskCache
	prefix   *speech.PrefixCache
	metrics  *metrics.Metrics
	coord    *speech.Coordinator
}

// clipCacheDir returns the directory for persisted lead-in clips.
func clipCacheDir(c config.Config) (string, error) {
	if c.Prefix.CacheDir != "" {
		return c.Prefix.CacheDir, nil
	}
	dir, err := gap.NewScope(gap.User, "tickspeak").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, "clips"), nil
}

// newApp builds the playback stack. Lead-in clips are rendered before it
// returns, so startup cost lands here rather than on the first alert.
func newApp(ctx context.Context, c config.Config) (*app, error) {
	opts, err := env.ParseAs[runEnv]()
	if err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	backend := c.Audio.Backend
	if opts.MockAudio {
		backend = audio.BackendMock
	}
	device, err := audio.NewDevice(backend, log.WithPrefix("audio"))
	if err != nil {
		return nil, err
	}

	provider, err := synth.New(c.SynthConfig(), log.WithPrefix("synth"))
	if err != nil {
		closeDevice(device)
		return nil, err
	}

	a := &app{
		device:   device,
		provider: provider,
		metrics:  metrics.NewMetrics("tickspeak"),
	}

	prefixOpts := speech.PrefixOptions{
		Phrases:    c.Prefix.Phrases,
		Voice:      c.Synth.Voice,
		SampleRate: c.Audio.SampleRate,
		MaxSamples: c.Prefix.MaxSamples,
		Logger:     log.WithPrefix("speech"),
	}
	if c.Prefix.DiskCache && !opts.NoClipCache {
		a.clips = openClipCache(c)
		if a.clips != nil {
			prefixOpts.Store = a.clips
		}
	}

	a.prefix = speech.BuildPrefixCache(ctx, provider, prefixOpts)
	a.metrics.SetPrefixClips(a.prefix.Len())
	log.Info("Lead-in clips ready",
		"phrases", a.prefix.Phrases(),
		"engine", provider.Name(),
		"voice", c.Synth.Voice)

	a.coord = speech.NewCoordinator(c.Speech(), provider, device, a.prefix,
		speech.WithLogger(log.WithPrefix("speech")),
		speech.WithMetrics(a.metrics),
	)
	return a, nil
}

// openClipCache opens the disk clip cache. Failure only costs startup time,
// so it is logged and nil is returned.
func openClipCache(c config.Config) *cache.DiskCache {
	dir, err := clipCacheDir(c)
	if err != nil {
		log.Warn("Lead-in clip cache disabled", "error", err)
		return nil
	}
	dc, err := cache.NewDiskCache(cache.DefaultConfig(dir))
	if err != nil {
		log.Warn("Lead-in clip cache disabled", "path", dir, "error", err)
		return nil
	}
	log.Debug("Opened lead-in clip cache", "path", dir, "stats", dc.Stats())
	return dc
}

// Close stops playback, giving in-flight audio until ctx expires to fade out.
// The device stays open if a worker may still be using it.
func (a *app) Close(ctx context.Context) error {
	err := a.coord.Close(ctx)
	if a.clips != nil {
		if cerr := a.clips.Close(); cerr != nil {
			log.Warn("Unable to close clip cache", "error", cerr)
		}
	}
	if err != nil {
		log.Warn("Playback did not stop in time, leaving audio device open", "error", err)
		return err
	}
	closeDevice(a.device)
	return nil
}

func closeDevice(d audio.Device) {
	if c, ok := d.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn("Unable to close audio device", "device", d.Name(), "error", err)
		}
	}
}
