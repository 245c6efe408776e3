package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/tickspeak/internal/audio"
	"github.com/dgnsrekt/tickspeak/internal/feed"
	"github.com/dgnsrekt/tickspeak/internal/speech"
	"github.com/dgnsrekt/tickspeak/internal/synth"
)

// Config is the full daemon configuration
type Config struct {
	Feed    FeedConfig    `yaml:"feed" mapstructure:"feed"`
	Alert   AlertConfig   `yaml:"alert" mapstructure:"alert"`
	Audio   AudioConfig   `yaml:"audio" mapstructure:"audio"`
	Synth   SynthConfig   `yaml:"synth" mapstructure:"synth"`
	Prefix  PrefixConfig  `yaml:"prefix" mapstructure:"prefix"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// FeedConfig locates the producer's shared memory and FIFO
type FeedConfig struct {
	ShmPath    string `yaml:"shm_path" mapstructure:"shm_path"`
	FIFOPath   string `yaml:"fifo_path" mapstructure:"fifo_path"`
	RegionSize int    `yaml:"region_size" mapstructure:"region_size"`
}

// AlertConfig controls when and how alerts are spoken
type AlertConfig struct {
	// Price move that triggers an alert
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`

	// Minimum spacing between non-forced alerts
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`

	// Fade applied to a superseded phrase
	FadeOutMs int `yaml:"fade_out_ms" mapstructure:"fade_out_ms"`

	// How long shutdown waits for playback to fade out
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// AudioConfig selects the output backend and stream format
type AudioConfig struct {
	// oto, malgo or mock
	Backend    string `yaml:"backend" mapstructure:"backend"`
	SampleRate int    `yaml:"sample_rate" mapstructure:"sample_rate"`
	BlockSize  int    `yaml:"block_size" mapstructure:"block_size"`
}

// SynthConfig selects the speech engine
type SynthConfig struct {
	// piper or tone
	Engine string `yaml:"engine" mapstructure:"engine"`

	// Command line used to start piper
	Command string `yaml:"command" mapstructure:"command"`

	// Directory searched first for <voice>.onnx
	ModelDir string `yaml:"model_dir" mapstructure:"model_dir"`

	// Voice name or path to an .onnx model
	Voice string `yaml:"voice" mapstructure:"voice"`

	// Rate the engine emits; resampled to audio.sample_rate
	InputSampleRate int `yaml:"input_sample_rate" mapstructure:"input_sample_rate"`
}

// PrefixConfig controls lead-in clip caching
type PrefixConfig struct {
	Phrases    []string `yaml:"phrases" mapstructure:"phrases"`
	MaxSamples int      `yaml:"max_samples" mapstructure:"max_samples"`

	// Persist rendered clips between runs
	DiskCache bool   `yaml:"disk_cache" mapstructure:"disk_cache"`
	CacheDir  string `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Listen address, empty disables the endpoint
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	// text, logfmt or json; empty picks text on a terminal and logfmt otherwise
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// Default returns the default configuration
func Default() Config {
	sc := speech.DefaultConfig()
	return Config{
		Feed: FeedConfig{
			ShmPath:    feed.DefaultShmPath,
			FIFOPath:   feed.DefaultFIFOPath,
			RegionSize: feed.DefaultRegionSize,
		},
		Alert: AlertConfig{
			Threshold:       feed.DefaultThreshold,
			Debounce:        sc.Debounce,
			FadeOutMs:       sc.FadeOutMs,
			ShutdownTimeout: 2 * time.Second,
		},
		Audio: AudioConfig{
			Backend:    audio.BackendOto,
			SampleRate: audio.DefaultSampleRate,
			BlockSize:  audio.DefaultBlockSize,
		},
		Synth: SynthConfig{
			Engine:          synth.EnginePiper,
			Command:         "piper",
			Voice:           sc.Voice,
			InputSampleRate: synth.PiperSampleRate,
		},
		Prefix: PrefixConfig{
			Phrases:    append([]string{}, speech.DefaultPhrases...),
			MaxSamples: speech.DefaultPrefixSamples,
			DiskCache:  true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SetDefaults registers every default with v so environment variables and
// flags can override individual keys.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("feed.shm_path", d.Feed.ShmPath)
	v.SetDefault("feed.fifo_path", d.Feed.FIFOPath)
	v.SetDefault("feed.region_size", d.Feed.RegionSize)
	v.SetDefault("alert.threshold", d.Alert.Threshold)
	v.SetDefault("alert.debounce", d.Alert.Debounce)
	v.SetDefault("alert.fade_out_ms", d.Alert.FadeOutMs)
	v.SetDefault("alert.shutdown_timeout", d.Alert.ShutdownTimeout)
	v.SetDefault("audio.backend", d.Audio.Backend)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.block_size", d.Audio.BlockSize)
	v.SetDefault("synth.engine", d.Synth.Engine)
	v.SetDefault("synth.command", d.Synth.Command)
	v.SetDefault("synth.model_dir", d.Synth.ModelDir)
	v.SetDefault("synth.voice", d.Synth.Voice)
	v.SetDefault("synth.input_sample_rate", d.Synth.InputSampleRate)
	v.SetDefault("prefix.phrases", d.Prefix.Phrases)
	v.SetDefault("prefix.max_samples", d.Prefix.MaxSamples)
	v.SetDefault("prefix.disk_cache", d.Prefix.DiskCache)
	v.SetDefault("prefix.cache_dir", d.Prefix.CacheDir)
	v.SetDefault("metrics.listen", d.Metrics.Listen)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
}

// Load unmarshals v, expands home-relative paths and validates the result.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	for _, p := range []*string{
		&cfg.Feed.ShmPath,
		&cfg.Feed.FIFOPath,
		&cfg.Synth.ModelDir,
		&cfg.Synth.Voice,
		&cfg.Prefix.CacheDir,
		&cfg.Log.File,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return Config{}, fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges and enum fields.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Feed.ShmPath == "" {
		add("feed.shm_path must be set")
	}
	if c.Feed.FIFOPath == "" {
		add("feed.fifo_path must be set")
	}
	if c.Feed.RegionSize <= 0 {
		add("feed.region_size must be positive, got %d", c.Feed.RegionSize)
	}
	if c.Alert.Threshold <= 0 {
		add("alert.threshold must be positive, got %v", c.Alert.Threshold)
	}
	if c.Alert.Debounce < 0 {
		add("alert.debounce must not be negative, got %v", c.Alert.Debounce)
	}
	if c.Alert.FadeOutMs < 0 {
		add("alert.fade_out_ms must not be negative, got %d", c.Alert.FadeOutMs)
	}
	switch strings.ToLower(c.Audio.Backend) {
	case audio.BackendOto, audio.BackendMalgo, audio.BackendMock:
	default:
		add("audio.backend must be one of oto, malgo, mock, got %q", c.Audio.Backend)
	}
	if c.Audio.SampleRate <= 0 {
		add("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.BlockSize <= 0 {
		add("audio.block_size must be positive, got %d", c.Audio.BlockSize)
	}
	switch strings.ToLower(c.Synth.Engine) {
	case synth.EnginePiper, synth.EngineTone:
	default:
		add("synth.engine must be one of piper, tone, got %q", c.Synth.Engine)
	}
	if c.Prefix.MaxSamples <= 0 {
		add("prefix.max_samples must be positive, got %d", c.Prefix.MaxSamples)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "logfmt", "json":
	default:
		add("log.format must be one of text, logfmt, json, got %q", c.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Speech returns the coordinator settings.
func (c Config) Speech() speech.Config {
	return speech.Config{
		Voice:      c.Synth.Voice,
		SampleRate: c.Audio.SampleRate,
		BlockSize:  c.Audio.BlockSize,
		Debounce:   c.Alert.Debounce,
		FadeOutMs:  c.Alert.FadeOutMs,
	}
}

// SynthConfig returns the provider settings.
func (c Config) SynthConfig() synth.Config {
	return synth.Config{
		Engine:          c.Synth.Engine,
		Command:         c.Synth.Command,
		ModelDir:        c.Synth.ModelDir,
		InputSampleRate: c.Synth.InputSampleRate,
		SampleRate:      c.Audio.SampleRate,
		BlockSize:       c.Audio.BlockSize,
	}
}

// YAML renders the effective configuration.
func (c Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(out), nil
}
