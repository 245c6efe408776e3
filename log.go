package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"golang.org/x/term"

	"github.com/dgnsrekt/tickspeak/internal/config"
)

// logEnv holds process-level logging switches read from the environment.
type logEnv struct {
	// File overrides log.file from the config
	File string `env:"TICKSPEAK_LOG_FILE"`
	// Debug forces debug level regardless of log.level
	Debug bool `env:"TICKSPEAK_DEBUG"`
}

var forceDebug bool

// defaultLogPath returns the log file location used when log.file is "default".
func defaultLogPath() (string, error) {
	dir, err := gap.NewScope(gap.User, "tickspeak").CacheDir()
	if err != nil {
		return "", fmt.Errorf("unable to find cache directory: %w", err)
	}
	return filepath.Join(dir, "tickspeak.log"), nil
}

// setupLog points the global logger at stderr or a log file and returns a
// function that releases the file.
func setupLog() (func() error, error) {
	opts, err := env.ParseAs[logEnv]()
	if err != nil {
		return nil, fmt.Errorf("error parsing log environment: %w", err)
	}

	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.DateTime)
	forceDebug = opts.Debug
	if forceDebug {
		log.SetLevel(log.DebugLevel)
	}

	if opts.File == "" {
		log.SetOutput(os.Stderr)
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			log.SetFormatter(log.LogfmtFormatter)
		}
		return func() error { return nil }, nil
	}

	return openLogFile(opts.File)
}

func openLogFile(path string) (func() error, error) {
	if path == "default" {
		p, err := defaultLogPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("unable to expand log path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("unable to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("unable to open log file: %w", err)
	}
	log.SetOutput(f)
	log.SetFormatter(log.LogfmtFormatter)
	return f.Close, nil
}

// applyLogConfig applies the log section of the loaded config. A log file
// named in the config replaces the current output and closer.
func applyLogConfig(c config.LogConfig, closer *func() error) error {
	if c.Level != "" && !forceDebug {
		level, err := log.ParseLevel(strings.ToLower(c.Level))
		if err != nil {
			return fmt.Errorf("invalid log.level: %w", err)
		}
		log.SetLevel(level)
	}

	if c.File != "" && os.Getenv("TICKSPEAK_LOG_FILE") == "" {
		next, err := openLogFile(c.File)
		if err != nil {
			return err
		}
		_ = (*closer)()
		*closer = next
	}

	switch strings.ToLower(c.Format) {
	case "text":
		log.SetFormatter(log.TextFormatter)
	case "logfmt":
		log.SetFormatter(log.LogfmtFormatter)
	case "json":
		log.SetFormatter(log.JSONFormatter)
	}
	return nil
}
