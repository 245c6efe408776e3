package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
)

const defaultConfig = `# Price feed written by the producer
feed:
  # shared memory object holding the latest price as text
  shm_path: "/dev/shm/eth_price_shm"
  # named pipe the producer writes one byte to per update
  fifo_path: "/tmp/eth_price_pipe"
  region_size: 32

# When to speak
alert:
  # speak when the price moves this far from the last checkpoint
  threshold: 12.5
  # drop alerts arriving closer together than this
  debounce: "300ms"
  # fade applied when a newer alert cuts one off
  fade_out_ms: 300
  # how long shutdown waits for audio to fade out
  shutdown_timeout: "2s"

# Audio output
audio:
  # oto, malgo or mock
  backend: "oto"
  sample_rate: 24000
  block_size: 4096

# Speech synthesis
synth:
  # piper or tone
  engine: "piper"
  command: "piper"
  # directory searched first for <voice>.onnx
  # model_dir: "~/.local/share/piper"
  voice: "en_US-lessac-medium"
  input_sample_rate: 22050

# Lead-in clips rendered at startup
prefix:
  phrases:
    - "Starting price checkpoint"
    - "up to"
    - "down to"
  max_samples: 2400
  # keep rendered clips between runs
  disk_cache: true
  # cache_dir: "~/.cache/tickspeak/clips"

# Prometheus endpoint, empty disables it
metrics:
  listen: ""

log:
  # debug, info, warn or error
  level: "info"
  # text, logfmt or json
  # format: "logfmt"
  # file: "default"
`

var (
	configCmd = &cobra.Command{
		Use:     "config",
		Hidden:  false,
		Short:   "Edit the tickspeak config file",
		Long:    paragraph(fmt.Sprintf("\n%s the tickspeak config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
		Example: paragraph("tickspeak config\ntickspeak config --config path/to/config.yml"),
		Args:    cobra.NoArgs,
		// The file may not exist or parse yet.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(*cobra.Command, []string) error {
			path, err := ensureConfigFile()
			if err != nil {
				return err
			}

			c, err := editor.Cmd("tickspeak", path)
			if err != nil {
				return fmt.Errorf("unable to set config file: %w", err)
			}
			c.Stdin = os.Stdin
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			if err := c.Run(); err != nil {
				return fmt.Errorf("unable to run command: %w", err)
			}

			fmt.Println("Wrote config file to:", path)
			return nil
		},
	}

	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  paragraph(fmt.Sprintf("\nPrint the configuration after %s defaults, the config file, environment and flags.", keyword("merging"))),
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return loadConfig()
		},
		RunE: func(*cobra.Command, []string) error {
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
)

func init() {
	configCmd.AddCommand(configShowCmd)
}

// ensureConfigFile returns the config file path, writing the default config
// there first if it does not exist yet.
func ensureConfigFile() (string, error) {
	file := configFile
	if file == "" {
		file = defaultConfigFile
	}

	if ext := path.Ext(file); ext != ".yaml" && ext != ".yml" {
		return "", fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
			return "", fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(file) //nolint:gosec
		if err != nil {
			return "", fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return "", fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return "", fmt.Errorf("unable to stat config file: %w", err)
	}
	return file, nil
}
