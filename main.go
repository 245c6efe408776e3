// Package main provides the entry point for the tickspeak CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/tickspeak/internal/config"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile        string
	defaultConfigFile string
	cfg               config.Config
	closeLog          = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "tickspeak",
		Short: "Speak ETH price moves as they happen",
		Long: paragraph(
			fmt.Sprintf("\nWatch a shared-memory price feed and %s when the price moves past a threshold.", keyword("speak")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadConfig()
		},
		RunE: runDaemon,
	}
)

// loadConfig reads an explicit --config file, then unmarshals and validates
// the merged settings.
func loadConfig() error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}

	loaded, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := applyLogConfig(loaded.Log, &closeLog); err != nil {
		return err
	}
	cfg = loaded
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	closeLog = closer
	if err := rootCmd.Execute(); err != nil {
		_ = closeLog()
		os.Exit(1)
	}
	_ = closeLog()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", defaultConfigFile))
	flags.String("backend", "", "audio backend (oto, malgo, mock)")
	flags.String("engine", "", "synthesis engine (piper, tone)")
	flags.String("voice", "", "voice name or path to an .onnx model")
	flags.Float64("threshold", 0, "price move that triggers an alert")
	flags.String("metrics-listen", "", "serve Prometheus metrics on this address")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	// Config bindings
	_ = viper.BindPFlag("audio.backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("synth.engine", flags.Lookup("engine"))
	_ = viper.BindPFlag("synth.voice", flags.Lookup("voice"))
	_ = viper.BindPFlag("alert.threshold", flags.Lookup("threshold"))
	_ = viper.BindPFlag("metrics.listen", flags.Lookup("metrics-listen"))
	_ = viper.BindPFlag("log.level", flags.Lookup("log-level"))

	config.SetDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd, sayCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "tickspeak")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "tickspeak")}, dirs...)
	}

	if c := os.Getenv("TICKSPEAK_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("tickspeak")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("tickspeak")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		defaultConfigFile = used
		return
	}
	defaultConfigFile = filepath.Join(dirs[0], "tickspeak.yml")
}
