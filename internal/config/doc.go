// Package config defines the YAML configuration file and its defaults.
//
// Values are layered by viper: built-in defaults, then the config file,
// then TICKSPEAK_* environment variables, then command line flags.
package config
