package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/dgnsrekt/tickspeak/internal/cache"
	"github.com/dgnsrekt/tickspeak/internal/config"
)

func TestDefaultConfigMatchesDefaults(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultConfig)); err != nil {
		t.Fatalf("default config does not parse: %v", err)
	}

	got, err := config.Load(v)
	if err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}

	want := config.Default()
	if got.Feed != want.Feed {
		t.Errorf("Feed = %+v, want %+v", got.Feed, want.Feed)
	}
	if got.Alert != want.Alert {
		t.Errorf("Alert = %+v, want %+v", got.Alert, want.Alert)
	}
	if got.Audio != want.Audio {
		t.Errorf("Audio = %+v, want %+v", got.Audio, want.Audio)
	}
	if got.Synth != want.Synth {
		t.Errorf("Synth = %+v, want %+v", got.Synth, want.Synth)
	}
	if strings.Join(got.Prefix.Phrases, "|") != strings.Join(want.Prefix.Phrases, "|") {
		t.Errorf("Phrases = %v, want %v", got.Prefix.Phrases, want.Prefix.Phrases)
	}
	if got.Prefix.MaxSamples != want.Prefix.MaxSamples || got.Prefix.DiskCache != want.Prefix.DiskCache {
		t.Errorf("Prefix = %+v, want %+v", got.Prefix, want.Prefix)
	}
}

func TestEnsureConfigFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		wantErr bool
	}{
		{"creates yml", filepath.Join(dir, "nested", "tickspeak.yml"), false},
		{"creates yaml", filepath.Join(dir, "tickspeak.yaml"), false},
		{"rejects toml", filepath.Join(dir, "tickspeak.toml"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = tt.file
			defer func() { configFile = "" }()

			got, err := ensureConfigFile()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ensureConfigFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.file {
				t.Errorf("path = %q, want %q", got, tt.file)
			}
			b, err := os.ReadFile(got)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(b) != defaultConfig {
				t.Error("written file does not hold the default config")
			}
		})
	}
}

func TestEnsureConfigFileKeepsExisting(t *testing.T) {
	file := filepath.Join(t.TempDir(), "tickspeak.yml")
	if err := os.WriteFile(file, []byte("alert:\n  threshold: 5\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	configFile = file
	defer func() { configFile = "" }()

	if _, err := ensureConfigFile(); err != nil {
		t.Fatalf("ensureConfigFile failed: %v", err)
	}
	b, _ := os.ReadFile(file)
	if string(b) != "alert:\n  threshold: 5\n" {
		t.Errorf("existing file was overwritten: %q", b)
	}
}

func TestCachePrune(t *testing.T) {
	dir := t.TempDir()
	saved := cfg
	cfg = config.Default()
	cfg.Prefix.CacheDir = dir
	defer func() { cfg = saved }()

	dc, err := cache.NewDiskCache(cache.DefaultConfig(dir))
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	for _, k := range []string{"up to", "down to"} {
		if err := dc.Put(k, []byte{0, 0, 0, 0}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	tests := []struct {
		name      string
		olderThan time.Duration
		wantErr   bool
		wantOut   string
	}{
		{"rejects zero", 0, true, ""},
		{"keeps recent clips", time.Hour, false, "Removed 0 clips"},
		{"removes old clips", time.Millisecond, false, "Removed 2 clips"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruneOlderThan = tt.olderThan
			var out bytes.Buffer
			cachePruneCmd.SetOut(&out)
			defer cachePruneCmd.SetOut(nil)

			err := cachePruneCmd.RunE(cachePruneCmd, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("prune error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.HasPrefix(out.String(), tt.wantOut) {
				t.Errorf("output = %q, want prefix %q", out.String(), tt.wantOut)
			}
		})
	}

	dc, err = cache.NewDiskCache(cache.DefaultConfig(dir))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer dc.Close() //nolint:errcheck
	if n := dc.Stats().ItemCount; n != 0 {
		t.Errorf("%d clips left after prune", n)
	}
}
