//go:build nocgo
// +build nocgo

package audio

import (
	"github.com/charmbracelet/log"
)

// Stub devices for builds without CGO

// OtoDevice stub for nocgo builds
type OtoDevice struct{}

// NewOtoDevice creates a stub oto device
func NewOtoDevice(_ *log.Logger) *OtoDevice { return &OtoDevice{} }

// Name returns the backend name
func (d *OtoDevice) Name() string { return BackendOto }

// Open always fails in nocgo builds
func (d *OtoDevice) Open(SinkConfig) (Sink, error) { return nil, ErrBackendUnavailable }

// MalgoDevice stub for nocgo builds
type MalgoDevice struct{}

// NewMalgoDevice creates a stub malgo device
func NewMalgoDevice(_ *log.Logger) *MalgoDevice { return &MalgoDevice{} }

// Name returns the backend name
func (d *MalgoDevice) Name() string { return BackendMalgo }

// Open always fails in nocgo builds
func (d *MalgoDevice) Open(SinkConfig) (Sink, error) { return nil, ErrBackendUnavailable }

// Close is a no-op
func (d *MalgoDevice) Close() error { return nil }
