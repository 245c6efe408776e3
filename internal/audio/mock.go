package audio

import (
	"sync"
	"time"
)

// MockDevice implements Device without touching audio hardware. Every Open
// produces a MockSink that records what was written to it.
type MockDevice struct {
	mu        sync.Mutex
	sinks     []*MockSink
	active    int
	maxActive int

	// Test configuration
	OpenErr    error         // returned from every Open when set
	WriteDelay time.Duration // sleep per Write to simulate playback
	RealTime   bool          // sleep for each chunk's play time
}

// NewMockDevice creates a new mock device.
func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

// Name returns the backend name.
func (d *MockDevice) Name() string { return BackendMock }

// Open records a new sink.
func (d *MockDevice) Open(cfg SinkConfig) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.OpenErr != nil {
		return nil, d.OpenErr
	}

	sink := &MockSink{device: d, Config: cfg}
	d.sinks = append(d.sinks, sink)
	d.active++
	d.maxActive = max(d.maxActive, d.active)
	return sink, nil
}

// Sinks returns every sink opened so far, in open order.
func (d *MockDevice) Sinks() []*MockSink {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockSink, len(d.sinks))
	copy(out, d.sinks)
	return out
}

// Opens returns the number of sinks opened so far.
func (d *MockDevice) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sinks)
}

// MaxConcurrent returns the largest number of sinks that were open at once.
func (d *MockDevice) MaxConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

func (d *MockDevice) released() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active--
}

// MockSink records written chunks.
type MockSink struct {
	device *MockDevice
	Config SinkConfig

	mu     sync.Mutex
	chunks []Chunk
	closed bool
}

// Write stores a copy of the chunk.
func (s *MockSink) Write(chunk Chunk) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSinkClosed
	}
	s.chunks = append(s.chunks, chunk.Clone())
	s.mu.Unlock()

	delay := s.device.WriteDelay
	if s.device.RealTime {
		delay += chunk.Duration(s.Config.SampleRate)
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return nil
}

// Close marks the sink closed. Closing twice is a no-op.
func (s *MockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.device.released()
	return nil
}

// Chunks returns copies of the chunks written, in order.
func (s *MockSink) Chunks() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chunk, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = c.Clone()
	}
	return out
}

// Samples returns all written samples concatenated.
func (s *MockSink) Samples() Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out Chunk
	for _, c := range s.chunks {
		out = append(out, c...)
	}
	return out
}

// Closed reports whether Close was called.
func (s *MockSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
