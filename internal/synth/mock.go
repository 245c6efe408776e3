package synth

import (
	"context"
	"io"
	"sync"

	"github.com/dgnsrekt/tickspeak/internal/audio"
)

// MockProvider implements Provider for testing. It replays scripted chunks
// and records every request.
type MockProvider struct {
	mu sync.Mutex

	// Scripts maps a text to the chunks streamed for it.
	Scripts map[string][]audio.Chunk
	// Default is streamed for texts without a script.
	Default []audio.Chunk
	// Err fails Synthesize for every text when set.
	Err error
	// Failures fails Synthesize for specific texts.
	Failures map[string]error
	// StreamFailures, keyed by text, are returned by Next after the scripted
	// chunks instead of io.EOF.
	StreamFailures map[string]error
	// Holds, keyed by text, make every Next after the first wait for a
	// receive (or close) on the channel.
	Holds map[string]chan struct{}

	requests []Request
	closed   int
}

// Request records one Synthesize call.
type Request struct {
	Text  string
	Voice string
}

// NewMockProvider creates a mock provider whose default script is chunks.
func NewMockProvider(chunks ...audio.Chunk) *MockProvider {
	return &MockProvider{
		Scripts:        make(map[string][]audio.Chunk),
		Failures:       make(map[string]error),
		StreamFailures: make(map[string]error),
		Holds:          make(map[string]chan struct{}),
		Default:        chunks,
	}
}

// Name returns "mock".
func (m *MockProvider) Name() string { return "mock" }

// Synthesize returns a stream over the script for text.
func (m *MockProvider) Synthesize(ctx context.Context, text, voice string) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, Request{Text: text, Voice: voice})

	if m.Err != nil {
		return nil, m.Err
	}
	if err, ok := m.Failures[text]; ok {
		return nil, err
	}

	script, ok := m.Scripts[text]
	if !ok {
		script = m.Default
	}

	return &mockStream{
		provider: m,
		ctx:      ctx,
		chunks:   script,
		hold:     m.Holds[text],
		endErr:   m.StreamFailures[text],
	}, nil
}

// Requests returns every Synthesize call in order.
func (m *MockProvider) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Texts returns the requested texts in order.
func (m *MockProvider) Texts() []string {
	reqs := m.Requests()
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Text
	}
	return out
}

// StreamsClosed returns how many streams were closed.
func (m *MockProvider) StreamsClosed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type mockStream struct {
	provider *MockProvider
	ctx      context.Context
	chunks   []audio.Chunk
	pos      int
	hold     chan struct{}
	endErr   error
	closed   bool
}

func (s *mockStream) Next() (audio.Chunk, error) {
	if s.hold != nil && s.pos > 0 {
		select {
		case <-s.hold:
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		}
	}
	if s.pos >= len(s.chunks) {
		if s.endErr != nil {
			return nil, s.endErr
		}
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos].Clone()
	s.pos++
	return chunk, nil
}

func (s *mockStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.provider.mu.Lock()
	s.provider.closed++
	s.provider.mu.Unlock()
	return nil
}
