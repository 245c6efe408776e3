package speech

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/tickspeak/internal/audio"
	"github.com/dgnsrekt/tickspeak/internal/synth"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func constChunk(n int, v float32) audio.Chunk {
	c := make(audio.Chunk, n)
	for i := range c {
		c[i] = v
	}
	return c
}

func testConfig() Config {
	return Config{
		Voice:      "test-voice",
		SampleRate: 1000,
		BlockSize:  256,
		Debounce:   300 * time.Millisecond,
		FadeOutMs:  4, // 4 samples at 1 kHz
	}
}

func newTestCoordinator(t *testing.T, provider synth.Provider, device audio.Device, prefix *PrefixCache, clock *fakeClock) *Coordinator {
	t.Helper()
	c := NewCoordinator(testConfig(), provider, device, prefix,
		WithLogger(quietLogger()),
		WithClock(clock.Now))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitDone(t *testing.T, task *Task) (Outcome, error) {
	t.Helper()
	select {
	case <-task.Done():
		return task.Result()
	case <-time.After(2 * time.Second):
		t.Fatalf("task %q did not finish", task.Text)
		return OutcomePending, nil
	}
}

func TestSpeakDebounce(t *testing.T) {
	provider := synth.NewMockProvider(constChunk(8, 0.5))
	device := audio.NewMockDevice()
	clock := newFakeClock()
	c := newTestCoordinator(t, provider, device, nil, clock)

	first := c.Speak("up to 1515", false)
	if first == nil {
		t.Fatal("first Speak should be accepted")
	}

	clock.Advance(100 * time.Millisecond)
	if task := c.Speak("up to 1530", false); task != nil {
		t.Fatal("Speak within the debounce interval should be dropped")
	}

	waitDone(t, first)
	if device.Opens() != 1 {
		t.Errorf("Opens = %d, want exactly one spawn", device.Opens())
	}

	clock.Advance(250 * time.Millisecond)
	later := c.Speak("up to 1545", false)
	if later == nil {
		t.Fatal("Speak after the debounce interval should be accepted")
	}
	waitDone(t, later)

	if got := provider.Texts(); len(got) != 2 || got[1] != "up to 1545" {
		t.Errorf("synthesized %v", got)
	}
}

func TestSpeakForceResetsDebounce(t *testing.T) {
	provider := synth.NewMockProvider(constChunk(8, 0.5))
	device := audio.NewMockDevice()
	clock := newFakeClock()
	c := newTestCoordinator(t, provider, device, nil, clock)

	if c.Speak("a", false) == nil {
		t.Fatal("first Speak should be accepted")
	}

	clock.Advance(10 * time.Millisecond)
	if c.Speak("b", true) == nil {
		t.Fatal("forced Speak must bypass the debounce")
	}

	// The forced call restarts the interval.
	clock.Advance(295 * time.Millisecond)
	if c.Speak("c", false) != nil {
		t.Fatal("Speak within the interval of the forced call should be dropped")
	}

	clock.Advance(10 * time.Millisecond)
	last := c.Speak("d", false)
	if last == nil {
		t.Fatal("Speak after the forced interval should be accepted")
	}
	waitDone(t, last)
}

func TestSpeakSupersedesWithFade(t *testing.T) {
	provider := synth.NewMockProvider()
	provider.Scripts["A"] = []audio.Chunk{constChunk(8, 1), constChunk(8, 1), constChunk(8, 1)}
	provider.Scripts["B"] = []audio.Chunk{constChunk(4, 0.25)}
	holdA := make(chan struct{})
	provider.Holds["A"] = holdA

	device := audio.NewMockDevice()
	clock := newFakeClock()
	c := newTestCoordinator(t, provider, device, nil, clock)

	a := c.Speak("A", false)
	waitFor(t, "A's first chunk", func() bool {
		sinks := device.Sinks()
		return len(sinks) == 1 && len(sinks[0].Chunks()) == 1
	})

	b := c.Speak("B", true)
	if b == nil {
		t.Fatal("forced Speak should be accepted")
	}
	if !a.Canceled() {
		t.Fatal("previous token must be set before Speak returns")
	}
	if b.Canceled() {
		t.Fatal("new task must start uncanceled")
	}

	close(holdA)

	outcome, err := waitDone(t, a)
	if outcome != OutcomeCanceled || err != nil {
		t.Errorf("A result = (%v, %v), want canceled", outcome, err)
	}
	if outcome, err := waitDone(t, b); outcome != OutcomeCompleted || err != nil {
		t.Errorf("B result = (%v, %v), want completed", outcome, err)
	}

	sinks := device.Sinks()
	if len(sinks) != 2 {
		t.Fatalf("opened %d sinks, want 2", len(sinks))
	}
	if device.MaxConcurrent() != 1 {
		t.Errorf("MaxConcurrent = %d, streams overlapped", device.MaxConcurrent())
	}

	chunksA := sinks[0].Chunks()
	if len(chunksA) != 2 {
		t.Fatalf("A wrote %d chunks, want the first chunk plus one faded chunk", len(chunksA))
	}
	want := []float32{1, 2.0 / 3, 1.0 / 3, 0, 1, 1, 1, 1}
	for i, w := range want {
		if math.Abs(float64(chunksA[1][i]-w)) > 1e-6 {
			t.Errorf("faded sample %d = %f, want %f", i, chunksA[1][i], w)
		}
	}

	if got := sinks[1].Samples(); len(got) != 4 || got[0] != 0.25 {
		t.Errorf("B wrote %v", got)
	}
	if provider.StreamsClosed() != 2 {
		t.Errorf("StreamsClosed = %d, want 2", provider.StreamsClosed())
	}
}

func TestRapidSupersedeKeepsOneStream(t *testing.T) {
	provider := synth.NewMockProvider(constChunk(8, 0.5), constChunk(8, 0.5))
	hold := make(chan struct{})
	provider.Holds["first"] = hold

	device := audio.NewMockDevice()
	device.WriteDelay = time.Millisecond
	clock := newFakeClock()
	c := newTestCoordinator(t, provider, device, nil, clock)

	first := c.Speak("first", false)
	second := c.Speak("second", true)
	third := c.Speak("third", true)
	close(hold)

	for _, task := range []*Task{first, second} {
		if !task.Canceled() {
			t.Errorf("%q should be canceled", task.Text)
		}
	}
	if outcome, _ := waitDone(t, third); outcome != OutcomeCompleted {
		t.Errorf("last task outcome = %v, want completed", outcome)
	}
	waitDone(t, first)
	waitDone(t, second)

	if device.MaxConcurrent() != 1 {
		t.Errorf("MaxConcurrent = %d, want 1", device.MaxConcurrent())
	}
	if c.Current() != nil {
		t.Error("slot should be empty once everything finished")
	}
}

func TestSpeakWritesLeadInFirst(t *testing.T) {
	provider := synth.NewMockProvider(constChunk(16, 0.1))
	provider.Scripts["up to"] = []audio.Chunk{constChunk(3000, 0.9)}

	prefix := BuildPrefixCache(context.Background(), provider, PrefixOptions{
		Phrases:    []string{"up to"},
		Voice:      "test-voice",
		SampleRate: 1000,
		MaxSamples: 2400,
		Logger:     quietLogger(),
	})

	device := audio.NewMockDevice()
	c := newTestCoordinator(t, provider, device, prefix, newFakeClock())

	task := c.Speak("Up To 1515", false)
	waitDone(t, task)

	chunks := device.Sinks()[0].Chunks()
	if len(chunks) != 2 {
		t.Fatalf("wrote %d chunks, want lead-in plus one", len(chunks))
	}
	if len(chunks[0]) != 2400 || chunks[0][0] != 0.9 {
		t.Errorf("first write is not the lead-in clip (len %d)", len(chunks[0]))
	}
	if len(chunks[1]) != 16 {
		t.Errorf("second write has %d samples, want 16", len(chunks[1]))
	}
}

func TestSpeakSync(t *testing.T) {
	provider := synth.NewMockProvider(constChunk(8, 0.5))
	device := audio.NewMockDevice()
	clock := newFakeClock()
	c := newTestCoordinator(t, provider, device, nil, clock)

	if err := c.SpeakSync(context.Background(), "Starting price checkpoint: 1500"); err != nil {
		t.Fatalf("SpeakSync failed: %v", err)
	}
	sinks := device.Sinks()
	if len(sinks) != 1 || !sinks[0].Closed() {
		t.Fatal("SpeakSync should return after the sink is closed")
	}

	// The synchronous path leaves the debounce untouched.
	task := c.Speak("up to 1515", false)
	if task == nil {
		t.Fatal("Speak right after SpeakSync should be accepted")
	}
	waitDone(t, task)
}

func TestSpeakSyncWaitsForCurrent(t *testing.T) {
	provider := synth.NewMockProvider(constChunk(8, 0.5), constChunk(8, 0.5))
	hold := make(chan struct{})
	provider.Holds["bg"] = hold
	device := audio.NewMockDevice()
	c := newTestCoordinator(t, provider, device, nil, newFakeClock())

	bg := c.Speak("bg", false)
	waitFor(t, "background sink", func() bool { return device.Opens() == 1 })

	done := make(chan error, 1)
	go func() { done <- c.SpeakSync(context.Background(), "sync") }()

	time.Sleep(20 * time.Millisecond)
	if device.Opens() != 1 {
		t.Fatal("SpeakSync opened the device while another stream held it")
	}
	if bg.Canceled() {
		t.Fatal("SpeakSync must not cancel the current phrase")
	}

	close(hold)
	if err := <-done; err != nil {
		t.Fatalf("SpeakSync failed: %v", err)
	}
	if outcome, _ := waitDone(t, bg); outcome != OutcomeCompleted {
		t.Errorf("background outcome = %v, want completed", outcome)
	}
	if device.MaxConcurrent() != 1 {
		t.Errorf("MaxConcurrent = %d, want 1", device.MaxConcurrent())
	}
}

func TestPlaybackFailureKeepsCoordinatorUsable(t *testing.T) {
	tests := []struct {
		name              string
		setup             func(p *synth.MockProvider)
		wantChunks        int
		wantStreamsClosed int
	}{
		{
			name: "synthesis refused",
			setup: func(p *synth.MockProvider) {
				p.Failures["broken"] = errors.New("model exploded")
			},
			wantChunks:        0,
			wantStreamsClosed: 0,
		},
		{
			name: "stream fails after two chunks",
			setup: func(p *synth.MockProvider) {
				p.Scripts["broken"] = []audio.Chunk{constChunk(8, 0.5), constChunk(8, 0.25)}
				p.StreamFailures["broken"] = errors.New("boom")
			},
			wantChunks:        2,
			wantStreamsClosed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := synth.NewMockProvider(constChunk(8, 0.5))
			tt.setup(provider)
			device := audio.NewMockDevice()
			clock := newFakeClock()
			c := newTestCoordinator(t, provider, device, nil, clock)

			bad := c.Speak("broken", false)
			outcome, err := waitDone(t, bad)
			if outcome != OutcomeFailed || err == nil {
				t.Errorf("result = (%v, %v), want failed with error", outcome, err)
			}
			sink := device.Sinks()[0]
			if got := len(sink.Chunks()); got != tt.wantChunks {
				t.Errorf("chunks written = %d, want %d", got, tt.wantChunks)
			}
			if !sink.Closed() {
				t.Error("sink should be closed after a failure")
			}
			if got := provider.StreamsClosed(); got != tt.wantStreamsClosed {
				t.Errorf("StreamsClosed = %d, want %d", got, tt.wantStreamsClosed)
			}

			clock.Advance(time.Second)
			good := c.Speak("fine", false)
			if outcome, _ := waitDone(t, good); outcome != OutcomeCompleted {
				t.Errorf("outcome after failure = %v, want completed", outcome)
			}
			if device.MaxConcurrent() != 1 {
				t.Errorf("MaxConcurrent = %d, want 1", device.MaxConcurrent())
			}
		})
	}
}

func TestDeviceOpenFailure(t *testing.T) {
	device := audio.NewMockDevice()
	device.OpenErr = errors.New("device busy")
	c := newTestCoordinator(t, synth.NewMockProvider(constChunk(8, 0.5)), device, nil, newFakeClock())

	err := c.SpeakSync(context.Background(), "hello")
	if err == nil || !errors.Is(err, device.OpenErr) {
		t.Errorf("SpeakSync error = %v, want wrapped device error", err)
	}
}

func TestCloseFadesAndRejects(t *testing.T) {
	provider := synth.NewMockProvider(constChunk(8, 1), constChunk(8, 1), constChunk(8, 1))
	hold := make(chan struct{})
	provider.Holds["long"] = hold
	device := audio.NewMockDevice()
	c := NewCoordinator(testConfig(), provider, device, nil, WithLogger(quietLogger()))

	task := c.Speak("long", false)
	waitFor(t, "first chunk", func() bool {
		sinks := device.Sinks()
		return len(sinks) == 1 && len(sinks[0].Chunks()) == 1
	})

	closed := make(chan error, 1)
	go func() { closed <- c.Close(context.Background()) }()

	waitFor(t, "cancellation", task.Canceled)
	close(hold)

	if err := <-closed; err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if outcome, _ := task.Result(); outcome != OutcomeCanceled {
		t.Errorf("outcome = %v, want canceled", outcome)
	}

	if c.Speak("after", true) != nil {
		t.Error("Speak after Close should be rejected")
	}
	if err := c.SpeakSync(context.Background(), "after"); !errors.Is(err, ErrClosed) {
		t.Errorf("SpeakSync after Close = %v, want ErrClosed", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestCloseDeadlineAbandonsSynthesis(t *testing.T) {
	provider := synth.NewMockProvider(constChunk(8, 1), constChunk(8, 1))
	provider.Holds["stuck"] = make(chan struct{}) // never released
	device := audio.NewMockDevice()
	c := NewCoordinator(testConfig(), provider, device, nil, WithLogger(quietLogger()))

	task := c.Speak("stuck", false)
	waitFor(t, "first chunk", func() bool { return device.Opens() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close = %v, want deadline exceeded", err)
	}

	if outcome, _ := waitDone(t, task); outcome != OutcomeAborted {
		t.Errorf("outcome = %v, want aborted", outcome)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[Outcome]string{
		OutcomePending:   "pending",
		OutcomeCompleted: "completed",
		OutcomeCanceled:  "canceled",
		OutcomeFailed:    "failed",
		OutcomeAborted:   "aborted",
		Outcome(42):      "unknown",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", o, got, want)
		}
	}
}
