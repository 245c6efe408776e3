package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/tickspeak/internal/audio"
	"github.com/dgnsrekt/tickspeak/internal/metrics"
	"github.com/dgnsrekt/tickspeak/internal/synth"
)

// ErrClosed is returned once the coordinator has been closed.
var ErrClosed = errors.New("speech coordinator closed")

// Config holds playback settings.
type Config struct {
	Voice      string
	SampleRate int
	BlockSize  int
	// Debounce is the minimum spacing between accepted non-forced phrases.
	Debounce time.Duration
	// FadeOutMs is the length of the ramp applied when a phrase is superseded.
	FadeOutMs int
}

// DefaultConfig returns the stock playback settings.
func DefaultConfig() Config {
	return Config{
		Voice:      "en_US-lessac-medium",
		SampleRate: audio.DefaultSampleRate,
		BlockSize:  audio.DefaultBlockSize,
		Debounce:   300 * time.Millisecond,
		FadeOutMs:  300,
	}
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithMetrics records speak and playback outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock replaces time.Now for debounce decisions.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator accepts phrases and plays the newest one, fading out whatever
// was playing before it.
type Coordinator struct {
	cfg      Config
	provider synth.Provider
	device   audio.Device
	prefix   *PrefixCache
	logger   *log.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// ctx scopes synthesis for background workers; canceled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards everything below.
	mu      sync.Mutex
	limiter *rate.Limiter
	current *Task
	closed  bool
}

// NewCoordinator creates a coordinator. prefix may be nil.
func NewCoordinator(cfg Config, provider synth.Provider, device audio.Device, prefix *PrefixCache, opts ...Option) *Coordinator {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = audio.DefaultBlockSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:      cfg,
		provider: provider,
		device:   device,
		prefix:   prefix,
		logger:   log.Default(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limiter = c.newLimiter()
	return c
}

func (c *Coordinator) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(c.cfg.Debounce), 1)
}

// Speak plays text in the background, superseding the current phrase. Unless
// force is set, a call arriving within the debounce interval of the last
// accepted one is dropped. It returns the new task, or nil if the phrase was
// dropped or the coordinator is closed. Speak never blocks on playback.
func (c *Coordinator) Speak(text string, force bool) *Task {
	phrase, leadIn, _ := c.prefix.Lookup(text)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.metrics.ObserveSpeak("closed")
		return nil
	}

	now := c.now()
	if force {
		c.limiter = c.newLimiter()
		c.limiter.AllowN(now, 1)
	} else if !c.limiter.AllowN(now, 1) {
		c.mu.Unlock()
		c.logger.Debug("Debounced", "text", text)
		c.metrics.ObserveSpeak("debounced")
		return nil
	}

	prev := c.current
	if prev != nil && !prev.pinned {
		prev.token.Cancel()
	}
	task := newTask(text, now, false)
	c.current = task
	c.wg.Add(1)
	go c.run(task, leadIn, prev)
	c.mu.Unlock()

	c.logger.Info("Speaking", "text", text, "lead_in", phrase, "forced", force)
	c.metrics.ObserveSpeak("spawned")
	return task
}

// SpeakSync plays text on the calling goroutine and returns when playback is
// done. It waits for the current phrase to release the device, skips the
// debounce check, and cannot be superseded.
func (c *Coordinator) SpeakSync(ctx context.Context, text string) error {
	phrase, leadIn, _ := c.prefix.Lookup(text)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.current
	task := newTask(text, c.now(), true)
	c.current = task
	c.mu.Unlock()

	c.logger.Info("Speaking", "text", text, "lead_in", phrase, "sync", true)

	outcome, err := c.play(ctx, task, leadIn, prev)
	c.report(task, outcome, err)
	return err
}

// Current returns the most recently accepted task that has not finished.
func (c *Coordinator) Current() *Task {
	c.mu.Lock()
	t := c.current
	c.mu.Unlock()
	if t == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	default:
		return t
	}
}

// Close rejects further phrases, fades out the current one and waits for
// every worker to release the device. If ctx expires first, in-flight
// synthesis is abandoned and ctx's error is returned.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.current != nil && !c.current.pinned {
		c.current.token.Cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		c.logger.Warn("Playback still running at shutdown deadline")
		return ctx.Err()
	}
}

func (c *Coordinator) run(task *Task, leadIn audio.Chunk, prev *Task) {
	defer c.wg.Done()
	outcome, err := c.play(c.ctx, task, leadIn, prev)
	c.report(task, outcome, err)
}

func (c *Coordinator) report(task *Task, outcome Outcome, err error) {
	switch outcome {
	case OutcomeFailed:
		c.logger.Error("Playback failed", "text", task.Text, "id", task.ID, "err", err)
	case OutcomeCanceled:
		c.logger.Debug("Playback superseded", "text", task.Text, "id", task.ID)
	default:
		c.logger.Debug("Playback finished", "text", task.Text, "id", task.ID, "outcome", outcome)
	}
	c.metrics.ObserveUtterance(outcome.String())
	task.finish(outcome, err)
}

// play waits for prev to release the device, then owns it until the task's
// stream ends or the task is superseded.
func (c *Coordinator) play(ctx context.Context, task *Task, leadIn audio.Chunk, prev *Task) (Outcome, error) {
	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			return OutcomeAborted, ctx.Err()
		}
	}

	sink, err := c.device.Open(audio.SinkConfig{
		SampleRate: c.cfg.SampleRate,
		BlockSize:  c.cfg.BlockSize,
	})
	if err != nil {
		return OutcomeFailed, fmt.Errorf("open audio sink: %w", err)
	}

	outcome, err := c.stream(ctx, task, sink, leadIn)
	if cerr := sink.Close(); cerr != nil && err == nil {
		return OutcomeFailed, fmt.Errorf("close audio sink: %w", cerr)
	}
	return outcome, err
}

func (c *Coordinator) stream(ctx context.Context, task *Task, sink audio.Sink, leadIn audio.Chunk) (Outcome, error) {
	if len(leadIn) > 0 {
		if err := sink.Write(leadIn); err != nil {
			return OutcomeFailed, fmt.Errorf("write lead-in: %w", err)
		}
	}

	stream, err := c.provider.Synthesize(ctx, task.Text, c.cfg.Voice)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeAborted, ctx.Err()
		}
		return OutcomeFailed, fmt.Errorf("synthesize: %w", err)
	}
	defer stream.Close()

	fade := audio.FadeSamples(c.cfg.SampleRate, c.cfg.FadeOutMs)
	first := true

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return OutcomeCompleted, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeAborted, ctx.Err()
			}
			return OutcomeFailed, fmt.Errorf("synthesize: %w", err)
		}
		if len(chunk) == 0 {
			continue
		}

		if first {
			first = false
			c.metrics.ObserveFirstAudioLatency(c.now().Sub(task.CreatedAt))
		}

		// Superseded: fade this chunk out and stop.
		if task.Canceled() {
			if err := sink.Write(chunk.FadeOut(fade)); err != nil {
				return OutcomeFailed, fmt.Errorf("write audio: %w", err)
			}
			return OutcomeCanceled, nil
		}

		if err := sink.Write(chunk); err != nil {
			return OutcomeFailed, fmt.Errorf("write audio: %w", err)
		}
	}
}
