package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/tickspeak/internal/metrics"
	"github.com/dgnsrekt/tickspeak/internal/speech"
)

// Source yields the raw bytes of the price buffer.
type Source interface {
	Snapshot() []byte
}

// Waker blocks until there is a new price to read.
type Waker interface {
	Wait(ctx context.Context) error
}

// Speaker voices alerts.
type Speaker interface {
	Speak(text string, force bool) *speech.Task
	SpeakSync(ctx context.Context, text string) error
}

// Reader is the single-threaded loop that owns the tracker.
type Reader struct {
	source  Source
	waker   Waker
	tracker *Tracker
	speaker Speaker
	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewReader wires a reader. logger and m may be nil.
func NewReader(source Source, waker Waker, tracker *Tracker, speaker Speaker, logger *log.Logger, m *metrics.Metrics) *Reader {
	if logger == nil {
		logger = log.Default()
	}
	return &Reader{
		source:  source,
		waker:   waker,
		tracker: tracker,
		speaker: speaker,
		logger:  logger,
		metrics: m,
	}
}

// Run processes one sample per wake until ctx is done. It returns nil on
// cancellation and the waker's error otherwise.
func (r *Reader) Run(ctx context.Context) error {
	for {
		if err := r.waker.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if _, err := r.Step(ctx); err != nil {
			if errors.Is(err, ErrBadSample) {
				r.logger.Debug("Skipping sample", "err", err)
				continue
			}
			return err
		}
	}
}

// Step reads the region once and acts on the price. The first valid price
// is announced synchronously; later crossings are handed to the speaker
// without waiting.
func (r *Reader) Step(ctx context.Context) (Alert, error) {
	price, err := ParsePrice(r.source.Snapshot())
	if err != nil {
		r.metrics.ObservePriceSample("invalid")
		return Alert{}, err
	}
	r.metrics.ObservePriceSample("ok")

	alert := r.tracker.Observe(price)

	switch alert.Kind {
	case AlertStart:
		r.logger.Info("Alert", "text", alert.Text, "price", fmt.Sprintf("%.2f", price))
		r.metrics.ObserveAlert(alert.Kind.String(), alert.Checkpoint)
		if err := r.speaker.SpeakSync(ctx, alert.Text); err != nil {
			if errors.Is(err, speech.ErrClosed) || ctx.Err() != nil {
				return alert, nil
			}
			r.logger.Error("Checkpoint announcement failed", "err", err)
		}
	case AlertUp, AlertDown:
		r.logger.Info("Alert", "text", alert.Text, "change", fmt.Sprintf("%.2f", alert.Change))
		r.metrics.ObserveAlert(alert.Kind.String(), alert.Checkpoint)
		r.speaker.Speak(alert.Text, false)
	default:
		r.logger.Debug("Price",
			"price", fmt.Sprintf("%.2f", price),
			"change", fmt.Sprintf("%.2f", alert.Change))
	}

	return alert, nil
}
