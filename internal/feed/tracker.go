package feed

import (
	"fmt"
	"math"
)

// DefaultThreshold is the price move, in quote currency, that triggers an alert.
const DefaultThreshold = 12.5

// AlertKind classifies an alert.
type AlertKind int

const (
	// AlertNone means the price stayed inside the band.
	AlertNone AlertKind = iota
	// AlertStart announces the initial checkpoint.
	AlertStart
	// AlertUp means the price rose at least one threshold.
	AlertUp
	// AlertDown means the price fell at least one threshold.
	AlertDown
)

// String returns the label used in logs and metrics.
func (k AlertKind) String() string {
	switch k {
	case AlertNone:
		return "none"
	case AlertStart:
		return "start"
	case AlertUp:
		return "up"
	case AlertDown:
		return "down"
	default:
		return "unknown"
	}
}

// Alert is the result of observing one price.
type Alert struct {
	Kind       AlertKind
	Text       string
	Price      float64
	Checkpoint float64 // checkpoint after the observation
	Change     float64 // price minus the previous checkpoint
}

// Tracker holds the reference price alerts are measured from. It is not safe
// for concurrent use.
type Tracker struct {
	threshold  float64
	checkpoint float64
	started    bool
}

// NewTracker creates a tracker with the given threshold.
func NewTracker(threshold float64) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{threshold: threshold}
}

// Checkpoint returns the current checkpoint, if one has been set.
func (t *Tracker) Checkpoint() (float64, bool) {
	return t.checkpoint, t.started
}

// Observe updates the checkpoint for a new price. The first price snaps to
// the nearest multiple of the threshold; later prices move the checkpoint
// to the price itself once it is a full threshold away.
func (t *Tracker) Observe(price float64) Alert {
	if !t.started {
		t.started = true
		t.checkpoint = math.Round(price/t.threshold) * t.threshold
		return Alert{
			Kind:       AlertStart,
			Text:       fmt.Sprintf("Starting price checkpoint: %d", roundInt(t.checkpoint)),
			Price:      price,
			Checkpoint: t.checkpoint,
		}
	}

	change := price - t.checkpoint
	alert := Alert{Kind: AlertNone, Price: price, Checkpoint: t.checkpoint, Change: change}

	switch {
	case change >= t.threshold:
		alert.Kind = AlertUp
		alert.Text = fmt.Sprintf("up to %d", roundInt(price))
	case change <= -t.threshold:
		alert.Kind = AlertDown
		alert.Text = fmt.Sprintf("down to %d", roundInt(price))
	default:
		return alert
	}

	t.checkpoint = price
	alert.Checkpoint = price
	return alert
}

// roundInt rounds half away from zero.
func roundInt(v float64) int64 {
	return int64(math.Round(v))
}
