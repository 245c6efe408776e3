package feed

import (
	"testing"
)

func TestTrackerObserve(t *testing.T) {
	type step struct {
		price          float64
		wantKind       AlertKind
		wantText       string
		wantCheckpoint float64
	}

	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "start then up then down",
			steps: []step{
				{1500.00, AlertStart, "Starting price checkpoint: 1500", 1500},
				{1515.00, AlertUp, "up to 1515", 1515},
				{1518.00, AlertNone, "", 1515},
				{1502.50, AlertDown, "down to 1503", 1502.5},
			},
		},
		{
			name: "start snaps to nearest multiple",
			steps: []step{
				{1508, AlertStart, "Starting price checkpoint: 1513", 1512.5},
			},
		},
		{
			name: "exact threshold crosses",
			steps: []step{
				{1500, AlertStart, "Starting price checkpoint: 1500", 1500},
				{1512.5, AlertUp, "up to 1513", 1512.5},
				{1500, AlertDown, "down to 1500", 1500},
			},
		},
		{
			name: "just inside the band",
			steps: []step{
				{1500, AlertStart, "Starting price checkpoint: 1500", 1500},
				{1512.49, AlertNone, "", 1500},
				{1487.51, AlertNone, "", 1500},
			},
		},
		{
			name: "checkpoint follows the price not the grid",
			steps: []step{
				{1500, AlertStart, "Starting price checkpoint: 1500", 1500},
				{1540.4, AlertUp, "up to 1540", 1540.4},
				{1552.0, AlertNone, "", 1540.4},
				{1553.0, AlertUp, "up to 1553", 1553.0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(12.5)
			for i, s := range tt.steps {
				alert := tracker.Observe(s.price)
				if alert.Kind != s.wantKind {
					t.Errorf("step %d: kind = %v, want %v", i, alert.Kind, s.wantKind)
				}
				if alert.Text != s.wantText {
					t.Errorf("step %d: text = %q, want %q", i, alert.Text, s.wantText)
				}
				cp, ok := tracker.Checkpoint()
				if !ok || cp != s.wantCheckpoint {
					t.Errorf("step %d: checkpoint = %v (%v), want %v", i, cp, ok, s.wantCheckpoint)
				}
				if alert.Checkpoint != s.wantCheckpoint {
					t.Errorf("step %d: alert checkpoint = %v, want %v", i, alert.Checkpoint, s.wantCheckpoint)
				}
			}
		})
	}
}

func TestTrackerDefaults(t *testing.T) {
	tracker := NewTracker(0)
	if tracker.threshold != DefaultThreshold {
		t.Errorf("threshold = %v, want %v", tracker.threshold, DefaultThreshold)
	}
	if _, ok := tracker.Checkpoint(); ok {
		t.Error("new tracker should have no checkpoint")
	}
}

func TestAlertKindString(t *testing.T) {
	tests := map[AlertKind]string{
		AlertNone:     "none",
		AlertStart:    "start",
		AlertUp:       "up",
		AlertDown:     "down",
		AlertKind(99): "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("AlertKind(%d) = %q, want %q", k, got, want)
		}
	}
}
