package speech

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Token is a one-shot cancellation flag. Once set it stays set.
type Token struct {
	set atomic.Bool
}

// Cancel sets the flag.
func (t *Token) Cancel() { t.set.Store(true) }

// Canceled reports whether Cancel was called.
func (t *Token) Canceled() bool { return t.set.Load() }

// Outcome is how a playback task ended.
type Outcome int

const (
	// OutcomePending means the task has not finished yet.
	OutcomePending Outcome = iota
	// OutcomeCompleted means the provider ran to the end.
	OutcomeCompleted
	// OutcomeCanceled means the task was superseded and faded out.
	OutcomeCanceled
	// OutcomeFailed means the device or provider reported an error.
	OutcomeFailed
	// OutcomeAborted means shutdown stopped the task before it played.
	OutcomeAborted
)

// String returns the label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeCompleted:
		return "completed"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeFailed:
		return "failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Task is one accepted phrase and the worker that plays it.
type Task struct {
	ID        string
	Text      string
	CreatedAt time.Time

	token Token
	// pinned tasks come from SpeakSync and are never superseded
	pinned bool
	done   chan struct{}

	mu      sync.Mutex
	outcome Outcome
	err     error
}

func newTask(text string, now time.Time, pinned bool) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: now,
		pinned:    pinned,
		done:      make(chan struct{}),
	}
}

// Canceled reports whether a newer phrase superseded this one.
func (t *Task) Canceled() bool { return t.token.Canceled() }

// Done is closed when the worker has released the device.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the outcome and error once Done is closed.
func (t *Task) Result() (Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome, t.err
}

func (t *Task) finish(outcome Outcome, err error) {
	t.mu.Lock()
	t.outcome = outcome
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
