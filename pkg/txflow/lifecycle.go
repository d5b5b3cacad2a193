package txflow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is a lifecycle position. Confirmed and Failed are terminal.
type State string

const (
	StateIdle                 State = "idle"
	StateBuilt                State = "built"
	StateSubmitted            State = "submitted"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateConfirmed            State = "confirmed"
	StateFailed               State = "failed"
)

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// allowed lists legal successors. Submitted may jump straight to Confirmed
// when the ledger returned no digest to wait on.
var allowed = map[State][]State{
	StateIdle:                 {StateBuilt, StateFailed},
	StateBuilt:                {StateSubmitted, StateFailed},
	StateSubmitted:            {StateAwaitingConfirmation, StateConfirmed, StateFailed},
	StateAwaitingConfirmation: {StateConfirmed, StateFailed},
}

type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Lifecycle tracks one user action from build to outcome. It is safe to
// read from other goroutines while the coordinator drives it.
type Lifecycle struct {
	mu sync.RWMutex

	id     string
	action ActionKind
	sender string

	state      State
	digest     string
	producedID string
	status     string
	err        *Error

	startedAt  time.Time
	finishedAt time.Time
	history    []Transition

	done chan struct{}
}

func newLifecycle(id string, action ActionKind, sender string, now time.Time) *Lifecycle {
	return &Lifecycle{
		id:        id,
		action:    action,
		sender:    sender,
		state:     StateIdle,
		startedAt: now,
		done:      make(chan struct{}),
	}
}

func (l *Lifecycle) ID() string         { return l.id }
func (l *Lifecycle) Action() ActionKind { return l.action }

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Err returns the failure reason, or nil unless the lifecycle failed.
func (l *Lifecycle) Err() *Error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.err
}

func (l *Lifecycle) ProducedID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.producedID
}

// Done is closed when the lifecycle reaches a terminal state.
func (l *Lifecycle) Done() <-chan struct{} { return l.done }

// Wait blocks until the lifecycle is terminal or ctx is done.
func (l *Lifecycle) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-l.done:
		return l.Snapshot(), nil
	case <-ctx.Done():
		return l.Snapshot(), ctx.Err()
	}
}

func (l *Lifecycle) advance(to State, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.advanceLocked(to, at)
}

func (l *Lifecycle) advanceLocked(to State, at time.Time) error {
	ok := false
	for _, s := range allowed[l.state] {
		if s == to {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("illegal transition %s -> %s", l.state, to)
	}
	l.history = append(l.history, Transition{From: l.state, To: to, At: at})
	l.state = to
	if to.Terminal() {
		l.finishedAt = at
		close(l.done)
	}
	return nil
}

func (l *Lifecycle) setDigest(d string) {
	l.mu.Lock()
	l.digest = d
	l.mu.Unlock()
}

func (l *Lifecycle) confirm(producedID, status string, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.producedID = producedID
	l.status = status
	return l.advanceLocked(StateConfirmed, at)
}

func (l *Lifecycle) fail(e *Error, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = e
	l.status = e.Error()
	return l.advanceLocked(StateFailed, at)
}

// Snapshot is a point-in-time copy of a lifecycle, suitable for JSON.
type Snapshot struct {
	ID         string       `json:"id"`
	Action     ActionKind   `json:"action"`
	Sender     string       `json:"sender,omitempty"`
	State      State        `json:"state"`
	Digest     string       `json:"digest,omitempty"`
	ProducedID string       `json:"producedId,omitempty"`
	Status     string       `json:"status,omitempty"`
	ErrorKind  ErrorKind    `json:"errorKind,omitempty"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt,omitempty"`
	History    []Transition `json:"history,omitempty"`
}

func (l *Lifecycle) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := Snapshot{
		ID:         l.id,
		Action:     l.action,
		Sender:     l.sender,
		State:      l.state,
		Digest:     l.digest,
		ProducedID: l.producedID,
		Status:     l.status,
		StartedAt:  l.startedAt,
		FinishedAt: l.finishedAt,
		History:    append([]Transition(nil), l.history...),
	}
	if l.err != nil {
		s.ErrorKind = l.err.Kind
		s.Error = l.err.Error()
	}
	return s
}
