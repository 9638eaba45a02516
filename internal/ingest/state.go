package ingest

import (
	"context"
	"time"
)

// State is a position in the submission lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateUnapproved      State = "authenticated_unapproved"
	StateApproved        State = "approved"
	StateNormalizing     State = "normalizing"
	StateCompressing     State = "compressing"
	StateUploading       State = "uploading"
	StatePersisting      State = "persisting"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition records one state change. Elapsed is the time spent in From.
// Err is set when To is StateFailed.
type Transition struct {
	From    State
	To      State
	Elapsed time.Duration
	Err     error
}

// Observer receives every transition of a submission.
type Observer interface {
	Observe(ctx context.Context, t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t Transition)

func (f ObserverFunc) Observe(ctx context.Context, t Transition) { f(ctx, t) }
