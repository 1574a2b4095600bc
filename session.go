package reader

import "fmt"

// State is the lifecycle position of a read session.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateFetching
	StateDraining
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateFetching:
		return "fetching"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// terminal reports whether no further transition can leave s.
func (s State) terminal() bool {
	return s == StateClosed || s == StateErrored
}

type event int

const (
	eventResolved event = iota
	eventFetch
	eventBatch
	eventEmpty
	eventDrain
	eventFailed
	eventShardClosed
)

func (e event) String() string {
	switch e {
	case eventResolved:
		return "resolved"
	case eventFetch:
		return "fetch"
	case eventBatch:
		return "batch"
	case eventEmpty:
		return "empty"
	case eventDrain:
		return "drain"
	case eventFailed:
		return "failed"
	case eventShardClosed:
		return "shard-closed"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// session is the mutable state of one consumer attached to one shard. It is
// owned by the read loop goroutine and changes only through transition.
type session struct {
	state    State
	cursor   Cursor
	pending  int
	limit    int32
	draining bool
	shardID  string
	latest   bool
	start    StartPosition
}

type transitionError struct {
	from State
	ev   event
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s on %s", e.ev, e.from)
}

// transition applies ev to the session. Drain is accepted in every state;
// a failure observed while draining closes the session instead of erroring
// it, so a session never ends with both an error and an end signal.
func (s *session) transition(ev event) error {
	invalid := &transitionError{from: s.state, ev: ev}

	switch ev {
	case eventResolved:
		if s.state != StateUninitialized {
			return invalid
		}
		s.state = StateReady

	case eventFetch:
		if s.state != StateReady || s.draining || s.pending > 0 {
			return invalid
		}
		s.pending++
		s.state = StateFetching

	case eventBatch, eventEmpty, eventShardClosed:
		if s.pending == 0 {
			return invalid
		}
		s.pending--
		switch {
		case s.draining, ev == eventShardClosed:
			s.state = StateClosed
		default:
			s.state = StateReady
		}

	case eventDrain:
		if s.state.terminal() {
			return nil
		}
		s.draining = true
		if s.pending == 0 {
			s.state = StateClosed
		} else {
			s.state = StateDraining
		}

	case eventFailed:
		if s.state.terminal() {
			return invalid
		}
		if s.pending > 0 {
			s.pending--
		}
		if s.draining {
			s.state = StateClosed
		} else {
			s.state = StateErrored
		}

	default:
		return invalid
	}
	return nil
}
