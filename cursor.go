package reader

import "sync/atomic"

// Cursor is an opaque, single-use read position within a shard. Every fetch
// consumes the cursor it is given and yields the next one. The zero Cursor
// holds no position.
type Cursor struct {
	t *token
}

type token struct {
	iterator string
	spent    atomic.Bool
}

func newCursor(iterator *string) Cursor {
	if iterator == nil || *iterator == "" {
		return Cursor{}
	}
	return Cursor{t: &token{iterator: *iterator}}
}

// IsZero reports whether the cursor holds no position.
func (c Cursor) IsZero() bool { return c.t == nil }

// Spent reports whether the cursor has already been handed to a fetch.
func (c Cursor) Spent() bool { return c.t != nil && c.t.spent.Load() }

// take marks the cursor consumed and returns the underlying iterator. Copies
// of a Cursor share the same token, so only one of them can be taken.
func (c Cursor) take() (string, error) {
	if c.t == nil || !c.t.spent.CompareAndSwap(false, true) {
		return "", ErrCursorConsumed
	}
	return c.t.iterator, nil
}
