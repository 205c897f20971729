package extension

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
)

// LazyState is the realization state of a Lazy
type LazyState int32

const (
	StateUnrealized LazyState = iota
	StateRealizing
	StateReady
	StateFailed
)

func (s LazyState) String() string {
	switch s {
	case StateUnrealized:
		return "unrealized"
	case StateRealizing:
		return "realizing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Constructor builds an extension instance
type Constructor func(ctx context.Context) (Extension, error)

// Lazy is a deferred, memoized extension instance. The constructor runs at most
// once; every caller observes the same terminal state.
type Lazy struct {
	key   Key
	ctor  Constructor
	state atomic.Int32
	done  chan struct{}

	// written once before done is closed
	inst Extension
	err  error
}

// NewLazy wraps ctor for the extension identified by key
func NewLazy(key Key, ctor Constructor) *Lazy {
	return &Lazy{
		key:  key,
		ctor: ctor,
		done: make(chan struct{}),
	}
}

// Key returns the identity of the wrapped extension
func (l *Lazy) Key() Key {
	return l.key
}

// State returns the current realization state
func (l *Lazy) State() LazyState {
	return LazyState(l.state.Load())
}

// Get realizes the instance on first call and returns the memoized outcome.
// Construction is detached from the caller's cancellation so one impatient caller
// cannot fail the instance for everybody; waiting callers may give up on ctx.
func (l *Lazy) Get(ctx context.Context) (Extension, error) {
	if l.state.CompareAndSwap(int32(StateUnrealized), int32(StateRealizing)) {
		l.realize(context.WithoutCancel(ctx))
		return l.inst, l.err
	}

	select {
	case <-l.done:
		return l.inst, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Lazy) realize(ctx context.Context) {
	defer close(l.done)
	defer func() {
		if r := recover(); r != nil {
			l.inst = nil
			l.err = fmt.Errorf("panic while constructing %s: %v\n%s", l.key, r, debug.Stack())
			l.state.Store(int32(StateFailed))
		}
	}()

	inst, err := l.ctor(ctx)
	if err == nil && inst == nil {
		err = fmt.Errorf("constructor for %s returned no instance", l.key)
	}
	if err != nil {
		l.err = err
		l.state.Store(int32(StateFailed))
		return
	}

	l.inst = inst
	l.state.Store(int32(StateReady))
}

// Peek returns the instance only if it is already realized; it never triggers
// construction.
func (l *Lazy) Peek() (Extension, bool) {
	if l.State() != StateReady {
		return nil, false
	}
	<-l.done
	return l.inst, true
}

// Err returns the construction error once realization failed
func (l *Lazy) Err() error {
	if l.State() != StateFailed {
		return nil
	}
	<-l.done
	return l.err
}

// Done is closed when realization reaches a terminal state
func (l *Lazy) Done() <-chan struct{} {
	return l.done
}
