package reactive

import (
	"context"
	"sync"
)

// Value is an observable snapshot with a single producer
type Value[T any] struct {
	mu      sync.Mutex
	current T
	version uint64
	nextID  int
	subs    map[int]*subscriber[T]
}

// Snapshot is a published value together with its version
type Snapshot[T any] struct {
	Value   T
	Version uint64
}

// subscriber holds exactly one of its channels
type subscriber[T any] struct {
	plain     chan T
	versioned chan Snapshot[T]
}

// NewValue creates a Value holding initial as version 0
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		current: initial,
		subs:    make(map[int]*subscriber[T]),
	}
}

// Get returns the latest snapshot and its version
func (v *Value[T]) Get() (T, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current, v.version
}

// Load returns the latest snapshot
func (v *Value[T]) Load() T {
	cur, _ := v.Get()
	return cur
}

// Set publishes a new snapshot to every subscriber
func (v *Value[T]) Set(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.current = next
	v.version++
	for _, sub := range v.subs {
		if sub.versioned != nil {
			offer(sub.versioned, Snapshot[T]{Value: next, Version: v.version})
			continue
		}
		offer(sub.plain, next)
	}
}

// offer replaces any pending snapshot in ch with next. Only the producer sends,
// so the channel has room once the stale value is drained.
func offer[S any](ch chan S, next S) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- next:
	default:
	}
}

// Subscription receives conflated snapshots on C
type Subscription[T any] struct {
	C <-chan T

	once  sync.Once
	close func()
}

// Close stops delivery; C is closed afterwards
func (s *Subscription[T]) Close() {
	s.once.Do(s.close)
}

// Subscribe registers a consumer. The current snapshot is delivered first.
func (v *Value[T]) Subscribe() *Subscription[T] {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan T, 1)
	ch <- v.current

	id := v.add(&subscriber[T]{plain: ch})
	return &Subscription[T]{
		C:     ch,
		close: v.remover(id, func() { close(ch) }),
	}
}

// SubscribeVersions is Subscribe with each snapshot tagged by its version
func (v *Value[T]) SubscribeVersions() *Subscription[Snapshot[T]] {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan Snapshot[T], 1)
	ch <- Snapshot[T]{Value: v.current, Version: v.version}

	id := v.add(&subscriber[T]{versioned: ch})
	return &Subscription[Snapshot[T]]{
		C:     ch,
		close: v.remover(id, func() { close(ch) }),
	}
}

// add registers sub; v.mu must be held
func (v *Value[T]) add(sub *subscriber[T]) int {
	id := v.nextID
	v.nextID++
	v.subs[id] = sub
	return id
}

func (v *Value[T]) remover(id int, closeCh func()) func() {
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[id]; ok {
			delete(v.subs, id)
			closeCh()
		}
	}
}

// Watch calls fn for the current snapshot and then for each published one until
// ctx is done. Calls are serialized on the caller's goroutine.
func (v *Value[T]) Watch(ctx context.Context, fn func(T)) {
	sub := v.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			fn(snap)
		}
	}
}

// WatchVersions is Watch with each snapshot tagged by its version. Version 0 is
// the initial value that was never Set.
func (v *Value[T]) WatchVersions(ctx context.Context, fn func(Snapshot[T])) {
	sub := v.SubscribeVersions()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			fn(snap)
		}
	}
}

// Subscribers returns the number of open subscriptions
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}
