// internal/broadcast/broadcaster.go
package broadcast

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Listener receives a snapshot. It runs on the goroutine delivering the
// queue, which is the publisher's unless another delivery is in progress.
type Listener[T any] func(snapshot T)

type subscriber[T any] struct {
	id       uint64
	listener Listener[T]
}

// Broadcaster delivers immutable snapshots to every current subscriber in
// registration order. Snapshots are delivered one at a time in the order
// they were queued. A panicking listener is logged and skipped; the
// remaining listeners are still notified.
type Broadcaster[T any] struct {
	name        string
	mutex       sync.RWMutex
	subscribers []subscriber[T]
	nextID      uint64

	queueMu    sync.Mutex
	queue      []T
	delivering bool

	logger *zap.Logger
}

// New creates a broadcaster; name is used only for logging
func New[T any](name string, logger *zap.Logger) *Broadcaster[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster[T]{
		name:   name,
		logger: logger.With(zap.String("broadcaster", name)),
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
// Calling the unsubscribe function more than once is harmless.
func (b *Broadcaster[T]) Subscribe(listener Listener[T]) func() {
	b.mutex.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, subscriber[T]{id: id, listener: listener})
	b.mutex.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

// SubscribeChan returns a bounded channel fed with snapshots. When the
// consumer falls behind, new snapshots are dropped rather than blocking the
// publisher. The channel is closed by the returned cancel function.
func (b *Broadcaster[T]) SubscribeChan(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	var closeMu sync.Mutex
	closed := false

	unsubscribe := b.Subscribe(func(snapshot T) {
		closeMu.Lock()
		defer closeMu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- snapshot:
		default:
			b.logger.Debug("Subscriber channel full, dropping snapshot")
		}
	})

	return ch, func() {
		unsubscribe()
		closeMu.Lock()
		if !closed {
			closed = true
			close(ch)
		}
		closeMu.Unlock()
	}
}

// Publish queues the snapshot and delivers the queue. A Publish made while
// a delivery is running, including one made from inside a listener, returns
// at once and its snapshot is delivered after the ones queued before it.
func (b *Broadcaster[T]) Publish(snapshot T) {
	b.Enqueue(snapshot)
	b.Flush()
}

// Enqueue appends the snapshot to the delivery queue without delivering it.
// Callers that must fix the order of snapshots under their own lock enqueue
// while holding it and Flush after releasing it.
func (b *Broadcaster[T]) Enqueue(snapshot T) {
	b.queueMu.Lock()
	b.queue = append(b.queue, snapshot)
	b.queueMu.Unlock()
}

// Flush delivers queued snapshots until the queue is empty. It returns
// immediately when another Flush is already delivering.
func (b *Broadcaster[T]) Flush() {
	b.queueMu.Lock()
	if b.delivering {
		b.queueMu.Unlock()
		return
	}
	b.delivering = true

	for len(b.queue) > 0 {
		snapshot := b.queue[0]
		var zero T
		b.queue[0] = zero
		b.queue = b.queue[1:]
		b.queueMu.Unlock()

		b.deliver(snapshot)

		b.queueMu.Lock()
	}
	b.queue = nil
	b.delivering = false
	b.queueMu.Unlock()
}

func (b *Broadcaster[T]) deliver(snapshot T) {
	b.mutex.RLock()
	subscribers := make([]subscriber[T], len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mutex.RUnlock()

	for _, s := range subscribers {
		b.notify(s, snapshot)
	}
}

func (b *Broadcaster[T]) notify(s subscriber[T], snapshot T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Status listener panicked",
				zap.Uint64("subscriber_id", s.id),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	s.listener(snapshot)
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}
