package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-fx/internal/effect"
)

// DefaultBuffer is the queue capacity used when NewBus is given zero.
const DefaultBuffer = 256

// Logger is the logging interface used by this package.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Bus is an asynchronous effect.Observer.
type Bus struct {
	queue  chan effect.Event
	logger Logger

	mu        sync.RWMutex
	observers []effect.Observer

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewBus creates a bus with the given queue capacity.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		queue:  make(chan effect.Event, buffer),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for dropped events and observer panics.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

// Subscribe adds an observer. Observers added after Run started only see
// events dequeued from then on.
func (b *Bus) Subscribe(o effect.Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, o)
}

// OnEffectEvent implements effect.Observer. It never blocks.
func (b *Bus) OnEffectEvent(ev effect.Event) {
	select {
	case b.queue <- ev:
	default:
		if b.dropped.Add(1) == 1 {
			b.logger.Warn("effect event queue full, dropping events",
				"capacity", cap(b.queue), "kind", ev.Kind)
		}
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued and returns nil.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-b.queue:
					b.deliver(ev)
				default:
					return nil
				}
			}
		}
	}
}

func (b *Bus) deliver(ev effect.Event) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()

	for _, o := range observers {
		b.safeDeliver(o, ev)
	}
	b.delivered.Add(1)
}

func (b *Bus) safeDeliver(o effect.Observer, ev effect.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("effect event observer panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	o.OnEffectEvent(ev)
}

// Dropped returns the number of events lost to a full queue.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Delivered returns the number of events handed to observers.
func (b *Bus) Delivered() uint64 {
	return b.delivered.Load()
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return len(b.queue)
}
