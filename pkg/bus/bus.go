package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MessageBus carries inbound events from transports to the dispatcher.
type MessageBus struct {
	inbound chan Event
	closed  bool
	stats   counters
	mu      sync.RWMutex
}

type counters struct {
	published atomic.Uint64
	dropped   atomic.Uint64
}

const (
	defaultBuffer  = 100
	publishTimeout = 100 * time.Millisecond
)

func NewMessageBus() *MessageBus {
	return NewMessageBusSize(defaultBuffer)
}

func NewMessageBusSize(buffer int) *MessageBus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &MessageBus{
		inbound: make(chan Event, buffer),
	}
}

// PublishInbound waits briefly for buffer space and drops the event if
// there is none. Publishing after Close is a no-op.
func (mb *MessageBus) PublishInbound(ev Event) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}

	select {
	case mb.inbound <- ev:
		mb.stats.published.Add(1)
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.inbound <- ev:
			mb.stats.published.Add(1)
		case <-timer.C:
			mb.stats.dropped.Add(1)
		}
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-mb.inbound:
		if !ok {
			return Event{}, false
		}
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
}

func (mb *MessageBus) Published() uint64 {
	return mb.stats.published.Load()
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.stats.dropped.Load()
}
