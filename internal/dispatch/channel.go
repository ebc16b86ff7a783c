package dispatch

import (
	"context"
	"sync"
	"time"
)

// ChannelCapacity bounds the queue between producers and the dispatcher.
const ChannelCapacity = 256

type Kind int

const (
	KindQueueBatch Kind = iota + 1
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindQueueBatch:
		return "queue_batch"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event is the only value that crosses the channel.
type Event struct {
	Kind     Kind
	Frames   [][]byte // KindQueueBatch
	Reason   string   // KindShutdown
	Received time.Time
}

func QueueBatch(frames [][]byte) Event {
	return Event{Kind: KindQueueBatch, Frames: frames, Received: time.Now()}
}

func Shutdown(reason string) Event {
	return Event{Kind: KindShutdown, Reason: reason, Received: time.Now()}
}

// Channel is a bounded multi-producer, single-consumer FIFO. Publish blocks
// while the buffer is full; once the consumer calls Close every pending and
// future Publish returns false.
type Channel struct {
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewChannel(capacity int) *Channel {
	if capacity <= 0 {
		capacity = ChannelCapacity
	}
	return &Channel{
		ch:   make(chan Event, capacity),
		done: make(chan struct{}),
	}
}

func (c *Channel) Publish(ctx context.Context, ev Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	case c.ch <- ev:
		return true
	}
}

// Receive returns the next event, or false when ctx is done or the channel
// was closed.
func (c *Channel) Receive(ctx context.Context) (Event, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return Event{}, false
	case <-c.done:
		return Event{}, false
	case ev := <-c.ch:
		return ev, true
	}
}

// Close is called by the consumer. Undrained events are discarded.
func (c *Channel) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Channel) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Channel) Len() int { return len(c.ch) }
