// Package dispatch runs the relay's central event loop.
//
// A single Dispatcher drains the Channel in FIFO order. Queue batches are
// decoded, routed and delivered one request at a time; a Shutdown event ends
// the loop immediately and anything still queued behind it is dropped.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"tgrelay/internal/command"
	"tgrelay/internal/delivery"
	"tgrelay/internal/eventbus"
	"tgrelay/internal/routing"
	logx "tgrelay/pkg/logx"
)

// EventRejected is published on the bus for every undecodable message.
const EventRejected = "command.rejected"

var ErrChannelClosed = errors.New("event channel closed")

// Deliverer performs one routed delivery, absorbing its own failures.
type Deliverer interface {
	Deliver(ctx context.Context, req routing.Request)
}

// Rejected is the bus payload for EventRejected.
type Rejected struct {
	BatchID string    `json:"batch_id"`
	Frames  int       `json:"frames"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

type Dispatcher struct {
	ch        *Channel
	table     routing.Table
	deliverer Deliverer
	bus       eventbus.Bus
	log       logx.Logger

	newID func() string
}

type Option func(*Dispatcher)

func WithBus(bus eventbus.Bus) Option { return func(d *Dispatcher) { d.bus = bus } }

// WithIDs replaces the batch id generator.
func WithIDs(fn func() string) Option {
	return func(d *Dispatcher) {
		if fn != nil {
			d.newID = fn
		}
	}
}

func New(ch *Channel, table routing.Table, deliverer Deliverer, log logx.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ch:        ch,
		table:     table,
		deliverer: deliverer,
		log:       log,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Run consumes events until a Shutdown event arrives (nil), the channel is
// closed (ErrChannelClosed) or ctx is done (ctx.Err()). ctx also bounds the
// deliveries, so callers that want in-flight sends to finish on interrupt
// should pass a context the interrupt does not cancel.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher started")
	for {
		ev, ok := d.ch.Receive(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrChannelClosed
		}
		switch ev.Kind {
		case KindShutdown:
			d.log.Info("shutdown event received; exiting", logx.String("reason", ev.Reason), logx.Int("pending", d.ch.Len()))
			return nil
		case KindQueueBatch:
			d.Handle(ctx, ev.Frames)
		default:
			d.log.Warn("unknown event kind ignored", logx.Int("kind", int(ev.Kind)))
		}
	}
}

// Handle decodes, routes and delivers one queue message. It returns the
// number of delivery requests produced.
func (d *Dispatcher) Handle(ctx context.Context, frames [][]byte) int {
	batch := d.newID()
	log := d.log.With(logx.String("batch", batch))

	cmd, err := command.Decode(frames)
	if err != nil {
		log.Error("dropping undecodable message", logx.Err(err), logx.Int("frames", len(frames)))
		if d.bus != nil {
			now := time.Now()
			d.bus.Publish(eventbus.Event{Type: EventRejected, Time: now, Data: Rejected{
				BatchID: batch, Frames: len(frames), Error: err.Error(), At: now,
			}})
		}
		return 0
	}

	rule := routing.Match(cmd, d.table)
	if rule == routing.RuleDirect && cmd.SubscriberList != nil {
		log.Debug("chat_id and subscriber_list both set; chat_id wins",
			logx.Int64("chat_id", *cmd.ChatID), logx.String("list", *cmd.SubscriberList))
	}
	if rule == routing.RuleUnknownList {
		log.Warn("unknown subscriber list; notifying owner", logx.String("list", *cmd.SubscriberList))
	}

	reqs := routing.Resolve(cmd, d.table)
	log.Info("processing queue command",
		logx.String("rule", string(rule)),
		logx.Int("requests", len(reqs)),
		logx.Bool("image", cmd.HasImage()),
		logx.String("preview", delivery.Preview(cmd.Text)),
	)
	for _, req := range reqs {
		req.BatchID = batch
		d.deliverer.Deliver(ctx, req)
	}
	return len(reqs)
}
