package storage

import (
	"context"
	"time"

	"tgrelay/internal/delivery"
	"tgrelay/internal/dispatch"
	"tgrelay/internal/eventbus"
	logx "tgrelay/pkg/logx"
)

// Events is the set of bus event types the recorder journals.
var Events = []string{
	delivery.EventSent,
	delivery.EventFailed,
	delivery.EventDegraded,
	dispatch.EventRejected,
}

// Recorder copies bus events into a Store. Journal write failures are logged
// and never reach the delivery path.
type Recorder struct {
	store   Store
	log     logx.Logger
	timeout time.Duration
}

func NewRecorder(store Store, log logx.Logger) *Recorder {
	return &Recorder{store: store, log: log, timeout: 2 * time.Second}
}

// Run subscribes to bus and records events until ctx is done, then drains
// whatever is already buffered.
func (r *Recorder) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsubscribe := bus.Subscribe(256, Events...)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return
					}
					r.Record(ev)
				default:
					return
				}
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.Record(ev)
		}
	}
}

// Record writes a single event. Unknown payloads are ignored.
func (r *Recorder) Record(ev eventbus.Event) {
	e, ok := EntryFromEvent(ev)
	if !ok {
		r.log.Debug("journal ignored event", logx.String("type", ev.Type))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.store.Append(ctx, e); err != nil {
		r.log.Warn("journal append failed", logx.String("event", ev.Type), logx.Err(err))
	}
}

func EntryFromEvent(ev eventbus.Event) (Entry, bool) {
	switch d := ev.Data.(type) {
	case delivery.Outcome:
		return Entry{
			At:        d.At,
			Event:     ev.Type,
			BatchID:   d.BatchID,
			ChatID:    d.ChatID,
			Rule:      d.Rule,
			Kind:      string(d.Kind),
			Status:    d.Status,
			Attempts:  d.Attempts,
			Preview:   d.Preview,
			ImagePath: d.ImagePath,
			Error:     d.Error,
		}, true
	case dispatch.Rejected:
		return Entry{
			At:      d.At,
			Event:   ev.Type,
			BatchID: d.BatchID,
			Status:  "rejected",
			Error:   d.Error,
		}, true
	default:
		return Entry{}, false
	}
}
