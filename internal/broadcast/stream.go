package broadcast

import (
	"context"
	"sync"
	"time"

	"notification-pipeline/internal/models"
)

type Kind string

const (
	KindNotification Kind = "notification"
	KindKeepAlive    Kind = "keep-alive"
)

// Event is one frame of a subscription stream. Notification is nil for keep-alives.
type Event struct {
	Kind         Kind
	Notification *models.Notification
	At           time.Time
}

// Stream is a recipient-filtered view of the broadcaster with periodic keep-alives.
type Stream struct {
	sub    *Subscription
	events chan Event
	stop   chan struct{}
	once   sync.Once
}

// Stream attaches a subscription for recipientID. Events stay open until ctx is
// done, Close is called, or the broadcaster ends the subscription.
func (b *Broadcaster) Stream(ctx context.Context, recipientID int64) (*Stream, error) {
	sub, err := b.Subscribe(recipientID)
	if err != nil {
		return nil, err
	}
	st := &Stream{
		sub:    sub,
		events: make(chan Event),
		stop:   make(chan struct{}),
	}
	go st.run(ctx, b.opts.KeepAlive)
	return st, nil
}

func (st *Stream) run(ctx context.Context, keepAlive time.Duration) {
	defer close(st.events)
	defer st.sub.Close()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-st.stop:
			return
		case n, ok := <-st.sub.C():
			if !ok {
				return
			}
			if !st.emit(ctx, Event{Kind: KindNotification, Notification: n, At: time.Now()}) {
				return
			}
		case t := <-ticker.C:
			if !st.emit(ctx, Event{Kind: KindKeepAlive, At: t}) {
				return
			}
		}
	}
}

func (st *Stream) emit(ctx context.Context, ev Event) bool {
	select {
	case st.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-st.stop:
		return false
	}
}

// Events yields notifications in publish order interleaved with keep-alives.
func (st *Stream) Events() <-chan Event { return st.events }

func (st *Stream) ID() string { return st.sub.ID() }

// Close detaches the stream. Events is closed shortly after.
func (st *Stream) Close() {
	st.once.Do(func() { close(st.stop) })
}

// Reason reports why the stream ended, or "" while it is open.
func (st *Stream) Reason() Reason { return st.sub.Reason() }
