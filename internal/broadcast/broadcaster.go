// Package broadcast is the in-process hot multicast that feeds live subscribers.
//
// Publishers never block: every subscriber owns a bounded buffer and a slow
// reader only ever affects itself, according to the configured OverflowPolicy.
// There is no replay. A subscriber sees only what is published after it attaches.
package broadcast

import (
	"sync"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/metrics"
	"notification-pipeline/internal/models"

	"github.com/google/uuid"
)

// OverflowPolicy decides what happens when a subscriber's buffer is full.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest buffered notification to make room.
	DropOldest OverflowPolicy = "drop_oldest"
	// Disconnect closes the subscription with ReasonSlowConsumer.
	Disconnect OverflowPolicy = "disconnect"
)

// Reason tells why a subscription ended.
type Reason string

const (
	ReasonClientClosed Reason = "client_closed"
	ReasonSlowConsumer Reason = "slow_consumer"
	ReasonShutdown     Reason = "shutdown"
)

const (
	DefaultBufferSize = 256
	DefaultKeepAlive  = 30 * time.Second
)

type Options struct {
	BufferSize int
	Overflow   OverflowPolicy
	KeepAlive  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Overflow != Disconnect {
		o.Overflow = DropOldest
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	return o
}

type subscriber struct {
	id          string
	recipientID int64
	ch          chan *models.Notification

	// mu serializes offers against close so nothing is sent on a closed channel.
	mu     sync.Mutex
	closed bool
	reason Reason
}

// offer enqueues n without blocking. It returns false when the subscriber
// must be disconnected.
func (s *subscriber) offer(n *models.Notification, policy OverflowPolicy) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return true
	}
	select {
	case s.ch <- n:
		return true
	default:
	}

	if policy == Disconnect {
		return false
	}

	select {
	case <-s.ch:
		metrics.BroadcastDropped.WithLabelValues(string(DropOldest)).Inc()
	default:
	}
	select {
	case s.ch <- n:
	default:
		metrics.BroadcastDropped.WithLabelValues(string(DropOldest)).Inc()
	}
	return true
}

func (s *subscriber) close(reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	close(s.ch)
}

func (s *subscriber) endReason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Broadcaster multicasts notifications to the subscribers of their recipient.
type Broadcaster struct {
	opts   Options
	logger logger.Logger

	mu     sync.RWMutex
	subs   map[int64]map[string]*subscriber
	closed bool
}

func NewBroadcaster(opts Options, log logger.Logger) *Broadcaster {
	return &Broadcaster{
		opts:   opts.withDefaults(),
		logger: log.WithFields(map[string]interface{}{"component": "broadcast"}),
		subs:   make(map[int64]map[string]*subscriber),
	}
}

// Publish hands n to every current subscriber of n.RecipientID. It never blocks.
// With no subscribers the notification is dropped and nil is returned. After
// Close it returns an error matching ErrBroadcastUnavailable.
func (b *Broadcaster) Publish(n *models.Notification) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		metrics.BroadcastPublished.WithLabelValues("unavailable").Inc()
		return apperrors.NewBroadcastUnavailableError()
	}
	set := b.subs[n.RecipientID]
	targets := make([]*subscriber, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		metrics.BroadcastPublished.WithLabelValues("no_subscribers").Inc()
		return nil
	}

	for _, s := range targets {
		if !s.offer(n, b.opts.Overflow) {
			b.logger.Warn("disconnecting slow subscriber", map[string]interface{}{
				"subscriptionId": s.id,
				"userId":         s.recipientID,
				"buffer":         b.opts.BufferSize,
			})
			metrics.BroadcastDropped.WithLabelValues(string(Disconnect)).Inc()
			b.detach(s, ReasonSlowConsumer)
		}
	}
	metrics.BroadcastPublished.WithLabelValues("delivered").Inc()
	return nil
}

// Subscribe attaches a raw subscription for recipientID starting from now.
func (b *Broadcaster) Subscribe(recipientID int64) (*Subscription, error) {
	s := &subscriber{
		id:          uuid.NewString(),
		recipientID: recipientID,
		ch:          make(chan *models.Notification, b.opts.BufferSize),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, apperrors.NewBroadcastUnavailableError()
	}
	set, ok := b.subs[recipientID]
	if !ok {
		set = make(map[string]*subscriber)
		b.subs[recipientID] = set
	}
	set[s.id] = s
	b.mu.Unlock()

	metrics.ActiveSubscribers.Inc()
	b.logger.Debug("subscriber attached", map[string]interface{}{
		"subscriptionId": s.id,
		"userId":         recipientID,
	})
	return &Subscription{b: b, s: s}, nil
}

// detach unregisters s and closes its channel. Safe to call more than once.
func (b *Broadcaster) detach(s *subscriber, reason Reason) {
	b.mu.Lock()
	removed := false
	if set, ok := b.subs[s.recipientID]; ok {
		if _, ok := set[s.id]; ok {
			delete(set, s.id)
			removed = true
			if len(set) == 0 {
				delete(b.subs, s.recipientID)
			}
		}
	}
	b.mu.Unlock()

	if removed {
		metrics.ActiveSubscribers.Dec()
		b.logger.Debug("subscriber detached", map[string]interface{}{
			"subscriptionId": s.id,
			"userId":         s.recipientID,
			"reason":         string(reason),
		})
	}
	s.close(reason)
}

// Close ends every subscription with ReasonShutdown. Later publishes and
// subscribes fail with ErrBroadcastUnavailable.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscriber
	for _, set := range b.subs {
		for _, s := range set {
			all = append(all, s)
		}
	}
	b.subs = make(map[int64]map[string]*subscriber)
	b.mu.Unlock()

	for _, s := range all {
		s.close(ReasonShutdown)
	}
	metrics.ActiveSubscribers.Sub(float64(len(all)))
	b.logger.Info("broadcaster closed", map[string]interface{}{"subscribers": len(all)})
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, set := range b.subs {
		total += len(set)
	}
	return total
}

func (b *Broadcaster) RecipientSubscriberCount(recipientID int64) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[recipientID])
}

func (b *Broadcaster) KeepAlive() time.Duration {
	return b.opts.KeepAlive
}

// Subscription is one attached reader. C is closed when the subscription ends.
type Subscription struct {
	b *Broadcaster
	s *subscriber
}

func (sub *Subscription) ID() string { return sub.s.id }

func (sub *Subscription) C() <-chan *models.Notification { return sub.s.ch }

// Close detaches the subscription and releases its buffer.
func (sub *Subscription) Close() { sub.b.detach(sub.s, ReasonClientClosed) }

// Reason is empty while the subscription is open.
func (sub *Subscription) Reason() Reason { return sub.s.endReason() }
