package consumer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

type StreamOptions struct {
	Stream       string
	Group        string
	Consumer     string
	PayloadField string
	BatchSize    int64
	Block        time.Duration
	// RedeliverInterval is how often the consumer starts a sweep over its own
	// pending entries, i.e. records it fetched but never acknowledged.
	RedeliverInterval time.Duration
	// MaxDeliveries moves an entry delivered more often than this to
	// DeadLetterStream and acknowledges it. Zero keeps redelivering forever.
	MaxDeliveries    int64
	DeadLetterStream string
}

// RedisStreamSource consumes a Redis stream through a consumer group.
type RedisStreamSource struct {
	client redis.Cmdable
	opts   StreamOptions
	logger logger.Logger

	mu          sync.Mutex
	lastPending time.Time
	// pendingCursor is the last pending entry handed out by the running sweep,
	// "0" when no sweep is running.
	pendingCursor string
	preferNew     bool
}

// NewRedisStreamSource creates the consumer group when missing. A new group starts
// at the beginning of the stream so a backlog written before the first start is
// not lost.
func NewRedisStreamSource(ctx context.Context, client redis.Cmdable, opts StreamOptions, log logger.Logger) (*RedisStreamSource, error) {
	if opts.PayloadField == "" {
		opts.PayloadField = "payload"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.MaxDeliveries > 0 && opts.DeadLetterStream == "" {
		opts.DeadLetterStream = opts.Stream + ":dead"
	}

	err := client.XGroupCreateMkStream(ctx, opts.Stream, opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, err
	}

	return &RedisStreamSource{
		client:        client,
		opts:          opts,
		pendingCursor: "0",
		logger: log.WithFields(map[string]interface{}{
			"stream":   opts.Stream,
			"group":    opts.Group,
			"consumer": opts.Consumer,
		}),
	}, nil
}

// Fetch alternates pages of the pending sweep with reads of new entries, so a
// backlog of unacknowledged records never starves fresh ones.
func (s *RedisStreamSource) Fetch(ctx context.Context) ([]Record, error) {
	if cursor, ok := s.pendingTurn(); ok {
		recs, err := s.readPending(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			s.logger.Info("redelivering pending records", map[string]interface{}{"count": len(recs)})
			return recs, nil
		}
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.opts.Group,
		Consumer: s.opts.Consumer,
		Streams:  []string{s.opts.Stream, ">"},
		Count:    s.opts.BatchSize,
		Block:    s.opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.toRecords(streams, nil), nil
}

// pendingTurn reports whether this fetch reads the pending list, and from where.
// A running sweep continues on every other fetch; a new one starts once
// RedeliverInterval has passed since the last start.
func (s *RedisStreamSource) pendingTurn() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preferNew {
		s.preferNew = false
		return "", false
	}
	if s.pendingCursor != "0" {
		return s.pendingCursor, true
	}
	now := time.Now()
	if now.Sub(s.lastPending) < s.opts.RedeliverInterval {
		return "", false
	}
	s.lastPending = now
	return "0", true
}

func (s *RedisStreamSource) advanceCursor(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		s.pendingCursor = "0"
		return
	}
	s.pendingCursor = id
	s.preferNew = true
}

// readPending returns the next page of this consumer's pending entries after cursor.
func (s *RedisStreamSource) readPending(ctx context.Context, cursor string) ([]Record, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.opts.Group,
		Consumer: s.opts.Consumer,
		Streams:  []string{s.opts.Stream, cursor},
		Count:    s.opts.BatchSize,
		Block:    -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		s.advanceCursor("")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var page []redis.XMessage
	for _, st := range streams {
		page = append(page, st.Messages...)
	}
	if int64(len(page)) > s.opts.BatchSize {
		page = page[:s.opts.BatchSize]
	}
	if len(page) == 0 {
		s.advanceCursor("")
		return nil, nil
	}
	s.advanceCursor(page[len(page)-1].ID)

	deliveries := map[string]int64{}
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   s.opts.Stream,
		Group:    s.opts.Group,
		Start:    page[0].ID,
		End:      page[len(page)-1].ID,
		Count:    int64(len(page)),
		Consumer: s.opts.Consumer,
	}).Result()
	if err != nil {
		s.logger.Warn("failed to read delivery counts", map[string]interface{}{"error": err})
	}
	for _, p := range pending {
		deliveries[p.ID] = p.RetryCount
	}

	recs := s.toRecords([]redis.XStream{{Stream: s.opts.Stream, Messages: page}}, deliveries)
	if s.opts.MaxDeliveries <= 0 {
		return recs, nil
	}

	live := recs[:0]
	for _, rec := range recs {
		if rec.Deliveries <= s.opts.MaxDeliveries {
			live = append(live, rec)
			continue
		}
		if err := s.deadLetter(ctx, rec); err != nil {
			s.logger.Error("failed to dead-letter record", map[string]interface{}{
				"recordId": rec.ID,
				"error":    err,
			})
			live = append(live, rec)
		}
	}
	return live, nil
}

// deadLetter copies rec to the dead-letter stream and acknowledges it.
func (s *RedisStreamSource) deadLetter(ctx context.Context, rec Record) error {
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.opts.DeadLetterStream,
		Values: map[string]interface{}{
			s.opts.PayloadField: string(rec.Payload),
			"sourceId":          rec.ID,
			"deliveries":        rec.Deliveries,
		},
	}).Err(); err != nil {
		return err
	}
	if err := s.Ack(ctx, rec.ID); err != nil {
		return err
	}
	s.logger.Error("record dead-lettered after repeated delivery", map[string]interface{}{
		"recordId":   rec.ID,
		"deliveries": rec.Deliveries,
		"deadLetter": s.opts.DeadLetterStream,
	})
	return nil
}

func (s *RedisStreamSource) toRecords(streams []redis.XStream, deliveries map[string]int64) []Record {
	var out []Record
	for _, st := range streams {
		for _, msg := range st.Messages {
			rec := Record{ID: msg.ID, Stream: st.Stream, Deliveries: 1}
			if n, ok := deliveries[msg.ID]; ok {
				rec.Deliveries = n
			}
			switch v := msg.Values[s.opts.PayloadField].(type) {
			case string:
				rec.Payload = []byte(v)
			case []byte:
				rec.Payload = v
			}
			out = append(out, rec)
		}
	}
	return out
}

func (s *RedisStreamSource) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, s.opts.Stream, s.opts.Group, ids...).Err(); err != nil {
		return apperrors.NewCommitError(strings.Join(ids, ","), err)
	}
	return nil
}

// Append writes one payload to the stream. Used by the event publisher tool and tests.
func Append(ctx context.Context, client redis.Cmdable, stream, field string, payload []byte) (string, error) {
	return client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{field: string(payload)},
	}).Result()
}
