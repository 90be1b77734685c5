package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() StreamOptions {
	return StreamOptions{
		Stream:            "booking-requests",
		Group:             "notification-service",
		Consumer:          "worker-1",
		PayloadField:      "payload",
		BatchSize:         10,
		Block:             50 * time.Millisecond,
		RedeliverInterval: time.Hour,
	}
}

func newMiniredisSource(t *testing.T, opts StreamOptions) (*RedisStreamSource, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	src, err := NewRedisStreamSource(context.Background(), client, opts, logger.NewTestLogger(t))
	require.NoError(t, err)
	return src, client
}

func TestRedisStreamSource_FetchAndAck(t *testing.T) {
	ctx := context.Background()
	src, client := newMiniredisSource(t, testOptions())

	id, err := Append(ctx, client, "booking-requests", "payload", []byte(`{"recipientId":1}`))
	require.NoError(t, err)

	// the first fetch checks the pending list, which is empty
	recs, err := src.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.Equal(t, "booking-requests", recs[0].Stream)
	assert.Equal(t, `{"recipientId":1}`, string(recs[0].Payload))
	assert.Equal(t, int64(1), recs[0].Deliveries)

	pending, err := client.XPending(ctx, "booking-requests", "notification-service").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending.Count)

	require.NoError(t, src.Ack(ctx, id))

	pending, err = client.XPending(ctx, "booking-requests", "notification-service").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestRedisStreamSource_EmptyStream(t *testing.T) {
	src, _ := newMiniredisSource(t, testOptions())

	recs, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRedisStreamSource_RedeliversUnacked(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.RedeliverInterval = 10 * time.Millisecond
	src, client := newMiniredisSource(t, opts)

	id, err := Append(ctx, client, "booking-requests", "payload", []byte(`{}`))
	require.NoError(t, err)

	recs, err := src.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// not acknowledged: the next pending sweep hands it out again
	time.Sleep(20 * time.Millisecond)
	recs, err = src.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.GreaterOrEqual(t, recs[0].Deliveries, int64(2))

	require.NoError(t, src.Ack(ctx, id))
	time.Sleep(20 * time.Millisecond)
	recs, err = src.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRedisStreamSource_PendingSweepPagesPastBatchSize(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.BatchSize = 2
	opts.RedeliverInterval = 0
	opts.Block = 10 * time.Millisecond
	src, client := newMiniredisSource(t, opts)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := Append(ctx, client, "booking-requests", "payload", []byte(`{}`))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// nothing is ever acknowledged, so every entry must come back at least once
	redelivered := map[string]bool{}
	for i := 0; i < 8; i++ {
		recs, err := src.Fetch(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(recs), 2)
		for _, r := range recs {
			if r.Deliveries >= 2 {
				redelivered[r.ID] = true
			}
		}
	}
	for _, id := range ids {
		assert.True(t, redelivered[id], "entry %s was never redelivered", id)
	}

	// a new entry is still read while the pending sweep keeps running
	fresh, err := Append(ctx, client, "booking-requests", "payload", []byte(`{}`))
	require.NoError(t, err)
	seen := false
	for i := 0; i < 3 && !seen; i++ {
		recs, err := src.Fetch(ctx)
		require.NoError(t, err)
		for _, r := range recs {
			if r.ID == fresh {
				seen = true
				assert.Equal(t, int64(1), r.Deliveries)
			}
		}
	}
	assert.True(t, seen, "new entry starved by the pending sweep")
}

func TestRedisStreamSource_DeadLettersAfterMaxDeliveries(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.RedeliverInterval = 0
	opts.MaxDeliveries = 1
	opts.Block = 10 * time.Millisecond
	src, client := newMiniredisSource(t, opts)

	id, err := Append(ctx, client, "booking-requests", "payload", []byte(`{"recipientId":`))
	require.NoError(t, err)

	recs, err := src.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// second delivery exceeds the limit
	recs, err = src.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)

	pending, err := client.XPending(ctx, "booking-requests", "notification-service").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)

	dead, err := client.XRange(ctx, "booking-requests:dead", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0].Values["sourceId"])
	assert.Equal(t, `{"recipientId":`, dead[0].Values["payload"])
}

func TestRedisStreamSource_GroupAlreadyExists(t *testing.T) {
	db, mock := redismock.NewClientMock()
	opts := testOptions()

	mock.ExpectXGroupCreateMkStream(opts.Stream, opts.Group, "0").
		SetErr(errors.New("BUSYGROUP Consumer Group name already exists"))

	_, err := NewRedisStreamSource(context.Background(), db, opts, logger.NewNoOpLogger())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStreamSource_GroupCreateFails(t *testing.T) {
	db, mock := redismock.NewClientMock()
	opts := testOptions()

	mock.ExpectXGroupCreateMkStream(opts.Stream, opts.Group, "0").SetErr(errors.New("NOAUTH"))

	_, err := NewRedisStreamSource(context.Background(), db, opts, logger.NewNoOpLogger())
	assert.Error(t, err)
}

func TestRedisStreamSource_AckFailure(t *testing.T) {
	db, mock := redismock.NewClientMock()
	opts := testOptions()

	mock.ExpectXGroupCreateMkStream(opts.Stream, opts.Group, "0").SetVal("OK")
	mock.ExpectXAck(opts.Stream, opts.Group, "1-0").SetErr(errors.New("connection reset"))

	src, err := NewRedisStreamSource(context.Background(), db, opts, logger.NewNoOpLogger())
	require.NoError(t, err)

	err = src.Ack(context.Background(), "1-0")
	assert.ErrorIs(t, err, apperrors.ErrCommitFailed)
	assert.True(t, apperrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStreamSource_FetchError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	opts := testOptions()

	mock.ExpectXGroupCreateMkStream(opts.Stream, opts.Group, "0").SetVal("OK")
	mock.ExpectXReadGroup(&redis.XReadGroupArgs{
		Group:    opts.Group,
		Consumer: opts.Consumer,
		Streams:  []string{opts.Stream, "0"},
		Count:    opts.BatchSize,
		Block:    -1,
	}).SetErr(errors.New("LOADING"))

	src, err := NewRedisStreamSource(context.Background(), db, opts, logger.NewNoOpLogger())
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	assert.EqualError(t, err, "LOADING")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStreamSource_BlockTimeout(t *testing.T) {
	db, mock := redismock.NewClientMock()
	opts := testOptions()

	mock.ExpectXGroupCreateMkStream(opts.Stream, opts.Group, "0").SetVal("OK")
	mock.ExpectXReadGroup(&redis.XReadGroupArgs{
		Group:    opts.Group,
		Consumer: opts.Consumer,
		Streams:  []string{opts.Stream, "0"},
		Count:    opts.BatchSize,
		Block:    -1,
	}).RedisNil()
	mock.ExpectXReadGroup(&redis.XReadGroupArgs{
		Group:    opts.Group,
		Consumer: opts.Consumer,
		Streams:  []string{opts.Stream, ">"},
		Count:    opts.BatchSize,
		Block:    opts.Block,
	}).RedisNil()

	src, err := NewRedisStreamSource(context.Background(), db, opts, logger.NewNoOpLogger())
	require.NoError(t, err)

	recs, err := src.Fetch(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
