package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"notification-pipeline/internal/channels"
	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	name  string
	delay time.Duration
	err   error
	calls int32
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, n *models.Notification) channels.Result {
	atomic.AddInt32(&f.calls, 1)
	start := time.Now()
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return channels.Result{Channel: f.name, Err: apperrors.NewDeliveryTimeoutError(f.name, 0), Duration: time.Since(start)}
	}
	if f.err != nil {
		return channels.Result{Channel: f.name, Err: apperrors.NewDeliveryError(f.name, f.err), Duration: time.Since(start)}
	}
	return channels.Result{Channel: f.name, Success: true, Duration: time.Since(start)}
}

func notification(ch models.Channel) *models.Notification {
	return &models.Notification{ID: 1, RecipientID: 1, Channel: ch, Status: models.StatusPending}
}

func TestDispatch_Aggregation(t *testing.T) {
	boom := errors.New("provider down")

	tests := []struct {
		name       string
		channel    models.Channel
		emailErr   error
		pushErr    error
		wantStatus models.Status
		wantCount  int
	}{
		{"in-app both succeed", models.ChannelInApp, nil, nil, models.StatusSent, 2},
		{"in-app email fails push succeeds", models.ChannelInApp, boom, nil, models.StatusSent, 2},
		{"in-app both fail", models.ChannelInApp, boom, boom, models.StatusFailed, 2},
		{"email only", models.ChannelEmail, nil, boom, models.StatusSent, 1},
		{"email only fails", models.ChannelEmail, boom, nil, models.StatusFailed, 1},
		{"push only", models.ChannelPush, boom, nil, models.StatusSent, 1},
		{"sms has no variant", models.ChannelSMS, boom, boom, models.StatusSent, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := &fakeChannel{name: channels.NameEmail, err: tt.emailErr}
			push := &fakeChannel{name: channels.NamePush, err: tt.pushErr}
			c := NewCoordinator(NewRegistry(email, push), time.Second, logger.NewTestLogger(t))

			n := notification(tt.channel)
			out := c.Dispatch(context.Background(), n)

			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Len(t, out.Results, tt.wantCount)
			assert.Equal(t, models.StatusPending, n.Status)
		})
	}
}

func TestDispatch_AttemptsRunInParallel(t *testing.T) {
	email := &fakeChannel{name: channels.NameEmail, delay: 100 * time.Millisecond}
	push := &fakeChannel{name: channels.NamePush, delay: 100 * time.Millisecond}
	c := NewCoordinator(NewRegistry(email, push), time.Second, logger.NewNoOpLogger())

	start := time.Now()
	out := c.Dispatch(context.Background(), notification(models.ChannelInApp))

	assert.Equal(t, models.StatusSent, out.Status)
	assert.Less(t, time.Since(start), 190*time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&email.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&push.calls))
}

func TestDispatch_FailureDoesNotAbortSibling(t *testing.T) {
	email := &fakeChannel{name: channels.NameEmail, err: errors.New("rejected")}
	push := &fakeChannel{name: channels.NamePush, delay: 50 * time.Millisecond}
	c := NewCoordinator(NewRegistry(email, push), time.Second, logger.NewNoOpLogger())

	out := c.Dispatch(context.Background(), notification(models.ChannelInApp))

	require.Len(t, out.Results, 2)
	assert.False(t, out.Results[0].Success)
	assert.ErrorIs(t, out.Results[0].Err, apperrors.ErrDeliveryFailed)
	assert.True(t, out.Results[1].Success)
	assert.Equal(t, models.StatusSent, out.Status)
}

func TestDispatch_OverallTimeout(t *testing.T) {
	email := &fakeChannel{name: channels.NameEmail, delay: time.Second}
	push := &fakeChannel{name: channels.NamePush, delay: time.Second}
	c := NewCoordinator(NewRegistry(email, push), 50*time.Millisecond, logger.NewNoOpLogger())

	start := time.Now()
	out := c.Dispatch(context.Background(), notification(models.ChannelInApp))

	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDispatch_WithMockChannels(t *testing.T) {
	log := logger.NewTestLogger(t)
	c := NewCoordinator(NewRegistry(
		channels.NewMockEmail(channels.DefaultMockLatency, time.Second, log),
		channels.NewMockPush(channels.DefaultMockLatency, time.Second, log),
	), 5*time.Second, log)

	out := c.Dispatch(context.Background(), notification(models.ChannelInApp))

	assert.Equal(t, models.StatusSent, out.Status)
	for _, res := range out.Results {
		assert.True(t, res.Success, res.Channel)
	}
}

func TestNewRegistry_NilChannels(t *testing.T) {
	r := NewRegistry(nil, &fakeChannel{name: channels.NamePush})

	assert.Empty(t, r[models.ChannelEmail])
	assert.Len(t, r[models.ChannelInApp], 1)
	assert.Len(t, r[models.ChannelPush], 1)
}
