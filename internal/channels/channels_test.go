package channels

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/store"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

func testNotification() *models.Notification {
	return &models.Notification{
		ID:          7,
		RecipientID: 1,
		Title:       "Booking Confirmation",
		Message:     "Your booking for GYM has been confirmed",
		Channel:     models.ChannelInApp,
		Status:      models.StatusPending,
	}
}

func contactsWith(email, endpoint string) *store.MemoryStore {
	s := store.NewMemoryStore()
	c := store.Contact{RecipientID: 1}
	if email != "" {
		c.Email = &email
	}
	if endpoint != "" {
		c.PushEndpoint = &endpoint
	}
	s.PutContact(c)
	return s
}

// ==========================
// Mock channels
// ==========================

func TestMock_SucceedsAfterLatency(t *testing.T) {
	ch := NewMockEmail(20*time.Millisecond, time.Second, logger.NewTestLogger(t))

	res := ch.Send(context.Background(), testNotification())

	assert.True(t, res.Success)
	assert.NoError(t, res.Err)
	assert.Equal(t, NameEmail, res.Channel)
	assert.GreaterOrEqual(t, res.Duration, 20*time.Millisecond)
}

func TestMock_TimesOut(t *testing.T) {
	ch := NewMockPush(time.Second, 20*time.Millisecond, logger.NewTestLogger(t))

	start := time.Now()
	res := ch.Send(context.Background(), testNotification())

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, apperrors.ErrDeliveryTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestMock_CallerCancellation(t *testing.T) {
	ch := NewMockEmail(time.Second, 0, logger.NewTestLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := ch.Send(ctx, testNotification())

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, apperrors.ErrDeliveryFailed)
}

// ==========================
// SES
// ==========================

func TestSESEmail_Send(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		sesErr      error
		wantSuccess bool
		wantErr     error
		wantCalls   int
	}{
		{"delivered", "guest@example.com", nil, true, nil, 1},
		{"provider error", "guest@example.com", errors.New("throttled"), false, apperrors.ErrDeliveryFailed, 1},
		{"no address on file", "", nil, false, apperrors.ErrRecipientContactMissing, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			var captured *ses.SendEmailInput
			mockSES := &MockSESService{
				SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
					calls++
					captured = params
					if tt.sesErr != nil {
						return nil, tt.sesErr
					}
					return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
				},
			}

			ch := NewSESEmail(mockSES, contactsWith(tt.email, ""), "noreply@bookings.example", time.Second, logger.NewTestLogger(t))
			res := ch.Send(context.Background(), testNotification())

			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			} else {
				require.NoError(t, res.Err)
				assert.Equal(t, []string{"guest@example.com"}, captured.Destination.ToAddresses)
				assert.Equal(t, "Booking Confirmation", *captured.Message.Subject.Data)
				assert.Equal(t, "noreply@bookings.example", *captured.Source)
			}
		})
	}
}

func TestSESEmail_StalledProvider(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	mockSES := &MockSESService{
		SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			<-block
			return &ses.SendEmailOutput{}, nil
		},
	}

	ch := NewSESEmail(mockSES, contactsWith("guest@example.com", ""), "noreply@bookings.example", 30*time.Millisecond, logger.NewNoOpLogger())
	res := ch.Send(context.Background(), testNotification())

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, apperrors.ErrDeliveryTimeout)
}

// ==========================
// SNS
// ==========================

func TestSNSPush_Send(t *testing.T) {
	const endpoint = "arn:aws:sns:us-east-1:123456789012:endpoint/GCM/app/abc"

	var captured *sns.PublishInput
	mockSNS := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{MessageId: aws.String("msg-2")}, nil
		},
	}

	ch := NewSNSPush(mockSNS, contactsWith("", endpoint), time.Second, logger.NewTestLogger(t))
	res := ch.Send(context.Background(), testNotification())

	require.True(t, res.Success)
	assert.Equal(t, NamePush, ch.Name())
	assert.Equal(t, endpoint, *captured.TargetArn)
	assert.Equal(t, "Your booking for GYM has been confirmed", *captured.Message)
}

func TestSNSPush_MissingEndpoint(t *testing.T) {
	mockSNS := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			t.Error("publish must not be called without an endpoint")
			return nil, nil
		},
	}

	ch := NewSNSPush(mockSNS, contactsWith("guest@example.com", ""), time.Second, logger.NewNoOpLogger())
	res := ch.Send(context.Background(), testNotification())

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, apperrors.ErrRecipientContactMissing)
}
