package channels

import (
	"context"
	"time"

	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/models"
)

// DefaultMockLatency is the simulated provider round trip.
const DefaultMockLatency = 100 * time.Millisecond

// Mock simulates a provider with a fixed latency. It succeeds unless its
// timeout (or the caller's context) expires first.
type Mock struct {
	name    string
	latency time.Duration
	timeout time.Duration
	logger  logger.Logger
}

func NewMockEmail(latency, timeout time.Duration, log logger.Logger) *Mock {
	return newMock(NameEmail, latency, timeout, log)
}

func NewMockPush(latency, timeout time.Duration, log logger.Logger) *Mock {
	return newMock(NamePush, latency, timeout, log)
}

func newMock(name string, latency, timeout time.Duration, log logger.Logger) *Mock {
	if latency < 0 {
		latency = DefaultMockLatency
	}
	return &Mock{
		name:    name,
		latency: latency,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"channel": name, "provider": "mock"}),
	}
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) Send(ctx context.Context, n *models.Notification) Result {
	return attempt(ctx, m.name, m.timeout, func(ctx context.Context) error {
		timer := time.NewTimer(m.latency)
		defer timer.Stop()

		select {
		case <-timer.C:
			m.logger.Debug("simulated delivery", map[string]interface{}{
				"notificationId": n.ID,
				"userId":         n.RecipientID,
			})
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
