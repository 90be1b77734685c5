// Package dispatch fans a notification out to its delivery channels and folds
// the per-channel results into one status.
package dispatch

import (
	"context"
	"sync"
	"time"

	"notification-pipeline/internal/channels"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/metrics"
	"notification-pipeline/internal/models"
)

// Outcome is the aggregated result of one dispatch.
type Outcome struct {
	Status   models.Status
	Results  []channels.Result
	Duration time.Duration
}

// Registry maps a requested channel to the variants that serve it.
type Registry map[models.Channel][]channels.Channel

// NewRegistry builds the standard routing: IN_APP goes to email and push,
// EMAIL and PUSH to their own variant. SMS has no variant. A nil email or
// push channel leaves its routes empty.
func NewRegistry(email, push channels.Channel) Registry {
	r := Registry{}
	if email != nil {
		r[models.ChannelEmail] = []channels.Channel{email}
		r[models.ChannelInApp] = append(r[models.ChannelInApp], email)
	}
	if push != nil {
		r[models.ChannelPush] = []channels.Channel{push}
		r[models.ChannelInApp] = append(r[models.ChannelInApp], push)
	}
	return r
}

// Coordinator runs all delivery attempts for a notification in parallel.
type Coordinator struct {
	registry Registry
	timeout  time.Duration
	logger   logger.Logger
}

// NewCoordinator creates a coordinator. timeout bounds the whole fan-out; zero means
// the channels' own timeouts are the only bound.
func NewCoordinator(registry Registry, timeout time.Duration, log logger.Logger) *Coordinator {
	return &Coordinator{
		registry: registry,
		timeout:  timeout,
		logger:   log.WithFields(map[string]interface{}{"component": "dispatch"}),
	}
}

// Dispatch sends n over every variant registered for its channel and waits for all
// of them. The status is SENT when at least one attempt succeeded or no variant
// applies, FAILED when every attempt failed. n is not modified.
func (c *Coordinator) Dispatch(ctx context.Context, n *models.Notification) Outcome {
	start := time.Now()
	targets := c.registry[n.Channel]

	if len(targets) == 0 {
		c.logger.Debug("no delivery channel registered", map[string]interface{}{
			"notificationId": n.ID,
			"channel":        n.Channel,
		})
		metrics.DispatchOutcomes.WithLabelValues(string(models.StatusSent)).Inc()
		return Outcome{Status: models.StatusSent, Duration: time.Since(start)}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	results := make([]channels.Result, len(targets))
	var wg sync.WaitGroup
	for i, ch := range targets {
		wg.Add(1)
		go func(i int, ch channels.Channel) {
			defer wg.Done()
			results[i] = ch.Send(ctx, n)
		}(i, ch)
	}
	wg.Wait()

	status := models.StatusFailed
	for _, res := range results {
		label := "success"
		if res.Success {
			status = models.StatusSent
		} else {
			label = "failure"
			c.logger.Warn("delivery attempt failed", map[string]interface{}{
				"notificationId": n.ID,
				"userId":         n.RecipientID,
				"channel":        res.Channel,
				"duration_ms":    res.Duration.Milliseconds(),
				"error":          res.Err,
			})
		}
		metrics.ChannelAttempts.WithLabelValues(res.Channel, label).Inc()
		metrics.ChannelAttemptDuration.WithLabelValues(res.Channel).Observe(res.Duration.Seconds())
	}

	metrics.DispatchOutcomes.WithLabelValues(string(status)).Inc()
	return Outcome{Status: status, Results: results, Duration: time.Since(start)}
}
