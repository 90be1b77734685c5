// Package channels holds the delivery channel variants used by the dispatch coordinator.
package channels

import (
	"context"
	"errors"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/models"
)

const (
	NameEmail = "email"
	NamePush  = "push"
)

// Result is the typed outcome of one delivery attempt. Failures are reported
// here and never returned as errors from Send.
type Result struct {
	Channel  string
	Success  bool
	Err      error
	Duration time.Duration
}

// Channel delivers a notification over one route.
type Channel interface {
	Name() string
	Send(ctx context.Context, n *models.Notification) Result
}

// attempt runs fn with a deadline and converts its outcome into a Result.
// fn runs on its own goroutine so a call that ignores ctx still cannot hold
// the caller past the deadline.
func attempt(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) Result {
	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	res := Result{Channel: name, Duration: time.Since(start)}
	switch {
	case err == nil:
		res.Success = true
	case errors.Is(err, context.DeadlineExceeded):
		res.Err = apperrors.NewDeliveryTimeoutError(name, timeout)
	case apperrors.CodeOf(err) == apperrors.ErrCodeRecipientContactMissing:
		res.Err = err
	default:
		res.Err = apperrors.NewDeliveryError(name, err)
	}
	return res
}
