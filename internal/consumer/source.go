// Package consumer reads booking events from the durable log. Positions are
// committed explicitly by the caller; nothing is acknowledged automatically.
package consumer

import "context"

// Record is one entry of the log.
type Record struct {
	ID         string
	Stream     string
	Payload    []byte
	Deliveries int64
}

// Source is a log subscription with explicit acknowledgment.
type Source interface {
	// Fetch returns the next batch, possibly empty when nothing arrived in time.
	Fetch(ctx context.Context) ([]Record, error)
	// Ack commits the given record ids so they are not delivered again.
	Ack(ctx context.Context, ids ...string) error
}
