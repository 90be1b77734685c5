// Package pipeline turns booking log records into persisted, dispatched and
// broadcast notifications.
//
// Commit discipline: a record is acknowledged only after its notification has
// been saved. A record whose save keeps failing stays unacknowledged and is
// redelivered by the source, so a crash between save and ack yields a duplicate
// rather than a loss. Undecodable records are acknowledged and skipped.
package pipeline

import (
	"context"
	"errors"
	"time"

	apperrors "notification-pipeline/internal/common/errors"
	"notification-pipeline/internal/common/logger"
	"notification-pipeline/internal/common/metrics"
	"notification-pipeline/internal/common/observability"
	"notification-pipeline/internal/consumer"
	"notification-pipeline/internal/dispatch"
	"notification-pipeline/internal/models"
	"notification-pipeline/internal/pipeline/decoder"
	"notification-pipeline/internal/pipeline/factory"
	"notification-pipeline/internal/store"

	"golang.org/x/sync/errgroup"
)

type Outcome string

const (
	OutcomeProcessed  Outcome = "processed"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeRetryLater Outcome = "retry_later"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, n *models.Notification) dispatch.Outcome
}

type Publisher interface {
	Publish(n *models.Notification) error
}

type Config struct {
	Concurrency    int
	PersistTimeout time.Duration
	PersistRetry   RetryConfig
	AckRetry       RetryConfig
	// FetchBackoff is the pause after a failed fetch.
	FetchBackoff time.Duration
}

type Deps struct {
	Source     consumer.Source
	Decoder    *decoder.Decoder
	Factory    *factory.Factory
	Repository store.NotificationRepository
	Dispatcher Dispatcher
	Publisher  Publisher
	Metrics    *observability.Observability
}

type Pipeline struct {
	cfg    Config
	deps   Deps
	logger logger.Logger
}

func New(cfg Config, deps Deps, log logger.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = time.Second
	}
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"component": "pipeline"}),
	}
}

// Run consumes the source until ctx is cancelled. Records of one batch are
// processed concurrently, so their persistence order may differ from log order.
// A batch already handed out is finished before Run returns.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", map[string]interface{}{"concurrency": p.cfg.Concurrency})
	defer p.logger.Info("pipeline stopped", nil)

	for {
		if ctx.Err() != nil {
			return nil
		}

		records, err := p.deps.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("fetch failed", map[string]interface{}{"error": err})
			select {
			case <-time.After(p.cfg.FetchBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		if len(records) > 0 {
			p.processBatch(ctx, records)
		}
	}
}

func (p *Pipeline) processBatch(ctx context.Context, records []consumer.Record) {
	// in-flight records run to completion on shutdown; every step has its own timeout
	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, rec := range records {
		g.Go(func() error {
			p.Process(work, rec)
			return nil
		})
	}
	_ = g.Wait()
}

// Process handles one record end to end and reports what happened to it.
func (p *Pipeline) Process(ctx context.Context, rec consumer.Record) Outcome {
	start := time.Now()
	metrics.RecordsInFlight.Inc()
	defer metrics.RecordsInFlight.Dec()

	log := p.logger.WithFields(map[string]interface{}{
		"recordId":   rec.ID,
		"stream":     rec.Stream,
		"deliveries": rec.Deliveries,
	})

	event, err := p.deps.Decoder.Decode(rec.Payload, rec.Stream+"/"+rec.ID)
	if err != nil {
		log.Warn("skipping undecodable record", map[string]interface{}{"error": err})
		p.ack(ctx, rec, log)
		return p.finish(ctx, start, OutcomeSkipped)
	}

	n := p.deps.Factory.Build(event)
	if err := p.save(ctx, n); err != nil {
		log.Error("persistence failed, record left for redelivery", map[string]interface{}{
			"error":     err,
			"errorCode":     string(apperrors.CodeOf(err)),
			"errorCategory": apperrors.GetErrorCategory(apperrors.CodeOf(err)),
			"userId":        n.RecipientID,
		})
		return p.finish(ctx, start, OutcomeRetryLater)
	}

	log = log.WithFields(map[string]interface{}{"notificationId": n.ID, "userId": n.RecipientID})
	p.ack(ctx, rec, log)
	p.deliver(ctx, n, log)
	return p.finish(ctx, start, OutcomeProcessed)
}

func (p *Pipeline) save(ctx context.Context, n *models.Notification) error {
	return executeWithRetry(ctx, p.cfg.PersistRetry, "save", func(ctx context.Context) error {
		sctx, cancel := p.persistContext(ctx)
		defer cancel()
		return p.deps.Repository.Save(sctx, n)
	})
}

// updateStatus only moves the row out of from, so a mark-as-read that landed
// during dispatch is never undone.
func (p *Pipeline) updateStatus(ctx context.Context, id int64, from, to models.Status) (bool, error) {
	var applied bool
	err := executeWithRetry(ctx, p.cfg.PersistRetry, "updateStatus", func(ctx context.Context) error {
		uctx, cancel := p.persistContext(ctx)
		defer cancel()
		var err error
		applied, err = p.deps.Repository.UpdateStatus(uctx, id, from, to)
		return err
	})
	return applied, err
}

func (p *Pipeline) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.PersistTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.PersistTimeout)
}

// ack commits the record position. A failed commit only costs a duplicate later.
func (p *Pipeline) ack(ctx context.Context, rec consumer.Record, log logger.Logger) {
	err := executeWithRetry(ctx, p.cfg.AckRetry, "ack", func(ctx context.Context) error {
		return p.deps.Source.Ack(ctx, rec.ID)
	})
	if err != nil {
		metrics.LogAcks.WithLabelValues("failed").Inc()
		log.Error("commit failed, record will be redelivered", map[string]interface{}{"error": err})
		return
	}
	metrics.LogAcks.WithLabelValues("ok").Inc()
}

func (p *Pipeline) deliver(ctx context.Context, n *models.Notification, log logger.Logger) {
	out := p.deps.Dispatcher.Dispatch(ctx, n)
	p.deps.Metrics.RecordDispatch(ctx, out.Duration, string(out.Status))

	from := n.Status
	if err := n.TransitionTo(out.Status); err != nil {
		log.Error("unexpected status transition", map[string]interface{}{"error": err})
	} else {
		applied, err := p.updateStatus(ctx, n.ID, from, n.Status)
		switch {
		case err != nil:
			log.Error("status update failed", map[string]interface{}{
				"error":         err,
				"errorCode":     string(apperrors.CodeOf(err)),
				"errorCategory": apperrors.GetErrorCategory(apperrors.CodeOf(err)),
				"status":        string(n.Status),
			})
		case !applied:
			if stored, err := p.deps.Repository.FindByID(ctx, n.ID); err == nil {
				n = stored
			}
			log.Info("status already advanced, keeping stored state", map[string]interface{}{
				"status": string(n.Status),
			})
		}
	}

	if err := p.deps.Publisher.Publish(n.Clone()); err != nil {
		if errors.Is(err, apperrors.ErrBroadcastUnavailable) {
			log.Warn("broadcast unavailable, live subscribers skipped", nil)
		} else {
			log.Error("broadcast failed", map[string]interface{}{"error": err})
		}
	}

	log.Info("notification processed", map[string]interface{}{
		"status":      string(n.Status),
		"channel":     string(n.Channel),
		"dispatch_ms": out.Duration.Milliseconds(),
	})
}

func (p *Pipeline) finish(ctx context.Context, start time.Time, outcome Outcome) Outcome {
	elapsed := time.Since(start)
	metrics.RecordsConsumed.WithLabelValues(string(outcome)).Inc()
	metrics.RecordDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
	p.deps.Metrics.RecordProcessed(ctx, string(outcome))
	p.deps.Metrics.RecordDuration(ctx, elapsed, string(outcome))
	return outcome
}
