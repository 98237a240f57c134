package outbox

import (
	"context"
	"log/slog"
	"time"

	"encore/internal/messaging"
	"encore/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Outbox messages successfully published to the broker.",
	}, []string{"subject"})

	failedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Failed publish attempts, including later-retried ones.",
	}, []string{"subject"})

	parkedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_parked_total",
		Help: "Messages moved to FAILED after exhausting retry attempts.",
	})
)

// Dispatcher relays committed outbox rows to NATS. Publish semantics are
// at-least-once: a row is marked SENT only after a successful publish, so a
// crash between publish and mark can duplicate a message — consumers are
// status-guarded and tolerate that.
type Dispatcher struct {
	outboxRepo   *repository.OutboxRepository
	natsClient   *messaging.NATSClient
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
}

func NewDispatcher(outboxRepo *repository.OutboxRepository, natsClient *messaging.NATSClient, pollInterval time.Duration, batchSize, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		outboxRepo:   outboxRepo,
		natsClient:   natsClient,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
	}
}

// Run polls until the context is canceled. A broker outage only delays
// announcements; the committed rows wait as PENDING.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Starting outbox dispatcher",
		"poll_interval", d.pollInterval, "batch_size", d.batchSize, "max_attempts", d.maxAttempts)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			d.dispatchBatch(ctx)
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) {
	messages, err := d.outboxRepo.FetchPending(ctx, d.batchSize)
	if err != nil {
		slog.Error("Failed to fetch pending outbox messages", "error", err)
		return
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}

		if err := d.natsClient.PublishRaw(msg.Subject, msg.Payload); err != nil {
			failedTotal.WithLabelValues(msg.Subject).Inc()
			slog.Error("Failed to publish outbox message",
				"error", err, "outbox_id", msg.ID, "subject", msg.Subject, "attempts", msg.Attempts)

			parked, recErr := d.outboxRepo.RecordFailure(ctx, msg.ID, d.maxAttempts)
			if recErr != nil {
				slog.Error("Failed to record outbox failure", "error", recErr, "outbox_id", msg.ID)
			}
			if parked {
				parkedTotal.Inc()
				slog.Error("Outbox message parked after too many attempts",
					"outbox_id", msg.ID, "subject", msg.Subject)
			}
			// Stop the batch on broker trouble, the rest stays PENDING.
			return
		}

		if err := d.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
			slog.Error("Failed to mark outbox message sent", "error", err, "outbox_id", msg.ID)
			return
		}

		publishedTotal.WithLabelValues(msg.Subject).Inc()
	}
}
