package jobs

import (
	"context"
	"log/slog"
	"time"

	"encore/internal/service"
)

// HoldExpirationJob cancels orders that sat unpaid past the hold TTL. The
// cancel goes through the normal order state machine, so the compensating
// release of the holds rides the same order.canceled path as a manual cancel.
type HoldExpirationJob struct {
	orders  *service.OrderService
	holdTTL time.Duration
	ticker  *time.Ticker
	done    chan bool
}

func NewHoldExpirationJob(orders *service.OrderService, holdTTL time.Duration) *HoldExpirationJob {
	return &HoldExpirationJob{
		orders:  orders,
		holdTTL: holdTTL,
		done:    make(chan bool),
	}
}

// Start begins the background sweep, checking every 30 seconds.
func (j *HoldExpirationJob) Start(ctx context.Context) {
	slog.Info("Starting hold expiration job", "check_interval", "30s", "hold_ttl", j.holdTTL)

	j.ticker = time.NewTicker(30 * time.Second)

	go j.sweep(ctx)

	go func() {
		for {
			select {
			case <-j.ticker.C:
				go j.sweep(ctx)
			case <-j.done:
				slog.Info("Hold expiration job stopped")
				return
			}
		}
	}()
}

func (j *HoldExpirationJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
}

func (j *HoldExpirationJob) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-j.holdTTL)

	canceled, err := j.orders.CancelExpired(ctx, cutoff)
	if err != nil {
		slog.Error("Failed to cancel expired orders", "error", err)
		return
	}

	if canceled > 0 {
		slog.Info("Canceled expired orders", "count", canceled, "cutoff", cutoff)
	}
}
