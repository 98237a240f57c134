package consumers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/stan.go"

	apperrors "encore/internal/errors"
	"encore/internal/external"
	"encore/internal/models"
	"encore/internal/search"
	"encore/internal/service"
)

// Handlers react to broker events and drive the saga forward. Every handler
// follows the same contract: ack on success, ack and drop on a permanent
// error (retrying cannot change the outcome), skip the ack on a transient
// error so the broker redelivers. The services underneath are idempotent, so
// redelivery is always safe.
type Handlers struct {
	services *service.Services
	email    *external.EmailClient
	tickets  *search.TicketIndex
}

func NewHandlers(services *service.Services, email *external.EmailClient, tickets *search.TicketIndex) *Handlers {
	return &Handlers{
		services: services,
		email:    email,
		tickets:  tickets,
	}
}

// finish applies the ack contract for a handled message.
func finish(m *stan.Msg, err error, logAttrs ...any) {
	if err == nil {
		m.Ack()
		return
	}

	if apperrors.Permanent(err) {
		slog.Warn("Dropping message after permanent error",
			append([]any{"subject", m.Subject, "error", err}, logAttrs...)...)
		m.Ack()
		return
	}

	slog.Error("Transient error handling message, leaving for redelivery",
		append([]any{"subject", m.Subject, "error", err}, logAttrs...)...)
}

// HandleOrderCreated registers the charge for a freshly created order.
func (h *Handlers) HandleOrderCreated(m *stan.Msg) {
	var event models.OrderCreatedEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal order created event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing order created event", "order_id", event.OrderID)

	ctx := context.Background()
	_, err := h.services.Payments.Process(ctx, &models.ProcessPaymentRequest{
		OrderID:  event.OrderID,
		UserID:   event.UserID,
		Amount:   event.Total,
		Provider: event.Provider,
	})

	// A provider refusal already moved the payment to FAILED and announced
	// payment.failed; the message has done its job.
	finish(m, err, "order_id", event.OrderID)
}

// HandlePaymentCaptured marks the order paid.
func (h *Handlers) HandlePaymentCaptured(m *stan.Msg) {
	var event models.PaymentEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal payment captured event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing payment captured event",
		"payment_id", event.PaymentID, "order_id", event.OrderID)

	err := h.services.Orders.MarkAsPaid(context.Background(), event.OrderID)
	finish(m, err, "order_id", event.OrderID)
}

// HandlePaymentFailed marks the order payment-failed, which triggers the
// compensating release of its holds.
func (h *Handlers) HandlePaymentFailed(m *stan.Msg) {
	var event models.PaymentEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal payment failed event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing payment failed event",
		"payment_id", event.PaymentID, "order_id", event.OrderID, "reason", event.Reason)

	err := h.services.Orders.MarkAsPaymentFailed(context.Background(), event.OrderID, event.Reason)
	finish(m, err, "order_id", event.OrderID)
}

// HandlePaymentCanceled is the same compensation path as a failed payment.
func (h *Handlers) HandlePaymentCanceled(m *stan.Msg) {
	var event models.PaymentEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal payment canceled event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing payment canceled event",
		"payment_id", event.PaymentID, "order_id", event.OrderID)

	err := h.services.Orders.MarkAsPaymentFailed(context.Background(), event.OrderID, "payment canceled")
	finish(m, err, "order_id", event.OrderID)
}

// HandleOrderPaid confirms every hold of the paid order and notifies the
// buyer. The email is fire-and-forget: a gateway hiccup never blocks the
// confirmation.
func (h *Handlers) HandleOrderPaid(m *stan.Msg) {
	var event models.OrderPaidEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal order paid event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing order paid event", "order_id", event.OrderID)

	ctx := context.Background()
	if err := h.services.Reservations.ConfirmAllForOrder(ctx, event.OrderID); err != nil {
		finish(m, err, "order_id", event.OrderID)
		return
	}

	if err := h.email.Send(event.UserID, "order_confirmed", "Your tickets are confirmed", event.OrderID); err != nil {
		slog.Warn("Failed to send confirmation email", "order_id", event.OrderID, "error", err)
	}

	m.Ack()
}

// HandleOrderPaymentFailed releases the holds of an order whose payment
// failed and notifies the buyer.
func (h *Handlers) HandleOrderPaymentFailed(m *stan.Msg) {
	var event models.OrderPaymentFailedEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal order payment failed event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing order payment failed event",
		"order_id", event.OrderID, "reason", event.Reason)

	ctx := context.Background()
	if err := h.services.Reservations.ReleaseAllForOrder(ctx, event.OrderID); err != nil {
		finish(m, err, "order_id", event.OrderID)
		return
	}

	if err := h.email.Send(event.UserID, "payment_failed", "Your payment did not go through", event.OrderID); err != nil {
		slog.Warn("Failed to send payment failed email", "order_id", event.OrderID, "error", err)
	}

	m.Ack()
}

// HandleOrderCanceled releases the holds of a canceled order.
func (h *Handlers) HandleOrderCanceled(m *stan.Msg) {
	var event models.OrderCanceledEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal order canceled event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing order canceled event", "order_id", event.OrderID, "forced", event.Forced)

	err := h.services.Reservations.ReleaseAllForOrder(context.Background(), event.OrderID)
	finish(m, err, "order_id", event.OrderID)
}

// HandleReservationConfirmed indexes the confirmed reservation as a
// searchable ticket.
func (h *Handlers) HandleReservationConfirmed(m *stan.Msg) {
	var event models.ReservationConfirmedEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal reservation confirmed event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing reservation confirmed event",
		"reservation_id", event.ReservationID, "order_id", event.OrderID)

	err := h.tickets.Index(context.Background(), &models.Ticket{
		ReservationID: event.ReservationID,
		OrderID:       event.OrderID,
		UserID:        event.UserID,
		EventID:       event.EventID,
		SessionID:     event.SessionID,
		TierID:        event.TierID,
		Quantity:      event.Quantity,
		ConfirmedAt:   event.Timestamp,
	})

	finish(m, err, "reservation_id", event.ReservationID)
}

// HandleRefundDecision performs the provider refund recorded earlier.
func (h *Handlers) HandleRefundDecision(m *stan.Msg) {
	var event models.RefundDecisionEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal refund decision event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing refund decision event",
		"payment_id", event.PaymentID, "order_id", event.OrderID)

	_, err := h.services.Payments.Refund(context.Background(), event.PaymentID, event.Reason)
	finish(m, err, "payment_id", event.PaymentID)
}

// HandlePaymentRefunded notifies the buyer that money went back.
func (h *Handlers) HandlePaymentRefunded(m *stan.Msg) {
	var event models.PaymentEvent
	if err := json.Unmarshal(m.Data, &event); err != nil {
		slog.Error("Failed to unmarshal payment refunded event", "error", err)
		m.Ack()
		return
	}

	slog.Info("Processing payment refunded event",
		"payment_id", event.PaymentID, "order_id", event.OrderID)

	if err := h.email.Send(event.UserID, "payment_refunded", "Your refund has been processed", event.OrderID); err != nil {
		slog.Warn("Failed to send refund email", "order_id", event.OrderID, "error", err)
	}

	m.Ack()
}
