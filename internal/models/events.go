package models

import (
	"encoding/json"
	"time"
)

// Broker subjects. Every payload carries enough identifiers for idempotent
// replay: consumers re-check current status, they never trust delivery order.
const (
	EventOrderCreated       = "order.created"
	EventOrderPaid          = "order.paid"
	EventOrderPaymentFailed = "order.payment_failed"
	EventOrderCanceled      = "order.canceled"

	EventPaymentPending  = "payment.pending"
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventPaymentCanceled = "payment.canceled"
	EventPaymentRefunded = "payment.refunded"

	EventReservationConfirmed   = "ticket.reservation_confirmed"
	EventRefundDecisionRecorded = "refund.decision_registered"
)

// OrderCreatedEvent kicks off the payment leg of the saga.
type OrderCreatedEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Total     int64     `json:"total"`
	Provider  string    `json:"provider"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPaidEvent is emitted when an order reaches PAYMENT_SUCCESS.
type OrderPaidEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Total     int64     `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPaymentFailedEvent is emitted when an order reaches PAYMENT_FAILED.
type OrderPaymentFailedEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCanceledEvent is emitted on an explicit cancel request.
type OrderCanceledEvent struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	Forced    bool      `json:"forced"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentEvent covers every payment.* subject; Status distinguishes them.
type PaymentEvent struct {
	PaymentID   string    `json:"payment_id"`
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	Provider    string    `json:"provider"`
	ProviderRef string    `json:"provider_ref,omitempty"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReservationConfirmedEvent is emitted per reservation when the hold becomes
// a sale. The ticket index and notification consumers feed on it.
type ReservationConfirmedEvent struct {
	ReservationID string    `json:"reservation_id"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	EventID       string    `json:"event_id"`
	SessionID     string    `json:"session_id"`
	TierID        string    `json:"tier_id"`
	Quantity      int64     `json:"quantity"`
	Timestamp     time.Time `json:"timestamp"`
}

// RefundDecisionEvent records an accepted refund for a captured payment.
type RefundDecisionEvent struct {
	PaymentID string    `json:"payment_id"`
	OrderID   string    `json:"order_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewOutboxMessage marshals an event payload into a PENDING outbox row so it
// can be inserted inside the transaction that performs the state change.
func NewOutboxMessage(subject string, payload any) (*OutboxMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		Subject: subject,
		Payload: data,
		Status:  OutboxPending,
	}, nil
}
