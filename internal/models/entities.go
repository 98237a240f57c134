package models

import (
	"fmt"
	"time"
)

// TierKey addresses one sellable tier of one session of one event. It is the
// composite key of the stock ledger and the unit of row-level locking.
type TierKey struct {
	EventID   string `json:"event_id"`
	SessionID string `json:"session_id"`
	TierID    string `json:"tier_id"`
}

func (k TierKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.EventID, k.SessionID, k.TierID)
}

// Stock movement types.
const (
	MovementIn  = "IN"
	MovementOut = "OUT"
)

// StockLedger is the per-tier available-quantity counter. AvailableQty always
// equals the signed sum of the movement log and never goes negative.
type StockLedger struct {
	EventID      string    `json:"event_id" db:"event_id"`
	SessionID    string    `json:"session_id" db:"session_id"`
	TierID       string    `json:"tier_id" db:"tier_id"`
	AvailableQty int64     `json:"available_qty" db:"available_qty"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

func (l *StockLedger) Key() TierKey {
	return TierKey{EventID: l.EventID, SessionID: l.SessionID, TierID: l.TierID}
}

// StockMovement is one row of the append-only movement log.
type StockMovement struct {
	ID        int64     `json:"id" db:"id"`
	EventID   string    `json:"event_id" db:"event_id"`
	SessionID string    `json:"session_id" db:"session_id"`
	TierID    string    `json:"tier_id" db:"tier_id"`
	Type      string    `json:"type" db:"movement_type"`
	Quantity  int64     `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Reservation statuses. HELD may move to CONFIRMED or RELEASED, both terminal.
const (
	ReservationHeld      = "HELD"
	ReservationConfirmed = "CONFIRMED"
	ReservationReleased  = "RELEASED"
)

// Reservation is a hold of ledger quantity against a specific order. The OUT
// movement for Quantity is applied at creation time; Release compensates it
// with a matching IN. Rows are never deleted, they are the audit trail.
type Reservation struct {
	ID          string     `json:"id" db:"id"`
	OrderID     string     `json:"order_id" db:"order_id"`
	UserID      string     `json:"user_id" db:"user_id"`
	EventID     string     `json:"event_id" db:"event_id"`
	SessionID   string     `json:"session_id" db:"session_id"`
	TierID      string     `json:"tier_id" db:"tier_id"`
	Quantity    int64      `json:"quantity" db:"quantity"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at" db:"confirmed_at"`
}

func (r *Reservation) Key() TierKey {
	return TierKey{EventID: r.EventID, SessionID: r.SessionID, TierID: r.TierID}
}

// Order statuses. CREATED is the only non-terminal state.
const (
	OrderCreated        = "CREATED"
	OrderPaymentSuccess = "PAYMENT_SUCCESS"
	OrderPaymentFailed  = "PAYMENT_FAILED"
	OrderCanceled       = "CANCELED"
)

// Order freezes its total from tier prices at creation time; later catalog
// price changes never touch an existing order.
type Order struct {
	ID         string      `json:"id" db:"id"`
	UserID     string      `json:"user_id" db:"user_id"`
	Status     string      `json:"status" db:"status"`
	Total      int64       `json:"total" db:"total"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	PaidAt     *time.Time  `json:"paid_at" db:"paid_at"`
	CanceledAt *time.Time  `json:"canceled_at" db:"canceled_at"`
	Items      []OrderItem `json:"items,omitempty"` // Not from the orders table, filled separately
}

// OrderItem snapshots unit price and tier key per line at creation time.
type OrderItem struct {
	ID        int64  `json:"id" db:"id"`
	OrderID   string `json:"order_id" db:"order_id"`
	EventID   string `json:"event_id" db:"event_id"`
	SessionID string `json:"session_id" db:"session_id"`
	TierID    string `json:"tier_id" db:"tier_id"`
	Quantity  int64  `json:"quantity" db:"quantity"`
	UnitPrice int64  `json:"unit_price" db:"unit_price"` // cents
}

func (i *OrderItem) Key() TierKey {
	return TierKey{EventID: i.EventID, SessionID: i.SessionID, TierID: i.TierID}
}

// Payment statuses. Only PENDING may move to CAPTURED/FAILED/CANCELED and
// only CAPTURED may move to REFUNDED.
const (
	PaymentPending  = "PENDING"
	PaymentCaptured = "CAPTURED"
	PaymentFailed   = "FAILED"
	PaymentCanceled = "CANCELED"
	PaymentRefunded = "REFUNDED"
)

// Payment is the charge attempt for an order; at most one non-superseded
// payment exists per order. ProviderRef is the external charge/order id.
type Payment struct {
	ID          string    `json:"id" db:"id"`
	OrderID     string    `json:"order_id" db:"order_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Amount      int64     `json:"amount" db:"amount"`
	Provider    string    `json:"provider" db:"provider"`
	ProviderRef *string   `json:"provider_ref" db:"provider_ref"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether no further transition may leave this status.
func (p *Payment) Terminal() bool {
	switch p.Status {
	case PaymentFailed, PaymentCanceled, PaymentRefunded:
		return true
	case PaymentCaptured:
		// CAPTURED still allows REFUNDED but is terminal for reprocessing.
		return true
	default:
		return false
	}
}

// Outbox statuses.
const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
	OutboxFailed  = "FAILED"
)

// OutboxMessage is written in the same transaction as the state change it
// announces; the dispatcher relays it to the broker afterwards.
type OutboxMessage struct {
	ID        int64      `json:"id" db:"id"`
	Subject   string     `json:"subject" db:"subject"`
	Payload   []byte     `json:"payload" db:"payload"`
	Status    string     `json:"status" db:"status"`
	Attempts  int        `json:"attempts" db:"attempts"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	SentAt    *time.Time `json:"sent_at" db:"sent_at"`
}
