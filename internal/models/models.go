package models

import "time"

// HTTP request/response shapes.

// OrderLine is one requested line of a new order; the unit price is resolved
// from the catalog at creation time, never taken from the client.
type OrderLine struct {
	EventID   string `json:"event_id"`
	TierID    string `json:"tier_id" binding:"required"`
	Quantity  int64  `json:"quantity" binding:"required"`
	SessionID string `json:"session_id"`
}

type CreateOrderRequest struct {
	UserID   string      `json:"user_id" binding:"required"`
	Provider string      `json:"provider"`
	Lines    []OrderLine `json:"lines" binding:"required"`
}

type CreateOrderResponse struct {
	ID    string `json:"id"`
	Total int64  `json:"total"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id" binding:"required"`
	Force   bool   `json:"force"`
}

type ListOrdersResponseItem struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Total     int64     `json:"total"`
	CreatedAt time.Time `json:"created_at"`
}

type ProcessPaymentRequest struct {
	OrderID  string `json:"order_id" binding:"required"`
	UserID   string `json:"user_id" binding:"required"`
	Amount   int64  `json:"amount" binding:"required"`
	Provider string `json:"provider" binding:"required"`
}

type CapturePaymentRequest struct {
	ProviderRef string `json:"provider_ref" binding:"required"`
	Provider    string `json:"provider"`
}

type CancelPaymentRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Reason    string `json:"reason"`
}

type RefundRequest struct {
	PaymentID string `json:"payment_id" binding:"required"`
	Reason    string `json:"reason"`
}

type CreateLedgerRequest struct {
	EventID         string `json:"event_id" binding:"required"`
	SessionID       string `json:"session_id" binding:"required"`
	TierID          string `json:"tier_id" binding:"required"`
	InitialQuantity int64  `json:"initial_quantity"`
}

type StockResponseItem struct {
	EventID      string `json:"event_id"`
	SessionID    string `json:"session_id"`
	TierID       string `json:"tier_id"`
	AvailableQty int64  `json:"available_qty"`
}

// Ticket is the search-index document for a confirmed reservation.
type Ticket struct {
	ReservationID string    `json:"reservation_id"`
	OrderID       string    `json:"order_id"`
	UserID        string    `json:"user_id"`
	EventID       string    `json:"event_id"`
	SessionID     string    `json:"session_id"`
	TierID        string    `json:"tier_id"`
	Quantity      int64     `json:"quantity"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}
