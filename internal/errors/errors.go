package errors

import "errors"

// Sentinel errors for the saga state machines. Handlers and consumers branch
// on these with errors.Is; everything else is treated as an internal failure.

// Not-found.
var ErrStockNotFound = errors.New("stock ledger not found")
var ErrReservationNotFound = errors.New("reservation not found")
var ErrOrderNotFound = errors.New("order not found")
var ErrPaymentNotFound = errors.New("payment not found")
var ErrProductNotFound = errors.New("product not found")

// Validation.
var ErrInvalidMovement = errors.New("invalid stock movement")
var ErrInvalidReservation = errors.New("invalid reservation")
var ErrInvalidOrder = errors.New("invalid order")
var ErrInvalidPayment = errors.New("invalid payment")
var ErrInvalidRefund = errors.New("invalid refund")

// Conflict / invalid state.
var ErrLedgerExists = errors.New("stock ledger already exists")
var ErrAlreadyConfirmed = errors.New("reservation already confirmed")
var ErrAlreadyReleased = errors.New("reservation already released")
var ErrAlreadyCanceled = errors.New("payment already canceled")

// Insufficient inventory: an OUT movement would drive the ledger negative.
var ErrInsufficientStock = errors.New("insufficient stock")

// External collaborators.
var ErrExternalService = errors.New("external service failure")
var ErrPaymentRefused = errors.New("payment refused by provider")

// Kind classifies an error for transport mapping and for the retry decision
// in message consumers.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInsufficientStock
	KindExternal
)

func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrStockNotFound),
		errors.Is(err, ErrReservationNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrProductNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidMovement),
		errors.Is(err, ErrInvalidReservation),
		errors.Is(err, ErrInvalidOrder),
		errors.Is(err, ErrInvalidPayment),
		errors.Is(err, ErrInvalidRefund):
		return KindValidation
	case errors.Is(err, ErrLedgerExists),
		errors.Is(err, ErrAlreadyConfirmed),
		errors.Is(err, ErrAlreadyReleased),
		errors.Is(err, ErrAlreadyCanceled),
		errors.Is(err, ErrPaymentRefused):
		return KindConflict
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrExternalService):
		return KindExternal
	default:
		return KindInternal
	}
}

// Permanent reports whether a consumer should ack the message instead of
// letting the broker redeliver it. Validation, not-found and invalid-state
// outcomes never become processable by retrying.
func Permanent(err error) bool {
	switch Classify(err) {
	case KindValidation, KindNotFound, KindConflict, KindInsufficientStock:
		return true
	default:
		return false
	}
}
