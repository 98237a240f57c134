package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "encore/internal/errors"
	"encore/internal/logger"
	"encore/internal/models"
)

// PaymentStore persists payments. Transition is the status-guarded update
// that keeps duplicate provider callbacks and redelivered messages harmless.
type PaymentStore interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	GetByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error)
	UpdateAmount(ctx context.Context, id string, amount int64) error
	Transition(ctx context.Context, id, from, to string, providerRef *string, msg *models.OutboxMessage) (bool, error)
}

// ChargeProvider is the external payment provider surface. CreatePaymentOrder
// returns ErrPaymentRefused for a business refusal and ErrExternalService for
// transport failures; the two outcomes drive different saga paths.
// CapturePayment, CancelPayment and RefundPayment must be idempotent per
// providerRef: concurrent duplicate callbacks can reach the provider more
// than once before the row transition settles which one wins.
type ChargeProvider interface {
	CreatePaymentOrder(payment *models.Payment) (string, error)
	CapturePayment(providerRef string) error
	CancelPayment(providerRef string) error
	RefundPayment(providerRef string) error
}

// OutboxWriter enqueues standalone announcements outside a row transition.
type OutboxWriter interface {
	Enqueue(ctx context.Context, msg *models.OutboxMessage) error
}

type PaymentService struct {
	payments PaymentStore
	provider ChargeProvider
	outbox   OutboxWriter
}

func NewPaymentService(payments PaymentStore, provider ChargeProvider, outbox OutboxWriter) *PaymentService {
	return &PaymentService{payments: payments, provider: provider, outbox: outbox}
}

// Process registers the charge for an order with the provider. The method is
// idempotent per order: a redelivered order.created message finds the
// existing payment and either returns it unchanged (already registered) or
// retries only the provider call that never completed.
func (s *PaymentService) Process(ctx context.Context, req *models.ProcessPaymentRequest) (*models.Payment, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: order_id is required", apperrors.ErrInvalidPayment)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", apperrors.ErrInvalidPayment)
	}
	if req.Provider == "" {
		return nil, fmt.Errorf("%w: provider is required", apperrors.ErrInvalidPayment)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", apperrors.ErrInvalidPayment)
	}

	payment, err := s.payments.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	switch {
	case payment == nil:
		payment = &models.Payment{
			ID:       uuid.New().String(),
			OrderID:  req.OrderID,
			UserID:   req.UserID,
			Amount:   req.Amount,
			Provider: req.Provider,
			Status:   models.PaymentPending,
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			return nil, err
		}

	case payment.Status == models.PaymentPending && payment.ProviderRef != nil:
		// Already registered with the provider; nothing left to do.
		return payment, nil

	case payment.Status != models.PaymentPending:
		return nil, fmt.Errorf("%w: payment for order %s is already %s",
			apperrors.ErrInvalidPayment, req.OrderID, payment.Status)

	default:
		// PENDING without a provider ref: the previous attempt died before
		// the provider answered. Refresh the amount and retry the call.
		if payment.Amount != req.Amount {
			if err := s.payments.UpdateAmount(ctx, payment.ID, req.Amount); err != nil {
				return nil, err
			}
			payment.Amount = req.Amount
		}
	}

	providerRef, err := s.provider.CreatePaymentOrder(payment)
	if err != nil {
		if errors.Is(err, apperrors.ErrPaymentRefused) {
			if failErr := s.fail(ctx, payment, err.Error()); failErr != nil {
				return nil, failErr
			}
			return nil, err
		}
		return nil, err
	}

	msg, err := s.eventMessage(models.EventPaymentPending, payment, models.PaymentPending, providerRef, "")
	if err != nil {
		return nil, err
	}

	ok, err := s.payments.Transition(ctx, payment.ID, models.PaymentPending, models.PaymentPending, &providerRef, msg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s left PENDING during registration",
			apperrors.ErrInvalidPayment, payment.ID)
	}
	payment.ProviderRef = &providerRef

	logger.WithContext(ctx).Info("Payment registered",
		"payment_id", payment.ID, "order_id", payment.OrderID, "provider_ref", providerRef)

	return payment, nil
}

// fail moves the payment to FAILED and announces payment.failed.
func (s *PaymentService) fail(ctx context.Context, payment *models.Payment, reason string) error {
	msg, err := s.eventMessage(models.EventPaymentFailed, payment, models.PaymentFailed, "", reason)
	if err != nil {
		return err
	}

	ok, err := s.payments.Transition(ctx, payment.ID, models.PaymentPending, models.PaymentFailed, nil, msg)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: payment %s is no longer PENDING", apperrors.ErrInvalidPayment, payment.ID)
	}

	logger.WithContext(ctx).Warn("Payment failed",
		"payment_id", payment.ID, "order_id", payment.OrderID, "reason", reason)
	return nil
}

// Capture finalizes a pending charge identified by its provider reference.
// Only PENDING payments capture; anything else is a duplicate or out-of-order
// callback and is rejected without side effects. The status check runs
// outside a row lock, so two racing callbacks may both call the provider
// (idempotent per providerRef); the guarded transition lets exactly one of
// them record the capture and emit payment.captured.
func (s *PaymentService) Capture(ctx context.Context, providerRef string) (*models.Payment, error) {
	payment, err := s.payments.GetByProviderRef(ctx, providerRef)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: provider ref %s", apperrors.ErrPaymentNotFound, providerRef)
	}
	if payment.Status != models.PaymentPending {
		return nil, fmt.Errorf("%w: payment %s is %s, only PENDING payments capture",
			apperrors.ErrInvalidPayment, payment.ID, payment.Status)
	}

	if err := s.provider.CapturePayment(providerRef); err != nil {
		if errors.Is(err, apperrors.ErrPaymentRefused) {
			if failErr := s.fail(ctx, payment, err.Error()); failErr != nil {
				return nil, failErr
			}
		}
		return nil, err
	}

	msg, err := s.eventMessage(models.EventPaymentCaptured, payment, models.PaymentCaptured, providerRef, "")
	if err != nil {
		return nil, err
	}

	ok, err := s.payments.Transition(ctx, payment.ID, models.PaymentPending, models.PaymentCaptured, nil, msg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s is no longer PENDING", apperrors.ErrInvalidPayment, payment.ID)
	}
	payment.Status = models.PaymentCaptured

	logger.WithContext(ctx).Info("Payment captured",
		"payment_id", payment.ID, "order_id", payment.OrderID)

	return payment, nil
}

// Cancel voids a pending charge. Canceling twice is ErrAlreadyCanceled; a
// refunded payment cannot also be canceled.
func (s *PaymentService) Cancel(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPaymentNotFound, paymentID)
	}

	switch payment.Status {
	case models.PaymentCanceled:
		return nil, fmt.Errorf("%w: payment %s", apperrors.ErrAlreadyCanceled, paymentID)
	case models.PaymentPending:
		// fallthrough to the provider call
	default:
		return nil, fmt.Errorf("%w: payment %s is %s, only PENDING payments cancel",
			apperrors.ErrInvalidPayment, paymentID, payment.Status)
	}

	if payment.ProviderRef != nil {
		if err := s.provider.CancelPayment(*payment.ProviderRef); err != nil {
			return nil, err
		}
	}

	msg, err := s.eventMessage(models.EventPaymentCanceled, payment, models.PaymentCanceled, "", reason)
	if err != nil {
		return nil, err
	}

	ok, err := s.payments.Transition(ctx, paymentID, models.PaymentPending, models.PaymentCanceled, nil, msg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s is no longer PENDING", apperrors.ErrInvalidPayment, paymentID)
	}
	payment.Status = models.PaymentCanceled

	logger.WithContext(ctx).Info("Payment canceled", "payment_id", paymentID, "reason", reason)

	return payment, nil
}

// Refund returns money for a captured payment. Any other status is
// ErrInvalidRefund; money never moved or already moved back.
func (s *PaymentService) Refund(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPaymentNotFound, paymentID)
	}
	if payment.Status != models.PaymentCaptured {
		return nil, fmt.Errorf("%w: payment %s is %s, only CAPTURED payments refund",
			apperrors.ErrInvalidRefund, paymentID, payment.Status)
	}

	if payment.ProviderRef != nil {
		if err := s.provider.RefundPayment(*payment.ProviderRef); err != nil {
			return nil, err
		}
	}

	msg, err := s.eventMessage(models.EventPaymentRefunded, payment, models.PaymentRefunded, "", reason)
	if err != nil {
		return nil, err
	}

	ok, err := s.payments.Transition(ctx, paymentID, models.PaymentCaptured, models.PaymentRefunded, nil, msg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payment %s is no longer CAPTURED", apperrors.ErrInvalidRefund, paymentID)
	}
	payment.Status = models.PaymentRefunded

	logger.WithContext(ctx).Info("Payment refunded", "payment_id", paymentID, "reason", reason)

	return payment, nil
}

// RegisterRefundDecision records an accepted refund request for a captured
// payment without moving money yet. The refund.decision_registered consumer
// performs the actual refund asynchronously.
func (s *PaymentService) RegisterRefundDecision(ctx context.Context, paymentID, reason string) error {
	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if payment == nil {
		return fmt.Errorf("%w: %s", apperrors.ErrPaymentNotFound, paymentID)
	}
	if payment.Status != models.PaymentCaptured {
		return fmt.Errorf("%w: payment %s is %s, only CAPTURED payments are refundable",
			apperrors.ErrInvalidRefund, paymentID, payment.Status)
	}

	msg, err := models.NewOutboxMessage(models.EventRefundDecisionRecorded, models.RefundDecisionEvent{
		PaymentID: paymentID,
		OrderID:   payment.OrderID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	if err := s.outbox.Enqueue(ctx, msg); err != nil {
		return err
	}

	logger.WithContext(ctx).Info("Refund decision registered", "payment_id", paymentID, "reason", reason)
	return nil
}

func (s *PaymentService) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrPaymentNotFound, id)
	}
	return payment, nil
}

func (s *PaymentService) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	payment, err := s.payments.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: no payment for order %s", apperrors.ErrPaymentNotFound, orderID)
	}
	return payment, nil
}

func (s *PaymentService) eventMessage(subject string, payment *models.Payment, status, providerRef, reason string) (*models.OutboxMessage, error) {
	ref := providerRef
	if ref == "" && payment.ProviderRef != nil {
		ref = *payment.ProviderRef
	}

	return models.NewOutboxMessage(subject, models.PaymentEvent{
		PaymentID:   payment.ID,
		OrderID:     payment.OrderID,
		UserID:      payment.UserID,
		Amount:      payment.Amount,
		Provider:    payment.Provider,
		ProviderRef: ref,
		Status:      status,
		Reason:      reason,
		Timestamp:   time.Now(),
	})
}
