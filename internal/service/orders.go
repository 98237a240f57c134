package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "encore/internal/errors"
	"encore/internal/external"
	"encore/internal/logger"
	"encore/internal/models"
)

// OrderStore persists orders. Create is all-or-nothing: the order, its items,
// its inventory holds and the order.created announcement commit together or
// not at all.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order, holds []*models.Reservation, msg *models.OutboxMessage) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	MarkPaid(ctx context.Context, id string, msg *models.OutboxMessage) (bool, error)
	MarkPaymentFailed(ctx context.Context, id string, msg *models.OutboxMessage) (bool, error)
	Cancel(ctx context.Context, id string, force bool, msg *models.OutboxMessage) (bool, error)
	GetExpired(ctx context.Context, before time.Time) ([]models.Order, error)
}

// Catalog resolves tier prices and session ownership at order creation time.
type Catalog interface {
	ResolveTier(tierID string) (*external.TierResponse, error)
	ResolveSession(sessionID string) (*external.SessionResponse, error)
}

type OrderService struct {
	orders  OrderStore
	catalog Catalog
}

func NewOrderService(orders OrderStore, catalog Catalog) *OrderService {
	return &OrderService{orders: orders, catalog: catalog}
}

const defaultProvider = "cardpay"

// Create resolves every requested tier against the catalog, freezes the unit
// prices and total, and persists the order together with one inventory hold
// per line. Any line failing validation, price resolution or stock rejects
// the whole order.
func (s *OrderService) Create(ctx context.Context, req *models.CreateOrderRequest) (*models.Order, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id is required", apperrors.ErrInvalidOrder)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", apperrors.ErrInvalidOrder)
	}

	provider := req.Provider
	if provider == "" {
		provider = defaultProvider
	}

	order := &models.Order{
		ID:     uuid.New().String(),
		UserID: req.UserID,
		Status: models.OrderCreated,
	}

	var holds []*models.Reservation
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for tier %s", apperrors.ErrInvalidOrder, line.TierID)
		}

		tier, err := s.catalog.ResolveTier(line.TierID)
		if err != nil {
			return nil, err
		}

		sessionID := line.SessionID
		if sessionID == "" {
			sessionID = tier.SessionID
		}

		eventID := line.EventID
		if eventID == "" {
			session, err := s.catalog.ResolveSession(sessionID)
			if err != nil {
				return nil, err
			}
			eventID = session.EventID
		}

		order.Items = append(order.Items, models.OrderItem{
			EventID:   eventID,
			SessionID: sessionID,
			TierID:    line.TierID,
			Quantity:  line.Quantity,
			UnitPrice: tier.Price,
		})
		order.Total += tier.Price * line.Quantity

		holds = append(holds, &models.Reservation{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			UserID:    req.UserID,
			EventID:   eventID,
			SessionID: sessionID,
			TierID:    line.TierID,
			Quantity:  line.Quantity,
			Status:    models.ReservationHeld,
		})
	}

	msg, err := models.NewOutboxMessage(models.EventOrderCreated, models.OrderCreatedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Total:     order.Total,
		Provider:  provider,
		Timestamp: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, order, holds, msg); err != nil {
		return nil, err
	}

	logger.WithContext(ctx).Info("Order created",
		"order_id", order.ID, "user_id", order.UserID, "total", order.Total, "lines", len(order.Items))

	return order, nil
}

func (s *OrderService) GetByID(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, id)
	}
	return order, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// MarkAsPaid advances the order to PAYMENT_SUCCESS. A duplicate or stale
// capture event matches no row under the status guard and is reported as
// ErrInvalidOrder for the caller to ack and drop.
func (s *OrderService) MarkAsPaid(ctx context.Context, orderID string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, orderID)
	}

	msg, err := models.NewOutboxMessage(models.EventOrderPaid, models.OrderPaidEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Total:     order.Total,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	ok, err := s.orders.MarkPaid(ctx, orderID, msg)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order %s is not awaiting payment", apperrors.ErrInvalidOrder, orderID)
	}

	logger.WithContext(ctx).Info("Order marked paid", "order_id", orderID)
	return nil
}

// MarkAsPaymentFailed advances the order to PAYMENT_FAILED under the same
// guard as MarkAsPaid.
func (s *OrderService) MarkAsPaymentFailed(ctx context.Context, orderID, reason string) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, orderID)
	}

	msg, err := models.NewOutboxMessage(models.EventOrderPaymentFailed, models.OrderPaymentFailedEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	ok, err := s.orders.MarkPaymentFailed(ctx, orderID, msg)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order %s is not awaiting payment", apperrors.ErrInvalidOrder, orderID)
	}

	logger.WithContext(ctx).Info("Order marked payment failed", "order_id", orderID, "reason", reason)
	return nil
}

// Cancel moves the order to CANCELED. Without force only orders still waiting
// on payment qualify; force cancels anything not already canceled, which the
// release consumer then compensates.
func (s *OrderService) Cancel(ctx context.Context, orderID string, force bool) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("%w: %s", apperrors.ErrOrderNotFound, orderID)
	}
	if order.Status == models.OrderCanceled {
		return fmt.Errorf("%w: order %s is already canceled", apperrors.ErrInvalidOrder, orderID)
	}

	msg, err := models.NewOutboxMessage(models.EventOrderCanceled, models.OrderCanceledEvent{
		OrderID:   order.ID,
		UserID:    order.UserID,
		Forced:    force,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}

	ok, err := s.orders.Cancel(ctx, orderID, force, msg)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order %s cannot be canceled in status %s", apperrors.ErrInvalidOrder, orderID, order.Status)
	}

	logger.WithContext(ctx).Info("Order canceled", "order_id", orderID, "forced", force)
	return nil
}

// CancelExpired cancels orders that sat in CREATED past the cutoff. Their
// holds are released by the order.canceled consumer like any other cancel.
func (s *OrderService) CancelExpired(ctx context.Context, cutoff time.Time) (int, error) {
	expired, err := s.orders.GetExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired orders: %w", err)
	}

	canceled := 0
	for _, order := range expired {
		if err := s.Cancel(ctx, order.ID, false); err != nil {
			// A payment may have landed between the scan and the cancel.
			if errors.Is(err, apperrors.ErrInvalidOrder) {
				continue
			}
			return canceled, err
		}
		canceled++
	}

	return canceled, nil
}
