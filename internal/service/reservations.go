package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "encore/internal/errors"
	"encore/internal/logger"
	"encore/internal/models"
)

// ReservationStore persists reservations. Confirm and Release re-check the
// status under the row lock, so calls racing a redelivered message lose
// cleanly with a conflict error instead of corrupting a terminal row.
type ReservationStore interface {
	Hold(ctx context.Context, res *models.Reservation) error
	Confirm(ctx context.Context, id string, msg *models.OutboxMessage) (*models.Reservation, error)
	Release(ctx context.Context, id string, msg *models.OutboxMessage) (*models.Reservation, error)
	GetByID(ctx context.Context, id string) (*models.Reservation, error)
	ListByOrder(ctx context.Context, orderID string) ([]models.Reservation, error)
}

type ReservationService struct {
	reservations ReservationStore
}

func NewReservationService(reservations ReservationStore) *ReservationService {
	return &ReservationService{reservations: reservations}
}

// Hold commits inventory to an order before any money moves: the ledger OUT
// and the HELD row are one transaction, so a charge in flight can never
// oversell the tier.
func (s *ReservationService) Hold(ctx context.Context, orderID, userID string, key models.TierKey, quantity int64) (*models.Reservation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", apperrors.ErrInvalidReservation)
	}

	res := &models.Reservation{
		OrderID:   orderID,
		UserID:    userID,
		EventID:   key.EventID,
		SessionID: key.SessionID,
		TierID:    key.TierID,
		Quantity:  quantity,
	}

	if err := s.reservations.Hold(ctx, res); err != nil {
		return nil, err
	}

	return res, nil
}

// Confirm records that the hold became a sale. No inventory movement: the
// OUT was applied at hold time.
func (s *ReservationService) Confirm(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrReservationNotFound, id)
	}

	msg, err := confirmedMessage(res)
	if err != nil {
		return nil, err
	}

	return s.reservations.Confirm(ctx, id, msg)
}

// Release compensates the hold, returning the quantity to the ledger.
func (s *ReservationService) Release(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrReservationNotFound, id)
	}

	return s.reservations.Release(ctx, id, nil)
}

// ConfirmAllForOrder confirms every held reservation of a paid order. The
// handler is idempotent: reservations that already reached a terminal state
// are skipped, so redelivering the same order-paid message changes nothing.
func (s *ReservationService) ConfirmAllForOrder(ctx context.Context, orderID string) error {
	reservations, err := s.reservations.ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to list reservations: %w", err)
	}

	for _, res := range reservations {
		if res.Status != models.ReservationHeld {
			continue
		}

		msg, err := confirmedMessage(&res)
		if err != nil {
			return err
		}

		if _, err := s.reservations.Confirm(ctx, res.ID, msg); err != nil {
			if errors.Is(err, apperrors.ErrAlreadyConfirmed) || errors.Is(err, apperrors.ErrAlreadyReleased) {
				logger.WithContext(ctx).Warn("Skipping terminal reservation on confirm",
					"reservation_id", res.ID, "order_id", orderID, "error", err)
				continue
			}
			return err
		}
	}

	return nil
}

// ReleaseAllForOrder releases every held reservation of a failed or canceled
// order. Idempotent under redelivery for the same reason as confirm.
func (s *ReservationService) ReleaseAllForOrder(ctx context.Context, orderID string) error {
	reservations, err := s.reservations.ListByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to list reservations: %w", err)
	}

	for _, res := range reservations {
		if res.Status != models.ReservationHeld {
			continue
		}

		if _, err := s.reservations.Release(ctx, res.ID, nil); err != nil {
			if errors.Is(err, apperrors.ErrAlreadyConfirmed) || errors.Is(err, apperrors.ErrAlreadyReleased) {
				logger.WithContext(ctx).Warn("Skipping terminal reservation on release",
					"reservation_id", res.ID, "order_id", orderID, "error", err)
				continue
			}
			return err
		}
	}

	return nil
}

func (s *ReservationService) ListByOrder(ctx context.Context, orderID string) ([]models.Reservation, error) {
	return s.reservations.ListByOrder(ctx, orderID)
}

func confirmedMessage(res *models.Reservation) (*models.OutboxMessage, error) {
	return models.NewOutboxMessage(models.EventReservationConfirmed, models.ReservationConfirmedEvent{
		ReservationID: res.ID,
		OrderID:       res.OrderID,
		UserID:        res.UserID,
		EventID:       res.EventID,
		SessionID:     res.SessionID,
		TierID:        res.TierID,
		Quantity:      res.Quantity,
		Timestamp:     time.Now(),
	})
}
