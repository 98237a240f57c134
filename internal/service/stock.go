package service

import (
	"context"
	"fmt"

	apperrors "encore/internal/errors"
	"encore/internal/models"
)

// StockStore is the persistence surface of the stock ledger. The postgres
// implementation serializes concurrent movements on the ledger row lock.
type StockStore interface {
	CreateLedger(ctx context.Context, key models.TierKey, initialQty int64) (*models.StockLedger, error)
	ApplyMovement(ctx context.Context, key models.TierKey, movementType string, quantity int64) (*models.StockLedger, error)
	GetByKey(ctx context.Context, key models.TierKey) (*models.StockLedger, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.StockLedger, error)
	ListMovements(ctx context.Context, key models.TierKey) ([]models.StockMovement, error)
	DeleteEventLedgers(ctx context.Context, eventID string) (int64, error)
}

type StockService struct {
	stock StockStore
}

func NewStockService(stock StockStore) *StockService {
	return &StockService{stock: stock}
}

// CreateLedger registers a sellable tier. Creating the same key twice fails
// with ErrLedgerExists, which makes provisioning retries safe.
func (s *StockService) CreateLedger(ctx context.Context, req *models.CreateLedgerRequest) (*models.StockLedger, error) {
	if req.InitialQuantity < 0 {
		return nil, fmt.Errorf("%w: initial quantity must not be negative", apperrors.ErrInvalidMovement)
	}

	key := models.TierKey{EventID: req.EventID, SessionID: req.SessionID, TierID: req.TierID}
	return s.stock.CreateLedger(ctx, key, req.InitialQuantity)
}

// ApplyMovement adjusts the available quantity by one signed movement.
func (s *StockService) ApplyMovement(ctx context.Context, key models.TierKey, movementType string, quantity int64) (*models.StockLedger, error) {
	if movementType != models.MovementIn && movementType != models.MovementOut {
		return nil, fmt.Errorf("%w: unknown movement type %q", apperrors.ErrInvalidMovement, movementType)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", apperrors.ErrInvalidMovement)
	}

	return s.stock.ApplyMovement(ctx, key, movementType, quantity)
}

func (s *StockService) Get(ctx context.Context, key models.TierKey) (*models.StockLedger, error) {
	ledger, err := s.stock.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrStockNotFound, key)
	}
	return ledger, nil
}

func (s *StockService) List(ctx context.Context, eventID string) ([]models.StockResponseItem, error) {
	ledgers, err := s.stock.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledgers: %w", err)
	}

	result := make([]models.StockResponseItem, len(ledgers))
	for i, ledger := range ledgers {
		result[i] = models.StockResponseItem{
			EventID:      ledger.EventID,
			SessionID:    ledger.SessionID,
			TierID:       ledger.TierID,
			AvailableQty: ledger.AvailableQty,
		}
	}

	return result, nil
}

func (s *StockService) Movements(ctx context.Context, key models.TierKey) ([]models.StockMovement, error) {
	ledger, err := s.stock.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger: %w", err)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrStockNotFound, key)
	}

	return s.stock.ListMovements(ctx, key)
}

// DeleteEventLedgers tears down all stock for an event. Not part of the
// saga; reservations keep their denormalized tier keys for audit.
func (s *StockService) DeleteEventLedgers(ctx context.Context, eventID string) (int64, error) {
	return s.stock.DeleteEventLedgers(ctx, eventID)
}
