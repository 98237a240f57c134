package repository

import (
	"context"
	"database/sql"
	"fmt"

	"encore/internal/database"
	apperrors "encore/internal/errors"
	"encore/internal/models"
)

type StockRepository struct {
	db *database.DB
}

func NewStockRepository(db *database.DB) *StockRepository {
	return &StockRepository{db: db}
}

// CreateLedger inserts a ledger row for the tier key, with an initial IN
// movement when the starting quantity is positive. A second create for the
// same key fails with ErrLedgerExists.
func (r *StockRepository) CreateLedger(ctx context.Context, key models.TierKey, initialQty int64) (*models.StockLedger, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger := &models.StockLedger{}
	query := `
		INSERT INTO stock_ledgers (event_id, session_id, tier_id, available_qty)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, session_id, tier_id) DO NOTHING
		RETURNING event_id, session_id, tier_id, available_qty, created_at, updated_at`

	err = tx.QueryRowContext(ctx, query, key.EventID, key.SessionID, key.TierID, initialQty).Scan(
		&ledger.EventID,
		&ledger.SessionID,
		&ledger.TierID,
		&ledger.AvailableQty,
		&ledger.CreatedAt,
		&ledger.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrLedgerExists
	}
	if err != nil {
		return nil, err
	}

	if initialQty > 0 {
		insertQuery := `
			INSERT INTO stock_movements (event_id, session_id, tier_id, movement_type, quantity)
			VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.ExecContext(ctx, insertQuery, key.EventID, key.SessionID, key.TierID, models.MovementIn, initialQty); err != nil {
			return nil, err
		}
	}

	return ledger, tx.Commit()
}

// ApplyMovement runs one read-modify-write against the ledger row under its
// row lock. OUT movements that would drive the quantity negative fail with
// ErrInsufficientStock and commit nothing.
func (r *StockRepository) ApplyMovement(ctx context.Context, key models.TierKey, movementType string, quantity int64) (*models.StockLedger, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ledger, err := applyMovementTx(ctx, tx, key, movementType, quantity)
	if err != nil {
		return nil, err
	}

	return ledger, tx.Commit()
}

// applyMovementTx is the single synchronization point protecting the
// non-negative invariant: the FOR UPDATE lock serializes concurrent holds
// against the same tier. Shared by standalone movements, holds and releases.
func applyMovementTx(ctx context.Context, tx *sql.Tx, key models.TierKey, movementType string, quantity int64) (*models.StockLedger, error) {
	var available int64
	lockQuery := `
		SELECT available_qty FROM stock_ledgers
		WHERE event_id = $1 AND session_id = $2 AND tier_id = $3
		FOR UPDATE`

	err := tx.QueryRowContext(ctx, lockQuery, key.EventID, key.SessionID, key.TierID).Scan(&available)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrStockNotFound
	}
	if err != nil {
		return nil, err
	}

	delta := quantity
	if movementType == models.MovementOut {
		if available-quantity < 0 {
			return nil, fmt.Errorf("%w: %d available, %d requested for %s",
				apperrors.ErrInsufficientStock, available, quantity, key)
		}
		delta = -quantity
	}

	ledger := &models.StockLedger{}
	updateQuery := `
		UPDATE stock_ledgers
		SET available_qty = available_qty + $1, updated_at = NOW()
		WHERE event_id = $2 AND session_id = $3 AND tier_id = $4
		RETURNING event_id, session_id, tier_id, available_qty, created_at, updated_at`

	err = tx.QueryRowContext(ctx, updateQuery, delta, key.EventID, key.SessionID, key.TierID).Scan(
		&ledger.EventID,
		&ledger.SessionID,
		&ledger.TierID,
		&ledger.AvailableQty,
		&ledger.CreatedAt,
		&ledger.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	insertQuery := `
		INSERT INTO stock_movements (event_id, session_id, tier_id, movement_type, quantity)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, insertQuery, key.EventID, key.SessionID, key.TierID, movementType, quantity); err != nil {
		return nil, err
	}

	return ledger, nil
}

func (r *StockRepository) GetByKey(ctx context.Context, key models.TierKey) (*models.StockLedger, error) {
	ledger := &models.StockLedger{}
	query := `
		SELECT event_id, session_id, tier_id, available_qty, created_at, updated_at
		FROM stock_ledgers
		WHERE event_id = $1 AND session_id = $2 AND tier_id = $3`

	err := r.db.QueryRowContext(ctx, query, key.EventID, key.SessionID, key.TierID).Scan(
		&ledger.EventID,
		&ledger.SessionID,
		&ledger.TierID,
		&ledger.AvailableQty,
		&ledger.CreatedAt,
		&ledger.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return ledger, err
}

func (r *StockRepository) ListByEvent(ctx context.Context, eventID string) ([]models.StockLedger, error) {
	var ledgers []models.StockLedger
	query := `
		SELECT event_id, session_id, tier_id, available_qty, created_at, updated_at
		FROM stock_ledgers
		WHERE event_id = $1
		ORDER BY session_id, tier_id`

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ledger models.StockLedger
		err := rows.Scan(
			&ledger.EventID,
			&ledger.SessionID,
			&ledger.TierID,
			&ledger.AvailableQty,
			&ledger.CreatedAt,
			&ledger.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		ledgers = append(ledgers, ledger)
	}

	return ledgers, rows.Err()
}

func (r *StockRepository) ListMovements(ctx context.Context, key models.TierKey) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	query := `
		SELECT id, event_id, session_id, tier_id, movement_type, quantity, created_at
		FROM stock_movements
		WHERE event_id = $1 AND session_id = $2 AND tier_id = $3
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, key.EventID, key.SessionID, key.TierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m models.StockMovement
		err := rows.Scan(
			&m.ID,
			&m.EventID,
			&m.SessionID,
			&m.TierID,
			&m.Type,
			&m.Quantity,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}

	return movements, rows.Err()
}

// DeleteEventLedgers bulk-removes every ledger row for an event. This is the
// event teardown path, not part of the saga; movement rows cascade.
func (r *StockRepository) DeleteEventLedgers(ctx context.Context, eventID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM stock_ledgers WHERE event_id = $1`, eventID)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, apperrors.ErrStockNotFound
	}

	return affected, nil
}
