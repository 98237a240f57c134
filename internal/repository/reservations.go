package repository

import (
	"context"
	"database/sql"

	"encore/internal/database"
	apperrors "encore/internal/errors"
	"encore/internal/models"
)

type ReservationRepository struct {
	db *database.DB
}

func NewReservationRepository(db *database.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// Hold applies the OUT movement and persists the HELD row in one transaction,
// so a rejected movement leaves no reservation behind.
func (r *ReservationRepository) Hold(ctx context.Context, res *models.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := applyMovementTx(ctx, tx, res.Key(), models.MovementOut, res.Quantity); err != nil {
		return err
	}

	if err := insertReservationTx(ctx, tx, res); err != nil {
		return err
	}

	return tx.Commit()
}

func insertReservationTx(ctx context.Context, tx *sql.Tx, res *models.Reservation) error {
	query := `
		INSERT INTO reservations (order_id, user_id, event_id, session_id, tier_id, quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'HELD')
		RETURNING id, status, created_at`

	return tx.QueryRowContext(ctx, query,
		res.OrderID,
		res.UserID,
		res.EventID,
		res.SessionID,
		res.TierID,
		res.Quantity,
	).Scan(&res.ID, &res.Status, &res.CreatedAt)
}

// Confirm moves HELD to CONFIRMED. No inventory movement: the OUT already
// happened at hold time. The status guard runs under the row lock so a
// redelivered message cannot double-confirm, and a terminal row is never
// flipped. The optional outbox message commits with the transition.
func (r *ReservationRepository) Confirm(ctx context.Context, id string, msg *models.OutboxMessage) (*models.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := lockReservationTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case models.ReservationConfirmed:
		return nil, apperrors.ErrAlreadyConfirmed
	case models.ReservationReleased:
		return nil, apperrors.ErrAlreadyReleased
	}

	query := `
		UPDATE reservations
		SET status = 'CONFIRMED', confirmed_at = NOW()
		WHERE id = $1
		RETURNING status, confirmed_at`
	if err := tx.QueryRowContext(ctx, query, id).Scan(&res.Status, &res.ConfirmedAt); err != nil {
		return nil, err
	}

	if msg != nil {
		if err := insertOutboxTx(ctx, tx, msg); err != nil {
			return nil, err
		}
	}

	return res, tx.Commit()
}

// Release compensates the hold: an IN movement for the held quantity and the
// RELEASED status commit together. Terminal rows fail with their conflict
// error, they are never re-released or flipped.
func (r *ReservationRepository) Release(ctx context.Context, id string, msg *models.OutboxMessage) (*models.Reservation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := lockReservationTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case models.ReservationReleased:
		return nil, apperrors.ErrAlreadyReleased
	case models.ReservationConfirmed:
		return nil, apperrors.ErrAlreadyConfirmed
	}

	if _, err := applyMovementTx(ctx, tx, res.Key(), models.MovementIn, res.Quantity); err != nil {
		return nil, err
	}

	query := `UPDATE reservations SET status = 'RELEASED' WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return nil, err
	}
	res.Status = models.ReservationReleased

	if msg != nil {
		if err := insertOutboxTx(ctx, tx, msg); err != nil {
			return nil, err
		}
	}

	return res, tx.Commit()
}

func lockReservationTx(ctx context.Context, tx *sql.Tx, id string) (*models.Reservation, error) {
	res := &models.Reservation{}
	query := `
		SELECT id, order_id, user_id, event_id, session_id, tier_id, quantity, status, created_at, confirmed_at
		FROM reservations
		WHERE id = $1
		FOR UPDATE`

	err := tx.QueryRowContext(ctx, query, id).Scan(
		&res.ID,
		&res.OrderID,
		&res.UserID,
		&res.EventID,
		&res.SessionID,
		&res.TierID,
		&res.Quantity,
		&res.Status,
		&res.CreatedAt,
		&res.ConfirmedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrReservationNotFound
	}
	if err != nil {
		return nil, err
	}

	return res, nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id string) (*models.Reservation, error) {
	res := &models.Reservation{}
	query := `
		SELECT id, order_id, user_id, event_id, session_id, tier_id, quantity, status, created_at, confirmed_at
		FROM reservations
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&res.ID,
		&res.OrderID,
		&res.UserID,
		&res.EventID,
		&res.SessionID,
		&res.TierID,
		&res.Quantity,
		&res.Status,
		&res.CreatedAt,
		&res.ConfirmedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return res, err
}

func (r *ReservationRepository) ListByOrder(ctx context.Context, orderID string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	query := `
		SELECT id, order_id, user_id, event_id, session_id, tier_id, quantity, status, created_at, confirmed_at
		FROM reservations
		WHERE order_id = $1
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var res models.Reservation
		err := rows.Scan(
			&res.ID,
			&res.OrderID,
			&res.UserID,
			&res.EventID,
			&res.SessionID,
			&res.TierID,
			&res.Quantity,
			&res.Status,
			&res.CreatedAt,
			&res.ConfirmedAt,
		)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}

	return reservations, rows.Err()
}
