package repository

import (
	"context"
	"database/sql"

	"encore/internal/database"
	"encore/internal/models"
)

type PaymentRepository struct {
	db *database.DB
}

func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, user_id, amount, provider, provider_ref, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.UserID,
		payment.Amount,
		payment.Provider,
		payment.ProviderRef,
		payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByOrderID returns the payment for an order; at most one exists because
// order_id is unique.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return r.getOne(ctx, `WHERE order_id = $1`, orderID)
}

func (r *PaymentRepository) GetByProviderRef(ctx context.Context, providerRef string) (*models.Payment, error) {
	return r.getOne(ctx, `WHERE provider_ref = $1`, providerRef)
}

func (r *PaymentRepository) getOne(ctx context.Context, where string, arg any) (*models.Payment, error) {
	payment := &models.Payment{}
	query := `
		SELECT id, order_id, user_id, amount, provider, provider_ref, status, created_at, updated_at
		FROM payments ` + where

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.UserID,
		&payment.Amount,
		&payment.Provider,
		&payment.ProviderRef,
		&payment.Status,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return payment, err
}

// UpdateAmount refreshes the amount of a retried PENDING payment before the
// provider call is reattempted.
func (r *PaymentRepository) UpdateAmount(ctx context.Context, id string, amount int64) error {
	query := `UPDATE payments SET amount = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, amount, id)
	return err
}

// Transition performs a status-guarded update: the row only moves when its
// current status matches from, which makes duplicate provider callbacks
// harmless. The optional providerRef is stored and the optional outbox
// message commits atomically with the transition. Returns false when the
// guard matched nothing; the caller re-reads to produce a precise error.
func (r *PaymentRepository) Transition(ctx context.Context, id, from, to string, providerRef *string, msg *models.OutboxMessage) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	query := `
		UPDATE payments
		SET status = $1, provider_ref = COALESCE($2, provider_ref), updated_at = NOW()
		WHERE id = $3 AND status = $4`

	result, err := tx.ExecContext(ctx, query, to, providerRef, id, from)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if msg != nil {
		if err := insertOutboxTx(ctx, tx, msg); err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}
