package repository

import (
	"context"
	"database/sql"
	"time"

	"encore/internal/database"
	"encore/internal/models"
)

type OrderRepository struct {
	db *database.DB
}

func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists the order, its line items, the inventory holds and the
// order.created outbox row in a single transaction. A failed hold rolls the
// whole creation back: no order, no reservation, no ledger change, and no
// event is ever published for it.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order, holds []*models.Reservation, msg *models.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	orderQuery := `
		INSERT INTO orders (id, user_id, status, total)
		VALUES ($1, $2, 'CREATED', $3)
		RETURNING created_at`
	if err := tx.QueryRowContext(ctx, orderQuery, order.ID, order.UserID, order.Total).Scan(&order.CreatedAt); err != nil {
		return err
	}
	order.Status = models.OrderCreated

	itemQuery := `
		INSERT INTO order_items (order_id, event_id, session_id, tier_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err := tx.QueryRowContext(ctx, itemQuery,
			item.OrderID,
			item.EventID,
			item.SessionID,
			item.TierID,
			item.Quantity,
			item.UnitPrice,
		).Scan(&item.ID)
		if err != nil {
			return err
		}
	}

	for _, hold := range holds {
		hold.OrderID = order.ID
		if _, err := applyMovementTx(ctx, tx, hold.Key(), models.MovementOut, hold.Quantity); err != nil {
			return err
		}
		if err := insertReservationTx(ctx, tx, hold); err != nil {
			return err
		}
	}

	if msg != nil {
		if err := insertOutboxTx(ctx, tx, msg); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	order := &models.Order{}
	query := `
		SELECT id, user_id, status, total, created_at, paid_at, canceled_at
		FROM orders
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&order.Total,
		&order.CreatedAt,
		&order.PaidAt,
		&order.CanceledAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	items, err := r.getItems(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *OrderRepository) getItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	query := `
		SELECT id, order_id, event_id, session_id, tier_id, quantity, unit_price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.EventID,
			&item.SessionID,
			&item.TierID,
			&item.Quantity,
			&item.UnitPrice,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	query := `
		SELECT id, user_id, status, total, created_at, paid_at, canceled_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.Status,
			&order.Total,
			&order.CreatedAt,
			&order.PaidAt,
			&order.CanceledAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}

// MarkPaid advances CREATED to PAYMENT_SUCCESS. The status predicate in the
// UPDATE is the idempotency guard: a duplicate or stale payment event matches
// zero rows and the outbox message is not written.
func (r *OrderRepository) MarkPaid(ctx context.Context, id string, msg *models.OutboxMessage) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'PAYMENT_SUCCESS', paid_at = NOW()
		WHERE id = $1 AND status = 'CREATED'`
	return r.guardedUpdate(ctx, query, id, msg)
}

// MarkPaymentFailed advances CREATED to PAYMENT_FAILED under the same guard.
func (r *OrderRepository) MarkPaymentFailed(ctx context.Context, id string, msg *models.OutboxMessage) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'PAYMENT_FAILED'
		WHERE id = $1 AND status = 'CREATED'`
	return r.guardedUpdate(ctx, query, id, msg)
}

// Cancel moves the order to CANCELED. Without force only CREATED orders
// qualify; force cancels any order that is not already CANCELED.
func (r *OrderRepository) Cancel(ctx context.Context, id string, force bool, msg *models.OutboxMessage) (bool, error) {
	query := `
		UPDATE orders
		SET status = 'CANCELED', canceled_at = NOW()
		WHERE id = $1 AND status = 'CREATED'`
	if force {
		query = `
			UPDATE orders
			SET status = 'CANCELED', canceled_at = NOW()
			WHERE id = $1 AND status <> 'CANCELED'`
	}
	return r.guardedUpdate(ctx, query, id, msg)
}

func (r *OrderRepository) guardedUpdate(ctx context.Context, query, id string, msg *models.OutboxMessage) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, id)
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

// GetExpired returns orders still waiting on payment past the cutoff. The
// hold-expiration job cancels them to free stranded inventory.
func (r *OrderRepository) GetExpired(ctx context.Context, before time.Time) ([]models.Order, error) {
	var orders []models.Order
	query := `
		SELECT id, user_id, status, total, created_at, paid_at, canceled_at
		FROM orders
		WHERE status = 'CREATED' AND created_at < $1
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.UserID,
			&order.Status,
			&order.Total,
			&order.CreatedAt,
			&order.PaidAt,
			&order.CanceledAt,
		)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	return orders, rows.Err()
}
