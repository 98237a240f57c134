package repository

import (
	"context"
	"database/sql"

	"encore/internal/database"
	"encore/internal/models"
)

type OutboxRepository struct {
	db *database.DB
}

func NewOutboxRepository(db *database.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// insertOutboxTx writes the message inside the caller's transaction so the
// state change and its announcement commit or roll back together.
func insertOutboxTx(ctx context.Context, tx *sql.Tx, msg *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (subject, payload, status)
		VALUES ($1, $2, 'PENDING')
		RETURNING id, created_at`

	return tx.QueryRowContext(ctx, query, msg.Subject, msg.Payload).Scan(&msg.ID, &msg.CreatedAt)
}

// Enqueue writes a standalone message outside any aggregate transaction.
// Used for announcements that are not tied to a row update, like a recorded
// refund decision.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg *models.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (subject, payload, status)
		VALUES ($1, $2, 'PENDING')
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query, msg.Subject, msg.Payload).Scan(&msg.ID, &msg.CreatedAt)
}

// FetchPending returns the oldest undispatched messages in insertion order.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]models.OutboxMessage, error) {
	var messages []models.OutboxMessage
	query := `
		SELECT id, subject, payload, status, attempts, created_at, sent_at
		FROM outbox_messages
		WHERE status = 'PENDING'
		ORDER BY id
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.OutboxMessage
		err := rows.Scan(
			&msg.ID,
			&msg.Subject,
			&msg.Payload,
			&msg.Status,
			&msg.Attempts,
			&msg.CreatedAt,
			&msg.SentAt,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	query := `
		UPDATE outbox_messages
		SET status = 'SENT', attempts = attempts + 1, sent_at = NOW()
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// RecordFailure bumps the attempt counter and parks the message as FAILED
// once maxAttempts is reached, so one poisoned row cannot stall dispatch.
// Returns true when the message was parked.
func (r *OutboxRepository) RecordFailure(ctx context.Context, id int64, maxAttempts int) (bool, error) {
	var status string
	query := `
		UPDATE outbox_messages
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= $2 THEN 'FAILED' ELSE 'PENDING' END
		WHERE id = $1
		RETURNING status`

	if err := r.db.QueryRowContext(ctx, query, id, maxAttempts).Scan(&status); err != nil {
		return false, err
	}

	return status == models.OutboxFailed, nil
}
