package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createStockLedgersTable,
		createStockMovementsTable,
		createReservationsTable,
		createOrdersTable,
		createOrderItemsTable,
		createPaymentsTable,
		createOutboxTable,
		createOutboxPendingIndex,
		createReservationsOrderIndex,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createStockLedgersTable = `
CREATE TABLE IF NOT EXISTS stock_ledgers (
    event_id VARCHAR(64) NOT NULL,
    session_id VARCHAR(64) NOT NULL,
    tier_id VARCHAR(64) NOT NULL,
    available_qty BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    PRIMARY KEY (event_id, session_id, tier_id),
    CHECK (available_qty >= 0)
);`

const createStockMovementsTable = `
CREATE TABLE IF NOT EXISTS stock_movements (
    id SERIAL PRIMARY KEY,
    event_id VARCHAR(64) NOT NULL,
    session_id VARCHAR(64) NOT NULL,
    tier_id VARCHAR(64) NOT NULL,
    movement_type VARCHAR(3) NOT NULL,
    quantity BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),

    FOREIGN KEY (event_id, session_id, tier_id)
        REFERENCES stock_ledgers(event_id, session_id, tier_id) ON DELETE CASCADE,
    CHECK (movement_type IN ('IN', 'OUT')),
    CHECK (quantity > 0)
);`

const createReservationsTable = `
CREATE EXTENSION IF NOT EXISTS "uuid-ossp";
CREATE TABLE IF NOT EXISTS reservations (
    id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
    order_id UUID NOT NULL,
    user_id VARCHAR(64) NOT NULL,
    event_id VARCHAR(64) NOT NULL,
    session_id VARCHAR(64) NOT NULL,
    tier_id VARCHAR(64) NOT NULL,
    quantity BIGINT NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'HELD',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    confirmed_at TIMESTAMP,

    CHECK (status IN ('HELD', 'CONFIRMED', 'RELEASED')),
    CHECK (quantity > 0)
);`

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
    id UUID PRIMARY KEY,
    user_id VARCHAR(64) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'CREATED',
    total BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    paid_at TIMESTAMP,
    canceled_at TIMESTAMP,

    CHECK (status IN ('CREATED', 'PAYMENT_SUCCESS', 'PAYMENT_FAILED', 'CANCELED'))
);`

const createOrderItemsTable = `
CREATE TABLE IF NOT EXISTS order_items (
    id SERIAL PRIMARY KEY,
    order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    event_id VARCHAR(64) NOT NULL,
    session_id VARCHAR(64) NOT NULL,
    tier_id VARCHAR(64) NOT NULL,
    quantity BIGINT NOT NULL,
    unit_price BIGINT NOT NULL,

    CHECK (quantity > 0)
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY,
    order_id UUID NOT NULL UNIQUE,
    user_id VARCHAR(64) NOT NULL,
    amount BIGINT NOT NULL,
    provider VARCHAR(32) NOT NULL,
    provider_ref VARCHAR(255),
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW(),

    CHECK (status IN ('PENDING', 'CAPTURED', 'FAILED', 'CANCELED', 'REFUNDED'))
);`

const createOutboxTable = `
CREATE TABLE IF NOT EXISTS outbox_messages (
    id SERIAL PRIMARY KEY,
    subject VARCHAR(64) NOT NULL,
    payload JSONB NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    attempts INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    sent_at TIMESTAMP,

    CHECK (status IN ('PENDING', 'SENT', 'FAILED'))
);`

const createOutboxPendingIndex = `
CREATE INDEX IF NOT EXISTS outbox_pending_idx
ON outbox_messages (id) WHERE status = 'PENDING';`

const createReservationsOrderIndex = `
CREATE INDEX IF NOT EXISTS reservations_order_idx
ON reservations (order_id);`
