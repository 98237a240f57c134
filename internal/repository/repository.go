package repository

import (
	"encore/internal/database"
)

type Repositories struct {
	Stock        *StockRepository
	Reservations *ReservationRepository
	Orders       *OrderRepository
	Payments     *PaymentRepository
	Outbox       *OutboxRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Stock:        NewStockRepository(db),
		Reservations: NewReservationRepository(db),
		Orders:       NewOrderRepository(db),
		Payments:     NewPaymentRepository(db),
		Outbox:       NewOutboxRepository(db),
	}
}
