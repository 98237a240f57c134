package service

import (
	"encore/internal/external"
	"encore/internal/repository"
)

type Services struct {
	Stock        *StockService
	Reservations *ReservationService
	Orders       *OrderService
	Payments     *PaymentService
}

func NewServices(repos *repository.Repositories, catalog *external.CatalogClient, provider *external.ProviderClient) *Services {
	return &Services{
		Stock:        NewStockService(repos.Stock),
		Reservations: NewReservationService(repos.Reservations),
		Orders:       NewOrderService(repos.Orders, catalog),
		Payments:     NewPaymentService(repos.Payments, provider, repos.Outbox),
	}
}
