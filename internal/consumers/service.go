package consumers

import (
	"context"
	"log/slog"

	"encore/internal/config"
	"encore/internal/database"
	"encore/internal/external"
	"encore/internal/messaging"
	"encore/internal/models"
	"encore/internal/repository"
	"encore/internal/search"
	"encore/internal/service"
)

type ConsumerService struct {
	db       *database.DB
	nats     *messaging.NATSClient
	repos    *repository.Repositories
	services *service.Services
	handlers *Handlers
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		return nil, err
	}

	repos := repository.NewRepositories(db)

	catalogClient := external.NewCatalogClient(cfg.Catalog)
	providerClient := external.NewProviderClient(cfg.Provider)
	emailClient := external.NewEmailClient(cfg.Email)

	tickets, err := search.NewTicketIndex(cfg.Elasticsearch)
	if err != nil {
		return nil, err
	}

	services := service.NewServices(repos, catalogClient, providerClient)
	handlers := NewHandlers(services, emailClient, tickets)

	return &ConsumerService{
		db:       db,
		nats:     natsClient,
		repos:    repos,
		services: services,
		handlers: handlers,
	}, nil
}

// NATS returns the underlying broker client so the worker binary can share
// the connection with the outbox dispatcher.
func (cs *ConsumerService) NATS() *messaging.NATSClient {
	return cs.nats
}

// Repos exposes the repositories for the dispatcher and background jobs that
// run inside the same worker process.
func (cs *ConsumerService) Repos() *repository.Repositories {
	return cs.repos
}

// Services exposes the domain services for background jobs.
func (cs *ConsumerService) Services() *service.Services {
	return cs.services
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	const queue = "fulfillment"

	if _, err := cs.nats.SubscribeQueue(models.EventOrderCreated, queue, cs.handlers.HandleOrderCreated); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventPaymentCaptured, queue, cs.handlers.HandlePaymentCaptured); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventPaymentFailed, queue, cs.handlers.HandlePaymentFailed); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventPaymentCanceled, queue, cs.handlers.HandlePaymentCanceled); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventOrderPaid, queue, cs.handlers.HandleOrderPaid); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventOrderPaymentFailed, queue, cs.handlers.HandleOrderPaymentFailed); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventOrderCanceled, queue, cs.handlers.HandleOrderCanceled); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventReservationConfirmed, queue, cs.handlers.HandleReservationConfirmed); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventRefundDecisionRecorded, queue, cs.handlers.HandleRefundDecision); err != nil {
		return err
	}
	if _, err := cs.nats.SubscribeQueue(models.EventPaymentRefunded, queue, cs.handlers.HandlePaymentRefunded); err != nil {
		return err
	}

	slog.Info("All consumers started successfully")
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
