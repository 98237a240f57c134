package api

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"encore/internal/cache"
	"encore/internal/config"
	"encore/internal/database"
	"encore/internal/external"
	"encore/internal/handlers"
	"encore/internal/middleware"
	"encore/internal/repository"
	"encore/internal/search"
	"encore/internal/service"
)

// Server is the HTTP API process. State changes flow through the services
// and their repositories; events reach the broker only through the outbox
// dispatcher in the worker process, so the API holds no broker connection.
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	redis    *cache.Client
	services *service.Services
	repos    *repository.Repositories
}

func NewServer(cfg *config.Config) *Server {
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		// The cache is display-path only; run without it.
		log.Printf("Redis unavailable, running without stock cache: %v", err)
		redisClient = nil
	}

	tickets, err := search.NewTicketIndex(cfg.Elasticsearch)
	if err != nil {
		log.Fatalf("Failed to connect to Elasticsearch: %v", err)
	}

	catalogClient := external.NewCatalogClient(cfg.Catalog)
	providerClient := external.NewProviderClient(cfg.Provider)

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, catalogClient, providerClient)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())

	server := &Server{
		router:   router,
		config:   cfg,
		db:       db,
		redis:    redisClient,
		services: services,
		repos:    repos,
	}

	server.setupRoutes(tickets)

	return server
}

func (s *Server) setupRoutes(tickets *search.TicketIndex) {
	h := handlers.NewHandlers(s.services, s.redis, tickets)

	api := s.router.Group("/api")
	{
		orders := api.Group("/orders")
		{
			orders.POST("", h.CreateOrder)
			orders.GET("", h.ListOrders)
			orders.GET("/:id", h.GetOrder)
			orders.PATCH("/cancel", h.CancelOrder)
		}

		payments := api.Group("/payments")
		{
			payments.POST("/process", h.ProcessPayment)
			payments.POST("/capture", h.CapturePayment)
			payments.PATCH("/cancel", h.CancelPayment)
			payments.GET("/:orderId", h.GetPaymentByOrder)
		}

		api.POST("/refunds", h.RegisterRefund)

		stock := api.Group("/stock")
		{
			stock.POST("", h.CreateStock)
			stock.GET("", h.ListStock)
			stock.GET("/movements", h.ListStockMovements)
			stock.DELETE("/events/:eventId", h.DeleteEventStock)
		}

		api.GET("/tickets", h.ListTickets)
	}

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) healthCheck(c *gin.Context) {
	health := s.db.HealthCheck(c.Request.Context())
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   health.Status,
		"service":  "encore-api",
		"database": health,
	})
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter exposes the router for tests.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

func (s *Server) Cleanup() error {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Printf("Error closing Redis connection: %v", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Printf("Error closing database connection: %v", err)
			return err
		}
	}

	return nil
}
