package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookstore/services/rental/internal/analytics"
	"github.com/bookstore/services/rental/internal/config"
	"github.com/bookstore/services/rental/internal/db"
	"github.com/bookstore/services/rental/internal/events"
	grpcserver "github.com/bookstore/services/rental/internal/grpc"
	"github.com/bookstore/services/rental/internal/httpapi"
	"github.com/bookstore/services/rental/internal/metrics"
	"github.com/bookstore/services/rental/internal/rental"
	"github.com/bookstore/services/rental/internal/repo"
	"github.com/bookstore/services/rental/internal/security/password"
	"github.com/bookstore/services/rental/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log := logger.NewLogger(cfg.ServiceName, cfg.LogLevel)
	defer log.Sync()

	log.Info("Rental service starting")

	// Connect to database
	log.Info("Connecting to database...")
	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	// Run migrations
	log.Info("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	store := repo.NewStore(database, password.DefaultConfig(), log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	observer := metrics.New(registry)

	roles := make([]db.Role, 0, len(cfg.EligibleRoles))
	for _, name := range cfg.EligibleRoles {
		role := db.Role(name)
		if !role.Valid() {
			log.Fatal("Unknown eligible role", zap.String("role", name))
		}
		roles = append(roles, role)
	}

	opts := []rental.Option{
		rental.WithPolicy(rental.NewRolePolicy(roles...)),
		rental.WithObserver(observer),
		rental.WithRetry(cfg.TxMaxAttempts, 20*time.Millisecond),
	}

	// Events are optional; without a broker the engine runs silently.
	var (
		publisher *events.Publisher
		broker    grpcserver.BrokerStatus
		overdueTo rental.OverdueNotifier
	)
	if cfg.RabbitMQURL != "" {
		log.Info("Connecting to RabbitMQ")
		publisher, err = events.NewPublisher(cfg.RabbitMQURL, log)
		if err != nil {
			log.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer publisher.Close()

		broker = publisher
		overdueTo = publisher
		opts = append(opts, rental.WithNotifier(publisher))
	} else {
		log.Warn("RABBITMQ_URL not set, rental events disabled")
	}

	engine := rental.NewEngine(store, store.Directory, store.Ledger, log, opts...)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.OverdueSweepInterval > 0 {
		sweeper := rental.NewSweeper(engine, overdueTo, cfg.OverdueSweepInterval, log)
		go sweeper.Run(ctx)
	}

	healthServer := grpcserver.NewHealthServer(database, broker, log)

	// Start gRPC server
	grpcServer := grpcserver.NewServer(healthServer, log)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		log.Fatal("Failed to listen on gRPC port", zap.Error(err))
	}

	go func() {
		log.Info("Starting gRPC server", zap.String("address", grpcListener.Addr().String()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	// Start HTTP API
	handler := httpapi.NewHandler(httpapi.Deps{
		Engine:    engine,
		Catalog:   store.Catalog,
		Directory: store.Directory,
		Ledger:    store.Ledger,
		Analytics: analytics.NewReader(database, log),
		Health:    healthServer,
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, cfg.LoanPeriod(), log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Stop gRPC server
	grpcServer.GracefulStop()

	// Let queued rental events reach the broker before the deferred publisher.Close
	if err := engine.Drain(shutdownCtx); err != nil {
		log.Warn("Rental events still pending at shutdown", zap.Error(err))
	}

	log.Info("Server stopped")
}
