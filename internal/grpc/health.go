package grpc

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is the database liveness check.
type Pinger interface {
	Ping() error
}

// BrokerStatus reports whether the event publisher is connected.
type BrokerStatus interface {
	IsHealthy() bool
}

var (
	errDatabaseDown = errors.New("database connection failed")
	errBrokerDown   = errors.New("rabbitmq connection failed")
)

// HealthServer implements the gRPC health checking protocol
type HealthServer struct {
	grpc_health_v1.UnimplementedHealthServer
	db     Pinger
	broker BrokerStatus
	log    *zap.Logger
}

// NewHealthServer creates a new health check server. broker is nil when events are disabled.
func NewHealthServer(database Pinger, broker BrokerStatus, log *zap.Logger) *HealthServer {
	return &HealthServer{
		db:     database,
		broker: broker,
		log:    log,
	}
}

// Probe checks every dependency and returns the first failure.
func (h *HealthServer) Probe() error {
	// Check database
	if err := h.db.Ping(); err != nil {
		h.log.Error("Database health check failed", zap.Error(err))
		return errDatabaseDown
	}

	// Check RabbitMQ
	if h.broker != nil && !h.broker.IsHealthy() {
		h.log.Error("RabbitMQ health check failed")
		return errBrokerDown
	}
	return nil
}

func (h *HealthServer) status() grpc_health_v1.HealthCheckResponse_ServingStatus {
	if h.Probe() != nil {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// Check implements the health check
func (h *HealthServer) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	return &grpc_health_v1.HealthCheckResponse{Status: h.status()}, nil
}

// Watch sends the current status once.
func (h *HealthServer) Watch(req *grpc_health_v1.HealthCheckRequest, server grpc_health_v1.Health_WatchServer) error {
	return server.Send(&grpc_health_v1.HealthCheckResponse{Status: h.status()})
}
