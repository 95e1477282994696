package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

type fakePinger struct{ err error }

func (p fakePinger) Ping() error { return p.err }

type fakeBroker struct{ healthy bool }

func (b fakeBroker) IsHealthy() bool { return b.healthy }

func setupTestServer(t *testing.T, health *HealthServer, log *zap.Logger) grpc_health_v1.HealthClient {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	server := NewServer(health, log)
	go func() {
		_ = server.Serve(lis)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return grpc_health_v1.NewHealthClient(conn)
}

func TestHealthCheck(t *testing.T) {
	log := zap.NewNop()

	cases := []struct {
		name   string
		db     Pinger
		broker BrokerStatus
		want   grpc_health_v1.HealthCheckResponse_ServingStatus
	}{
		{"serving without broker", fakePinger{}, nil, grpc_health_v1.HealthCheckResponse_SERVING},
		{"serving with broker", fakePinger{}, fakeBroker{healthy: true}, grpc_health_v1.HealthCheckResponse_SERVING},
		{"database down", fakePinger{err: errors.New("dial tcp: refused")}, nil, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
		{"broker down", fakePinger{}, fakeBroker{}, grpc_health_v1.HealthCheckResponse_NOT_SERVING},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := setupTestServer(t, NewHealthServer(tc.db, tc.broker, log), log)

			resp, err := client.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.GetStatus())
		})
	}
}

func TestHealthWatch(t *testing.T) {
	log := zap.NewNop()
	client := setupTestServer(t, NewHealthServer(fakePinger{}, nil, log), log)

	stream, err := client.Watch(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)

	resp, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestProbe(t *testing.T) {
	log := zap.NewNop()

	assert.NoError(t, NewHealthServer(fakePinger{}, nil, log).Probe())
	assert.ErrorIs(t, NewHealthServer(fakePinger{err: errors.New("x")}, nil, log).Probe(), errDatabaseDown)
	assert.ErrorIs(t, NewHealthServer(fakePinger{}, fakeBroker{}, log).Probe(), errBrokerDown)
}

func TestLoggingInterceptor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	interceptor := LoggingInterceptor(zap.New(core))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	_, err = interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.Unavailable, "down")
	})
	require.Error(t, err)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "gRPC request completed", entries[0].Message)
	assert.Equal(t, "gRPC request failed", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, info.FullMethod, entries[1].ContextMap()["method"])
}
