package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRental() *db.Rental {
	closedAt := time.Date(2024, 1, 10, 16, 30, 0, 0, time.UTC)
	requestID := "checkout-42"
	return &db.Rental{
		ID:              "4f7d2c1e-0000-4000-8000-000000000001",
		BookID:          "BOOK-001",
		MemberID:        "member-1",
		OpenedAt:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DueAt:           time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Status:          db.StatusReturned,
		RequestID:       &requestID,
		InspectionNotes: "coffee stain",
		ClosedAt:        &closedAt,
	}
}

func TestCorrelationID(t *testing.T) {
	assert.Empty(t, CorrelationID(context.Background()))

	ctx := WithCorrelationID(context.Background(), "corr-1")
	assert.Equal(t, "corr-1", CorrelationID(ctx))

	// Untyped keys do not collide with ours.
	ctx = context.WithValue(context.Background(), "correlation_id", "nope") //nolint:staticcheck
	assert.Empty(t, CorrelationID(ctx))
}

func TestRentalOpenedEvent(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	event := rentalOpenedEvent(ctx, testRental())

	assert.Equal(t, EventTypeRentalOpened, event.EventType)
	assert.Equal(t, "1.0.0", event.EventVersion)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "BOOK-001", event.Payload["book_id"])
	assert.Equal(t, "2024-01-01", event.Payload["opened_at"])
	assert.Equal(t, "2024-01-15", event.Payload["due_at"])
	assert.Equal(t, "checkout-42", event.Payload["request_id"])
	assert.NotContains(t, event.Payload, "closed_at")
}

func TestRentalClosedEvent(t *testing.T) {
	event := rentalClosedEvent(context.Background(), testRental())

	assert.Equal(t, EventTypeRentalClosed, event.EventType)
	assert.Empty(t, event.CorrelationID)
	assert.Equal(t, "Returned", event.Payload["status"])
	assert.Equal(t, "2024-01-10T16:30:00Z", event.Payload["closed_at"])
	assert.Equal(t, "coffee stain", event.Payload["inspection_notes"])
}

func TestRentalOverdueEventJSON(t *testing.T) {
	r := testRental()
	r.Status = db.StatusActive
	r.ClosedAt = nil

	body, err := encodeEvent(rentalOverdueEvent(context.Background(), r, 3))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, EventTypeRentalOverdue, decoded["event_type"])
	assert.NotContains(t, decoded, "correlation_id")

	payload := decoded["payload"].(map[string]interface{})
	assert.Equal(t, float64(3), payload["days_overdue"])
	assert.Equal(t, "Active", payload["status"])
}

func TestNilPublisherIsUnhealthy(t *testing.T) {
	var p *Publisher
	assert.False(t, p.IsHealthy())
}

// brokerConfirm answers WaitContext once ack is closed or after ctx ends.
type brokerConfirm struct {
	ack   chan struct{}
	acked bool
}

func (c *brokerConfirm) WaitContext(ctx context.Context) (bool, error) {
	select {
	case <-c.ack:
		return c.acked, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func settled(acked bool) *brokerConfirm {
	c := &brokerConfirm{ack: make(chan struct{}), acked: acked}
	close(c.ack)
	return c
}

func TestAwaitConfirm(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, awaitConfirm(ctx, settled(true), time.Second))
	assert.EqualError(t, awaitConfirm(ctx, settled(false), time.Second), "event not acknowledged")

	err := awaitConfirm(ctx, &brokerConfirm{ack: make(chan struct{})}, 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confirmation timeout")
}

func TestAwaitConfirmLateAckDoesNotLeakIntoNextPublish(t *testing.T) {
	ctx := context.Background()

	slow := &brokerConfirm{ack: make(chan struct{}), acked: true}
	require.Error(t, awaitConfirm(ctx, slow, 20*time.Millisecond))

	// The first message's ack arrives late; the next message is still judged by its own nack.
	close(slow.ack)
	assert.EqualError(t, awaitConfirm(ctx, settled(false), time.Second), "event not acknowledged")
}

func TestAwaitConfirmCallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, awaitConfirm(ctx, &brokerConfirm{ack: make(chan struct{})}, time.Second), context.Canceled)
}
