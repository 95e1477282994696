package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookstore/services/rental/internal/db"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	exchangeName = "bookstore.events"
	exchangeType = "topic"

	// Event types
	EventTypeRentalOpened  = "rental.opened"
	EventTypeRentalClosed  = "rental.closed"
	EventTypeRentalOverdue = "rental.overdue"

	eventVersion = "1.0.0"

	// Retry configuration
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
	confirmTimeout = 5 * time.Second
)

type correlationKey struct{}

// WithCorrelationID returns a context carrying id, copied onto every event published with it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation id stored in ctx, if any.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Publisher handles event publishing to RabbitMQ
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zap.Logger
}

// Event represents a domain event
type Event struct {
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	EventVersion  string                 `json:"event_version"`
	Timestamp     string                 `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

// NewPublisher creates a new event publisher
func NewPublisher(url string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	if err := channel.ExchangeDeclare(
		exchangeName,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Enable publisher confirms for reliability
	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	log.Info("Connected to RabbitMQ", zap.String("exchange", exchangeName))

	return &Publisher{
		conn:    conn,
		channel: channel,
		log:     log,
	}, nil
}

// RentalOpened implements rental.Notifier.
func (p *Publisher) RentalOpened(ctx context.Context, rental *db.Rental) error {
	return p.publishWithRetry(ctx, EventTypeRentalOpened, rentalOpenedEvent(ctx, rental))
}

// RentalClosed implements rental.Notifier.
func (p *Publisher) RentalClosed(ctx context.Context, rental *db.Rental) error {
	return p.publishWithRetry(ctx, EventTypeRentalClosed, rentalClosedEvent(ctx, rental))
}

// RentalOverdue implements rental.OverdueNotifier.
func (p *Publisher) RentalOverdue(ctx context.Context, rental *db.Rental, daysOverdue int) error {
	return p.publishWithRetry(ctx, EventTypeRentalOverdue, rentalOverdueEvent(ctx, rental, daysOverdue))
}

func newEvent(ctx context.Context, eventType string, payload map[string]interface{}) Event {
	return Event{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: CorrelationID(ctx),
		Payload:       payload,
	}
}

func rentalPayload(rental *db.Rental) map[string]interface{} {
	return map[string]interface{}{
		"rental_id": rental.ID,
		"book_id":   rental.BookID,
		"member_id": rental.MemberID,
		"status":    rental.Status.String(),
		"opened_at": rental.OpenedAt.Format(time.DateOnly),
		"due_at":    rental.DueAt.Format(time.DateOnly),
	}
}

func rentalOpenedEvent(ctx context.Context, rental *db.Rental) Event {
	payload := rentalPayload(rental)
	if rental.RequestID != nil {
		payload["request_id"] = *rental.RequestID
	}
	return newEvent(ctx, EventTypeRentalOpened, payload)
}

func rentalClosedEvent(ctx context.Context, rental *db.Rental) Event {
	payload := rentalPayload(rental)
	if rental.ClosedAt != nil {
		payload["closed_at"] = rental.ClosedAt.UTC().Format(time.RFC3339)
	}
	if rental.InspectionNotes != "" {
		payload["inspection_notes"] = rental.InspectionNotes
	}
	return newEvent(ctx, EventTypeRentalClosed, payload)
}

func rentalOverdueEvent(ctx context.Context, rental *db.Rental, daysOverdue int) Event {
	payload := rentalPayload(rental)
	payload["days_overdue"] = daysOverdue
	return newEvent(ctx, EventTypeRentalOverdue, payload)
}

func encodeEvent(event Event) ([]byte, error) {
	return jsoniter.ConfigFastest.Marshal(event)
}

// publishWithRetry publishes an event with exponential backoff retry
func (p *Publisher) publishWithRetry(ctx context.Context, routingKey string, event Event) error {
	body, err := encodeEvent(event)
	if err != nil {
		p.log.Error("Failed to marshal event", zap.Error(err))
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
		}

		lastErr = p.publishOnce(ctx, routingKey, event, body)
		if lastErr == nil {
			p.log.Info("Event published successfully",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
				zap.String("routing_key", routingKey),
			)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		p.log.Warn("Failed to publish event, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	p.log.Error("Failed to publish event after retries",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", maxRetries),
		zap.Error(lastErr),
	)
	return fmt.Errorf("failed to publish event after %d attempts: %w", maxRetries, lastErr)
}

// publishOnce sends one message and waits for the broker's confirmation of that
// message's delivery tag.
func (p *Publisher) publishOnce(ctx context.Context, routingKey string, event Event, body []byte) error {
	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		exchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now(),
			MessageId:     event.EventID,
			CorrelationId: event.CorrelationID,
			Body:          body,
			Headers: amqp.Table{
				"event_type":    event.EventType,
				"event_version": event.EventVersion,
			},
		},
	)
	if err != nil {
		return err
	}
	if confirm == nil {
		return errors.New("publisher confirms not enabled")
	}
	return awaitConfirm(ctx, confirm, confirmTimeout)
}

// confirmation is the broker's answer to one published message.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// awaitConfirm waits up to timeout for conf. A confirmation arriving after the
// timeout belongs to its own message and is never read by a later publish.
func awaitConfirm(ctx context.Context, conf confirmation, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	acked, err := conf.WaitContext(waitCtx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("confirmation timeout: %w", err)
	}
	if !acked {
		return errors.New("event not acknowledged")
	}
	return nil
}

// IsHealthy checks if the publisher connection is healthy
func (p *Publisher) IsHealthy() bool {
	return p != nil && p.conn != nil && !p.conn.IsClosed()
}

// Close closes the publisher connection
func (p *Publisher) Close() error {
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.log.Error("Failed to close channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			p.log.Error("Failed to close connection", zap.Error(err))
			return err
		}
	}
	p.log.Info("Publisher closed")
	return nil
}
