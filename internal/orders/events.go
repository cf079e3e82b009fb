package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status.changed"
)

// EventPublisher publishes order lifecycle events for notification and reporting consumers.
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event Event) error
}

// Event describes one committed change of an order.
type Event struct {
	Type           string        `json:"type"`
	OrderID        string        `json:"order_id"`
	OrderNumber    string        `json:"order_number"`
	CustomerID     string        `json:"customer_id"`
	PreviousStatus Status        `json:"previous_status,omitempty"`
	CurrentStatus  Status        `json:"current_status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	Reason         string        `json:"reason,omitempty"`
	Version        int64         `json:"version"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// QueuePublisher sends events to SQS as JSON messages.
type QueuePublisher struct {
	publisher *aws.Publisher
}

func NewQueuePublisher(publisher *aws.Publisher) *QueuePublisher {
	return &QueuePublisher{publisher: publisher}
}

func (q *QueuePublisher) PublishOrderEvent(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	return q.publisher.Send(ctx, string(body), map[string]string{
		"event_type": event.Type,
		"order_id":   event.OrderID,
		"status":     string(event.CurrentStatus),
	})
}
