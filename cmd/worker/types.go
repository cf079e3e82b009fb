package main

import (
	"time"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// WorkerMessage is a transition request delivered through SQS.
type WorkerMessage struct {
	// MessageID deduplicates redeliveries; the SQS message id is used when empty.
	MessageID          string     `json:"message_id,omitempty"`
	OrderID            string     `json:"order_id"`
	TargetStatus       string     `json:"target_status"`
	ExpectedStatus     string     `json:"expected_status,omitempty"`
	ExpectedVersion    int64      `json:"expected_version,omitempty"`
	Reason             string     `json:"reason,omitempty"`
	TrackingNumber     string     `json:"tracking_number,omitempty"`
	Courier            string     `json:"courier,omitempty"`
	ExpectedDeliveryAt *time.Time `json:"expected_delivery_at,omitempty"`
	CorrelationID      string     `json:"correlation_id,omitempty"`
}

func (m WorkerMessage) command() orders.TransitionCommand {
	return orders.TransitionCommand{
		OrderID:         m.OrderID,
		Target:          orders.Status(m.TargetStatus),
		ExpectedStatus:  orders.Status(m.ExpectedStatus),
		ExpectedVersion: m.ExpectedVersion,
		Context: orders.TransitionContext{
			Reason:             m.Reason,
			TrackingNumber:     m.TrackingNumber,
			Courier:            m.Courier,
			ExpectedDeliveryAt: m.ExpectedDeliveryAt,
		},
	}
}
