package orders

import (
	"slices"
	"strings"
	"time"
)

// transitionTable lists the permitted next statuses for every status.
var transitionTable = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {StatusRefunded},
	StatusCancelled:  {StatusRefunded},
	StatusRefunded:   {},
}

// AllowedNext returns the statuses reachable from current in one step.
func AllowedNext(current Status) []Status {
	return slices.Clone(transitionTable[current])
}

// CanTransition reports whether from -> to is an edge of the transition table.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitionTable[from], to)
}

// terminal reports whether s ends the fulfillment flow.
func (s Status) terminal() bool {
	return s == StatusDelivered || s == StatusCancelled || s == StatusRefunded
}

// TransitionContext carries the data some targets require.
type TransitionContext struct {
	Reason             string     `json:"reason,omitempty"`
	TrackingNumber     string     `json:"tracking_number,omitempty"`
	Courier            string     `json:"courier,omitempty"`
	ExpectedDeliveryAt *time.Time `json:"expected_delivery_at,omitempty"`
}

// Policy holds the configurable transition rules.
type Policy struct {
	// ShippingRequiresTracking rejects shipped transitions without a tracking number.
	ShippingRequiresTracking bool
}

// DefaultPolicy is the strict policy.
func DefaultPolicy() Policy {
	return Policy{ShippingRequiresTracking: true}
}

// applyTransition moves order to target and applies the target's side effects.
// It never touches the store; the caller persists the mutated order in one write.
// A request for the status the order already holds is reported as noop.
func applyTransition(order *Order, target Status, tc TransitionContext, policy Policy, now time.Time) (noop bool, err error) {
	const op = "transition"

	if !target.Valid() {
		return false, newError(KindInvalidInput, op, "unknown status %q", target)
	}
	if order.Status == target {
		return true, nil
	}

	// Past fulfillment the edge decides alone; only refunded is ever reachable.
	if order.Status.terminal() && !CanTransition(order.Status, target) {
		return false, newError(KindInvalidTransition, op, "cannot move a %s order to %s", order.Status, target)
	}

	tc.Reason = strings.TrimSpace(tc.Reason)
	tc.TrackingNumber = strings.TrimSpace(tc.TrackingNumber)
	tc.Courier = strings.TrimSpace(tc.Courier)

	switch target {
	case StatusCancelled:
		if tc.Reason == "" {
			return false, newError(KindMissingContext, op, "a cancellation reason is required")
		}
	case StatusShipped:
		if policy.ShippingRequiresTracking && tc.TrackingNumber == "" {
			return false, newError(KindMissingContext, op, "a tracking number is required to ship an order")
		}
	}

	if !CanTransition(order.Status, target) {
		return false, newError(KindInvalidTransition, op, "cannot move a %s order to %s", order.Status, target)
	}
	if order.Status == StatusCancelled && target == StatusRefunded && order.PaymentStatus != PaymentPaid {
		return false, newError(KindInvalidTransition, op, "cannot refund a cancelled order whose payment was never captured")
	}

	switch target {
	case StatusShipped:
		order.Shipment.TrackingNumber = tc.TrackingNumber
		order.Shipment.Courier = tc.Courier
		if tc.ExpectedDeliveryAt != nil {
			order.Shipment.ExpectedDeliveryAt = cloneTime(tc.ExpectedDeliveryAt)
		}
	case StatusDelivered:
		order.DeliveredAt = &now
		if order.PaymentMethod == PaymentCashOnDelivery && order.PaymentStatus == PaymentPending {
			order.PaymentStatus = PaymentPaid
		}
	case StatusCancelled:
		order.CancelledAt = &now
		order.CancelledReason = tc.Reason
		if order.PaymentStatus != PaymentPaid {
			order.PaymentStatus = PaymentCancelled
		}
	case StatusRefunded:
		order.PaymentStatus = PaymentRefunded
	}

	order.Status = target
	order.UpdatedAt = now
	return false, nil
}
