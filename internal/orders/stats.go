package orders

import (
	"iter"

	"github.com/shopspring/decimal"
)

// Stats is an on-demand aggregation of orders in a scope.
type Stats struct {
	TotalOrders      int             `json:"total_orders"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	PaidAmount       decimal.Decimal `json:"paid_amount"`
	PendingOrders    int             `json:"pending_orders"`
	ConfirmedOrders  int             `json:"confirmed_orders"`
	ProcessingOrders int             `json:"processing_orders"`
	ShippedOrders    int             `json:"shipped_orders"`
	DeliveredOrders  int             `json:"delivered_orders"`
	CancelledOrders  int             `json:"cancelled_orders"`
	RefundedOrders   int             `json:"refunded_orders"`
}

// CountFor returns the bucket for status.
func (s Stats) CountFor(status Status) int {
	switch status {
	case StatusPending:
		return s.PendingOrders
	case StatusConfirmed:
		return s.ConfirmedOrders
	case StatusProcessing:
		return s.ProcessingOrders
	case StatusShipped:
		return s.ShippedOrders
	case StatusDelivered:
		return s.DeliveredOrders
	case StatusCancelled:
		return s.CancelledOrders
	case StatusRefunded:
		return s.RefundedOrders
	}
	return 0
}

// Add folds one order into the stats.
func (s *Stats) Add(o Order) {
	s.TotalOrders++
	s.TotalAmount = s.TotalAmount.Add(o.TotalAmount)
	if o.PaymentStatus == PaymentPaid {
		s.PaidAmount = s.PaidAmount.Add(o.TotalAmount)
	}
	switch o.Status {
	case StatusPending:
		s.PendingOrders++
	case StatusConfirmed:
		s.ConfirmedOrders++
	case StatusProcessing:
		s.ProcessingOrders++
	case StatusShipped:
		s.ShippedOrders++
	case StatusDelivered:
		s.DeliveredOrders++
	case StatusCancelled:
		s.CancelledOrders++
	case StatusRefunded:
		s.RefundedOrders++
	}
}

// Rollup aggregates every order yielded by seq. An empty sequence yields zero stats.
func Rollup(seq iter.Seq2[Order, error]) (Stats, error) {
	stats := Stats{TotalAmount: decimal.Zero, PaidAmount: decimal.Zero}
	for o, err := range seq {
		if err != nil {
			return Stats{}, err
		}
		stats.Add(o)
	}
	return stats, nil
}
