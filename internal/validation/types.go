package validation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Item represents a single requested order line.
type Item struct {
	ProductID  string `json:"product_id" validate:"required"`
	VariantID  string `json:"variant_id,omitempty"`
	Size       string `json:"size,omitempty"`
	Quantity   int    `json:"quantity" validate:"required,min=1"` // must be >= 1
	RentalDays int    `json:"rental_days,omitempty" validate:"gte=0"`
}

// Address is a postal address as sent by clients.
type Address struct {
	Name       string `json:"name,omitempty" validate:"max=200"`
	Phone      string `json:"phone,omitempty" validate:"max=32"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postal_code" validate:"required"`
	Country    string `json:"country" validate:"required"`
}

// CreateOrderRequest is the payload for POST /orders.
// Amounts are validated for precision only; sign rules belong to the engine.
type CreateOrderRequest struct {
	CustomerID      string          `json:"customer_id" validate:"required"`      // business id for customer
	Items           []Item          `json:"items" validate:"required,min=1,dive"` // at least one item
	ShippingAddress Address         `json:"shipping_address"`
	BillingAddress  *Address        `json:"billing_address,omitempty" validate:"omitempty"`
	ShippingCharge  decimal.Decimal `json:"shipping_charge" validate:"money"`
	Discount        decimal.Decimal `json:"discount" validate:"money"`
	Tax             decimal.Decimal `json:"tax" validate:"money"`
	PaymentMethod   string          `json:"payment_method,omitempty" validate:"omitempty,oneof=cash_on_delivery"`
	CustomerNote    string          `json:"customer_note,omitempty" validate:"max=1000"`
	AdminNote       string          `json:"admin_note,omitempty" validate:"max=2000"`
}

// TransitionRequest is the payload for POST /orders/:id/transitions.
type TransitionRequest struct {
	Status             string     `json:"status" validate:"required"`
	ExpectedStatus     string     `json:"expected_status,omitempty"`
	ExpectedVersion    int64      `json:"expected_version,omitempty" validate:"gte=0"`
	Reason             string     `json:"reason,omitempty" validate:"max=500"`
	TrackingNumber     string     `json:"tracking_number,omitempty" validate:"max=100"`
	Courier            string     `json:"courier,omitempty" validate:"max=100"`
	ExpectedDeliveryAt *time.Time `json:"expected_delivery_at,omitempty"`
}

// Command converts the request into the engine's create command.
func (r CreateOrderRequest) Command() orders.CreateOrderCommand {
	cmd := orders.CreateOrderCommand{
		CustomerID:      r.CustomerID,
		Items:           make([]orders.LineRequest, 0, len(r.Items)),
		ShippingAddress: r.ShippingAddress.toOrders(),
		Charges: orders.Charges{
			Shipping: r.ShippingCharge,
			Discount: r.Discount,
			Tax:      r.Tax,
		},
		PaymentMethod: orders.PaymentMethod(r.PaymentMethod),
		CustomerNote:  r.CustomerNote,
		AdminNote:     r.AdminNote,
	}
	for _, it := range r.Items {
		cmd.Items = append(cmd.Items, orders.LineRequest{
			Ref: orders.ItemRef{
				ProductID:  it.ProductID,
				VariantID:  it.VariantID,
				Size:       it.Size,
				RentalDays: it.RentalDays,
			},
			Quantity: it.Quantity,
		})
	}
	if r.BillingAddress != nil {
		billing := r.BillingAddress.toOrders()
		cmd.BillingAddress = &billing
	}
	return cmd
}

// Command converts the request into the engine's transition command for orderID.
func (r TransitionRequest) Command(orderID string) orders.TransitionCommand {
	return orders.TransitionCommand{
		OrderID:         orderID,
		Target:          orders.Status(r.Status),
		ExpectedStatus:  orders.Status(r.ExpectedStatus),
		ExpectedVersion: r.ExpectedVersion,
		Context: orders.TransitionContext{
			Reason:             r.Reason,
			TrackingNumber:     r.TrackingNumber,
			Courier:            r.Courier,
			ExpectedDeliveryAt: r.ExpectedDeliveryAt,
		},
	}
}

func (a Address) toOrders() orders.Address {
	return orders.Address{
		Name:       a.Name,
		Phone:      a.Phone,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
