package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the fulfillment stage of an order.
type Status string

// Order statuses. pending is the only initial state.
const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Statuses lists every order status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusRefunded,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// PaymentStatus tracks capture of the order's payment independently of fulfillment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentMethod is a closed set; only cash on delivery is supported.
type PaymentMethod string

const PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"

func (m PaymentMethod) Valid() bool {
	return m == PaymentCashOnDelivery
}

// Note bounds, in characters.
const (
	MaxCustomerNoteLen = 1000
	MaxAdminNoteLen    = 2000
)

// Address is a structured postal record.
type Address struct {
	Name       string `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Phone      string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Street     string `json:"street" dynamodbav:"street"`
	City       string `json:"city" dynamodbav:"city"`
	State      string `json:"state" dynamodbav:"state"`
	PostalCode string `json:"postal_code" dynamodbav:"postal_code"`
	Country    string `json:"country" dynamodbav:"country"`
}

// ItemRef points at a purchasable catalog entry.
type ItemRef struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Size       string `json:"size,omitempty"`
	RentalDays int    `json:"rental_days,omitempty"`
}

// OrderItem is a line item with its price frozen at order time.
type OrderItem struct {
	ItemRef
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Charges are the order-level amounts applied on top of the item subtotal.
type Charges struct {
	Shipping decimal.Decimal `json:"shipping_charge"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
}

// Shipment carries courier data recorded when the order ships.
type Shipment struct {
	TrackingNumber     string     `json:"tracking_number,omitempty" dynamodbav:"tracking_number,omitempty"`
	Courier            string     `json:"courier,omitempty" dynamodbav:"courier,omitempty"`
	ExpectedDeliveryAt *time.Time `json:"expected_delivery_at,omitempty" dynamodbav:"expected_delivery_at,omitempty"`
}

// Order is the aggregate root. It is only mutated through transitions.
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"order_number"`
	CustomerID      string          `json:"customer_id"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	BillingAddress  *Address        `json:"billing_address,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCharge  decimal.Decimal `json:"shipping_charge"`
	Discount        decimal.Decimal `json:"discount"`
	Tax             decimal.Decimal `json:"tax"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	Status          Status          `json:"status"`
	Shipment        Shipment        `json:"shipment"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CancelledReason string          `json:"cancelled_reason,omitempty"`
	CustomerNote    string          `json:"customer_note,omitempty"`
	AdminNote       string          `json:"admin_note,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ItemCount is the sum of quantities across the order's items.
func (o Order) ItemCount() int {
	return ItemCount(o.Items)
}

// Clone returns a deep copy so callers cannot alias stored state.
func (o Order) Clone() Order {
	cloned := o
	if o.Items != nil {
		cloned.Items = make([]OrderItem, len(o.Items))
		copy(cloned.Items, o.Items)
	}
	if o.BillingAddress != nil {
		addr := *o.BillingAddress
		cloned.BillingAddress = &addr
	}
	cloned.Shipment.ExpectedDeliveryAt = cloneTime(o.Shipment.ExpectedDeliveryAt)
	cloned.DeliveredAt = cloneTime(o.DeliveredAt)
	cloned.CancelledAt = cloneTime(o.CancelledAt)
	return cloned
}

// Scope narrows the set of orders a rollup or query covers.
type Scope struct {
	CustomerID string `json:"customer_id,omitempty"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
