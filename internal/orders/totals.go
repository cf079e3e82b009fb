package orders

import (
	"github.com/shopspring/decimal"
)

// Totals is the result of ComputeTotals.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals sums unit price times quantity over items and applies
// total = subtotal + shipping + tax - discount.
func ComputeTotals(items []OrderItem, charges Charges) (Totals, error) {
	const op = "compute totals"

	if len(items) == 0 {
		return Totals{}, newError(KindEmptyOrder, op, "an order needs at least one item")
	}
	if charges.Shipping.IsNegative() {
		return Totals{}, newError(KindNegativeAmount, op, "shipping charge %s is negative", charges.Shipping)
	}
	if charges.Discount.IsNegative() {
		return Totals{}, newError(KindNegativeAmount, op, "discount %s is negative", charges.Discount)
	}
	if charges.Tax.IsNegative() {
		return Totals{}, newError(KindNegativeAmount, op, "tax %s is negative", charges.Tax)
	}

	subtotal := decimal.Zero
	for i, item := range items {
		if item.UnitPrice.IsNegative() {
			return Totals{}, newError(KindNegativeAmount, op, "item %d has negative unit price %s", i+1, item.UnitPrice)
		}
		if item.Quantity < 0 {
			return Totals{}, newError(KindNegativeAmount, op, "item %d has negative quantity %d", i+1, item.Quantity)
		}
		if item.Quantity == 0 {
			return Totals{}, newError(KindInvalidInput, op, "item %d must have a quantity of at least 1", i+1)
		}
		subtotal = subtotal.Add(lineTotal(item.UnitPrice, item.Quantity))
	}

	total := subtotal.Add(charges.Shipping).Add(charges.Tax).Sub(charges.Discount)
	if total.IsNegative() {
		return Totals{}, newError(KindNegativeAmount, op, "discount %s exceeds the order value", charges.Discount)
	}
	return Totals{Subtotal: subtotal, Total: total}, nil
}

// ItemCount is the sum of quantities across items.
func ItemCount(items []OrderItem) int {
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

func lineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
