// Package catalog answers price and availability questions for order creation.
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Product is a catalog entry with purchasable variants.
type Product struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Active   bool      `json:"active"`
	Variants []Variant `json:"variants"`
}

// Variant is a priced option of a product.
type Variant struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	// Stock applies when the variant has no sizes.
	Stock       int          `json:"stock"`
	Sizes       []Size       `json:"sizes,omitempty"`
	RentalTiers []RentalTier `json:"rental_tiers,omitempty"`
}

type Size struct {
	Name  string `json:"name" dynamodbav:"name"`
	Stock int    `json:"stock" dynamodbav:"stock"`
}

// RentalTier prices rentals of at least MinDays days.
type RentalTier struct {
	MinDays     int             `json:"min_days"`
	PricePerDay decimal.Decimal `json:"price_per_day"`
}

// QuoteProduct prices quantity units of ref against p.
func QuoteProduct(p Product, ref orders.ItemRef, quantity int) orders.Quote {
	name := p.Name
	if !p.Active {
		return unavailable(name, "product is not active")
	}

	variant, ok := findVariant(p, ref.VariantID)
	if !ok {
		return unavailable(name, fmt.Sprintf("unknown variant %q", ref.VariantID))
	}
	if variant.Name != "" {
		name = p.Name + " - " + variant.Name
	}

	stock := variant.Stock
	if len(variant.Sizes) > 0 {
		size, ok := findSize(variant, ref.Size)
		if !ok {
			return unavailable(name, fmt.Sprintf("unknown size %q", ref.Size))
		}
		stock = size.Stock
		name += " (" + size.Name + ")"
	}
	if stock < quantity {
		return unavailable(name, fmt.Sprintf("only %d in stock", stock))
	}

	price := variant.Price
	if ref.RentalDays > 0 {
		tier, ok := rentalTier(variant, ref.RentalDays)
		if !ok {
			return unavailable(name, fmt.Sprintf("no rental tier covers %d days", ref.RentalDays))
		}
		price = tier.PricePerDay.Mul(decimal.NewFromInt(int64(ref.RentalDays)))
	}
	return orders.Quote{ProductName: name, UnitPrice: price, Available: true}
}

func findVariant(p Product, variantID string) (Variant, bool) {
	if variantID == "" && len(p.Variants) == 1 {
		return p.Variants[0], true
	}
	for _, v := range p.Variants {
		if v.ID == variantID {
			return v, true
		}
	}
	return Variant{}, false
}

func findSize(v Variant, name string) (Size, bool) {
	for _, s := range v.Sizes {
		if s.Name == name {
			return s, true
		}
	}
	return Size{}, false
}

// rentalTier picks the tier with the largest MinDays not above days.
func rentalTier(v Variant, days int) (RentalTier, bool) {
	var (
		best  RentalTier
		found bool
	)
	for _, t := range v.RentalTiers {
		if t.MinDays <= days && (!found || t.MinDays > best.MinDays) {
			best, found = t, true
		}
	}
	return best, found
}

func unavailable(name, reason string) orders.Quote {
	return orders.Quote{ProductName: name, Available: false, Reason: reason}
}
