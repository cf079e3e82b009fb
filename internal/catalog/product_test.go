package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

func tent() Product {
	return Product{
		ID:     "prod-tent",
		Name:   "Event Tent",
		Active: true,
		Variants: []Variant{
			{
				ID:    "white",
				Name:  "White",
				Price: decimal.RequireFromString("1500"),
				Sizes: []Size{{Name: "10x10", Stock: 4}, {Name: "20x20", Stock: 1}},
				RentalTiers: []RentalTier{
					{MinDays: 1, PricePerDay: decimal.RequireFromString("120")},
					{MinDays: 7, PricePerDay: decimal.RequireFromString("90")},
					{MinDays: 30, PricePerDay: decimal.RequireFromString("60")},
				},
			},
		},
	}
}

func TestQuoteProduct_SalePrice(t *testing.T) {
	q := QuoteProduct(tent(), orders.ItemRef{ProductID: "prod-tent", VariantID: "white", Size: "10x10"}, 2)
	assert.True(t, q.Available)
	assert.Equal(t, "Event Tent - White (10x10)", q.ProductName)
	assert.True(t, q.UnitPrice.Equal(decimal.RequireFromString("1500")))
}

func TestQuoteProduct_SingleVariantDefault(t *testing.T) {
	q := QuoteProduct(tent(), orders.ItemRef{ProductID: "prod-tent", Size: "20x20"}, 1)
	assert.True(t, q.Available)
}

func TestQuoteProduct_RentalTiers(t *testing.T) {
	cases := []struct {
		days int
		want string
	}{
		{days: 3, want: "360"},   // 3 x 120
		{days: 7, want: "630"},   // 7 x 90
		{days: 29, want: "2610"}, // 29 x 90
		{days: 45, want: "2700"}, // 45 x 60
	}
	for _, tc := range cases {
		q := QuoteProduct(tent(), orders.ItemRef{ProductID: "prod-tent", VariantID: "white", Size: "10x10", RentalDays: tc.days}, 1)
		assert.True(t, q.Available, "days=%d", tc.days)
		assert.True(t, q.UnitPrice.Equal(decimal.RequireFromString(tc.want)), "days=%d got %s", tc.days, q.UnitPrice)
	}
}

func TestQuoteProduct_Unavailable(t *testing.T) {
	inactive := tent()
	inactive.Active = false

	noTier := tent()
	noTier.Variants[0].RentalTiers = noTier.Variants[0].RentalTiers[1:]

	cases := map[string]struct {
		product Product
		ref     orders.ItemRef
		qty     int
	}{
		"inactive":        {inactive, orders.ItemRef{VariantID: "white", Size: "10x10"}, 1},
		"unknown variant": {tent(), orders.ItemRef{VariantID: "black", Size: "10x10"}, 1},
		"unknown size":    {tent(), orders.ItemRef{VariantID: "white", Size: "5x5"}, 1},
		"short stock":     {tent(), orders.ItemRef{VariantID: "white", Size: "20x20"}, 2},
		"no rental tier":  {noTier, orders.ItemRef{VariantID: "white", Size: "10x10", RentalDays: 2}, 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			q := QuoteProduct(tc.product, tc.ref, tc.qty)
			assert.False(t, q.Available)
			assert.NotEmpty(t, q.Reason)
		})
	}
}
