package orders

import (
	"context"
	"iter"
	"time"

	"github.com/shopspring/decimal"
)

// Repository is the persistence contract of the engine.
type Repository interface {
	// Get returns the order or an error of kind not_found.
	Get(ctx context.Context, orderID string) (Order, error)
	// Insert stores a new order; the id and order number must both be unused.
	Insert(ctx context.Context, order Order) error
	// Save replaces the order if its stored version still equals expectedVersion,
	// otherwise it fails with kind stale_state. The saved order carries the next version.
	Save(ctx context.Context, order Order, expectedVersion int64) (Order, error)
	// Query yields every order in scope. Ranging over the sequence again re-runs the query.
	// Implementations bound each underlying read themselves, never the whole sequence.
	Query(ctx context.Context, scope Scope) iter.Seq2[Order, error]
}

// Quote is the catalog's answer for one line at order-creation time.
type Quote struct {
	ProductName string
	UnitPrice   decimal.Decimal
	Available   bool
	// Reason explains why the line is unavailable.
	Reason string
}

// Catalog prices and checks availability of catalog entries.
type Catalog interface {
	Quote(ctx context.Context, ref ItemRef, quantity int) (Quote, error)
}

// NumberAllocator hands out human-facing order numbers, each exactly once.
type NumberAllocator interface {
	Next(ctx context.Context, now time.Time) (string, error)
}
