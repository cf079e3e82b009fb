package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const orderIDPrefix = "ord_"

// EngineDeps bundles collaborators required to construct the engine.
type EngineDeps struct {
	Repository Repository
	Catalog    Catalog
	Numbers    NumberAllocator
	Events     EventPublisher
	// Policy defaults to DefaultPolicy when nil.
	Policy *Policy
	// Timeout bounds every persistence call; zero disables the bound.
	Timeout     time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      *zap.Logger
}

// Engine owns the order status machine, totals and rollups.
type Engine struct {
	repo    Repository
	catalog Catalog
	numbers NumberAllocator
	events  EventPublisher
	policy  Policy
	timeout time.Duration
	clock   func() time.Time
	newID   func() string
	logger  *zap.Logger
}

func NewEngine(deps EngineDeps) (*Engine, error) {
	if deps.Repository == nil {
		return nil, errors.New("order engine: repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("order engine: catalog is required")
	}
	if deps.Numbers == nil {
		return nil, errors.New("order engine: number allocator is required")
	}

	policy := DefaultPolicy()
	if deps.Policy != nil {
		policy = *deps.Policy
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		repo:    deps.Repository,
		catalog: deps.Catalog,
		numbers: deps.Numbers,
		events:  deps.Events,
		policy:  policy,
		timeout: deps.Timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Policy returns the transition policy in force.
func (e *Engine) Policy() Policy {
	return e.policy
}

// LineRequest asks for quantity units of one catalog entry.
type LineRequest struct {
	Ref      ItemRef
	Quantity int
}

// CreateOrderCommand is the input of CreateOrder.
type CreateOrderCommand struct {
	CustomerID      string
	Items           []LineRequest
	ShippingAddress Address
	BillingAddress  *Address
	Charges         Charges
	// PaymentMethod defaults to cash on delivery.
	PaymentMethod PaymentMethod
	CustomerNote  string
	AdminNote     string
}

// TransitionCommand is the input of Transition.
type TransitionCommand struct {
	OrderID string
	Target  Status
	// ExpectedStatus is the status the caller last observed. Optional.
	ExpectedStatus Status
	// ExpectedVersion is the version the caller last observed. Zero means not supplied.
	ExpectedVersion int64
	Context         TransitionContext
}

// CreateOrder prices the lines through the catalog, freezes the snapshot and
// stores the new pending order.
func (e *Engine) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	const op = "create order"

	if err := validateCreate(&cmd); err != nil {
		return Order{}, err
	}

	items := make([]OrderItem, 0, len(cmd.Items))
	for i, line := range cmd.Items {
		quote, err := e.quote(ctx, line)
		if err != nil {
			return Order{}, err
		}
		if !quote.Available {
			reason := quote.Reason
			if reason == "" {
				reason = "not available in the requested quantity"
			}
			return Order{}, newError(KindItemUnavailable, op, "item %d (%s): %s", i+1, line.Ref.ProductID, reason)
		}
		items = append(items, OrderItem{
			ItemRef:     line.Ref,
			ProductName: quote.ProductName,
			UnitPrice:   quote.UnitPrice,
			Quantity:    line.Quantity,
			TotalPrice:  lineTotal(quote.UnitPrice, line.Quantity),
		})
	}

	totals, err := ComputeTotals(items, cmd.Charges)
	if err != nil {
		return Order{}, err
	}

	now := e.clock()
	number, err := e.allocateNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:              orderIDPrefix + e.newID(),
		OrderNumber:     number,
		CustomerID:      cmd.CustomerID,
		Items:           items,
		ShippingAddress: cmd.ShippingAddress,
		BillingAddress:  cmd.BillingAddress,
		Subtotal:        totals.Subtotal,
		ShippingCharge:  cmd.Charges.Shipping,
		Discount:        cmd.Charges.Discount,
		Tax:             cmd.Charges.Tax,
		TotalAmount:     totals.Total,
		PaymentMethod:   cmd.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Status:          StatusPending,
		CustomerNote:    cmd.CustomerNote,
		AdminNote:       cmd.AdminNote,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.withTimeout(ctx, op, func(ctx context.Context) error {
		return e.repo.Insert(ctx, order)
	}); err != nil {
		return Order{}, err
	}

	e.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("customer_id", order.CustomerID),
		zap.String("total", order.TotalAmount.String()),
		zap.Int("item_count", order.ItemCount()),
	)
	e.publish(ctx, Event{
		Type:          EventOrderCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerID:    order.CustomerID,
		CurrentStatus: order.Status,
		PaymentStatus: order.PaymentStatus,
		Version:       order.Version,
		OccurredAt:    now,
	})
	return order, nil
}

// Get returns the stored order.
func (e *Engine) Get(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, newError(KindInvalidInput, "get order", "order id is required")
	}
	return e.load(ctx, orderID)
}

// Transition moves an order to cmd.Target. Requesting the current status is a
// no-op success unless cmd.ExpectedVersion is pinned to an older version. The write is conditioned on the version that was read, so a
// concurrent transition makes this one fail with kind stale_state.
func (e *Engine) Transition(ctx context.Context, cmd TransitionCommand) (Order, error) {
	const op = "transition"

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, newError(KindInvalidInput, op, "order id is required")
	}
	target := normalizeStatus(cmd.Target)
	if !target.Valid() {
		return Order{}, newError(KindInvalidInput, op, "unknown status %q", cmd.Target)
	}
	expected := normalizeStatus(cmd.ExpectedStatus)
	if expected != "" && !expected.Valid() {
		return Order{}, newError(KindInvalidInput, op, "unknown expected status %q", cmd.ExpectedStatus)
	}

	logger := e.logger.With(zap.String("order_id", orderID), zap.String("target", string(target)))

	current, err := e.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	// A pinned version is exact, even when the order already holds the target.
	if cmd.ExpectedVersion != 0 && current.Version != cmd.ExpectedVersion {
		err := newError(KindStaleState, op, "order is at version %d, not %d as last observed", current.Version, cmd.ExpectedVersion)
		logger.Warn("transition rejected", zap.String("kind", string(err.Kind)), zap.Error(err))
		return Order{}, err
	}

	if current.Status == target {
		logger.Debug("transition is a no-op", zap.Int64("version", current.Version))
		return current, nil
	}

	if expected != "" && current.Status != expected {
		err := newError(KindStaleState, op, "order is %s, not %s as last observed", current.Status, expected)
		logger.Warn("transition rejected", zap.String("kind", string(err.Kind)), zap.Error(err))
		return Order{}, err
	}

	next := current.Clone()
	now := e.clock()
	if _, err := applyTransition(&next, target, cmd.Context, e.policy, now); err != nil {
		logger.Warn("transition rejected",
			zap.String("status", string(current.Status)),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		return Order{}, err
	}

	var saved Order
	if err := e.withTimeout(ctx, op, func(ctx context.Context) error {
		var saveErr error
		saved, saveErr = e.repo.Save(ctx, next, current.Version)
		return saveErr
	}); err != nil {
		logger.Warn("transition not persisted", zap.String("kind", string(KindOf(err))), zap.Error(err))
		return Order{}, err
	}

	logger.Info("order transitioned",
		zap.String("from", string(current.Status)),
		zap.String("status", string(saved.Status)),
		zap.String("payment_status", string(saved.PaymentStatus)),
		zap.Int64("version", saved.Version),
	)
	e.publish(ctx, Event{
		Type:           EventOrderStatusChanged,
		OrderID:        saved.ID,
		OrderNumber:    saved.OrderNumber,
		CustomerID:     saved.CustomerID,
		PreviousStatus: current.Status,
		CurrentStatus:  saved.Status,
		PaymentStatus:  saved.PaymentStatus,
		Reason:         saved.CancelledReason,
		Version:        saved.Version,
		OccurredAt:     now,
	})
	return saved, nil
}

func normalizeStatus(s Status) Status {
	return Status(strings.ToLower(strings.TrimSpace(string(s))))
}

// AllowedTransitions returns the order and the statuses it may move to next.
func (e *Engine) AllowedTransitions(ctx context.Context, orderID string) (Order, []Status, error) {
	o, err := e.Get(ctx, orderID)
	if err != nil {
		return Order{}, nil, err
	}
	next := AllowedNext(o.Status)
	if o.Status == StatusCancelled && o.PaymentStatus != PaymentPaid {
		next = nil
	}
	return o, next, nil
}

// Rollup aggregates the orders in scope from the current persisted state.
func (e *Engine) Rollup(ctx context.Context, scope Scope) (Stats, error) {
	scope.CustomerID = strings.TrimSpace(scope.CustomerID)
	// A full scan may outlast the persistence bound, so the repository bounds
	// each page instead.
	stats, err := Rollup(e.repo.Query(ctx, scope))
	if err != nil {
		return Stats{}, persistenceError(ctx, "rollup", err)
	}
	return stats, nil
}

func (e *Engine) load(ctx context.Context, orderID string) (Order, error) {
	var o Order
	err := e.withTimeout(ctx, "get order", func(ctx context.Context) error {
		var getErr error
		o, getErr = e.repo.Get(ctx, orderID)
		return getErr
	})
	return o, err
}

func (e *Engine) quote(ctx context.Context, line LineRequest) (Quote, error) {
	var q Quote
	err := e.withTimeout(ctx, "quote item", func(ctx context.Context) error {
		var quoteErr error
		q, quoteErr = e.catalog.Quote(ctx, line.Ref, line.Quantity)
		return quoteErr
	})
	return q, err
}

func (e *Engine) allocateNumber(ctx context.Context, now time.Time) (string, error) {
	var number string
	err := e.withTimeout(ctx, "allocate order number", func(ctx context.Context) error {
		var numErr error
		number, numErr = e.numbers.Next(ctx, now)
		return numErr
	})
	return number, err
}

// withTimeout runs fn under the persistence bound and normalises its error.
func (e *Engine) withTimeout(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return persistenceError(callCtx, op, fn(callCtx))
}

// persistenceError classifies a repository failure observed under ctx.
func persistenceError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) == KindPersistenceTimeout {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return wrapError(KindPersistenceTimeout, op, err, "persistence call timed out")
	}
	if KindOf(err) != "" {
		return err
	}
	return wrapError(KindPersistence, op, err, "unexpected persistence failure")
}

func (e *Engine) publish(ctx context.Context, event Event) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishOrderEvent(ctx, event); err != nil {
		e.logger.Warn("order event publish failed",
			zap.String("type", event.Type),
			zap.String("order_id", event.OrderID),
			zap.String("status", string(event.CurrentStatus)),
			zap.Error(err),
		)
	}
}

func validateCreate(cmd *CreateOrderCommand) error {
	const op = "create order"

	cmd.CustomerID = strings.TrimSpace(cmd.CustomerID)
	if cmd.CustomerID == "" {
		return newError(KindInvalidInput, op, "customer id is required")
	}
	if len(cmd.Items) == 0 {
		return newError(KindEmptyOrder, op, "an order needs at least one item")
	}
	for i := range cmd.Items {
		line := &cmd.Items[i]
		line.Ref.ProductID = strings.TrimSpace(line.Ref.ProductID)
		line.Ref.VariantID = strings.TrimSpace(line.Ref.VariantID)
		line.Ref.Size = strings.TrimSpace(line.Ref.Size)
		if line.Ref.ProductID == "" {
			return newError(KindInvalidInput, op, "item %d: product id is required", i+1)
		}
		if line.Quantity < 0 {
			return newError(KindNegativeAmount, op, "item %d: quantity %d is negative", i+1, line.Quantity)
		}
		if line.Quantity == 0 {
			return newError(KindInvalidInput, op, "item %d: quantity must be at least 1", i+1)
		}
		if line.Ref.RentalDays < 0 {
			return newError(KindInvalidInput, op, "item %d: rental days must not be negative", i+1)
		}
	}
	if err := validateAddress(cmd.ShippingAddress); err != nil {
		return newError(KindInvalidInput, op, "shipping address: %v", err)
	}
	if cmd.BillingAddress != nil {
		if err := validateAddress(*cmd.BillingAddress); err != nil {
			return newError(KindInvalidInput, op, "billing address: %v", err)
		}
	}
	if cmd.PaymentMethod == "" {
		cmd.PaymentMethod = PaymentCashOnDelivery
	}
	if !cmd.PaymentMethod.Valid() {
		return newError(KindInvalidInput, op, "payment method %q is not supported", cmd.PaymentMethod)
	}
	cmd.CustomerNote = strings.TrimSpace(cmd.CustomerNote)
	cmd.AdminNote = strings.TrimSpace(cmd.AdminNote)
	if utf8.RuneCountInString(cmd.CustomerNote) > MaxCustomerNoteLen {
		return newError(KindInvalidInput, op, "customer note exceeds %d characters", MaxCustomerNoteLen)
	}
	if utf8.RuneCountInString(cmd.AdminNote) > MaxAdminNoteLen {
		return newError(KindInvalidInput, op, "admin note exceeds %d characters", MaxAdminNoteLen)
	}
	return nil
}

func validateAddress(a Address) error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"street", a.Street},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}
