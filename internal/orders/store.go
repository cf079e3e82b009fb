package orders

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

const orderNumberGuardPrefix = "order_number#"

// StoreConfig names the tables the DynamoDB store works against.
type StoreConfig struct {
	OrdersTable string
	// CountersTable holds order-number guard items next to the sequence counters.
	CountersTable string
	// CustomerIndex is a GSI on orders keyed by customer_id.
	CustomerIndex string
	// PageTimeout bounds each Query or Scan page read; zero disables the bound.
	PageTimeout time.Duration
}

// Store is the DynamoDB implementation of Repository.
type Store struct {
	client aws.DynamoDBAPI
	cfg    StoreConfig
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, cfg StoreConfig) *Store {
	return &Store{client: client, cfg: cfg}
}

type itemRecord struct {
	ProductID   string `dynamodbav:"product_id"`
	VariantID   string `dynamodbav:"variant_id,omitempty"`
	Size        string `dynamodbav:"size,omitempty"`
	RentalDays  int    `dynamodbav:"rental_days,omitempty"`
	ProductName string `dynamodbav:"product_name"`
	UnitPrice   string `dynamodbav:"unit_price"`
	Quantity    int    `dynamodbav:"quantity"`
	TotalPrice  string `dynamodbav:"total_price"`
}

// orderRecord is the item stored in the orders table. Money is kept as
// decimal strings so no precision is lost in the document store.
type orderRecord struct {
	OrderID         string       `dynamodbav:"order_id"` // PK
	OrderNumber     string       `dynamodbav:"order_number"`
	CustomerID      string       `dynamodbav:"customer_id"`
	Items           []itemRecord `dynamodbav:"items"`
	ShippingAddress Address      `dynamodbav:"shipping_address"`
	BillingAddress  *Address     `dynamodbav:"billing_address,omitempty"`
	Subtotal        string       `dynamodbav:"subtotal"`
	ShippingCharge  string       `dynamodbav:"shipping_charge"`
	Discount        string       `dynamodbav:"discount"`
	Tax             string       `dynamodbav:"tax"`
	TotalAmount     string       `dynamodbav:"total_amount"`
	PaymentMethod   string       `dynamodbav:"payment_method"`
	PaymentStatus   string       `dynamodbav:"payment_status"`
	Status          string       `dynamodbav:"status"`
	Shipment        Shipment     `dynamodbav:"shipment"`
	DeliveredAt     *time.Time   `dynamodbav:"delivered_at,omitempty"`
	CancelledAt     *time.Time   `dynamodbav:"cancelled_at,omitempty"`
	CancelledReason string       `dynamodbav:"cancelled_reason,omitempty"`
	CustomerNote    string       `dynamodbav:"customer_note,omitempty"`
	AdminNote       string       `dynamodbav:"admin_note,omitempty"`
	Version         int64        `dynamodbav:"version"`
	CreatedAt       time.Time    `dynamodbav:"created_at"`
	UpdatedAt       time.Time    `dynamodbav:"updated_at"`
}

type numberGuard struct {
	CounterID string `dynamodbav:"counter_id"`
	OrderID   string `dynamodbav:"order_id"`
}

// Get fetches an order by order_id.
func (s *Store) Get(ctx context.Context, orderID string) (Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.cfg.OrdersTable,
		Key:            orderKey(orderID),
		ConsistentRead: sdkaws.Bool(true),
	})
	if err != nil {
		return Order{}, wrapError(KindPersistence, "get order", err, "reading order %s failed", orderID)
	}
	if len(out.Item) == 0 {
		return Order{}, newError(KindNotFound, "get order", "order %s does not exist", orderID)
	}
	return decodeOrder(out.Item)
}

// Insert writes the order and its order-number guard in one transaction,
// each conditioned on not existing yet.
func (s *Store) Insert(ctx context.Context, order Order) error {
	orderMap, err := attributevalue.MarshalMap(toRecord(order))
	if err != nil {
		return wrapError(KindPersistence, "insert order", err, "marshal order failed")
	}
	guardMap, err := attributevalue.MarshalMap(numberGuard{
		CounterID: orderNumberGuardPrefix + order.OrderNumber,
		OrderID:   order.ID,
	})
	if err != nil {
		return wrapError(KindPersistence, "insert order", err, "marshal order number guard failed")
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.cfg.OrdersTable,
					Item:                orderMap,
					ConditionExpression: sdkaws.String("attribute_not_exists(order_id)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.cfg.CountersTable,
					Item:                guardMap,
					ConditionExpression: sdkaws.String("attribute_not_exists(counter_id)"),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return wrapError(KindPersistence, "insert order", err,
				"order %s or order number %s already exists", order.ID, order.OrderNumber)
		}
		return wrapError(KindPersistence, "insert order", err, "writing order %s failed", order.ID)
	}
	return nil
}

// Save replaces the whole order document conditioned on its stored version,
// so status, side effects and updated_at commit together or not at all.
func (s *Store) Save(ctx context.Context, order Order, expectedVersion int64) (Order, error) {
	next := order.Clone()
	next.Version = expectedVersion + 1

	item, err := attributevalue.MarshalMap(toRecord(next))
	if err != nil {
		return Order{}, wrapError(KindPersistence, "save order", err, "marshal order failed")
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.cfg.OrdersTable,
		Item:                     item,
		ConditionExpression:      sdkaws.String("attribute_exists(order_id) AND #v = :expected"),
		ExpressionAttributeNames: map[string]string{"#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return Order{}, newError(KindNotFound, "save order", "order %s does not exist", order.ID)
			}
			return Order{}, newError(KindStaleState, "save order",
				"order %s changed since version %d was read", order.ID, expectedVersion)
		}
		return Order{}, wrapError(KindPersistence, "save order", err, "writing order %s failed", order.ID)
	}
	return next, nil
}

// Query pages through the customer index when the scope names a customer and
// scans the table otherwise.
func (s *Store) Query(ctx context.Context, scope Scope) iter.Seq2[Order, error] {
	return func(yield func(Order, error) bool) {
		var pages pageReader
		if scope.CustomerID != "" {
			pages = &queryPages{dyn.NewQueryPaginator(s.client, &dyn.QueryInput{
				TableName:              &s.cfg.OrdersTable,
				IndexName:              &s.cfg.CustomerIndex,
				KeyConditionExpression: sdkaws.String("customer_id = :c"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":c": &types.AttributeValueMemberS{Value: scope.CustomerID},
				},
			})}
		} else {
			pages = &scanPages{dyn.NewScanPaginator(s.client, &dyn.ScanInput{
				TableName: &s.cfg.OrdersTable,
			})}
		}

		for pages.HasMorePages() {
			items, err := s.readPage(ctx, pages)
			if err != nil {
				yield(Order{}, err)
				return
			}
			for _, item := range items {
				o, err := decodeOrder(item)
				if err != nil {
					yield(Order{}, err)
					return
				}
				if !yield(o, nil) {
					return
				}
			}
		}
	}
}

func (s *Store) readPage(ctx context.Context, pages pageReader) ([]map[string]types.AttributeValue, error) {
	if s.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.PageTimeout)
		defer cancel()
	}
	items, err := pages.nextItems(ctx)
	if err == nil {
		return items, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, wrapError(KindPersistenceTimeout, "query orders", err, "reading a page of orders timed out")
	}
	return nil, wrapError(KindPersistence, "query orders", err, "reading orders failed")
}

type pageReader interface {
	HasMorePages() bool
	nextItems(ctx context.Context) ([]map[string]types.AttributeValue, error)
}

type queryPages struct{ *dyn.QueryPaginator }

func (p *queryPages) nextItems(ctx context.Context) ([]map[string]types.AttributeValue, error) {
	out, err := p.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

type scanPages struct{ *dyn.ScanPaginator }

func (p *scanPages) nextItems(ctx context.Context) ([]map[string]types.AttributeValue, error) {
	out, err := p.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func decodeOrder(item map[string]types.AttributeValue) (Order, error) {
	var rec orderRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return Order{}, wrapError(KindPersistence, "decode order", err, "unmarshal order failed")
	}
	o, err := fromRecord(rec)
	if err != nil {
		return Order{}, wrapError(KindPersistence, "decode order", err, "order %s holds a malformed amount", rec.OrderID)
	}
	return o, nil
}

func toRecord(o Order) orderRecord {
	items := make([]itemRecord, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemRecord{
			ProductID:   it.ProductID,
			VariantID:   it.VariantID,
			Size:        it.Size,
			RentalDays:  it.RentalDays,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice.String(),
			Quantity:    it.Quantity,
			TotalPrice:  it.TotalPrice.String(),
		})
	}
	return orderRecord{
		OrderID:         o.ID,
		OrderNumber:     o.OrderNumber,
		CustomerID:      o.CustomerID,
		Items:           items,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		Subtotal:        o.Subtotal.String(),
		ShippingCharge:  o.ShippingCharge.String(),
		Discount:        o.Discount.String(),
		Tax:             o.Tax.String(),
		TotalAmount:     o.TotalAmount.String(),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentStatus:   string(o.PaymentStatus),
		Status:          string(o.Status),
		Shipment:        o.Shipment,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
		CancelledReason: o.CancelledReason,
		CustomerNote:    o.CustomerNote,
		AdminNote:       o.AdminNote,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func fromRecord(rec orderRecord) (Order, error) {
	amounts := make(map[string]decimal.Decimal, 5)
	for name, raw := range map[string]string{
		"subtotal":        rec.Subtotal,
		"shipping_charge": rec.ShippingCharge,
		"discount":        rec.Discount,
		"tax":             rec.Tax,
		"total_amount":    rec.TotalAmount,
	} {
		d, err := parseAmount(raw)
		if err != nil {
			return Order{}, fmt.Errorf("%s: %w", name, err)
		}
		amounts[name] = d
	}

	items := make([]OrderItem, 0, len(rec.Items))
	for i, it := range rec.Items {
		unit, err := parseAmount(it.UnitPrice)
		if err != nil {
			return Order{}, fmt.Errorf("items[%d].unit_price: %w", i, err)
		}
		total, err := parseAmount(it.TotalPrice)
		if err != nil {
			return Order{}, fmt.Errorf("items[%d].total_price: %w", i, err)
		}
		items = append(items, OrderItem{
			ItemRef: ItemRef{
				ProductID:  it.ProductID,
				VariantID:  it.VariantID,
				Size:       it.Size,
				RentalDays: it.RentalDays,
			},
			ProductName: it.ProductName,
			UnitPrice:   unit,
			Quantity:    it.Quantity,
			TotalPrice:  total,
		})
	}

	return Order{
		ID:              rec.OrderID,
		OrderNumber:     rec.OrderNumber,
		CustomerID:      rec.CustomerID,
		Items:           items,
		ShippingAddress: rec.ShippingAddress,
		BillingAddress:  rec.BillingAddress,
		Subtotal:        amounts["subtotal"],
		ShippingCharge:  amounts["shipping_charge"],
		Discount:        amounts["discount"],
		Tax:             amounts["tax"],
		TotalAmount:     amounts["total_amount"],
		PaymentMethod:   PaymentMethod(rec.PaymentMethod),
		PaymentStatus:   PaymentStatus(rec.PaymentStatus),
		Status:          Status(rec.Status),
		Shipment:        rec.Shipment,
		DeliveredAt:     rec.DeliveredAt,
		CancelledAt:     rec.CancelledAt,
		CancelledReason: rec.CancelledReason,
		CustomerNote:    rec.CustomerNote,
		AdminNote:       rec.AdminNote,
		Version:         rec.Version,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
