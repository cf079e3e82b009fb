package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Store reads products from the products table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

type productRecord struct {
	ProductID string          `dynamodbav:"product_id"` // PK
	Name      string          `dynamodbav:"name"`
	Active    bool            `dynamodbav:"active"`
	Variants  []variantRecord `dynamodbav:"variants"`
}

type variantRecord struct {
	ID          string         `dynamodbav:"id"`
	Name        string         `dynamodbav:"name,omitempty"`
	Price       string         `dynamodbav:"price"`
	Stock       int            `dynamodbav:"stock"`
	Sizes       []Size         `dynamodbav:"sizes,omitempty"`
	RentalTiers []rentalRecord `dynamodbav:"rental_tiers,omitempty"`
}

type rentalRecord struct {
	MinDays     int    `dynamodbav:"min_days"`
	PricePerDay string `dynamodbav:"price_per_day"`
}

// Get fetches a product by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, productID string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"product_id": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec productRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	p, err := rec.toProduct()
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}
	return &p, nil
}

// Put writes a product, replacing any previous version.
func (s *Store) Put(ctx context.Context, p Product) error {
	item, err := attributevalue.MarshalMap(fromProduct(p))
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// Quote implements orders.Catalog.
func (s *Store) Quote(ctx context.Context, ref orders.ItemRef, quantity int) (orders.Quote, error) {
	p, err := s.Get(ctx, ref.ProductID)
	if err != nil {
		return orders.Quote{}, err
	}
	if p == nil {
		return unavailable("", fmt.Sprintf("unknown product %q", ref.ProductID)), nil
	}
	return QuoteProduct(*p, ref, quantity), nil
}

func (r productRecord) toProduct() (Product, error) {
	p := Product{ID: r.ProductID, Name: r.Name, Active: r.Active}
	for _, v := range r.Variants {
		price, err := decimal.NewFromString(v.Price)
		if err != nil {
			return Product{}, fmt.Errorf("variant %s price: %w", v.ID, err)
		}
		variant := Variant{ID: v.ID, Name: v.Name, Price: price, Stock: v.Stock, Sizes: v.Sizes}
		for _, t := range v.RentalTiers {
			perDay, err := decimal.NewFromString(t.PricePerDay)
			if err != nil {
				return Product{}, fmt.Errorf("variant %s rental tier: %w", v.ID, err)
			}
			variant.RentalTiers = append(variant.RentalTiers, RentalTier{MinDays: t.MinDays, PricePerDay: perDay})
		}
		p.Variants = append(p.Variants, variant)
	}
	return p, nil
}

func fromProduct(p Product) productRecord {
	rec := productRecord{ProductID: p.ID, Name: p.Name, Active: p.Active}
	for _, v := range p.Variants {
		vr := variantRecord{ID: v.ID, Name: v.Name, Price: v.Price.String(), Stock: v.Stock, Sizes: v.Sizes}
		for _, t := range v.RentalTiers {
			vr.RentalTiers = append(vr.RentalTiers, rentalRecord{MinDays: t.MinDays, PricePerDay: t.PricePerDay.String()})
		}
		rec.Variants = append(rec.Variants, vr)
	}
	return rec
}

// Memory is an in-process catalog for local runs and tests.
type Memory struct {
	products map[string]Product
}

func NewMemory(products ...Product) *Memory {
	m := &Memory{products: make(map[string]Product, len(products))}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *Memory) Quote(_ context.Context, ref orders.ItemRef, quantity int) (orders.Quote, error) {
	p, ok := m.products[ref.ProductID]
	if !ok {
		return unavailable("", fmt.Sprintf("unknown product %q", ref.ProductID)), nil
	}
	return QuoteProduct(p, ref, quantity), nil
}
