package catalog

import (
	"context"
	"errors"
	"testing"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// mockDynamo keeps products keyed by product_id.
type mockDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (m *mockDynamo) PutItem(_ context.Context, in *dyn.PutItemInput, _ ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	pk := in.Item["product_id"].(*types.AttributeValueMemberS).Value
	m.items[pk] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, in *dyn.GetItemInput, _ ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	pk := in.Key["product_id"].(*types.AttributeValueMemberS).Value
	return &dyn.GetItemOutput{Item: m.items[pk]}, nil
}

func (m *mockDynamo) UpdateItem(context.Context, *dyn.UpdateItemInput, ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDynamo) TransactWriteItems(context.Context, *dyn.TransactWriteItemsInput, ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDynamo) Query(context.Context, *dyn.QueryInput, ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDynamo) Scan(context.Context, *dyn.ScanInput, ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("not implemented")
}

func TestStorePutGetQuote(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMockDynamo(), "products")

	require.NoError(t, s.Put(ctx, tent()))

	got, err := s.Get(ctx, "prod-tent")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Len(t, got.Variants, 1)
	require.Len(t, got.Variants[0].RentalTiers, 3)
	require.Equal(t, "1500", got.Variants[0].Price.String())

	q, err := s.Quote(ctx, orders.ItemRef{ProductID: "prod-tent", VariantID: "white", Size: "10x10", RentalDays: 7}, 1)
	require.NoError(t, err)
	require.True(t, q.Available)
	require.Equal(t, "630", q.UnitPrice.String())
}

func TestStoreQuote_UnknownProduct(t *testing.T) {
	s := NewStore(newMockDynamo(), "products")
	q, err := s.Quote(context.Background(), orders.ItemRef{ProductID: "missing"}, 1)
	require.NoError(t, err)
	require.False(t, q.Available)
	require.Contains(t, q.Reason, "unknown product")
}

func TestMemoryQuote(t *testing.T) {
	m := NewMemory(tent())
	q, err := m.Quote(context.Background(), orders.ItemRef{ProductID: "prod-tent", Size: "10x10"}, 4)
	require.NoError(t, err)
	require.True(t, q.Available)

	q, err = m.Quote(context.Background(), orders.ItemRef{ProductID: "prod-tent", Size: "10x10"}, 5)
	require.NoError(t, err)
	require.False(t, q.Available)
}
