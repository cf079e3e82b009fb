package main

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imrishuroy/go-order-lifecycle/internal/catalog"
	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

type fixture struct {
	engine *orders.Engine
	guard  *idempotency.Memory
	proc   *Processor
	order  orders.Order
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	products := catalog.NewMemory(catalog.Product{ID: "tent", Name: "Tent", Active: true, Variants: []catalog.Variant{
		{ID: "std", Price: decimal.RequireFromString("500"), Stock: 10},
	}})
	engine, err := orders.NewEngine(orders.EngineDeps{
		Repository: orders.NewMemoryStore(),
		Catalog:    products,
		Numbers:    orders.NewMemoryNumbers("ORD"),
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	order, err := engine.CreateOrder(context.Background(), orders.CreateOrderCommand{
		CustomerID: "cust-1",
		Items:      []orders.LineRequest{{Ref: orders.ItemRef{ProductID: "tent"}, Quantity: 1}},
		ShippingAddress: orders.Address{
			Street: "12 MG Road", City: "Pune", State: "MH", PostalCode: "411001", Country: "IN",
		},
	})
	require.NoError(t, err)

	guard := idempotency.NewMemory(time.Hour, idempotency.DefaultLease)
	return fixture{engine: engine, guard: guard, proc: NewProcessor(engine, guard, nil), order: order}
}

func sqsEvent(bodies ...string) events.SQSEvent {
	var ev events.SQSEvent
	for i, body := range bodies {
		ev.Records = append(ev.Records, events.SQSMessage{MessageId: "sqs-" + string(rune('a'+i)), Body: body})
	}
	return ev
}

func TestHandle_AppliesTransitionOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := `{"message_id":"m-1","order_id":"` + f.order.ID + `","target_status":"confirmed"}`

	resp, err := f.proc.Handle(ctx, sqsEvent(body))
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	got, err := f.engine.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)

	// redelivery is skipped by the message guard
	resp, err = f.proc.Handle(ctx, sqsEvent(body))
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	outcome, rec, err := f.guard.Begin(ctx, messageKeyPrefix+"m-1", idempotency.Fingerprint([]byte(body)))
	require.NoError(t, err)
	assert.Equal(t, idempotency.Replay, outcome)
	assert.Equal(t, f.order.ID, rec.OrderID)
	assert.Equal(t, 200, rec.ResponseStatus)
}

func TestHandle_DropsPermanentFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.proc.Handle(ctx, sqsEvent(
		`not json`,
		`{"message_id":"m-2","order_id":"`+f.order.ID+`","target_status":"delivered"}`,
		`{"message_id":"m-3","order_id":"`+f.order.ID+`","target_status":"cancelled"}`,
		`{"message_id":"m-4","order_id":"ord_missing","target_status":"confirmed"}`,
		`{"message_id":"m-5","order_id":"`+f.order.ID+`","target_status":"teleported"}`,
	))
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	got, err := f.engine.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)

	_, rec, err := f.guard.Begin(ctx, messageKeyPrefix+"m-2", "other")
	require.NoError(t, err)
	assert.Equal(t, 422, rec.ResponseStatus)
	assert.Contains(t, rec.ResponseBody, "invalid_transition")
}

func TestHandle_RetriesStaleState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := `{"message_id":"m-6","order_id":"` + f.order.ID + `","target_status":"confirmed","expected_version":7}`

	resp, err := f.proc.Handle(ctx, sqsEvent(body))
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "sqs-a", resp.BatchItemFailures[0].ItemIdentifier)

	// the failed attempt releases the message id for the redelivery
	outcome, _, err := f.guard.Begin(ctx, messageKeyPrefix+"m-6", idempotency.Fingerprint([]byte(body)))
	require.NoError(t, err)
	assert.Equal(t, idempotency.Started, outcome)
}

func TestHandle_InProgressIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	body := `{"message_id":"m-7","order_id":"` + f.order.ID + `","target_status":"confirmed"}`

	_, _, err := f.guard.Begin(ctx, messageKeyPrefix+"m-7", idempotency.Fingerprint([]byte(body)))
	require.NoError(t, err)

	resp, err := f.proc.Handle(ctx, sqsEvent(body))
	require.NoError(t, err)
	assert.Len(t, resp.BatchItemFailures, 1)

	got, err := f.engine.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, got.Status)
}

func TestHandle_AbandonedMessageIsReprocessed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guard := idempotency.NewMemory(time.Hour, 20*time.Millisecond)
	proc := NewProcessor(f.engine, guard, nil)
	body := `{"message_id":"m-9","order_id":"` + f.order.ID + `","target_status":"confirmed"}`

	// A previous invocation committed the transition and died before completing the key.
	_, _, err := guard.Begin(ctx, messageKeyPrefix+"m-9", idempotency.Fingerprint([]byte(body)))
	require.NoError(t, err)
	_, err = f.engine.Transition(ctx, orders.TransitionCommand{OrderID: f.order.ID, Target: orders.StatusConfirmed})
	require.NoError(t, err)

	resp, err := proc.Handle(ctx, sqsEvent(body))
	require.NoError(t, err)
	assert.Len(t, resp.BatchItemFailures, 1, "the lease is still held")

	time.Sleep(30 * time.Millisecond)
	resp, err = proc.Handle(ctx, sqsEvent(body))
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	got, err := f.engine.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version, "reprocessing is a no-op")

	outcome, _, err := guard.Begin(ctx, messageKeyPrefix+"m-9", idempotency.Fingerprint([]byte(body)))
	require.NoError(t, err)
	assert.Equal(t, idempotency.Replay, outcome)
}

func TestHandle_ReusedMessageIDIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := `{"message_id":"m-8","order_id":"` + f.order.ID + `","target_status":"confirmed"}`
	second := `{"message_id":"m-8","order_id":"` + f.order.ID + `","target_status":"cancelled","reason":"dup"}`

	resp, err := f.proc.Handle(ctx, sqsEvent(first, second))
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	got, err := f.engine.Get(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusConfirmed, got.Status)
}

func TestHandle_WithoutGuardUsesSQSMessageID(t *testing.T) {
	f := newFixture(t)
	proc := NewProcessor(f.engine, nil, nil)

	resp, err := proc.Handle(context.Background(), sqsEvent(
		`{"order_id":"`+f.order.ID+`","target_status":"confirmed"}`,
		`{"order_id":"`+f.order.ID+`","target_status":"confirmed"}`,
	))
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	got, err := f.engine.Get(context.Background(), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestPermanentKinds(t *testing.T) {
	assert.True(t, permanent(orders.KindInvalidTransition))
	assert.True(t, permanent(orders.KindMissingContext))
	assert.True(t, permanent(orders.KindNotFound))
	assert.False(t, permanent(orders.KindStaleState))
	assert.False(t, permanent(orders.KindPersistenceTimeout))
	assert.False(t, permanent(orders.KindPersistence))
}

func TestComplete_UnencodableBodyIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	proc := NewProcessor(f.engine, f.guard, zap.New(core))

	key := messageKeyPrefix + "m-10"
	_, _, err := f.guard.Begin(ctx, key, "fp")
	require.NoError(t, err)

	proc.complete(ctx, proc.logger, key, f.order.ID, 200, map[string]any{"bad": make(chan int)})
	assert.Equal(t, 1, logs.FilterMessage("idempotency response not encoded").Len())

	outcome, rec, err := f.guard.Begin(ctx, key, "fp")
	require.NoError(t, err)
	assert.Equal(t, idempotency.Replay, outcome)
	assert.Empty(t, rec.ResponseBody)
}
