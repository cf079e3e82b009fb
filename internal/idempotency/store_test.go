package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// keeper is the contract both implementations satisfy.
type keeper interface {
	Begin(ctx context.Context, key, fingerprint string) (Outcome, *Record, error)
	Complete(ctx context.Context, key, orderID string, responseStatus int, responseBody string) error
	Fail(ctx context.Context, key, note string) error
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time { return c.now }

func implementations(clock *fixedClock) map[string]keeper {
	store := NewStore(newSimpleMock(), "idempotency-table", 48*time.Hour, DefaultLease)
	store.nowFunc = clock.Now
	mem := NewMemory(48*time.Hour, DefaultLease)
	mem.nowFunc = clock.Now
	return map[string]keeper{"dynamodb": store, "memory": mem}
}

func TestBegin_Complete_Replay(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	for name, k := range implementations(clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fp := Fingerprint([]byte(`{"customer_id":"c1"}`))

			outcome, _, err := k.Begin(ctx, "key-1", fp)
			if err != nil {
				t.Fatalf("Begin error: %v", err)
			}
			if outcome != Started {
				t.Fatalf("expected started, got %s", outcome)
			}

			outcome, _, err = k.Begin(ctx, "key-1", fp)
			if err != nil {
				t.Fatalf("second Begin error: %v", err)
			}
			if outcome != InProgress {
				t.Fatalf("expected in_progress while the first attempt runs, got %s", outcome)
			}

			if err := k.Complete(ctx, "key-1", "ord_1", 201, `{"id":"ord_1"}`); err != nil {
				t.Fatalf("Complete error: %v", err)
			}

			outcome, rec, err := k.Begin(ctx, "key-1", fp)
			if err != nil {
				t.Fatalf("replay Begin error: %v", err)
			}
			if outcome != Replay {
				t.Fatalf("expected replay, got %s", outcome)
			}
			if rec.ResponseStatus != 201 || rec.ResponseBody != `{"id":"ord_1"}` || rec.OrderID != "ord_1" {
				t.Fatalf("stored response not returned: %+v", rec)
			}

			outcome, _, err = k.Begin(ctx, "key-1", Fingerprint([]byte(`{"customer_id":"c2"}`)))
			if err != nil {
				t.Fatalf("mismatch Begin error: %v", err)
			}
			if outcome != Mismatch {
				t.Fatalf("expected mismatch, got %s", outcome)
			}

			if err := k.Complete(ctx, "key-1", "ord_1", 201, "{}"); !errors.Is(err, ErrConditionFailed) {
				t.Fatalf("completing twice must fail the condition, got %v", err)
			}
		})
	}
}

func TestBegin_RetryAfterFailure(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	for name, k := range implementations(clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fp := Fingerprint([]byte("body"))

			if _, _, err := k.Begin(ctx, "key-2", fp); err != nil {
				t.Fatalf("Begin error: %v", err)
			}
			if err := k.Fail(ctx, "key-2", "persistence timed out"); err != nil {
				t.Fatalf("Fail error: %v", err)
			}

			outcome, rec, err := k.Begin(ctx, "key-2", fp)
			if err != nil {
				t.Fatalf("retry Begin error: %v", err)
			}
			if outcome != Started || rec.Status != StatusInProgress {
				t.Fatalf("expected the retry to take the key over, got %s %+v", outcome, rec)
			}

			// A concurrent retry sees the key held again.
			outcome, _, err = k.Begin(ctx, "key-2", fp)
			if err != nil {
				t.Fatalf("Begin error: %v", err)
			}
			if outcome != InProgress {
				t.Fatalf("expected in_progress, got %s", outcome)
			}
		})
	}
}

func TestBegin_ExpiredKeyIsReusable(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	for name, k := range implementations(clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, _, err := k.Begin(ctx, "key-3", Fingerprint([]byte("a"))); err != nil {
				t.Fatalf("Begin error: %v", err)
			}
			if err := k.Complete(ctx, "key-3", "ord_1", 201, "{}"); err != nil {
				t.Fatalf("Complete error: %v", err)
			}

			clock.now = clock.now.Add(49 * time.Hour)
			outcome, _, err := k.Begin(ctx, "key-3", Fingerprint([]byte("b")))
			if err != nil {
				t.Fatalf("Begin error: %v", err)
			}
			if outcome != Started {
				t.Fatalf("expected an expired key to start fresh, got %s", outcome)
			}
		})
	}
}

func TestBegin_TakesOverAbandonedAttempt(t *testing.T) {
	clock := &fixedClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	for name, k := range implementations(clock) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fp := Fingerprint([]byte("body"))

			if _, _, err := k.Begin(ctx, "key-4", fp); err != nil {
				t.Fatalf("Begin error: %v", err)
			}

			clock.now = clock.now.Add(DefaultLease - time.Second)
			outcome, _, err := k.Begin(ctx, "key-4", fp)
			if err != nil {
				t.Fatalf("Begin error: %v", err)
			}
			if outcome != InProgress {
				t.Fatalf("expected in_progress within the lease, got %s", outcome)
			}

			clock.now = clock.now.Add(2 * time.Second)
			outcome, rec, err := k.Begin(ctx, "key-4", fp)
			if err != nil {
				t.Fatalf("Begin error: %v", err)
			}
			if outcome != Started || !rec.UpdatedAt.Equal(clock.now) {
				t.Fatalf("expected the abandoned key to be taken over, got %s %+v", outcome, rec)
			}

			// The new holder owns a fresh lease.
			outcome, _, err = k.Begin(ctx, "key-4", fp)
			if err != nil {
				t.Fatalf("Begin error: %v", err)
			}
			if outcome != InProgress {
				t.Fatalf("expected in_progress after the takeover, got %s", outcome)
			}
			if err := k.Complete(ctx, "key-4", "ord_4", 201, "{}"); err != nil {
				t.Fatalf("Complete error: %v", err)
			}
		})
	}
}

func TestStore_TakeoverRequiresUnchangedRecord(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour, time.Minute)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start
	s.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	if _, _, err := s.Begin(ctx, "k", "fp"); err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	now = start.Add(2 * time.Minute)
	if outcome, _, err := s.Begin(ctx, "k", "fp"); err != nil || outcome != Started {
		t.Fatalf("expected takeover, got %s %v", outcome, err)
	}

	// A second taker that read the record before the first takeover loses.
	err := s.update(ctx, "k", condition{status: StatusInProgress, updatedAt: &start}, map[string]types.AttributeValue{
		"#s": &types.AttributeValueMemberS{Value: StatusInProgress},
	})
	if !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected the stale takeover to fail its condition, got %v", err)
	}
}

func TestStore_WritesExpectedAttributes(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour, DefaultLease)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	if _, _, err := s.Begin(ctx, "k", "fp"); err != nil {
		t.Fatalf("Begin error: %v", err)
	}
	if err := s.Fail(ctx, "k", "failed-reason"); err != nil {
		t.Fatalf("Fail error: %v", err)
	}

	item := mock.table["k"]
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusFailed {
		t.Fatalf("status not updated to FAILED, got %+v", item["status"])
	}
	if n, ok := item["note"].(*types.AttributeValueMemberS); !ok || n.Value != "failed-reason" {
		t.Fatalf("note not set, got %+v", item["note"])
	}
	if exp, ok := item["expires_at"].(*types.AttributeValueMemberN); !ok || exp.Value != "1772362800" {
		t.Fatalf("expires_at = %+v", item["expires_at"])
	}

	var rec Record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Fingerprint != "fp" || !rec.CreatedAt.Equal(now) {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint([]byte("ab"), []byte("c")) == Fingerprint([]byte("a"), []byte("bc")) {
		t.Fatalf("part boundaries must change the fingerprint")
	}
	if Fingerprint([]byte("x")) != Fingerprint([]byte("x")) {
		t.Fatalf("fingerprint must be stable")
	}
}
