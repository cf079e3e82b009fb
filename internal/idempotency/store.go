package idempotency

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	lease     time.Duration // how long an IN_PROGRESS holder owns the key
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: default TTL window (e.g., 48*time.Hour)
// lease: how long an unfinished attempt blocks others (e.g., DefaultLease)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow, lease time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		lease:     lease,
		nowFunc:   time.Now,
	}
}

// ErrConditionFailed indicates a conditional write failed because the record
// was not in the state the caller assumed.
var ErrConditionFailed = errors.New("conditional check failed")

// Begin claims key for a request identified by fingerprint. A record whose TTL
// has passed counts as absent even if DynamoDB has not reaped it yet.
func (s *Store) Begin(ctx context.Context, key, fingerprint string) (Outcome, *Record, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err == nil {
		return Started, &rec, nil
	}
	if !isConditionFailure(err) {
		return 0, nil, fmt.Errorf("put item: %w", err)
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return 0, nil, err
	}
	if existing == nil {
		// Reaped between the put and the read; the caller may retry.
		return InProgress, nil, nil
	}

	outcome := classify(existing, fingerprint, now, s.lease)
	if outcome != Started {
		return outcome, existing, nil
	}

	// Take over a failed attempt, or an abandoned one as long as its holder
	// has not touched it since we read it.
	guard := condition{status: existing.Status}
	if existing.Status == StatusInProgress {
		guard.updatedAt = &existing.UpdatedAt
	}
	err = s.update(ctx, key, guard, map[string]types.AttributeValue{
		"#s":         &types.AttributeValueMemberS{Value: StatusInProgress},
		"updated_at": timestamp(now),
		"expires_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
	})
	if errors.Is(err, ErrConditionFailed) {
		return InProgress, existing, nil
	}
	if err != nil {
		return 0, nil, err
	}
	existing.Status = StatusInProgress
	existing.UpdatedAt = now
	return Started, existing, nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	input := &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: sdkaws.Bool(true),
	}
	out, err := s.client.GetItem(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	if rec.expired(s.nowFunc()) {
		return nil, nil
	}
	return &rec, nil
}

// Complete sets status to DONE and stores a small response body & status.
// Only the IN_PROGRESS holder may complete a key.
func (s *Store) Complete(ctx context.Context, key, orderID string, responseStatus int, responseBody string) error {
	now := s.nowFunc().UTC()
	err := s.update(ctx, key, condition{status: StatusInProgress}, map[string]types.AttributeValue{
		"#s":              &types.AttributeValueMemberS{Value: StatusDone},
		"order_id":        &types.AttributeValueMemberS{Value: orderID},
		"response_body":   &types.AttributeValueMemberS{Value: responseBody},
		"response_status": &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
		"updated_at":      timestamp(now),
	})
	if err != nil {
		return fmt.Errorf("update item (complete): %w", err)
	}
	return nil
}

// Fail marks the record FAILED so a later attempt with the same request can retry.
func (s *Store) Fail(ctx context.Context, key, note string) error {
	now := s.nowFunc().UTC()
	err := s.update(ctx, key, condition{status: StatusInProgress}, map[string]types.AttributeValue{
		"#s":         &types.AttributeValueMemberS{Value: StatusFailed},
		"note":       &types.AttributeValueMemberS{Value: note},
		"updated_at": timestamp(now),
	})
	if err != nil {
		return fmt.Errorf("update item (fail): %w", err)
	}
	return nil
}

// condition is the state an update requires the record to be in.
type condition struct {
	status string
	// updatedAt, when set, also pins the record's last update.
	updatedAt *time.Time
}

func (c condition) expression(values map[string]types.AttributeValue) string {
	values[":expected"] = &types.AttributeValueMemberS{Value: c.status}
	if c.updatedAt == nil {
		return "#s = :expected"
	}
	values[":seen"] = timestamp(*c.updatedAt)
	return "#s = :expected AND updated_at = :seen"
}

// update sets the given attributes conditioned on cond.
// The key "#s" stands for the status attribute.
func (s *Store) update(ctx context.Context, key string, cond condition, set map[string]types.AttributeValue) error {
	values := map[string]types.AttributeValue{}
	condExpr := cond.expression(values)
	expr := ""
	for _, name := range sortedKeys(set) {
		placeholder := ":" + placeholderName(name)
		values[placeholder] = set[name]
		if expr != "" {
			expr += ", "
		}
		expr += name + " = " + placeholder
	}

	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:    awsString("SET " + expr),
		ConditionExpression: awsString(condExpr),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrConditionFailed
		}
		return err
	}
	return nil
}

func isConditionFailure(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func placeholderName(attr string) string {
	if attr == "#s" {
		return "status"
	}
	return attr
}

func sortedKeys(m map[string]types.AttributeValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// timestamp encodes t the way attributevalue marshals time.Time, so updates
// and conditions compare equal to what Begin's PutItem stored.
func timestamp(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

// Helper
func awsString(s string) *string { return &s }
