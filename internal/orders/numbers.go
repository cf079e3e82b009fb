package orders

import (
	"context"
	"fmt"
	"strconv"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

const DefaultNumberPrefix = "ORD"

// CounterNumbers allocates order numbers from an atomic per-year counter item.
type CounterNumbers struct {
	client    aws.DynamoDBAPI
	tableName string
	prefix    string
}

func NewCounterNumbers(client aws.DynamoDBAPI, tableName, prefix string) *CounterNumbers {
	if prefix == "" {
		prefix = DefaultNumberPrefix
	}
	return &CounterNumbers{client: client, tableName: tableName, prefix: prefix}
}

// Next increments the counter for now's year and formats the new value.
func (c *CounterNumbers) Next(ctx context.Context, now time.Time) (string, error) {
	year := now.UTC().Year()
	out, err := c.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &c.tableName,
		Key: map[string]types.AttributeValue{
			"counter_id": &types.AttributeValueMemberS{Value: fmt.Sprintf("orders#%04d", year)},
		},
		UpdateExpression: sdkaws.String("SET seq = if_not_exists(seq, :zero) + :inc, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":inc":  &types.AttributeValueMemberN{Value: "1"},
			":ua":   &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return "", wrapError(KindPersistence, "allocate order number", err, "incrementing order counter failed")
	}

	attr, ok := out.Attributes["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return "", newError(KindPersistence, "allocate order number", "counter returned no sequence value")
	}
	seq, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return "", wrapError(KindPersistence, "allocate order number", err, "counter returned %q", attr.Value)
	}
	return formatOrderNumber(c.prefix, year, seq), nil
}
