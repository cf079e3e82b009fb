package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

type roller interface {
	Rollup(ctx context.Context, scope orders.Scope) (orders.Stats, error)
}

type statsPublisher interface {
	PublishStats(ctx context.Context, scope orders.Scope, stats orders.Stats) error
}

// reporter rolls up order statistics on a schedule and publishes them.
type reporter struct {
	engine    roller
	publisher statsPublisher
	logger    *zap.Logger
}

// run handles a scheduled event. The event detail may narrow the rollup to a
// single customer with {"customer_id": "..."}.
func (r *reporter) run(ctx context.Context, ev events.CloudWatchEvent) error {
	var scope orders.Scope
	if len(ev.Detail) > 0 && string(ev.Detail) != "null" {
		if err := json.Unmarshal(ev.Detail, &scope); err != nil {
			return fmt.Errorf("decode event detail: %w", err)
		}
	}

	stats, err := r.engine.Rollup(ctx, scope)
	if err != nil {
		return fmt.Errorf("rollup: %w", err)
	}

	r.logger.Info("order stats",
		zap.String("customer_id", scope.CustomerID),
		zap.Int("total_orders", stats.TotalOrders),
		zap.String("total_amount", stats.TotalAmount.String()),
		zap.String("paid_amount", stats.PaidAmount.String()),
	)
	if r.publisher == nil {
		return nil
	}
	if err := r.publisher.PublishStats(ctx, scope, stats); err != nil {
		return fmt.Errorf("publish stats: %w", err)
	}
	return nil
}
