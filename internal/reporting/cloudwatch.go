// Package reporting publishes order rollups as CloudWatch metrics.
package reporting

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Publisher writes Stats to a CloudWatch namespace.
type Publisher struct {
	client    aws.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

func NewPublisher(client aws.CloudWatchAPI, namespace string) *Publisher {
	return &Publisher{client: client, namespace: namespace, nowFunc: time.Now}
}

var statusMetricNames = map[orders.Status]string{
	orders.StatusPending:    "PendingOrders",
	orders.StatusConfirmed:  "ConfirmedOrders",
	orders.StatusProcessing: "ProcessingOrders",
	orders.StatusShipped:    "ShippedOrders",
	orders.StatusDelivered:  "DeliveredOrders",
	orders.StatusCancelled:  "CancelledOrders",
	orders.StatusRefunded:   "RefundedOrders",
}

// PublishStats sends one datum per figure of stats. A customer scope adds a
// CustomerId dimension.
func (p *Publisher) PublishStats(ctx context.Context, scope orders.Scope, stats orders.Stats) error {
	ts := p.nowFunc().UTC()
	var dims []types.Dimension
	if scope.CustomerID != "" {
		dims = []types.Dimension{{Name: sdkaws.String("CustomerId"), Value: sdkaws.String(scope.CustomerID)}}
	}

	datum := func(name string, value float64, unit types.StandardUnit) types.MetricDatum {
		return types.MetricDatum{
			MetricName: sdkaws.String(name),
			Value:      sdkaws.Float64(value),
			Unit:       unit,
			Timestamp:  &ts,
			Dimensions: dims,
		}
	}

	data := []types.MetricDatum{
		datum("TotalOrders", float64(stats.TotalOrders), types.StandardUnitCount),
		datum("TotalAmount", stats.TotalAmount.InexactFloat64(), types.StandardUnitNone),
		datum("PaidAmount", stats.PaidAmount.InexactFloat64(), types.StandardUnitNone),
	}
	for _, status := range orders.Statuses {
		data = append(data, datum(statusMetricNames[status], float64(stats.CountFor(status)), types.StandardUnitCount))
	}

	_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(p.namespace),
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
