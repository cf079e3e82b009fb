package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/app"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/observability"
	"github.com/imrishuroy/go-order-lifecycle/internal/reporting"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	components, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire order engine", zap.Error(err))
	}

	r := &reporter{engine: components.Engine, logger: logger.With(zap.String("service", "reporter"))}
	if components.Clients != nil {
		r.publisher = reporting.NewPublisher(components.Clients.CloudWatch, cfg.Metrics.Namespace)
	}

	if cfg.RunLocal {
		if err := r.run(context.Background(), events.CloudWatchEvent{}); err != nil {
			logger.Fatal("local report failed", zap.Error(err))
		}
		return
	}

	lambda.Start(r.run)
}
