// Package app assembles the order engine and its collaborators from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
	"github.com/imrishuroy/go-order-lifecycle/internal/catalog"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// Components are the wired services shared by the entrypoints.
type Components struct {
	Engine      *orders.Engine
	Idempotency idempotency.Guard
	// Clients is nil for the memory backend.
	Clients *aws.AWSClients
}

// Build wires the engine for cfg.Backend.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Components, error) {
	policy := orders.Policy{ShippingRequiresTracking: cfg.Orders.ShippingRequiresTracking}
	deps := orders.EngineDeps{
		Policy:  &policy,
		Timeout: cfg.Orders.PersistenceTimeout,
		Logger:  logger,
	}

	if cfg.Backend == config.BackendMemory {
		logger.Warn("using in-memory backend; state is lost on exit")
		deps.Repository = orders.NewMemoryStore()
		deps.Catalog = catalog.NewMemory(sampleProducts()...)
		deps.Numbers = orders.NewMemoryNumbers(cfg.Orders.NumberPrefix)
		engine, err := newEngine(deps, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &Components{
			Engine:      engine,
			Idempotency: idempotency.NewMemory(cfg.Orders.IdempotencyTTL, cfg.Orders.IdempotencyLease),
		}, nil
	}

	clients, err := aws.NewAWSClients(ctx, aws.Options{
		Region:           cfg.AWS.Region,
		EndpointOverride: cfg.AWS.EndpointOverride,
	})
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}

	deps.Repository = orders.NewStore(clients.DynamoDB, orders.StoreConfig{
		OrdersTable:   cfg.Tables.Orders,
		CountersTable: cfg.Tables.Counters,
		CustomerIndex: cfg.Tables.CustomerIndex,
		PageTimeout:   cfg.Orders.PersistenceTimeout,
	})
	products := catalog.NewStore(clients.DynamoDB, cfg.Tables.Products)
	deps.Catalog = products
	// A local emulator starts empty; give it something to order.
	if cfg.RunLocal && cfg.AWS.EndpointOverride != "" {
		if err := seedCatalog(ctx, products, sampleProducts()); err != nil {
			logger.Warn("seeding local catalog failed", zap.Error(err))
		}
	}
	deps.Numbers = orders.NewCounterNumbers(clients.DynamoDB, cfg.Tables.Counters, cfg.Orders.NumberPrefix)
	if cfg.Orders.EventsQueueURL != "" {
		deps.Events = orders.NewQueuePublisher(aws.NewPublisher(clients.SQS, cfg.Orders.EventsQueueURL))
	} else {
		logger.Info("ORDER_EVENTS_QUEUE_URL not set; order events are not published")
	}

	engine, err := newEngine(deps, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Components{
		Engine:      engine,
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Orders.IdempotencyTTL, cfg.Orders.IdempotencyLease),
		Clients:     clients,
	}, nil
}

func newEngine(deps orders.EngineDeps, cfg config.Config, logger *zap.Logger) (*orders.Engine, error) {
	engine, err := orders.NewEngine(deps)
	if err != nil {
		return nil, err
	}
	logger.Info("order engine ready",
		zap.String("backend", cfg.Backend),
		zap.Bool("shipping_requires_tracking", engine.Policy().ShippingRequiresTracking),
		zap.Duration("persistence_timeout", cfg.Orders.PersistenceTimeout),
	)
	return engine, nil
}

type productWriter interface {
	Put(ctx context.Context, p catalog.Product) error
}

func seedCatalog(ctx context.Context, w productWriter, products []catalog.Product) error {
	for _, p := range products {
		if err := w.Put(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	return nil
}

// sampleProducts seeds the in-memory catalog for local runs.
func sampleProducts() []catalog.Product {
	return []catalog.Product{
		{
			ID:     "prod-tent",
			Name:   "Event Tent",
			Active: true,
			Variants: []catalog.Variant{{
				ID:    "white",
				Name:  "White",
				Price: decimal.RequireFromString("15000"),
				Sizes: []catalog.Size{{Name: "10x10", Stock: 20}, {Name: "20x20", Stock: 5}},
				RentalTiers: []catalog.RentalTier{
					{MinDays: 1, PricePerDay: decimal.RequireFromString("1200")},
					{MinDays: 7, PricePerDay: decimal.RequireFromString("900")},
				},
			}},
		},
		{
			ID:     "prod-chair",
			Name:   "Folding Chair",
			Active: true,
			Variants: []catalog.Variant{{
				ID:    "std",
				Price: decimal.RequireFromString("500"),
				Stock: 500,
			}},
		},
	}
}
