package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRegion             = "us-east-1"
	defaultListenAddr         = ":8080"
	defaultCustomerIndex      = "customer_id-index"
	defaultPersistenceTimeout = 3 * time.Second
	defaultIdempotencyTTL     = 48 * time.Hour
	defaultIdempotencyLease   = 15 * time.Minute
	defaultOrderNumberPrefix  = "ORD"
	defaultMetricsNamespace   = "OrderLifecycle"

	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config captures runtime configuration for every entrypoint.
type Config struct {
	AWS      AWSConfig
	Tables   TableConfig
	Orders   OrderConfig
	Server   ServerConfig
	Metrics  MetricsConfig
	Backend  string
	RunLocal bool
}

// AWSConfig selects the region and an optional emulator endpoint.
type AWSConfig struct {
	Region           string
	EndpointOverride string
}

// TableConfig names the DynamoDB tables and indexes.
type TableConfig struct {
	Orders        string
	CustomerIndex string
	Counters      string
	Products      string
	Idempotency   string
}

// OrderConfig tunes the order lifecycle engine.
type OrderConfig struct {
	EventsQueueURL           string
	PersistenceTimeout       time.Duration
	IdempotencyTTL           time.Duration
	// IdempotencyLease is how long an unfinished attempt blocks a retry.
	IdempotencyLease         time.Duration
	ShippingRequiresTracking bool
	NumberPrefix             string
}

type ServerConfig struct {
	ListenAddr string
}

type MetricsConfig struct {
	Namespace string
}

// Load reads configuration from the process environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		AWS: AWSConfig{
			Region:           valueOr(getenv("AWS_REGION"), defaultRegion),
			EndpointOverride: strings.TrimSpace(getenv("AWS_ENDPOINT_OVERRIDE")),
		},
		Tables: TableConfig{
			Orders:        strings.TrimSpace(getenv("ORDERS_TABLE")),
			CustomerIndex: valueOr(getenv("ORDERS_CUSTOMER_INDEX"), defaultCustomerIndex),
			Counters:      strings.TrimSpace(getenv("COUNTERS_TABLE")),
			Products:      strings.TrimSpace(getenv("PRODUCTS_TABLE")),
			Idempotency:   strings.TrimSpace(getenv("IDEMPOTENCY_TABLE")),
		},
		Orders: OrderConfig{
			EventsQueueURL: strings.TrimSpace(getenv("ORDER_EVENTS_QUEUE_URL")),
			NumberPrefix:   valueOr(getenv("ORDER_NUMBER_PREFIX"), defaultOrderNumberPrefix),
		},
		Server: ServerConfig{
			ListenAddr: valueOr(getenv("LISTEN_ADDR"), defaultListenAddr),
		},
		Metrics: MetricsConfig{
			Namespace: valueOr(getenv("METRICS_NAMESPACE"), defaultMetricsNamespace),
		},
		Backend: strings.ToLower(valueOr(getenv("STORE_BACKEND"), BackendDynamoDB)),
	}

	var err error
	if cfg.Orders.PersistenceTimeout, err = parseDuration(getenv, "PERSISTENCE_TIMEOUT", defaultPersistenceTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Orders.IdempotencyTTL, err = parseDuration(getenv, "IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.Orders.IdempotencyLease, err = parseDuration(getenv, "IDEMPOTENCY_LEASE", defaultIdempotencyLease); err != nil {
		return Config{}, err
	}
	if cfg.Orders.ShippingRequiresTracking, err = parseBool(getenv, "SHIPPING_REQUIRES_TRACKING", true); err != nil {
		return Config{}, err
	}
	if cfg.RunLocal, err = parseBool(getenv, "RUN_LOCAL", false); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendDynamoDB:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Backend)
	}

	var missing []string
	if c.Tables.Orders == "" {
		missing = append(missing, "ORDERS_TABLE")
	}
	if c.Tables.Counters == "" {
		missing = append(missing, "COUNTERS_TABLE")
	}
	if c.Tables.Products == "" {
		missing = append(missing, "PRODUCTS_TABLE")
	}
	if c.Tables.Idempotency == "" {
		missing = append(missing, "IDEMPOTENCY_TABLE")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func valueOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", key)
	}
	return d, nil
}

func parseBool(getenv func(string) string, key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return b, nil
}
