package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/app"
	"github.com/imrishuroy/go-order-lifecycle/internal/config"
	"github.com/imrishuroy/go-order-lifecycle/internal/handlers"
	"github.com/imrishuroy/go-order-lifecycle/internal/observability"
)

func setupRouter(cfg handlers.HandlerConfig, exposeMetrics bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(cfg.Logger))
	r.Use(observability.Instrument(cfg.Metrics))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if exposeMetrics && cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

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

	handlerCfg := handlers.HandlerConfig{
		Engine:      components.Engine,
		Idempotency: components.Idempotency,
		Logger:      logger,
		Metrics:     observability.NewMetrics("api"),
	}

	// if RUN_LOCAL is true, run local HTTP server for development.
	if cfg.RunLocal {
		r := setupRouter(handlerCfg, true)
		logger.Info("running local server", zap.String("addr", cfg.Server.ListenAddr), zap.String("backend", cfg.Backend))
		if err := r.Run(cfg.Server.ListenAddr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	gin.SetMode(gin.ReleaseMode)
	r := setupRouter(handlerCfg, false)

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		// the adapter handles proxying; use adapter.ProxyWithContext for proper context propagation
		return adapter.ProxyWithContext(ctx, req)
	})
}
