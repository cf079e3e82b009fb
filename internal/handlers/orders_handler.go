package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/idempotency"
	"github.com/imrishuroy/go-order-lifecycle/internal/observability"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

const (
	IdempotencyKeyHeader    = "Idempotency-Key"
	IdempotentReplayHeader  = "Idempotent-Replayed"
	maxIdempotencyKeyLength = 255
)

// Engine is the order engine surface the HTTP layer drives.
type Engine interface {
	CreateOrder(ctx context.Context, cmd orders.CreateOrderCommand) (orders.Order, error)
	Get(ctx context.Context, orderID string) (orders.Order, error)
	Transition(ctx context.Context, cmd orders.TransitionCommand) (orders.Order, error)
	AllowedTransitions(ctx context.Context, orderID string) (orders.Order, []orders.Status, error)
	Rollup(ctx context.Context, scope orders.Scope) (orders.Stats, error)
}

// IdempotencyStore guards POST /orders against duplicate submissions.
type IdempotencyStore interface {
	Begin(ctx context.Context, key, fingerprint string) (idempotency.Outcome, *idempotency.Record, error)
	Complete(ctx context.Context, key, orderID string, responseStatus int, responseBody string) error
	Fail(ctx context.Context, key, note string) error
}

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Engine Engine
	// Idempotency is optional; without it the Idempotency-Key header is ignored.
	Idempotency IdempotencyStore
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

type ordersHandler struct {
	engine    Engine
	idemp     IdempotencyStore
	logger    *zap.Logger
	metrics   *observability.Metrics
	validator *validatorv10.Validate
}

// orderResponse is the wire shape of an order.
type orderResponse struct {
	orders.Order
	ItemCount int `json:"item_count"`
}

func newOrderResponse(o orders.Order) orderResponse {
	return orderResponse{Order: o, ItemCount: o.ItemCount()}
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ordersHandler{
		engine:    cfg.Engine,
		idemp:     cfg.Idempotency,
		logger:    logger,
		metrics:   cfg.Metrics,
		validator: validation.New(),
	}

	r.POST("/orders", h.createOrder)
	r.GET("/orders/stats", h.stats)
	r.GET("/orders/:id", h.getOrder)
	r.GET("/orders/:id/transitions", h.allowedTransitions)
	r.POST("/orders/:id/transitions", h.transition)
}

func (h *ordersHandler) log(c *gin.Context) *zap.Logger {
	return observability.FromContext(c.Request.Context(), h.logger)
}

func (h *ordersHandler) createOrder(c *gin.Context) {
	ctx := c.Request.Context()
	logger := h.log(c)

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      string(orders.KindInvalidInput),
			"message":    "request body could not be read",
			"request_id": observability.RequestID(c),
		})
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	// Bind + validate request
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	idempKey := c.GetHeader(IdempotencyKeyHeader)
	if len(idempKey) > maxIdempotencyKeyLength {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      string(orders.KindInvalidInput),
			"message":    fmt.Sprintf("%s must be at most %d characters", IdempotencyKeyHeader, maxIdempotencyKeyLength),
			"request_id": observability.RequestID(c),
		})
		return
	}
	guarded := idempKey != "" && h.idemp != nil
	if guarded {
		logger = logger.With(zap.String("idempotency_key", idempKey))
		if done := h.beginIdempotent(c, logger, idempKey, raw); done {
			return
		}
	}

	order, err := h.engine.CreateOrder(ctx, req.Command())
	if err != nil {
		status, body := errorBody(c, err)
		if guarded {
			h.finishIdempotent(ctx, logger, idempKey, "", status, body)
		}
		writeError(c, logger, err)
		return
	}

	resp := newOrderResponse(order)
	if guarded {
		h.finishIdempotent(ctx, logger, idempKey, order.ID, http.StatusCreated, resp)
	}
	c.Header("Location", fmt.Sprintf("/orders/%s", order.ID))
	c.JSON(http.StatusCreated, resp)
}

// beginIdempotent claims the key and reports whether a response was already written.
func (h *ordersHandler) beginIdempotent(c *gin.Context, logger *zap.Logger, key string, raw []byte) bool {
	outcome, rec, err := h.idemp.Begin(c.Request.Context(), key, idempotency.Fingerprint([]byte(c.Request.URL.Path), raw))
	if err != nil {
		writeError(c, logger, err)
		return true
	}
	switch outcome {
	case idempotency.Replay:
		logger.Info("replaying stored response", zap.String("order_id", rec.OrderID))
		c.Header(IdempotentReplayHeader, "true")
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		return true
	case idempotency.InProgress:
		c.JSON(http.StatusConflict, gin.H{
			"error":      "request_in_progress",
			"message":    "a request with this idempotency key is still being processed",
			"request_id": observability.RequestID(c),
		})
		return true
	case idempotency.Mismatch:
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "idempotency_key_reused",
			"message":    "this idempotency key was used with a different request body",
			"request_id": observability.RequestID(c),
		})
		return true
	}
	return false
}

// finishIdempotent stores the response for replay. Server-side failures release
// the key instead so the client can retry.
func (h *ordersHandler) finishIdempotent(ctx context.Context, logger *zap.Logger, key, orderID string, status int, body any) {
	if status >= http.StatusInternalServerError {
		if err := h.idemp.Fail(ctx, key, fmt.Sprintf("status %d", status)); err != nil {
			logger.Warn("idempotency fail not recorded", zap.Error(err))
		}
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		logger.Warn("idempotency response not encoded", zap.Error(err))
		return
	}
	if err := h.idemp.Complete(ctx, key, orderID, status, string(payload)); err != nil {
		logger.Warn("idempotency completion not recorded", zap.Error(err))
	}
}

func (h *ordersHandler) getOrder(c *gin.Context) {
	order, err := h.engine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log(c), err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (h *ordersHandler) stats(c *gin.Context) {
	stats, err := h.engine.Rollup(c.Request.Context(), orders.Scope{CustomerID: c.Query("customer_id")})
	if err != nil {
		writeError(c, h.log(c), err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
