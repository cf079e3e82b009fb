package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-order-lifecycle/internal/observability"
	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
)

// statusFor maps an engine error kind onto an HTTP status.
func statusFor(kind orders.Kind) int {
	switch kind {
	case orders.KindInvalidInput, orders.KindMissingContext, orders.KindNegativeAmount, orders.KindEmptyOrder:
		return http.StatusBadRequest
	case orders.KindNotFound:
		return http.StatusNotFound
	case orders.KindStaleState:
		return http.StatusConflict
	case orders.KindInvalidTransition, orders.KindItemUnavailable:
		return http.StatusUnprocessableEntity
	case orders.KindPersistenceTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// errorBody renders err in the {error, message, request_id} envelope.
// Details of internal failures stay in the logs.
func errorBody(c *gin.Context, err error) (int, gin.H) {
	kind := orders.KindOf(err)
	if kind == "" {
		kind = orders.KindPersistence
	}
	status := statusFor(kind)
	message := orders.MessageOf(err)
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	return status, gin.H{
		"error":      string(kind),
		"message":    message,
		"request_id": observability.RequestID(c),
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, body := errorBody(c, err)
	_ = c.Error(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("kind", body["error"].(string)), zap.Error(err))
	}
	c.JSON(status, body)
}
