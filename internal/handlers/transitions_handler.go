package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-order-lifecycle/internal/orders"
	"github.com/imrishuroy/go-order-lifecycle/internal/validation"
)

type allowedResponse struct {
	OrderID       string               `json:"order_id"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	Version       int64                `json:"version"`
	Allowed       []orders.Status      `json:"allowed"`
}

func (h *ordersHandler) allowedTransitions(c *gin.Context) {
	order, next, err := h.engine.AllowedTransitions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log(c), err)
		return
	}
	if next == nil {
		next = []orders.Status{}
	}
	c.JSON(http.StatusOK, allowedResponse{
		OrderID:       order.ID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		Version:       order.Version,
		Allowed:       next,
	})
}

func (h *ordersHandler) transition(c *gin.Context) {
	var req validation.TransitionRequest
	if err := validation.BindAndValidate(c, &req, h.validator); err != nil {
		return
	}

	target := strings.ToLower(strings.TrimSpace(req.Status))
	if !orders.Status(target).Valid() {
		target = "unknown"
	}
	order, err := h.engine.Transition(c.Request.Context(), req.Command(c.Param("id")))
	if err != nil {
		outcome := string(orders.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		h.metrics.ObserveTransition(target, outcome)
		writeError(c, h.log(c), err)
		return
	}
	h.metrics.ObserveTransition(target, "ok")
	c.JSON(http.StatusOK, newOrderResponse(order))
}
