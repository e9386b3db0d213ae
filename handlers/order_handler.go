package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"

	"community-events/internal/orders"
	"community-events/models"
	"community-events/security"
)

type OrderHandler struct {
	orderService *orders.Service
	logger       *slog.Logger
}

func NewOrderHandler(orderService *orders.Service, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// CreateOrder - POST /api/events/:eventId/orders
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var form orders.CreateForm
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	form.EventID = c.PathParam("eventId")
	form.UserID = security.UserID(c)

	// Invite codes may also arrive on the query string from shared links.
	if form.InviteCode == "" {
		if code := c.QueryParam("invite"); code != "" {
			form.InviteCode = code
		} else if code := c.QueryParam("gift"); code != "" {
			form.InviteCode = code
		}
	}

	order, existing, err := h.orderService.Create(c.Request().Context(), &form)
	if err != nil {
		h.logger.Warn("order create failed",
			"event_id", form.EventID, "user_id", form.UserID, "error", err)
		return errorJSON(c, err)
	}

	code := http.StatusCreated
	if existing {
		code = http.StatusOK
	}
	return c.JSON(code, map[string]any{
		"order":       order,
		"is_existing": existing,
	})
}

// GetOrder - GET /api/events/:eventId/orders/:orderId
//
// A paid order carries the registration it settled.
func (h *OrderHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	order, err := h.orderService.Get(ctx, c.PathParam("orderId"), security.UserID(c))
	if err != nil {
		return errorJSON(c, err)
	}

	resp := map[string]any{"order": order}
	if order.Status == models.OrderPaid {
		reg, err := h.orderService.Registration(ctx, order)
		if err != nil {
			h.logger.Warn("settled registration lookup failed", "order_id", order.ID, "error", err)
		} else {
			resp["registration"] = reg
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// GetPendingOrder - GET /api/events/:eventId/orders/pending
func (h *OrderHandler) GetPendingOrder(c echo.Context) error {
	order, err := h.orderService.Pending(c.Request().Context(), c.PathParam("eventId"), security.UserID(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"order": order})
}

// CancelOrder - POST /api/events/:eventId/orders/:orderId/cancel
func (h *OrderHandler) CancelOrder(c echo.Context) error {
	order, err := h.orderService.Cancel(c.Request().Context(), c.PathParam("orderId"), security.UserID(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"order": order})
}

// ListInvites - GET /api/events/:eventId/orders/:orderId/invites
func (h *OrderHandler) ListInvites(c echo.Context) error {
	invites, err := h.orderService.Invites(c.Request().Context(), c.PathParam("orderId"), security.UserID(c))
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"invites": invites})
}
