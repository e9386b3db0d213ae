package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"

	"community-events/internal/orders"
	"community-events/internal/payment"
	"community-events/internal/status"
	"community-events/utils"
)

type PaymentHandler struct {
	orderService *orders.Service
	notifyKey    string
	logger       *slog.Logger
}

func NewPaymentHandler(orderService *orders.Service, notifyKey string, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{
		orderService: orderService,
		notifyKey:    notifyKey,
		logger:       logger,
	}
}

// Webhook - POST /api/webhooks/payment
//
// The gateway posts settled transactions here, HMAC-signed over the
// raw body. Settlement is idempotent, so redelivery is harmless.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	if h.notifyKey == "" {
		// Without a key every signature verifies against the empty
		// secret, so the endpoint stays shut until one is configured.
		h.logger.Error("webhook rejected: notify key not configured")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "webhook verification not configured"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
	}

	signature := c.Request().Header.Get("SignedHash")
	if !utils.VerifyHmac256(body, []byte(h.notifyKey), signature) {
		h.logger.Warn("webhook signature mismatch")
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	}

	var txn status.Transaction
	if err := json.Unmarshal(body, &txn); err != nil || txn.OrderID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
	}

	if txn.Status != "SUCCESS" {
		// Non-success notifications are acknowledged and dropped; the
		// expiry sweep owns failed payments.
		return c.JSON(http.StatusOK, map[string]string{"code": "OK"})
	}

	if err := h.orderService.MarkPaid(c.Request().Context(), &txn); err != nil {
		h.logger.Error("webhook settlement failed", "order_id", txn.OrderID, "error", err)
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"code": "OK"})
}

// SimulatePayment - POST /api/test/simulate-payment
//
// Development only. Settles an order through the mock gateway exactly
// the way a real notification would.
func (h *PaymentHandler) SimulatePayment(gateway *payment.MockGateway) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req struct {
			OrderID string `json:"order_id"`
		}
		if err := c.Bind(&req); err != nil || req.OrderID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "order_id required"})
		}

		txn, err := gateway.Pay(req.OrderID)
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"message":     "payment simulated",
			"transaction": txn,
		})
	}
}
