// Package handlers exposes the registration and order lifecycle over
// HTTP. Handlers bind input, call a service, and translate sentinel
// errors to status codes; no business rules live here.
package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"community-events/internal/status"
	"community-events/utils"
)

// errorJSON maps service errors onto HTTP responses. Every body is
// {"error": message}, plus a machine code where the client branches on
// it.
func errorJSON(c echo.Context, err error) error {
	var ve *status.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": ve.Reason,
			"field": ve.Field,
		})
	}

	switch {
	case errors.Is(err, status.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})

	case errors.Is(err, status.ErrNotEligible):
		return c.JSON(http.StatusForbidden, map[string]string{"error": "registration is not open to you"})

	case errors.Is(err, status.ErrAlreadyRegistered):
		return c.JSON(http.StatusConflict, map[string]string{"error": "already registered for this event"})

	case errors.Is(err, status.ErrTicketRequired):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "select a ticket type"})

	case errors.Is(err, status.ErrTierRequired):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "select a valid quantity"})

	case errors.Is(err, status.ErrTicketUnavailable):
		return c.JSON(http.StatusConflict, map[string]string{"error": "ticket type is no longer available"})

	case errors.Is(err, status.ErrPaymentRequired):
		return c.JSON(http.StatusPaymentRequired, map[string]string{"error": "this ticket requires payment; create an order"})

	case errors.Is(err, status.ErrNoPaymentRequired):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "this ticket does not require payment; register directly"})

	case errors.Is(err, status.ErrOrderTerminal):
		return c.JSON(http.StatusConflict, map[string]string{"error": "order is already finished"})

	case errors.Is(err, status.ErrOrderNotPaid):
		return c.JSON(http.StatusConflict, map[string]string{"error": "order is not paid"})

	case errors.Is(err, status.ErrIdentityNotBound):
		return c.JSON(http.StatusConflict, map[string]string{
			"error": "payment identity is not bound",
			"code":  "IDENTITY_NOT_BOUND",
		})

	case errors.Is(err, status.ErrFailedPayment):
		return c.JSON(http.StatusBadGateway, map[string]string{"error": "payment failed"})

	case errors.Is(err, utils.ErrCircuitOpen):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "payment gateway unavailable"})

	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
