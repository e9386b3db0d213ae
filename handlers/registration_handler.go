package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"

	"community-events/internal/registration"
	"community-events/security"
)

type RegistrationHandler struct {
	finalizer *registration.Finalizer
	logger    *slog.Logger
}

func NewRegistrationHandler(finalizer *registration.Finalizer, logger *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		finalizer: finalizer,
		logger:    logger,
	}
}

// Register - POST /api/events/:eventId/register
//
// The free path only. A paid ticket selection is answered with 402 and
// the client creates an order instead.
func (h *RegistrationHandler) Register(c echo.Context) error {
	var form registration.Form
	if err := c.Bind(&form); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	form.EventID = c.PathParam("eventId")
	form.UserID = security.UserID(c)

	if form.InviteCode == "" {
		if code := c.QueryParam("invite"); code != "" {
			form.InviteCode = code
		} else if code := c.QueryParam("gift"); code != "" {
			form.InviteCode = code
		}
	}

	reg, err := h.finalizer.Register(c.Request().Context(), &form)
	if err != nil {
		h.logger.Warn("registration failed",
			"event_id", form.EventID, "user_id", form.UserID, "error", err)
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{"registration": reg})
}
