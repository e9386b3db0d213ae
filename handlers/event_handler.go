package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"community-events/internal/eligibility"
	"community-events/internal/status"
	"community-events/internal/store"
	"community-events/internal/tickets"
	"community-events/models"
	"community-events/security"
)

type EventHandler struct {
	store *store.Store
}

func NewEventHandler(st *store.Store) *EventHandler {
	return &EventHandler{store: st}
}

// GetEligibility - GET /api/events/:eventId/eligibility
//
// Works for anonymous viewers too; they get login_required.
func (h *EventHandler) GetEligibility(c echo.Context) error {
	ctx := c.Request().Context()
	eventID := c.PathParam("eventId")
	userID := security.UserID(c)

	event, err := h.store.GetEvent(ctx, eventID)
	if err != nil {
		return errorJSON(c, err)
	}
	count, err := h.store.RegistrationCount(ctx, eventID)
	if err != nil {
		return errorJSON(c, err)
	}

	var existing *models.Registration
	if userID != "" {
		existing, err = h.store.FindRegistration(ctx, eventID, userID)
		if err != nil && !errors.Is(err, status.ErrNotFound) {
			return errorJSON(c, err)
		}
	}

	result := eligibility.Evaluate(eligibility.Input{
		Event:           *event,
		RegisteredCount: count,
		ViewerID:        userID,
		Existing:        existing,
		Now:             time.Now(),
	})

	return c.JSON(http.StatusOK, map[string]any{
		"can_register": result.CanRegister,
		"status":       result.Status,
	})
}

// ListTickets - GET /api/events/:eventId/tickets
func (h *EventHandler) ListTickets(c echo.Context) error {
	ctx := c.Request().Context()
	eventID := c.PathParam("eventId")

	if _, err := h.store.GetEvent(ctx, eventID); err != nil {
		return errorJSON(c, err)
	}
	catalog, err := h.store.TicketTypes(ctx, eventID)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"tickets": tickets.Filter(catalog),
	})
}
