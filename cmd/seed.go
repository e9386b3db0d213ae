package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"community-events/internal/status"
	"community-events/internal/store"
	"community-events/models"
	"community-events/security"
)

// seedDevData loads a sample event and ticket catalog for local
// development and logs a ready-to-use bearer token.
func seedDevData(ctx context.Context, st *store.Store, auth *security.Auth, logger *slog.Logger) error {
	const eventID = "dev-event-1"

	if _, err := st.GetEvent(ctx, eventID); err == nil {
		return nil
	} else if !errors.Is(err, status.ErrNotFound) {
		return err
	}

	now := time.Now()
	deadline := now.Add(13 * 24 * time.Hour)
	maxAttendees := 200

	event := &models.Event{
		ID:                   eventID,
		Title:                "Community Meetup",
		Description:          "Monthly community meetup with talks and networking.",
		Venue:                "Main Hall",
		StartTime:            now.Add(14 * 24 * time.Hour),
		EndTime:              now.Add(14*24*time.Hour + 3*time.Hour),
		RegistrationDeadline: &deadline,
		MaxAttendees:         &maxAttendees,
		Status:               models.EventPublished,
		RequireConsent:       true,
		Questions: []models.Question{
			{ID: "affiliation", Label: "Affiliation", Required: true},
			{ID: "dietary", Label: "Dietary requirements", Required: false},
		},
		CreatedAt: now,
	}
	if err := st.CreateEvent(ctx, event); err != nil {
		return err
	}

	maxStandard := 150
	tickets := []models.TicketType{
		{
			ID:          "dev-ticket-standard",
			EventID:     eventID,
			Name:        "Standard",
			Price:       decimal.RequireFromString("30"),
			MaxQuantity: &maxStandard,
			IsActive:    true,
		},
		{
			ID:          "dev-ticket-group",
			EventID:     eventID,
			Name:        "Group",
			Price:       decimal.RequireFromString("100"),
			IsActive:    true,
			GiftInvites: 3,
			Tiers: []models.PriceTier{
				{ID: "dev-tier-4", TicketTypeID: "dev-ticket-group", Quantity: 4, Price: decimal.RequireFromString("100")},
				{ID: "dev-tier-8", TicketTypeID: "dev-ticket-group", Quantity: 8, Price: decimal.RequireFromString("180")},
			},
		},
	}
	for i := range tickets {
		if err := st.CreateTicketType(ctx, &tickets[i]); err != nil {
			return err
		}
	}

	token, err := auth.NewToken("dev-user-1", 30*24*time.Hour)
	if err != nil {
		return err
	}
	logger.Info("dev data seeded", "event_id", eventID, "bearer_token", token)
	return nil
}
