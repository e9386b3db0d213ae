package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"community-events/models"
)

type eventRow struct {
	ID                   string `db:"id"`
	Title                string `db:"title"`
	Description          string `db:"description"`
	Venue                string `db:"venue"`
	StartTime            int64  `db:"start_time"`
	EndTime              int64  `db:"end_time"`
	RegistrationDeadline *int64 `db:"registration_deadline"`
	MaxAttendees         *int   `db:"max_attendees"`
	Status               string `db:"status"`
	IsExternal           bool   `db:"is_external"`
	ExternalURL          string `db:"external_url"`
	RequireApproval      bool   `db:"require_approval"`
	RequireConsent       bool   `db:"require_consent"`
	Questions            string `db:"questions"`
	CreatedAt            int64  `db:"created_at"`
}

func (r *eventRow) toModel() (*models.Event, error) {
	var questions []models.Question
	if r.Questions != "" {
		if err := json.Unmarshal([]byte(r.Questions), &questions); err != nil {
			return nil, err
		}
	}

	return &models.Event{
		ID:                   r.ID,
		Title:                r.Title,
		Description:          r.Description,
		Venue:                r.Venue,
		StartTime:            timeFromUnix(r.StartTime),
		EndTime:              timeFromUnix(r.EndTime),
		RegistrationDeadline: timePtrFromUnix(r.RegistrationDeadline),
		MaxAttendees:         r.MaxAttendees,
		Status:               models.EventStatus(r.Status),
		IsExternal:           r.IsExternal,
		ExternalURL:          r.ExternalURL,
		RequireApproval:      r.RequireApproval,
		RequireConsent:       r.RequireConsent,
		Questions:            questions,
		CreatedAt:            timeFromUnix(r.CreatedAt),
	}, nil
}

// GetEvent returns a single event by id.
func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var row eventRow
	err := s.db.Select("*").From("events").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toModel()
}

// CreateEvent inserts an event. Organizer tooling lives elsewhere; this
// backs seeding and tests.
func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	questions, err := json.Marshal(e.Questions)
	if err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err = s.db.Insert("events", dbx.Params{
		"id":                    e.ID,
		"title":                 e.Title,
		"description":           e.Description,
		"venue":                 e.Venue,
		"start_time":            e.StartTime.Unix(),
		"end_time":              unixOrZero(e.EndTime),
		"registration_deadline": unixPtr(e.RegistrationDeadline),
		"max_attendees":         e.MaxAttendees,
		"status":                string(e.Status),
		"is_external":           e.IsExternal,
		"external_url":          e.ExternalURL,
		"require_approval":      e.RequireApproval,
		"require_consent":       e.RequireConsent,
		"questions":             string(questions),
		"created_at":            e.CreatedAt.Unix(),
	}).WithContext(ctx).Execute()
	return err
}

// RegistrationCount returns the number of active (non-cancelled)
// registrations for an event.
func (s *Store) RegistrationCount(ctx context.Context, eventID string) (int, error) {
	var count int
	err := s.db.NewQuery(
		`SELECT COUNT(*) FROM registrations
		 WHERE event_id = {:event_id} AND status != {:cancelled}`).
		Bind(dbx.Params{
			"event_id":  eventID,
			"cancelled": string(models.RegistrationCancelled),
		}).
		WithContext(ctx).
		Row(&count)
	return count, err
}

type ticketRow struct {
	ID              string `db:"id"`
	EventID         string `db:"event_id"`
	Name            string `db:"name"`
	Price           string `db:"price"`
	MaxQuantity     *int   `db:"max_quantity"`
	CurrentQuantity int    `db:"current_quantity"`
	IsActive        bool   `db:"is_active"`
	GiftInvites     int    `db:"gift_invites"`
	CreatedAt       int64  `db:"created_at"`
}

type tierRow struct {
	ID           string `db:"id"`
	TicketTypeID string `db:"ticket_type_id"`
	Quantity     int    `db:"quantity"`
	Price        string `db:"price"`
}

// TicketTypes returns the event's full ticket catalog with tiers.
func (s *Store) TicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error) {
	var rows []ticketRow
	err := s.db.Select("*").From("ticket_types").
		Where(dbx.HashExp{"event_id": eventID}).
		OrderBy("created_at ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, err
	}

	catalog := make([]models.TicketType, 0, len(rows))
	for _, r := range rows {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, err
		}

		var tiers []tierRow
		err = s.db.Select("*").From("price_tiers").
			Where(dbx.HashExp{"ticket_type_id": r.ID}).
			OrderBy("quantity ASC").
			WithContext(ctx).
			All(&tiers)
		if err != nil {
			return nil, err
		}

		t := models.TicketType{
			ID:              r.ID,
			EventID:         r.EventID,
			Name:            r.Name,
			Price:           price,
			MaxQuantity:     r.MaxQuantity,
			CurrentQuantity: r.CurrentQuantity,
			IsActive:        r.IsActive,
			GiftInvites:     r.GiftInvites,
			CreatedAt:       timeFromUnix(r.CreatedAt),
		}
		for _, tr := range tiers {
			tierPrice, err := decimal.NewFromString(tr.Price)
			if err != nil {
				return nil, err
			}
			t.Tiers = append(t.Tiers, models.PriceTier{
				ID:           tr.ID,
				TicketTypeID: tr.TicketTypeID,
				Quantity:     tr.Quantity,
				Price:        tierPrice,
			})
		}
		catalog = append(catalog, t)
	}
	return catalog, nil
}

// CreateTicketType inserts a ticket type and its tiers.
func (s *Store) CreateTicketType(ctx context.Context, t *models.TicketType) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := s.db.Insert("ticket_types", dbx.Params{
		"id":               t.ID,
		"event_id":         t.EventID,
		"name":             t.Name,
		"price":            t.Price.String(),
		"max_quantity":     t.MaxQuantity,
		"current_quantity": t.CurrentQuantity,
		"is_active":        t.IsActive,
		"gift_invites":     t.GiftInvites,
		"created_at":       t.CreatedAt.Unix(),
	}).WithContext(ctx).Execute()
	if err != nil {
		return err
	}

	for _, tier := range t.Tiers {
		_, err := s.db.Insert("price_tiers", dbx.Params{
			"id":             tier.ID,
			"ticket_type_id": t.ID,
			"quantity":       tier.Quantity,
			"price":          tier.Price.String(),
		}).WithContext(ctx).Execute()
		if err != nil {
			return err
		}
	}
	return nil
}

// IncrementTicketQuantity bumps the issued counter for a ticket type.
func (s *Store) IncrementTicketQuantity(ctx context.Context, ticketTypeID string, by int) error {
	_, err := s.db.NewQuery(
		`UPDATE ticket_types SET current_quantity = current_quantity + {:by}
		 WHERE id = {:id}`).
		Bind(dbx.Params{"by": by, "id": ticketTypeID}).
		WithContext(ctx).
		Execute()
	return err
}

func timeFromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func timePtrFromUnix(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := timeFromUnix(*v)
	return &t
}

func unixPtr(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
