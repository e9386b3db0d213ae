package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pocketbase/dbx"

	"community-events/models"
)

type registrationRow struct {
	ID           string `db:"id"`
	EventID      string `db:"event_id"`
	UserID       string `db:"user_id"`
	TicketTypeID string `db:"ticket_type_id"`
	Status       string `db:"status"`
	Answers      string `db:"answers"`
	ProjectID    string `db:"project_id"`
	InviteCode   string `db:"invite_code"`
	Consent      bool   `db:"consent"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r *registrationRow) toModel() (*models.Registration, error) {
	var answers map[string]string
	if r.Answers != "" {
		if err := json.Unmarshal([]byte(r.Answers), &answers); err != nil {
			return nil, err
		}
	}

	return &models.Registration{
		ID:           r.ID,
		EventID:      r.EventID,
		UserID:       r.UserID,
		TicketTypeID: r.TicketTypeID,
		Status:       models.RegistrationStatus(r.Status),
		Answers:      answers,
		ProjectID:    r.ProjectID,
		InviteCode:   r.InviteCode,
		Consent:      r.Consent,
		CreatedAt:    timeFromUnix(r.CreatedAt),
		UpdatedAt:    timeFromUnix(r.UpdatedAt),
	}, nil
}

// FindRegistration returns the viewer's registration for an event in
// any status, or status.ErrNotFound.
func (s *Store) FindRegistration(ctx context.Context, eventID, userID string) (*models.Registration, error) {
	var row registrationRow
	err := s.db.Select("*").From("registrations").
		Where(dbx.HashExp{"event_id": eventID, "user_id": userID}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toModel()
}

// CreateRegistration inserts a new registration row.
func (s *Store) CreateRegistration(ctx context.Context, r *models.Registration) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return err
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err = s.db.Insert("registrations", dbx.Params{
		"id":             r.ID,
		"event_id":       r.EventID,
		"user_id":        r.UserID,
		"ticket_type_id": r.TicketTypeID,
		"status":         string(r.Status),
		"answers":        string(answers),
		"project_id":     r.ProjectID,
		"invite_code":    r.InviteCode,
		"consent":        r.Consent,
		"created_at":     r.CreatedAt.Unix(),
		"updated_at":     r.UpdatedAt.Unix(),
	}).WithContext(ctx).Execute()
	return err
}

// ReviveRegistration reuses a cancelled row for a new attempt, replacing
// its payload and status in place.
func (s *Store) ReviveRegistration(ctx context.Context, r *models.Registration) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return err
	}
	r.UpdatedAt = time.Now()

	_, err = s.db.Update("registrations", dbx.Params{
		"ticket_type_id": r.TicketTypeID,
		"status":         string(r.Status),
		"answers":        string(answers),
		"project_id":     r.ProjectID,
		"invite_code":    r.InviteCode,
		"consent":        r.Consent,
		"updated_at":     r.UpdatedAt.Unix(),
	}, dbx.HashExp{"id": r.ID}).WithContext(ctx).Execute()
	return err
}

// UpdateRegistrationStatus sets the status of a registration.
func (s *Store) UpdateRegistrationStatus(ctx context.Context, id string, st models.RegistrationStatus) error {
	_, err := s.db.Update("registrations", dbx.Params{
		"status":     string(st),
		"updated_at": time.Now().Unix(),
	}, dbx.HashExp{"id": id}).WithContext(ctx).Execute()
	return err
}
