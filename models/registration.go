package models

import (
	"time"
)

type RegistrationStatus string

const (
	RegistrationPending    RegistrationStatus = "pending"
	RegistrationApproved   RegistrationStatus = "approved"
	RegistrationWaitlisted RegistrationStatus = "waitlisted"
	RegistrationRejected   RegistrationStatus = "rejected"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

// Active reports whether the registration still occupies the one
// active slot per (user, event). Only a cancelled registration frees
// the slot for a new attempt; rejected does not.
func (s RegistrationStatus) Active() bool {
	return s != RegistrationCancelled
}

// Registration is a user's attendance record for an event. Re-registering
// after cancellation reuses the same row as a new logical attempt.
type Registration struct {
	ID           string             `json:"id"`
	EventID      string             `json:"event_id"`
	UserID       string             `json:"user_id"`
	TicketTypeID string             `json:"ticket_type_id,omitempty"`
	Status       RegistrationStatus `json:"status"`
	Answers      map[string]string  `json:"answers,omitempty"`
	ProjectID    string             `json:"project_id,omitempty"`
	InviteCode   string             `json:"invite_code,omitempty"`
	Consent      bool               `json:"consent"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
