package models

import (
	"time"
)

type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// Question is an organizer-defined registration question. Answers are
// collected at registration or order time and stored with the attempt.
type Question struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

type Event struct {
	ID                   string      `json:"id"`
	Title                string      `json:"title"`
	Description          string      `json:"description"`
	Venue                string      `json:"venue"`
	StartTime            time.Time   `json:"start_time"`
	EndTime              time.Time   `json:"end_time"`
	RegistrationDeadline *time.Time  `json:"registration_deadline,omitempty"`
	MaxAttendees         *int        `json:"max_attendees,omitempty"`
	Status               EventStatus `json:"status"`
	IsExternal           bool        `json:"is_external"`
	ExternalURL          string      `json:"external_url,omitempty"`
	RequireApproval      bool        `json:"require_approval"`
	RequireConsent       bool        `json:"require_consent"`
	Questions            []Question  `json:"questions,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
}

// Ended reports whether the event is over for registration purposes.
// The wall clock and the explicit completed status are independent
// signals; either one closes the event.
func (e *Event) Ended(now time.Time) bool {
	if e.Status == EventCompleted {
		return true
	}
	// A missing end time counts as already ended rather than open forever.
	if e.EndTime.IsZero() {
		return true
	}
	return !now.Before(e.EndTime)
}
