// Package eligibility decides whether a viewer may register for an
// event right now. It is pure: all facts arrive in the input and the
// evaluation has no side effects and no failure modes.
package eligibility

import (
	"time"

	"community-events/models"
)

// Status selects the human-readable registration state shown to the viewer.
type Status string

const (
	StatusOpen            Status = "open"
	StatusLoginRequired   Status = "login_required"
	StatusExternal        Status = "external_event"
	StatusRegistered      Status = "registered"
	StatusPendingApproval Status = "pending_approval"
	StatusWaitlisted      Status = "waitlisted"
	StatusRejected        Status = "rejected"
	StatusEnded           Status = "ended"
	StatusDeadlinePassed  Status = "deadline_passed"
	StatusFull            Status = "full"
	StatusNotPublished    Status = "not_published"
)

type Input struct {
	Event models.Event

	// RegisteredCount is the live number of active registrations.
	RegisteredCount int

	// ViewerID is empty for anonymous visitors.
	ViewerID string

	// Existing is the viewer's registration for this event, if any.
	Existing *models.Registration

	Now time.Time
}

type Result struct {
	CanRegister bool
	Status      Status
}

// Evaluate applies every gate; CanRegister is true only when none
// trigger. The status message follows its own precedence order, which
// differs from the gate order.
func Evaluate(in Input) Result {
	e := in.Event

	external := e.IsExternal
	notPublished := e.Status != models.EventPublished
	ended := e.Ended(in.Now)
	deadlinePassed := e.RegistrationDeadline != nil &&
		!e.RegistrationDeadline.IsZero() &&
		!in.Now.Before(*e.RegistrationDeadline)
	full := e.MaxAttendees != nil && in.RegisteredCount >= *e.MaxAttendees
	registered := in.Existing != nil && in.Existing.Status.Active()
	anonymous := in.ViewerID == ""

	result := Result{
		CanRegister: !external && !notPublished && !ended &&
			!deadlinePassed && !full && !registered && !anonymous,
	}

	switch {
	case anonymous:
		result.Status = StatusLoginRequired
	case external:
		result.Status = StatusExternal
	case registered:
		result.Status = registrationStatus(in.Existing.Status)
	case ended:
		result.Status = StatusEnded
	case deadlinePassed:
		result.Status = StatusDeadlinePassed
	case full:
		result.Status = StatusFull
	case notPublished:
		result.Status = StatusNotPublished
	default:
		result.Status = StatusOpen
	}

	return result
}

func registrationStatus(s models.RegistrationStatus) Status {
	switch s {
	case models.RegistrationPending:
		return StatusPendingApproval
	case models.RegistrationWaitlisted:
		return StatusWaitlisted
	case models.RegistrationRejected:
		return StatusRejected
	default:
		return StatusRegistered
	}
}
