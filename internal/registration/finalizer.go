// Package registration finalizes a registration attempt: free attempts
// directly, paid attempts as the settlement side effect of their order.
package registration

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"community-events/internal/eligibility"
	"community-events/internal/status"
	"community-events/internal/store"
	"community-events/internal/tickets"
	"community-events/models"
	"community-events/monitoring"
	"community-events/utils"
)

// Form is the registration payload submitted by the user. The same
// payload rides on a paid order and is finalized at settlement.
type Form struct {
	EventID      string            `json:"-"`
	UserID       string            `json:"-"`
	TicketTypeID string            `json:"ticket_type_id"`
	Quantity     int               `json:"quantity"`
	Answers      map[string]string `json:"answers"`
	ProjectID    string            `json:"project_id"`
	InviteCode   string            `json:"invite_code"`
	Consent      bool              `json:"consent"`
}

// Validate checks the payload against the event's requirements. It runs
// before any eligibility or gateway work so a bad form never leaves the
// process.
func Validate(event *models.Event, answers map[string]string, consent bool) error {
	for _, q := range event.Questions {
		if q.Required && answers[q.ID] == "" {
			return &status.ValidationError{Field: q.ID, Reason: "answer required"}
		}
	}
	if event.RequireConsent && !consent {
		return &status.ValidationError{Field: "consent", Reason: "consent required"}
	}
	return nil
}

type Finalizer struct {
	store   *store.Store
	monitor *monitoring.Monitor
	logger  *slog.Logger
}

func NewFinalizer(st *store.Store, monitor *monitoring.Monitor, logger *slog.Logger) *Finalizer {
	return &Finalizer{store: st, monitor: monitor, logger: logger}
}

// Register finalizes a free registration attempt. Paid ticket types are
// rejected with status.ErrPaymentRequired; those go through an order.
func (f *Finalizer) Register(ctx context.Context, form *Form) (*models.Registration, error) {
	event, err := f.store.GetEvent(ctx, form.EventID)
	if err != nil {
		return nil, err
	}
	if err := Validate(event, form.Answers, form.Consent); err != nil {
		return nil, err
	}

	catalog, err := f.store.TicketTypes(ctx, form.EventID)
	if err != nil {
		return nil, err
	}
	res, err := tickets.Resolve(catalog, form.TicketTypeID, form.Quantity)
	if err != nil {
		return nil, err
	}
	if res.IsPaid {
		return nil, status.ErrPaymentRequired
	}

	var reg *models.Registration
	err = f.store.Transactional(func(tx *store.Store) error {
		existing, err := f.CheckEligibility(ctx, tx, event, form.UserID)
		if err != nil {
			return err
		}
		reg, err = f.upsert(ctx, tx, event, form, res.Ticket, existing)
		return err
	})
	if err != nil {
		return nil, err
	}

	f.track(reg.EventID, "free", string(reg.Status))
	return reg, nil
}

// CheckEligibility re-evaluates the gates against live counts and
// returns the viewer's existing registration row, if any.
func (f *Finalizer) CheckEligibility(ctx context.Context, tx *store.Store, event *models.Event, userID string) (*models.Registration, error) {
	existing, err := tx.FindRegistration(ctx, event.ID, userID)
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		return nil, err
	}

	count, err := tx.RegistrationCount(ctx, event.ID)
	if err != nil {
		return nil, err
	}

	result := eligibility.Evaluate(eligibility.Input{
		Event:           *event,
		RegisteredCount: count,
		ViewerID:        userID,
		Existing:        existing,
		Now:             time.Now(),
	})
	if !result.CanRegister {
		if existing != nil && existing.Status.Active() {
			return nil, status.ErrAlreadyRegistered
		}
		return nil, status.ErrNotEligible
	}
	return existing, nil
}

// Settle finalizes the registration side of a freshly paid order. It
// runs inside the transaction that marked the order paid, so a partial
// settlement never survives.
func (f *Finalizer) Settle(ctx context.Context, tx *store.Store, order *models.Order) error {
	event, err := tx.GetEvent(ctx, order.EventID)
	if err != nil {
		return err
	}

	form := &Form{
		EventID:      order.EventID,
		UserID:       order.UserID,
		TicketTypeID: order.TicketTypeID,
		Quantity:     order.Quantity,
		Answers:      order.Answers,
		ProjectID:    order.ProjectID,
		InviteCode:   order.InviteCode,
		Consent:      order.Consent,
	}

	var ticket *models.TicketType
	catalog, err := tx.TicketTypes(ctx, order.EventID)
	if err != nil {
		return err
	}
	for i := range catalog {
		if catalog[i].ID == order.TicketTypeID {
			ticket = &catalog[i]
			break
		}
	}

	// The money is taken; eligibility was gated at order creation and
	// is not re-litigated here. A still-active row makes settlement a
	// registration no-op.
	existing, err := tx.FindRegistration(ctx, order.EventID, order.UserID)
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		return err
	}
	if existing == nil || !existing.Status.Active() {
		reg, err := f.upsert(ctx, tx, event, form, ticket, existing)
		if err != nil {
			return err
		}
		f.track(reg.EventID, "paid", string(reg.Status))
	}

	if ticket != nil && ticket.GiftInvites > 0 {
		if err := f.issueInvites(ctx, tx, order, ticket.GiftInvites); err != nil {
			return err
		}
	}
	return nil
}

// upsert writes the registration row. A cancelled row for the same
// (user, event) is revived in place; the unique index makes any other
// duplicate impossible.
func (f *Finalizer) upsert(ctx context.Context, tx *store.Store, event *models.Event, form *Form, ticket *models.TicketType, existing *models.Registration) (*models.Registration, error) {
	regStatus := models.RegistrationApproved
	if event.RequireApproval {
		regStatus = models.RegistrationPending
	}

	reg := &models.Registration{
		EventID:    form.EventID,
		UserID:     form.UserID,
		Status:     regStatus,
		Answers:    form.Answers,
		ProjectID:  form.ProjectID,
		InviteCode: form.InviteCode,
		Consent:    form.Consent,
	}
	if ticket != nil {
		reg.TicketTypeID = ticket.ID
	}

	if existing != nil {
		// Only a cancelled row reaches this point.
		reg.ID = existing.ID
		reg.CreatedAt = existing.CreatedAt
		if err := tx.ReviveRegistration(ctx, reg); err != nil {
			return nil, err
		}
	} else {
		reg.ID = uuid.NewString()
		if err := tx.CreateRegistration(ctx, reg); err != nil {
			return nil, err
		}
	}

	if ticket != nil {
		if err := tx.IncrementTicketQuantity(ctx, ticket.ID, form.Quantity); err != nil {
			return nil, err
		}
	}

	if form.InviteCode != "" {
		redeemed, err := tx.RedeemInvite(ctx, form.InviteCode, form.UserID)
		if err != nil {
			return nil, err
		}
		if !redeemed {
			f.logger.Warn("invite code not redeemable",
				"code", form.InviteCode, "user_id", form.UserID)
		}
	}

	f.logger.Info("registration finalized",
		"event_id", reg.EventID, "user_id", reg.UserID, "status", reg.Status)
	return reg, nil
}

func (f *Finalizer) track(eventID, path, st string) {
	if f.monitor != nil {
		f.monitor.TrackRegistration(eventID, path, st)
	}
}

func (f *Finalizer) issueInvites(ctx context.Context, tx *store.Store, order *models.Order, count int) error {
	invites := make([]models.Invite, 0, count)
	for i := 0; i < count; i++ {
		code, err := utils.GenerateCode(5)
		if err != nil {
			return err
		}
		invites = append(invites, models.Invite{
			ID:      uuid.NewString(),
			OrderID: order.ID,
			EventID: order.EventID,
			Code:    code,
		})
	}
	return tx.CreateInvites(ctx, invites)
}
