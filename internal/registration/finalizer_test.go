package registration

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-events/internal/status"
	"community-events/internal/store"
	"community-events/models"
)

func testFinalizer(t *testing.T) (*Finalizer, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFinalizer(st, nil, logger), st
}

func seedEvent(t *testing.T, st *store.Store, mutate func(*models.Event)) *models.Event {
	t.Helper()
	deadline := time.Now().Add(24 * time.Hour)
	max := 100
	event := &models.Event{
		ID:                   "evt-1",
		Title:                "Meetup",
		StartTime:            time.Now().Add(48 * time.Hour),
		EndTime:              time.Now().Add(50 * time.Hour),
		RegistrationDeadline: &deadline,
		MaxAttendees:         &max,
		Status:               models.EventPublished,
	}
	if mutate != nil {
		mutate(event)
	}
	require.NoError(t, st.CreateEvent(context.Background(), event))
	return event
}

func seedTicket(t *testing.T, st *store.Store, id, price string, gifts int) {
	t.Helper()
	require.NoError(t, st.CreateTicketType(context.Background(), &models.TicketType{
		ID:          id,
		EventID:     "evt-1",
		Name:        id,
		Price:       decimal.RequireFromString(price),
		IsActive:    true,
		GiftInvites: gifts,
	}))
}

func TestValidate(t *testing.T) {
	event := &models.Event{
		RequireConsent: true,
		Questions: []models.Question{
			{ID: "q1", Label: "Affiliation", Required: true},
			{ID: "q2", Label: "Dietary", Required: false},
		},
	}

	err := Validate(event, nil, true)
	var ve *status.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "q1", ve.Field)

	err = Validate(event, map[string]string{"q1": "ACM"}, false)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "consent", ve.Field)

	assert.NoError(t, Validate(event, map[string]string{"q1": "ACM"}, true))
}

func TestRegister_FreePath(t *testing.T) {
	fin, st := testFinalizer(t)
	ctx := context.Background()
	seedEvent(t, st, nil)
	seedTicket(t, st, "tt-free", "0", 0)

	reg, err := fin.Register(ctx, &Form{
		EventID: "evt-1",
		UserID:  "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationApproved, reg.Status)
	assert.Equal(t, "tt-free", reg.TicketTypeID)

	count, err := st.RegistrationCount(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	catalog, err := st.TicketTypes(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, catalog[0].CurrentQuantity)
}

func TestRegister_NoTicketsAtAll(t *testing.T) {
	fin, st := testFinalizer(t)
	seedEvent(t, st, nil)

	reg, err := fin.Register(context.Background(), &Form{EventID: "evt-1", UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, reg.TicketTypeID)
}

func TestRegister_ApprovalRequired(t *testing.T) {
	fin, st := testFinalizer(t)
	seedEvent(t, st, func(e *models.Event) { e.RequireApproval = true })

	reg, err := fin.Register(context.Background(), &Form{EventID: "evt-1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPending, reg.Status)
}

func TestRegister_PaidTicketRejected(t *testing.T) {
	fin, st := testFinalizer(t)
	seedEvent(t, st, nil)
	seedTicket(t, st, "tt-paid", "30", 0)

	_, err := fin.Register(context.Background(), &Form{EventID: "evt-1", UserID: "u1"})
	assert.ErrorIs(t, err, status.ErrPaymentRequired)
}

func TestRegister_DuplicateBlocked(t *testing.T) {
	fin, st := testFinalizer(t)
	ctx := context.Background()
	seedEvent(t, st, nil)

	_, err := fin.Register(ctx, &Form{EventID: "evt-1", UserID: "u1"})
	require.NoError(t, err)

	_, err = fin.Register(ctx, &Form{EventID: "evt-1", UserID: "u1"})
	assert.ErrorIs(t, err, status.ErrAlreadyRegistered)
}

func TestRegister_ReviveAfterCancel(t *testing.T) {
	fin, st := testFinalizer(t)
	ctx := context.Background()
	seedEvent(t, st, nil)

	first, err := fin.Register(ctx, &Form{EventID: "evt-1", UserID: "u1"})
	require.NoError(t, err)
	require.NoError(t, st.UpdateRegistrationStatus(ctx, first.ID, models.RegistrationCancelled))

	second, err := fin.Register(ctx, &Form{
		EventID: "evt-1",
		UserID:  "u1",
		Answers: map[string]string{"q1": "new answer"},
	})
	require.NoError(t, err)
	// Same row, fresh attempt.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.RegistrationApproved, second.Status)
	assert.Equal(t, "new answer", second.Answers["q1"])
}

func TestRegister_CapacityFull(t *testing.T) {
	fin, st := testFinalizer(t)
	ctx := context.Background()
	seedEvent(t, st, func(e *models.Event) {
		max := 1
		e.MaxAttendees = &max
	})

	_, err := fin.Register(ctx, &Form{EventID: "evt-1", UserID: "u1"})
	require.NoError(t, err)

	_, err = fin.Register(ctx, &Form{EventID: "evt-1", UserID: "u2"})
	assert.ErrorIs(t, err, status.ErrNotEligible)
}

func TestRegister_InviteCodeRedeemed(t *testing.T) {
	fin, st := testFinalizer(t)
	ctx := context.Background()
	seedEvent(t, st, nil)
	require.NoError(t, st.CreateInvites(ctx, []models.Invite{
		{ID: "inv-1", OrderID: "ord-0", EventID: "evt-1", Code: "GIFT01"},
	}))

	_, err := fin.Register(ctx, &Form{EventID: "evt-1", UserID: "u2", InviteCode: "GIFT01"})
	require.NoError(t, err)

	invites, err := st.ListInvitesByOrder(ctx, "ord-0")
	require.NoError(t, err)
	require.Len(t, invites, 1)
	assert.True(t, invites[0].Redeemed)
	assert.Equal(t, "u2", invites[0].RedeemedBy)
}

func TestSettle_CreatesRegistrationAndInvites(t *testing.T) {
	fin, st := testFinalizer(t)
	ctx := context.Background()
	seedEvent(t, st, nil)
	seedTicket(t, st, "tt-group", "100", 3)

	order := &models.Order{
		ID:           "ord-1",
		PublicCode:   "ORD-1",
		EventID:      "evt-1",
		UserID:       "u1",
		TicketTypeID: "tt-group",
		Quantity:     4,
		Amount:       decimal.RequireFromString("100"),
		Status:       models.OrderPending,
		Answers:      map[string]string{"q1": "ACM"},
		Consent:      true,
		ExpiredAt:    time.Now().Add(15 * time.Minute),
	}
	require.NoError(t, st.CreateOrder(ctx, order))

	err := st.Transactional(func(tx *store.Store) error {
		return fin.Settle(ctx, tx, order)
	})
	require.NoError(t, err)

	reg, err := st.FindRegistration(ctx, "evt-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationApproved, reg.Status)
	assert.Equal(t, "tt-group", reg.TicketTypeID)
	assert.Equal(t, "ACM", reg.Answers["q1"])

	invites, err := st.ListInvitesByOrder(ctx, "ord-1")
	require.NoError(t, err)
	assert.Len(t, invites, 3)

	catalog, err := st.TicketTypes(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 4, catalog[0].CurrentQuantity)
}

func TestSettle_IgnoresFullEvent(t *testing.T) {
	fin, st := testFinalizer(t)
	ctx := context.Background()
	seedEvent(t, st, func(e *models.Event) {
		max := 1
		e.MaxAttendees = &max
	})
	seedTicket(t, st, "tt-paid", "30", 0)

	_, err := fin.Register(ctx, &Form{EventID: "evt-1", UserID: "other", TicketTypeID: ""})
	require.ErrorIs(t, err, status.ErrPaymentRequired)
	require.NoError(t, st.CreateRegistration(ctx, &models.Registration{
		ID: "reg-0", EventID: "evt-1", UserID: "other", Status: models.RegistrationApproved,
	}))

	// The event filled after the order was created; settlement still
	// registers the payer.
	order := &models.Order{
		ID:           "ord-1",
		EventID:      "evt-1",
		UserID:       "u1",
		TicketTypeID: "tt-paid",
		Quantity:     1,
		Amount:       decimal.RequireFromString("30"),
		Status:       models.OrderPending,
		ExpiredAt:    time.Now().Add(15 * time.Minute),
	}
	require.NoError(t, st.CreateOrder(ctx, order))

	err = st.Transactional(func(tx *store.Store) error {
		return fin.Settle(ctx, tx, order)
	})
	require.NoError(t, err)

	reg, err := st.FindRegistration(ctx, "evt-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationApproved, reg.Status)
}
