package orders

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-events/config"
	"community-events/internal/payment"
	"community-events/internal/registration"
	"community-events/internal/status"
	"community-events/internal/store"
	"community-events/models"
)

func testService(t *testing.T) (*Service, *store.Store, *payment.MockGateway) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway := payment.NewMockGateway()
	fin := registration.NewFinalizer(st, nil, logger)
	cfg := &config.Config{
		OrderTTL:        15 * time.Minute,
		PaymentCurrency: "CNY",
		PollInterval:    3 * time.Second,
		CountdownTick:   time.Second,
	}
	return NewService(st, nil, gateway, fin, nil, cfg, logger), st, gateway
}

func seedPaidEvent(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(24 * time.Hour)
	require.NoError(t, st.CreateEvent(ctx, &models.Event{
		ID:                   "evt-1",
		Title:                "Conference",
		StartTime:            time.Now().Add(48 * time.Hour),
		EndTime:              time.Now().Add(50 * time.Hour),
		RegistrationDeadline: &deadline,
		Status:               models.EventPublished,
	}))
	require.NoError(t, st.CreateTicketType(ctx, &models.TicketType{
		ID:          "tt-paid",
		EventID:     "evt-1",
		Name:        "Standard",
		Price:       decimal.RequireFromString("30"),
		IsActive:    true,
		GiftInvites: 2,
	}))
}

func createForm(userID string) *CreateForm {
	return &CreateForm{
		Form: registration.Form{
			EventID:  "evt-1",
			UserID:   userID,
			Quantity: 1,
		},
	}
}

func TestService_CreateIsIdempotent(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, svc.store)

	order, existing, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)
	assert.False(t, existing)
	assert.Equal(t, models.OrderPending, order.Status)
	assert.True(t, decimal.RequireFromString("30").Equal(order.Amount))
	require.NotNil(t, order.Payment)
	assert.Equal(t, models.PaymentKindCode, order.Payment.Kind)
	assert.NotEmpty(t, order.Payment.CodeURL)
	assert.NotEmpty(t, order.PublicCode)

	again, existing, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)
	assert.True(t, existing)
	assert.Equal(t, order.ID, again.ID)

	// A different user gets their own order.
	other, existing, err := svc.Create(ctx, createForm("u2"))
	require.NoError(t, err)
	assert.False(t, existing)
	assert.NotEqual(t, order.ID, other.ID)
}

func TestService_CreateFreeTicketRejected(t *testing.T) {
	svc, st, _ := testService(t)
	ctx := context.Background()
	deadline := time.Now().Add(24 * time.Hour)
	require.NoError(t, st.CreateEvent(ctx, &models.Event{
		ID:                   "evt-1",
		Title:                "Free Meetup",
		StartTime:            time.Now().Add(48 * time.Hour),
		EndTime:              time.Now().Add(50 * time.Hour),
		RegistrationDeadline: &deadline,
		Status:               models.EventPublished,
	}))

	_, _, err := svc.Create(ctx, createForm("u1"))
	assert.ErrorIs(t, err, status.ErrNoPaymentRequired)
}

func TestService_CreateValidatesAnswers(t *testing.T) {
	svc, st, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, st)

	_, err := st.GetEvent(ctx, "evt-1")
	require.NoError(t, err)

	// Make the question required after the fact via a fresh event.
	require.NoError(t, st.CreateEvent(ctx, &models.Event{
		ID:        "evt-2",
		Title:     "Strict",
		StartTime: time.Now().Add(48 * time.Hour),
		EndTime:   time.Now().Add(50 * time.Hour),
		Status:    models.EventPublished,
		Questions: []models.Question{{ID: "q1", Label: "Affiliation", Required: true}},
	}))

	form := createForm("u1")
	form.EventID = "evt-2"
	_, _, err = svc.Create(ctx, form)

	var ve *status.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "q1", ve.Field)
}

func TestService_GetScopedToOwner(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, svc.store)

	order, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)

	got, err := svc.Get(ctx, order.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.Get(ctx, order.ID, "intruder")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestService_CancelIsIdempotent(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, svc.store)

	order, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, order.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	// Second cancel returns the same terminal order.
	again, err := svc.Cancel(ctx, order.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, again.Status)
}

func TestService_CancelPaidOrderRejected(t *testing.T) {
	svc, _, gateway := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, svc.store)

	order, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)

	txn, err := gateway.Pay(order.ID)
	require.NoError(t, err)
	require.NoError(t, svc.MarkPaid(ctx, txn))

	_, err = svc.Cancel(ctx, order.ID, "u1")
	assert.ErrorIs(t, err, status.ErrOrderTerminal)
}

func TestService_MarkPaidSettlesOnce(t *testing.T) {
	svc, st, gateway := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, st)

	order, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)

	txn, err := gateway.Pay(order.ID)
	require.NoError(t, err)

	require.NoError(t, svc.MarkPaid(ctx, txn))
	// Redelivered notification settles nothing new.
	require.NoError(t, svc.MarkPaid(ctx, txn))

	got, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPaid, got.Status)
	assert.Equal(t, txn.RefID, got.GatewayRef)

	count, err := st.RegistrationCount(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	invites, err := svc.Invites(ctx, order.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, invites, 2)
}

func TestService_InvitesRequirePaidOrder(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, svc.store)

	order, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)

	_, err = svc.Invites(ctx, order.ID, "u1")
	assert.ErrorIs(t, err, status.ErrOrderNotPaid)
}

func TestService_PendingExpiresStaleOrder(t *testing.T) {
	svc, st, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, st)
	svc.ttl = -time.Minute

	order, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)

	_, err = svc.Pending(ctx, "evt-1", "u1")
	assert.ErrorIs(t, err, status.ErrNotFound)

	got, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, got.Status)
}

func TestService_SweepExpired(t *testing.T) {
	svc, st, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, st)
	svc.ttl = -time.Minute

	order, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)

	require.NoError(t, svc.SweepExpired(ctx))

	got, err := st.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderExpired, got.Status)

	// A paid order is never swept.
	svc.ttl = 15 * time.Minute
	fresh, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)
	require.NoError(t, svc.SweepExpired(ctx))
	got, err = st.GetOrder(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)
}

func TestService_CreateAfterRegistrationBlocked(t *testing.T) {
	svc, st, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, st)

	require.NoError(t, st.CreateRegistration(ctx, &models.Registration{
		ID:      "reg-1",
		EventID: "evt-1",
		UserID:  "u1",
		Status:  models.RegistrationApproved,
	}))

	_, _, err := svc.Create(ctx, createForm("u1"))
	assert.ErrorIs(t, err, status.ErrAlreadyRegistered)
}

func TestService_ForUserScopesTheAPI(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, svc.store)

	order, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)

	got, err := svc.ForUser("u1").GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = svc.ForUser("u2").GetOrder(ctx, order.ID)
	assert.ErrorIs(t, err, status.ErrNotFound)

	cancelled, err := svc.ForUser("u1").CancelOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)
}

func TestService_WatchUsesConfiguredIntervals(t *testing.T) {
	svc, _, _ := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, svc.store)

	order, _, err := svc.Create(ctx, createForm("u1"))
	require.NoError(t, err)

	w := svc.Watch(order, Hooks{})
	assert.Equal(t, 3*time.Second, w.pollInterval)
	assert.Equal(t, time.Second, w.countdownTick)

	// The watcher's API is bound to the order's owner.
	got, err := w.api.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
}

// gatedGateway holds CreatePayment callers until the gate opens, so
// concurrent creates can be lined up past the pending-order lookup.
type gatedGateway struct {
	*payment.MockGateway
	ready *sync.WaitGroup
	gate  chan struct{}

	mu      sync.Mutex
	created []string
}

func (g *gatedGateway) CreatePayment(ctx context.Context, req *payment.Request) (*models.PaymentParams, error) {
	g.mu.Lock()
	g.created = append(g.created, req.OrderID)
	g.mu.Unlock()

	g.ready.Done()
	<-g.gate
	return g.MockGateway.CreatePayment(ctx, req)
}

func TestService_CreateConcurrentSameUserYieldsOneOrder(t *testing.T) {
	svc, _, mock := testService(t)
	ctx := context.Background()
	seedPaidEvent(t, svc.store)

	var ready sync.WaitGroup
	ready.Add(2)
	gw := &gatedGateway{MockGateway: mock, ready: &ready, gate: make(chan struct{})}
	svc.gateway = gw

	type result struct {
		order    *models.Order
		existing bool
		err      error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			order, existing, err := svc.Create(ctx, createForm("u1"))
			results <- result{order, existing, err}
		}()
	}

	// Both calls reached the gateway, so both passed the lookup
	// without seeing a pending order. Release them together.
	ready.Wait()
	close(gw.gate)

	first := <-results
	second := <-results
	require.NoError(t, first.err)
	require.NoError(t, second.err)
	assert.Equal(t, first.order.ID, second.order.ID)
	assert.NotEqual(t, first.existing, second.existing, "exactly one call should report an existing order")

	// The losing call's payment session is voided at the gateway.
	require.Len(t, gw.created, 2)
	for _, orderID := range gw.created {
		if orderID == first.order.ID {
			continue
		}
		txn, err := mock.QueryPayment(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, "CLOSED", txn.Status)
	}

	pending, err := svc.Pending(ctx, "evt-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, first.order.ID, pending.ID)
}
