package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-events/config"
	"community-events/internal/orders"
	"community-events/internal/payment"
	"community-events/internal/registration"
	"community-events/internal/store"
	"community-events/models"
	"community-events/security"
	"community-events/utils"
)

const testNotifyKey = "test-notify-key"

type testApp struct {
	e       *echo.Echo
	store   *store.Store
	gateway *payment.MockGateway
	auth    *security.Auth
}

func newTestApp(t *testing.T) *testApp {
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
		OrderRateLimit:  100,
	}
	orderService := orders.NewService(st, nil, gateway, fin, nil, cfg, logger)

	redisClient, _ := redismock.NewClientMock()
	auth := security.NewAuth("test-secret")
	limiter := security.NewRateLimiter(redisClient)

	orderHandler := NewOrderHandler(orderService, logger)
	eventHandler := NewEventHandler(st)
	registrationHandler := NewRegistrationHandler(fin, logger)
	paymentHandler := NewPaymentHandler(orderService, testNotifyKey, logger)

	e := echo.New()
	authed := e.Group("/api", auth.Require())
	authed.GET("/events/:eventId/orders/pending", orderHandler.GetPendingOrder)
	authed.GET("/events/:eventId/orders/:orderId", orderHandler.GetOrder)
	authed.POST("/events/:eventId/orders/:orderId/cancel", orderHandler.CancelOrder)
	authed.GET("/events/:eventId/orders/:orderId/invites", orderHandler.ListInvites)
	authed.POST("/events/:eventId/register", registrationHandler.Register)

	limited := e.Group("/api", auth.Require(), limiter.OrderRateLimit(cfg.OrderRateLimit))
	limited.POST("/events/:eventId/orders", orderHandler.CreateOrder)

	optional := e.Group("/api", auth.Optional())
	optional.GET("/events/:eventId/eligibility", eventHandler.GetEligibility)

	public := e.Group("/api")
	public.GET("/events/:eventId/tickets", eventHandler.ListTickets)
	public.POST("/webhooks/payment", paymentHandler.Webhook)
	public.POST("/test/simulate-payment", paymentHandler.SimulatePayment(gateway))

	return &testApp{e: e, store: st, gateway: gateway, auth: auth}
}

func (a *testApp) seedEvent(t *testing.T, paid bool) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(24 * time.Hour)
	require.NoError(t, a.store.CreateEvent(ctx, &models.Event{
		ID:                   "evt-1",
		Title:                "Conference",
		StartTime:            time.Now().Add(48 * time.Hour),
		EndTime:              time.Now().Add(50 * time.Hour),
		RegistrationDeadline: &deadline,
		Status:               models.EventPublished,
	}))
	price := "0"
	if paid {
		price = "30"
	}
	require.NoError(t, a.store.CreateTicketType(ctx, &models.TicketType{
		ID:          "tt-1",
		EventID:     "evt-1",
		Name:        "Standard",
		Price:       decimal.RequireFromString(price),
		IsActive:    true,
		GiftInvites: 2,
	}))
}

func (a *testApp) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := a.auth.NewToken(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestOrderFlow_CreatePayAndListInvites(t *testing.T) {
	app := newTestApp(t)
	app.seedEvent(t, true)
	token := app.token(t, "u1")

	// Unauthenticated creation is rejected.
	rec := app.request(t, http.MethodPost, "/api/events/evt-1/orders", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Create the order.
	rec = app.request(t, http.MethodPost, "/api/events/evt-1/orders", token, map[string]any{"quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["is_existing"])
	order := body["order"].(map[string]any)
	orderID := order["id"].(string)
	assert.Equal(t, "pending", order["status"])
	payParams := order["payment"].(map[string]any)
	assert.Equal(t, "code", payParams["kind"])
	assert.NotEmpty(t, payParams["code_url"])

	// Repeat creation returns the same order.
	rec = app.request(t, http.MethodPost, "/api/events/evt-1/orders", token, map[string]any{"quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, true, body["is_existing"])
	assert.Equal(t, orderID, body["order"].(map[string]any)["id"])

	// The pending lookup finds it.
	rec = app.request(t, http.MethodGet, "/api/events/evt-1/orders/pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Invites are not available before payment.
	rec = app.request(t, http.MethodGet, "/api/events/evt-1/orders/"+orderID+"/invites", token, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Settle through the simulate endpoint.
	rec = app.request(t, http.MethodPost, "/api/test/simulate-payment", "", map[string]any{"order_id": orderID})
	require.Equal(t, http.StatusOK, rec.Code)
	txn := decode(t, rec)["transaction"].(map[string]any)

	// The mock pushes no channel here; deliver via the webhook path.
	payload, err := json.Marshal(map[string]any{
		"order_id": orderID,
		"ref_id":   txn["ref_id"],
		"status":   "SUCCESS",
		"amount":   "30",
		"currency": "CNY",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("SignedHash", utils.Hmac256(payload, []byte(testNotifyKey)))
	rec = httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The order is paid, carries its registration, and its invites are
	// listed.
	rec = app.request(t, http.MethodGet, "/api/events/evt-1/orders/"+orderID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "paid", body["order"].(map[string]any)["status"])
	require.Contains(t, body, "registration")
	assert.Equal(t, "approved", body["registration"].(map[string]any)["status"])

	rec = app.request(t, http.MethodGet, "/api/events/evt-1/orders/"+orderID+"/invites", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["invites"], 2)

	// Another user cannot see the order.
	rec = app.request(t, http.MethodGet, "/api/events/evt-1/orders/"+orderID, app.token(t, "intruder"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	app := newTestApp(t)

	payload := []byte(`{"order_id":"ord-1","status":"SUCCESS"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("SignedHash", "deadbeef")
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_RejectedWhenNotifyKeyUnset(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewPaymentHandler(nil, "", logger)

	payload := []byte(`{"order_id":"ord-1","status":"SUCCESS"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/payment", bytes.NewReader(payload))
	// Signed with the empty secret. An unset key must not make this
	// verify; the endpoint stays shut instead.
	req.Header.Set("SignedHash", utils.Hmac256(payload, []byte("")))
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	require.NoError(t, h.Webhook(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCancelOrder_Idempotent(t *testing.T) {
	app := newTestApp(t)
	app.seedEvent(t, true)
	token := app.token(t, "u1")

	rec := app.request(t, http.MethodPost, "/api/events/evt-1/orders", token, map[string]any{"quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decode(t, rec)["order"].(map[string]any)["id"].(string)

	rec = app.request(t, http.MethodPost, "/api/events/evt-1/orders/"+orderID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode(t, rec)["order"].(map[string]any)["status"])

	rec = app.request(t, http.MethodPost, "/api/events/evt-1/orders/"+orderID+"/cancel", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// No pending order remains.
	rec = app.request(t, http.MethodGet, "/api/events/evt-1/orders/pending", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegister_FreeAndPaidPaths(t *testing.T) {
	app := newTestApp(t)
	app.seedEvent(t, false)
	token := app.token(t, "u1")

	rec := app.request(t, http.MethodPost, "/api/events/evt-1/register", token, map[string]any{})
	require.Equal(t, http.StatusCreated, rec.Code)
	reg := decode(t, rec)["registration"].(map[string]any)
	assert.Equal(t, "approved", reg["status"])

	// Paid catalog answers 402 on the free path.
	paidApp := newTestApp(t)
	paidApp.seedEvent(t, true)
	rec = paidApp.request(t, http.MethodPost, "/api/events/evt-1/register", paidApp.token(t, "u1"), map[string]any{})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestEligibilityEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.seedEvent(t, false)

	// Anonymous viewers get login_required.
	rec := app.request(t, http.MethodGet, "/api/events/evt-1/eligibility", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["can_register"])
	assert.Equal(t, "login_required", body["status"])

	rec = app.request(t, http.MethodGet, "/api/events/evt-1/eligibility", app.token(t, "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, true, body["can_register"])
	assert.Equal(t, "open", body["status"])

	rec = app.request(t, http.MethodGet, "/api/events/missing/eligibility", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketsEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.seedEvent(t, true)

	rec := app.request(t, http.MethodGet, "/api/events/evt-1/tickets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["tickets"], 1)
}
