package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"community-events/internal/status"
	"community-events/models"
	"community-events/utils"
)

// MockGateway is an in-memory gateway for development and tests. It
// hands out fake code URLs and settles payments only when told to via
// Pay, which mirrors how a real gateway pushes notifications.
type MockGateway struct {
	mu       sync.Mutex
	payments map[string]*mockPayment
	ch       chan *status.Transaction
}

type mockPayment struct {
	req    *Request
	paid   bool
	closed bool
	paidAt time.Time
	refID  string
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		payments: make(map[string]*mockPayment),
	}
}

func (g *MockGateway) Provider() Provider { return ProviderMock }

func (g *MockGateway) CreatePayment(_ context.Context, req *Request) (*models.PaymentParams, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.payments[req.OrderID] = &mockPayment{req: req}

	return models.ResolvePaymentParams(
		fmt.Sprintf("mockpay://pay?order=%s&amount=%s", req.OrderID, req.Amount), nil)
}

func (g *MockGateway) QueryPayment(_ context.Context, orderID string) (*status.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[orderID]
	if !ok {
		return nil, status.ErrNotFound
	}

	tx := &status.Transaction{
		OrderID:  orderID,
		RefID:    p.refID,
		Status:   "NOTPAY",
		Amount:   p.req.Amount,
		Currency: p.req.Currency,
	}
	switch {
	case p.paid:
		tx.Status = "SUCCESS"
		tx.PaidAt = p.paidAt
	case p.closed:
		tx.Status = "CLOSED"
	}
	return tx, nil
}

func (g *MockGateway) ClosePayment(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.payments[orderID]
	if !ok {
		return status.ErrNotFound
	}
	if !p.paid {
		p.closed = true
	}
	return nil
}

func (g *MockGateway) SetTransactionChannel(ch chan *status.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ch = ch
}

func (g *MockGateway) Close(_ context.Context) error { return nil }

// Pay marks an order's payment settled and pushes the transaction to
// the notification channel, simulating the user completing payment.
func (g *MockGateway) Pay(orderID string) (*status.Transaction, error) {
	g.mu.Lock()
	p, ok := g.payments[orderID]
	if !ok {
		g.mu.Unlock()
		return nil, status.ErrNotFound
	}
	if p.closed {
		g.mu.Unlock()
		return nil, status.ErrFailedPayment
	}
	if !p.paid {
		p.paid = true
		p.paidAt = time.Now()
		code, err := utils.GenerateCode(8)
		if err != nil {
			g.mu.Unlock()
			return nil, err
		}
		p.refID = "MOCK-" + code
	}
	tx := &status.Transaction{
		OrderID:  orderID,
		RefID:    p.refID,
		Status:   "SUCCESS",
		Amount:   p.req.Amount,
		Currency: p.req.Currency,
		PaidAt:   p.paidAt,
	}
	ch := g.ch
	g.mu.Unlock()

	if ch != nil {
		ch <- tx
	}
	return tx, nil
}
