// Package payment abstracts the payment gateway behind a single
// interface. A gateway answers payment creation in exactly one
// presentation mode (scannable code or in-app invocation) and reports
// settled transactions through a channel or an explicit query. It never
// decides order success on its own; orders react to what it reports.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"community-events/config"
	"community-events/internal/status"
	"community-events/models"
)

// Provider identifies a payment gateway implementation.
type Provider string

const (
	ProviderWepay Provider = "wepay"
	ProviderMock  Provider = "mock"
)

// Request describes a payment to initiate for an order.
type Request struct {
	OrderID     string          `json:"order_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`

	// PayerID is the user's in-app payment identity. When present the
	// gateway answers with signed in-app parameters; when absent it
	// answers with a scannable code URL.
	PayerID string `json:"payer_id,omitempty"`

	ExpireAt time.Time `json:"expire_at"`
}

// Gateway is the common interface for all payment providers.
type Gateway interface {
	// Provider returns the gateway provider type.
	Provider() Provider

	// CreatePayment initiates a payment and returns its presentation
	// parameters, resolved into exactly one mode.
	CreatePayment(ctx context.Context, req *Request) (*models.PaymentParams, error)

	// QueryPayment checks the settlement status of an order's payment.
	QueryPayment(ctx context.Context, orderID string) (*status.Transaction, error)

	// ClosePayment voids an unfinished payment at the gateway.
	ClosePayment(ctx context.Context, orderID string) error

	// SetTransactionChannel sets the channel for settled-transaction
	// notifications.
	SetTransactionChannel(ch chan *status.Transaction)

	// Close gracefully closes any connections.
	Close(ctx context.Context) error
}

// New creates the gateway selected by configuration.
func New(ctx context.Context, cfg *config.Config) (Gateway, error) {
	switch Provider(cfg.PaymentProvider) {
	case ProviderWepay:
		return newWepayGateway(ctx, cfg)
	case ProviderMock:
		return NewMockGateway(), nil
	default:
		return nil, fmt.Errorf("payment: unsupported provider %q", cfg.PaymentProvider)
	}
}
