package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderCancelled OrderStatus = "cancelled"
	// OrderExpired marks an order whose deadline passed while still
	// pending. It is terminal and equivalent to cancelled.
	OrderExpired OrderStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderCancelled || s == OrderExpired
}

// Order is a payment attempt for a paid ticket type. At most one
// pending order exists per (user, event); creation is idempotent.
type Order struct {
	ID           string          `json:"id"`
	PublicCode   string          `json:"public_code"`
	EventID      string          `json:"event_id"`
	UserID       string          `json:"user_id"`
	TicketTypeID string          `json:"ticket_type_id"`
	TierID       string          `json:"tier_id,omitempty"`
	Quantity     int             `json:"quantity"`
	Amount       decimal.Decimal `json:"amount"`
	Status       OrderStatus     `json:"status"`
	Payment      *PaymentParams  `json:"payment,omitempty"`

	// Registration payload carried through settlement.
	Answers    map[string]string `json:"answers,omitempty"`
	ProjectID  string            `json:"project_id,omitempty"`
	InviteCode string            `json:"invite_code,omitempty"`
	Consent    bool              `json:"consent"`

	GatewayRef  string     `json:"gateway_ref,omitempty"`
	ExpiredAt   time.Time  `json:"expired_at"`
	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// Remaining returns the time left before the order expires, floored at zero.
func (o *Order) Remaining(now time.Time) time.Duration {
	if remaining := o.ExpiredAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}
