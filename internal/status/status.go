package status

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("resource not found")

	// Eligibility errors. These block action before any network call.
	ErrNotEligible       = errors.New("registration: not eligible")
	ErrAlreadyRegistered = errors.New("registration: already registered")

	// Ticket resolution errors.
	ErrTicketRequired    = errors.New("tickets: select a ticket type")
	ErrTierRequired      = errors.New("tickets: select a tier/quantity")
	ErrTicketUnavailable = errors.New("tickets: ticket type unavailable")

	// Order lifecycle errors.
	ErrOrderTerminal     = errors.New("orders: order already finished")
	ErrOrderNotPaid      = errors.New("orders: order not paid")
	ErrNoPaymentRequired = errors.New("orders: ticket does not require payment")
	ErrPaymentRequired   = errors.New("registration: ticket requires payment")

	// Payment gateway errors.
	ErrFailedPayment    = errors.New("payment: payment failed")
	ErrIdentityNotBound = errors.New("payment: payment identity not bound")
)

// ValidationError reports a per-field precondition failure. It blocks
// submission locally and never reaches the gateway.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Transaction is a settled gateway transaction, delivered either by the
// notification channel or by an explicit query.
type Transaction struct {
	OrderID  string          `json:"order_id"`
	RefID    string          `json:"ref_id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	PaidAt   time.Time       `json:"paid_at"`
}
