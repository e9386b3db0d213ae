package models

import (
	"time"
)

// Invite is a bonus code generated when an order for a gifting ticket
// type is paid. It is created once and mutated only on redemption.
type Invite struct {
	ID         string     `json:"id"`
	OrderID    string     `json:"order_id"`
	EventID    string     `json:"event_id"`
	Code       string     `json:"code"`
	Redeemed   bool       `json:"redeemed"`
	RedeemedBy string     `json:"redeemed_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
}
