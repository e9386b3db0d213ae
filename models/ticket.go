package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTier is a quantity bucket with its own price. A ticket type with
// tiers is only purchasable at one of its configured quantities.
type PriceTier struct {
	ID           string          `json:"id"`
	TicketTypeID string          `json:"ticket_type_id"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
}

type TicketType struct {
	ID              string          `json:"id"`
	EventID         string          `json:"event_id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	MaxQuantity     *int            `json:"max_quantity,omitempty"`
	CurrentQuantity int             `json:"current_quantity"`
	IsActive        bool            `json:"is_active"`
	GiftInvites     int             `json:"gift_invites"`
	Tiers           []PriceTier     `json:"tiers,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Available reports whether the ticket type can still be issued.
func (t *TicketType) Available() bool {
	if !t.IsActive {
		return false
	}
	if t.MaxQuantity != nil && t.CurrentQuantity >= *t.MaxQuantity {
		return false
	}
	return true
}

// TierFor returns the price tier matching the requested quantity, or nil
// when the ticket type has no tier for that quantity.
func (t *TicketType) TierFor(quantity int) *PriceTier {
	for i := range t.Tiers {
		if t.Tiers[i].Quantity == quantity {
			return &t.Tiers[i]
		}
	}
	return nil
}
