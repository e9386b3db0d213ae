// Package tickets resolves which ticket type, price tier, and quantity
// a registrant is purchasing from an event's configured catalog.
package tickets

import (
	"community-events/internal/status"
	"community-events/models"

	"github.com/shopspring/decimal"
)

// Resolution is the outcome of resolving a selection against a catalog.
// A nil Ticket with a nil error means the event has no purchasable
// ticket and registration proceeds through the free path.
type Resolution struct {
	Available []models.TicketType
	Ticket    *models.TicketType
	Tier      *models.PriceTier
	Quantity  int
	IsPaid    bool
}

// UnitPrice is the effective per-purchase price: the tier price when a
// tier resolved, the ticket price otherwise, zero for the free path.
func (r *Resolution) UnitPrice() decimal.Decimal {
	if r.Tier != nil {
		return r.Tier.Price
	}
	if r.Ticket != nil {
		return r.Ticket.Price
	}
	return decimal.Zero
}

// Filter returns the ticket types that are active and under capacity.
func Filter(catalog []models.TicketType) []models.TicketType {
	available := make([]models.TicketType, 0, len(catalog))
	for _, t := range catalog {
		if t.Available() {
			available = append(available, t)
		}
	}
	return available
}

// Resolve applies the selection rules:
//   - zero available ticket types clears the selection and routes to the
//     free/no-ticket path;
//   - exactly one available is force-selected regardless of prior state;
//   - a selection no longer in the available set is cleared and must be
//     re-made, never silently replaced;
//   - a tiered ticket must resolve a tier for the chosen quantity.
func Resolve(catalog []models.TicketType, selectedID string, quantity int) (*Resolution, error) {
	if quantity <= 0 {
		quantity = 1
	}

	res := &Resolution{Available: Filter(catalog), Quantity: quantity}

	switch len(res.Available) {
	case 0:
		return res, nil
	case 1:
		res.Ticket = &res.Available[0]
	default:
		if selectedID == "" {
			return nil, status.ErrTicketRequired
		}
		for i := range res.Available {
			if res.Available[i].ID == selectedID {
				res.Ticket = &res.Available[i]
				break
			}
		}
		if res.Ticket == nil {
			// Stale selection: the previously chosen ticket left the
			// available set, so the pick has to be made again.
			return nil, status.ErrTicketRequired
		}
	}

	if len(res.Ticket.Tiers) > 0 {
		res.Tier = res.Ticket.TierFor(quantity)
		if res.Tier == nil {
			return nil, status.ErrTierRequired
		}
	}

	res.IsPaid = res.UnitPrice().IsPositive()
	return res, nil
}
