package store

import (
	"context"
	"time"

	"github.com/pocketbase/dbx"

	"community-events/models"
)

type inviteRow struct {
	ID         string `db:"id"`
	OrderID    string `db:"order_id"`
	EventID    string `db:"event_id"`
	Code       string `db:"code"`
	Redeemed   bool   `db:"redeemed"`
	RedeemedBy string `db:"redeemed_by"`
	CreatedAt  int64  `db:"created_at"`
	RedeemedAt *int64 `db:"redeemed_at"`
}

func (r *inviteRow) toModel() models.Invite {
	return models.Invite{
		ID:         r.ID,
		OrderID:    r.OrderID,
		EventID:    r.EventID,
		Code:       r.Code,
		Redeemed:   r.Redeemed,
		RedeemedBy: r.RedeemedBy,
		CreatedAt:  timeFromUnix(r.CreatedAt),
		RedeemedAt: timePtrFromUnix(r.RedeemedAt),
	}
}

// CreateInvites inserts the invite codes generated by an order settlement.
func (s *Store) CreateInvites(ctx context.Context, invites []models.Invite) error {
	for i := range invites {
		inv := &invites[i]
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = time.Now()
		}
		_, err := s.db.Insert("invites", dbx.Params{
			"id":          inv.ID,
			"order_id":    inv.OrderID,
			"event_id":    inv.EventID,
			"code":        inv.Code,
			"redeemed":    inv.Redeemed,
			"redeemed_by": inv.RedeemedBy,
			"created_at":  inv.CreatedAt.Unix(),
		}).WithContext(ctx).Execute()
		if err != nil {
			return err
		}
	}
	return nil
}

// ListInvitesByOrder returns the invites generated by an order.
func (s *Store) ListInvitesByOrder(ctx context.Context, orderID string) ([]models.Invite, error) {
	var rows []inviteRow
	err := s.db.Select("*").From("invites").
		Where(dbx.HashExp{"order_id": orderID}).
		OrderBy("created_at ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, err
	}

	invites := make([]models.Invite, 0, len(rows))
	for i := range rows {
		invites = append(invites, rows[i].toModel())
	}
	return invites, nil
}

// RedeemInvite marks an unredeemed code as used by the given user.
// It reports whether this call performed the redemption.
func (s *Store) RedeemInvite(ctx context.Context, code, userID string) (bool, error) {
	res, err := s.db.Update("invites", dbx.Params{
		"redeemed":    true,
		"redeemed_by": userID,
		"redeemed_at": time.Now().Unix(),
	}, dbx.NewExp("code = {:code} AND redeemed = 0", dbx.Params{
		"code": code,
	})).WithContext(ctx).Execute()
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
