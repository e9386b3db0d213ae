package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"community-events/models"
)

type orderRow struct {
	ID           string `db:"id"`
	PublicCode   string `db:"public_code"`
	EventID      string `db:"event_id"`
	UserID       string `db:"user_id"`
	TicketTypeID string `db:"ticket_type_id"`
	TierID       string `db:"tier_id"`
	Quantity     int    `db:"quantity"`
	Amount       string `db:"amount"`
	Status       string `db:"status"`
	Payment      string `db:"payment"`
	Answers      string `db:"answers"`
	ProjectID    string `db:"project_id"`
	InviteCode   string `db:"invite_code"`
	Consent      bool   `db:"consent"`
	GatewayRef   string `db:"gateway_ref"`
	ExpiredAt    int64  `db:"expired_at"`
	CreatedAt    int64  `db:"created_at"`
	PaidAt       *int64 `db:"paid_at"`
	CancelledAt  *int64 `db:"cancelled_at"`
}

func (r *orderRow) toModel() (*models.Order, error) {
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, err
	}

	var payment *models.PaymentParams
	if r.Payment != "" {
		payment = &models.PaymentParams{}
		if err := json.Unmarshal([]byte(r.Payment), payment); err != nil {
			return nil, err
		}
	}

	var answers map[string]string
	if r.Answers != "" {
		if err := json.Unmarshal([]byte(r.Answers), &answers); err != nil {
			return nil, err
		}
	}

	return &models.Order{
		ID:           r.ID,
		PublicCode:   r.PublicCode,
		EventID:      r.EventID,
		UserID:       r.UserID,
		TicketTypeID: r.TicketTypeID,
		TierID:       r.TierID,
		Quantity:     r.Quantity,
		Amount:       amount,
		Status:       models.OrderStatus(r.Status),
		Payment:      payment,
		Answers:      answers,
		ProjectID:    r.ProjectID,
		InviteCode:   r.InviteCode,
		Consent:      r.Consent,
		GatewayRef:   r.GatewayRef,
		ExpiredAt:    timeFromUnix(r.ExpiredAt),
		CreatedAt:    timeFromUnix(r.CreatedAt),
		PaidAt:       timePtrFromUnix(r.PaidAt),
		CancelledAt:  timePtrFromUnix(r.CancelledAt),
	}, nil
}

// GetOrder returns a single order by id.
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var row orderRow
	err := s.db.Select("*").From("orders").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toModel()
}

// FindPendingOrder returns the single non-terminal order for a
// (user, event) pair, or status.ErrNotFound.
func (s *Store) FindPendingOrder(ctx context.Context, eventID, userID string) (*models.Order, error) {
	var row orderRow
	err := s.db.Select("*").From("orders").
		Where(dbx.HashExp{
			"event_id": eventID,
			"user_id":  userID,
			"status":   string(models.OrderPending),
		}).
		WithContext(ctx).
		One(&row)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return row.toModel()
}

// CreateOrder inserts a new order. The partial unique index on pending
// orders enforces one non-terminal order per (user, event).
func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	payment, err := json.Marshal(o.Payment)
	if err != nil {
		return err
	}
	if o.Payment == nil {
		payment = []byte("")
	}
	answers, err := json.Marshal(o.Answers)
	if err != nil {
		return err
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	_, err = s.db.Insert("orders", dbx.Params{
		"id":             o.ID,
		"public_code":    o.PublicCode,
		"event_id":       o.EventID,
		"user_id":        o.UserID,
		"ticket_type_id": o.TicketTypeID,
		"tier_id":        o.TierID,
		"quantity":       o.Quantity,
		"amount":         o.Amount.String(),
		"status":         string(o.Status),
		"payment":        string(payment),
		"answers":        string(answers),
		"project_id":     o.ProjectID,
		"invite_code":    o.InviteCode,
		"consent":        o.Consent,
		"gateway_ref":    o.GatewayRef,
		"expired_at":     o.ExpiredAt.Unix(),
		"created_at":     o.CreatedAt.Unix(),
	}).WithContext(ctx).Execute()
	return err
}

// MarkOrderPaid transitions a pending order to paid. It only touches
// rows still pending, so racing settlements apply once.
func (s *Store) MarkOrderPaid(ctx context.Context, id, gatewayRef string, paidAt time.Time) (bool, error) {
	res, err := s.db.Update("orders", dbx.Params{
		"status":      string(models.OrderPaid),
		"gateway_ref": gatewayRef,
		"paid_at":     paidAt.Unix(),
	}, dbx.NewExp("id = {:id} AND status = {:pending}", dbx.Params{
		"id":      id,
		"pending": string(models.OrderPending),
	})).WithContext(ctx).Execute()
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CloseOrder transitions a pending order to cancelled or expired.
// Closing an already-terminal order is a no-op.
func (s *Store) CloseOrder(ctx context.Context, id string, to models.OrderStatus, at time.Time) (bool, error) {
	res, err := s.db.Update("orders", dbx.Params{
		"status":       string(to),
		"cancelled_at": at.Unix(),
	}, dbx.NewExp("id = {:id} AND status = {:pending}", dbx.Params{
		"id":      id,
		"pending": string(models.OrderPending),
	})).WithContext(ctx).Execute()
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListExpiredOrders returns pending orders whose deadline has passed.
func (s *Store) ListExpiredOrders(ctx context.Context, now time.Time) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.Select("*").From("orders").
		Where(dbx.NewExp("status = {:pending} AND expired_at <= {:now}", dbx.Params{
			"pending": string(models.OrderPending),
			"now":     now.Unix(),
		})).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(rows))
	for i := range rows {
		o, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, nil
}
