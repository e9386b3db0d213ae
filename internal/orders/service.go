// Package orders manages the payment order lifecycle: idempotent
// creation, polling, cancellation, exactly-once settlement, and the
// background expiry sweep. Orders only ever move forward: pending to
// paid, cancelled, or expired, and terminal states are immutable.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"community-events/config"
	"community-events/internal/payment"
	"community-events/internal/registration"
	"community-events/internal/status"
	"community-events/internal/store"
	"community-events/internal/tickets"
	"community-events/models"
	"community-events/monitoring"
	"community-events/utils"
)

type Service struct {
	store    *store.Store
	redis    *redis.Client
	gateway  payment.Gateway
	fin      *registration.Finalizer
	monitor  *monitoring.Monitor
	ttl      time.Duration
	currency string
	poll     time.Duration
	tick     time.Duration
	logger   *slog.Logger
}

func NewService(st *store.Store, redisClient *redis.Client, gw payment.Gateway, fin *registration.Finalizer, monitor *monitoring.Monitor, cfg *config.Config, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		redis:    redisClient,
		gateway:  gw,
		fin:      fin,
		monitor:  monitor,
		ttl:      cfg.OrderTTL,
		currency: cfg.PaymentCurrency,
		poll:     cfg.PollInterval,
		tick:     cfg.CountdownTick,
		logger:   logger,
	}
}

// CreateForm is the order creation payload: the registration payload
// plus the payer's in-app payment identity, when known.
type CreateForm struct {
	registration.Form
	PayerID string `json:"payer_id"`
}

// Create initiates a payment order. It is idempotent: an existing
// pending order for the (user, event) pair is returned as-is with
// isExisting true, without touching the gateway again.
func (s *Service) Create(ctx context.Context, form *CreateForm) (*models.Order, bool, error) {
	event, err := s.store.GetEvent(ctx, form.EventID)
	if err != nil {
		return nil, false, err
	}
	if err := registration.Validate(event, form.Answers, form.Consent); err != nil {
		return nil, false, err
	}
	if _, err := s.fin.CheckEligibility(ctx, s.store, event, form.UserID); err != nil {
		return nil, false, err
	}

	existing, err := s.store.FindPendingOrder(ctx, form.EventID, form.UserID)
	if err != nil && !errors.Is(err, status.ErrNotFound) {
		return nil, false, err
	}
	if existing != nil {
		if existing.Remaining(time.Now()) > 0 {
			return existing, true, nil
		}
		// Past its deadline but not yet swept. Expire it and fall
		// through to a fresh order.
		if err := s.expire(ctx, existing); err != nil {
			return nil, false, err
		}
	}

	catalog, err := s.store.TicketTypes(ctx, form.EventID)
	if err != nil {
		return nil, false, err
	}
	res, err := tickets.Resolve(catalog, form.TicketTypeID, form.Quantity)
	if err != nil {
		return nil, false, err
	}
	if !res.IsPaid {
		return nil, false, status.ErrNoPaymentRequired
	}

	amount := res.UnitPrice()
	if res.Tier == nil {
		amount = amount.Mul(decimal.NewFromInt(int64(res.Quantity)))
	}

	publicCode, err := utils.NewPublicCode("ORD")
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	order := &models.Order{
		ID:           uuid.NewString(),
		PublicCode:   publicCode,
		EventID:      form.EventID,
		UserID:       form.UserID,
		TicketTypeID: res.Ticket.ID,
		Quantity:     res.Quantity,
		Amount:       amount,
		Status:       models.OrderPending,
		Answers:      form.Answers,
		ProjectID:    form.ProjectID,
		InviteCode:   form.InviteCode,
		Consent:      form.Consent,
		ExpiredAt:    now.Add(s.ttl),
		CreatedAt:    now,
	}
	if res.Tier != nil {
		order.TierID = res.Tier.ID
	}

	start := time.Now()
	params, err := s.gateway.CreatePayment(ctx, &payment.Request{
		OrderID:     order.ID,
		Description: event.Title,
		Amount:      order.Amount,
		Currency:    s.currency,
		PayerID:     form.PayerID,
		ExpireAt:    order.ExpiredAt,
	})
	s.trackGateway("create", start)
	if err != nil {
		return nil, false, err
	}
	order.Payment = params

	if err := s.store.CreateOrder(ctx, order); err != nil {
		// A concurrent create can win the one-pending index between the
		// lookup and this insert. Adopt the winner's order and void the
		// payment session opened for the loser.
		winner, findErr := s.store.FindPendingOrder(ctx, form.EventID, form.UserID)
		if findErr != nil {
			return nil, false, err
		}
		if closeErr := s.gateway.ClosePayment(ctx, order.ID); closeErr != nil {
			s.logger.Warn("gateway close failed", "order_id", order.ID, "error", closeErr)
		}
		return winner, true, nil
	}

	s.cachePending(ctx, order)
	s.trackTransition(order.EventID, string(models.OrderPending))
	s.logger.Info("order created",
		"order_id", order.ID, "event_id", order.EventID,
		"user_id", order.UserID, "amount", order.Amount)
	return order, false, nil
}

// Get returns an order, scoped to its owner.
func (s *Service) Get(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	// Do not leak another user's order.
	if order.UserID != userID {
		return nil, status.ErrNotFound
	}
	return order, nil
}

// Pending returns the user's pending order for an event, expiring it
// on the spot when its deadline already passed.
func (s *Service) Pending(ctx context.Context, eventID, userID string) (*models.Order, error) {
	order, err := s.store.FindPendingOrder(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	if order.Remaining(time.Now()) == 0 {
		if err := s.expire(ctx, order); err != nil {
			return nil, err
		}
		return nil, status.ErrNotFound
	}
	return order, nil
}

// Cancel closes a pending order. Cancelling an already-cancelled or
// expired order returns it unchanged; a paid order cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, err := s.Get(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case models.OrderCancelled, models.OrderExpired:
		return order, nil
	case models.OrderPaid:
		return nil, status.ErrOrderTerminal
	}

	if err := s.gateway.ClosePayment(ctx, order.ID); err != nil {
		// The sweep will retry closure at the gateway; the local
		// cancellation wins regardless.
		s.logger.Warn("gateway close failed", "order_id", order.ID, "error", err)
	}

	ok, err := s.store.CloseOrder(ctx, order.ID, models.OrderCancelled, time.Now())
	if err != nil {
		return nil, err
	}
	if ok {
		s.dropPending(ctx, order)
		s.trackTransition(order.EventID, string(models.OrderCancelled))
		s.logger.Info("order cancelled", "order_id", order.ID)
	}
	return s.store.GetOrder(ctx, orderID)
}

// MarkPaid settles an order from a gateway transaction. The paid
// transition and the registration finalization commit together, and a
// repeated transaction for an already-settled order is a no-op.
func (s *Service) MarkPaid(ctx context.Context, txn *status.Transaction) error {
	var settled *models.Order
	err := s.store.Transactional(func(tx *store.Store) error {
		order, err := tx.GetOrder(ctx, txn.OrderID)
		if err != nil {
			return err
		}

		paidAt := txn.PaidAt
		if paidAt.IsZero() {
			paidAt = time.Now()
		}
		ok, err := tx.MarkOrderPaid(ctx, order.ID, txn.RefID, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			// Already settled or closed; nothing to do.
			return nil
		}

		if err := s.fin.Settle(ctx, tx, order); err != nil {
			return err
		}
		settled = order
		return nil
	})
	if err != nil {
		return err
	}
	if settled == nil {
		return nil
	}

	s.dropPending(ctx, settled)
	s.trackTransition(settled.EventID, string(models.OrderPaid))
	s.logger.Info("order settled",
		"order_id", settled.ID, "event_id", settled.EventID, "ref_id", txn.RefID)
	return nil
}

// Registration returns the registration settled by a paid order.
func (s *Service) Registration(ctx context.Context, order *models.Order) (*models.Registration, error) {
	if order.Status != models.OrderPaid {
		return nil, status.ErrOrderNotPaid
	}
	return s.store.FindRegistration(ctx, order.EventID, order.UserID)
}

// Invites lists the gift invite codes issued by a paid order.
func (s *Service) Invites(ctx context.Context, orderID, userID string) ([]models.Invite, error) {
	order, err := s.Get(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderPaid {
		return nil, status.ErrOrderNotPaid
	}
	return s.store.ListInvitesByOrder(ctx, orderID)
}

// RunExpireSweeper closes pending orders past their deadline on a
// period until the context is cancelled.
func (s *Service) RunExpireSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepExpired(ctx); err != nil {
				s.logger.Error("expire sweep failed", "error", err)
			}
		}
	}
}

// SweepExpired expires every pending order whose deadline has passed.
func (s *Service) SweepExpired(ctx context.Context) error {
	expired, err := s.store.ListExpiredOrders(ctx, time.Now())
	if err != nil {
		return err
	}
	for i := range expired {
		if err := s.expire(ctx, &expired[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) expire(ctx context.Context, order *models.Order) error {
	if err := s.gateway.ClosePayment(ctx, order.ID); err != nil {
		s.logger.Warn("gateway close failed", "order_id", order.ID, "error", err)
	}
	ok, err := s.store.CloseOrder(ctx, order.ID, models.OrderExpired, time.Now())
	if err != nil {
		return err
	}
	if ok {
		s.dropPending(ctx, order)
		s.trackTransition(order.EventID, string(models.OrderExpired))
		s.logger.Info("order expired", "order_id", order.ID)
	}
	return nil
}

// pendingKey indexes the user's pending order for cheap existence
// checks and the pending-orders gauge. Redis is best effort here; the
// database stays authoritative.
func pendingKey(eventID, userID string) string {
	return fmt.Sprintf("orders:pending:%s:%s", eventID, userID)
}

func (s *Service) cachePending(ctx context.Context, order *models.Order) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, pendingKey(order.EventID, order.UserID), order.ID, s.ttl).Err(); err != nil {
		s.logger.Debug("pending cache set failed", "order_id", order.ID, "error", err)
	}
}

func (s *Service) dropPending(ctx context.Context, order *models.Order) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, pendingKey(order.EventID, order.UserID)).Err(); err != nil {
		s.logger.Debug("pending cache del failed", "order_id", order.ID, "error", err)
	}
}

func (s *Service) trackTransition(eventID, to string) {
	if s.monitor != nil {
		s.monitor.TrackOrderTransition(eventID, to)
	}
}

func (s *Service) trackGateway(operation string, start time.Time) {
	if s.monitor != nil {
		s.monitor.TrackGatewayCall(operation, time.Since(start))
	}
}
