package orders

import (
	"context"
	"sync/atomic"
	"time"

	"community-events/models"
)

// API is the server surface a Watcher polls. The orders Service bound
// to a user satisfies it; clients over HTTP implement it the same way.
type API interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListInvites(ctx context.Context, orderID string) ([]models.Invite, error)
}

// ForUser binds the service to one user, yielding the surface a
// Watcher polls in-process.
func (s *Service) ForUser(userID string) API {
	return userAPI{s: s, userID: userID}
}

type userAPI struct {
	s      *Service
	userID string
}

func (a userAPI) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return a.s.Get(ctx, orderID, a.userID)
}

func (a userAPI) CancelOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return a.s.Cancel(ctx, orderID, a.userID)
}

func (a userAPI) ListInvites(ctx context.Context, orderID string) ([]models.Invite, error) {
	return a.s.Invites(ctx, orderID, a.userID)
}

// Watch builds a watcher for the owner's pending order using the
// service's configured poll and countdown intervals.
func (s *Service) Watch(order *models.Order, hooks Hooks) *Watcher {
	return NewWatcher(s.ForUser(order.UserID), order, hooks, s.poll, s.tick)
}

// Hooks receive watcher callbacks. Nil hooks are skipped. All hooks
// fire from the watcher's own goroutine.
type Hooks struct {
	// OnPaid fires exactly once when the order is observed paid.
	OnPaid func(*models.Order)
	// OnInvites fires at most once, after OnPaid, with the order's
	// gift invites.
	OnInvites func([]models.Invite)
	// OnCountdown fires on every countdown tick with the remaining
	// time, floored at zero.
	OnCountdown func(time.Duration)
	// OnWarning fires on a transient poll failure. Polling continues.
	OnWarning func(error)
	// OnError fires when poll failures persist. Polling still continues.
	OnError func(error)
	// OnClosed fires exactly once when the order is observed
	// cancelled or expired, or when the countdown cancels it locally.
	OnClosed func(*models.Order)
}

type watchState int

const (
	watchPending watchState = iota
	watchPaid
	watchClosed
)

// failureThreshold is the consecutive poll failure count at which the
// watcher escalates from OnWarning to OnError.
const failureThreshold = 3

// Watcher tracks one pending order from the client side: it polls the
// order status, counts down to the payment deadline, and cancels the
// order when the deadline hits before payment. Every outcome callback
// is single-fire by construction: firing one is the state transition
// out of watchPending, and only watchPending polls.
type Watcher struct {
	api   API
	hooks Hooks
	order *models.Order

	pollInterval  time.Duration
	countdownTick time.Duration

	state    watchState
	failures int

	invoked atomic.Bool
}

func NewWatcher(api API, order *models.Order, hooks Hooks, pollInterval, countdownTick time.Duration) *Watcher {
	return &Watcher{
		api:           api,
		hooks:         hooks,
		order:         order,
		pollInterval:  pollInterval,
		countdownTick: countdownTick,
	}
}

// InvokeInApp reports whether the in-app payment bridge may be invoked
// now. It returns true exactly once per watcher; the bridge result
// never decides payment success, only polling does.
func (w *Watcher) InvokeInApp() bool {
	return w.invoked.CompareAndSwap(false, true)
}

// Run watches until the order reaches a terminal state or the context
// is cancelled. It owns both tickers; hooks fire from this goroutine.
func (w *Watcher) Run(ctx context.Context) {
	poll := time.NewTicker(w.pollInterval)
	defer poll.Stop()
	countdown := time.NewTicker(w.countdownTick)
	defer countdown.Stop()

	for w.state == watchPending {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			w.poll(ctx)
		case <-countdown.C:
			w.tick(ctx)
		}
	}
}

// Cancel cancels the order explicitly, outside the countdown.
func (w *Watcher) Cancel(ctx context.Context) {
	w.cancel(ctx)
}

func (w *Watcher) poll(ctx context.Context) {
	order, err := w.api.GetOrder(ctx, w.order.ID)
	if err != nil {
		w.failures++
		if w.failures >= failureThreshold {
			w.fire(w.hooks.OnError, err)
		} else {
			w.fire(w.hooks.OnWarning, err)
		}
		// A failed poll is never grounds for cancellation.
		return
	}
	w.failures = 0
	w.order = order

	switch order.Status {
	case models.OrderPaid:
		w.state = watchPaid
		if w.hooks.OnPaid != nil {
			w.hooks.OnPaid(order)
		}
		w.fetchInvites(ctx)
	case models.OrderCancelled, models.OrderExpired:
		w.close(order)
	}
}

func (w *Watcher) tick(ctx context.Context) {
	remaining := w.order.Remaining(time.Now())
	if w.hooks.OnCountdown != nil {
		w.hooks.OnCountdown(remaining)
	}
	if remaining == 0 {
		w.cancel(ctx)
	}
}

func (w *Watcher) cancel(ctx context.Context) {
	if w.state != watchPending {
		return
	}
	order, err := w.api.CancelOrder(ctx, w.order.ID)
	if err != nil {
		// Close locally anyway; the server sweep settles the record.
		w.fire(w.hooks.OnWarning, err)
		order = w.order
		order.Status = models.OrderCancelled
	}
	w.close(order)
}

func (w *Watcher) close(order *models.Order) {
	if w.state != watchPending {
		return
	}
	w.state = watchClosed
	w.order = order
	if w.hooks.OnClosed != nil {
		w.hooks.OnClosed(order)
	}
}

func (w *Watcher) fetchInvites(ctx context.Context) {
	if w.hooks.OnInvites == nil {
		return
	}
	invites, err := w.api.ListInvites(ctx, w.order.ID)
	if err != nil {
		w.fire(w.hooks.OnWarning, err)
		return
	}
	if len(invites) > 0 {
		w.hooks.OnInvites(invites)
	}
}

func (w *Watcher) fire(hook func(error), err error) {
	if hook != nil {
		hook(err)
	}
}
