// Package tracker carries driver positions from the delivering device to
// the store (Tracker, Session) and from the store to observers' maps
// (Board, View).
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/pkg/realtime"
)

const (
	releaseTimeout = 5 * time.Second
	sweepInterval  = 5 * time.Second
)

// Orders is the part of the order service the tracker writes through.
type Orders interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateDriverPosition(ctx context.Context, id string, lat, lng float64) error
	ClearDriverPosition(ctx context.Context, id string) error
}

// Tracker owns at most one Session per order.
type Tracker struct {
	orders   Orders
	hub      *realtime.Hub
	throttle time.Duration
	sweep    time.Duration
	log      logger.ILogger

	mu       sync.Mutex
	sessions map[string]*Session
}

func New(orders Orders, hub *realtime.Hub, throttle time.Duration, log logger.ILogger) *Tracker {
	return &Tracker{
		orders:   orders,
		hub:      hub,
		throttle: throttle,
		sweep:    sweepInterval,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Start opens a session for an order that is out for delivery. A running
// session for the same order is replaced without clearing its position.
func (t *Tracker) Start(ctx context.Context, orderID string) (*Session, error) {
	order, err := t.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, &errs.TrackingUnavailableError{Reason: "order lookup failed", Err: err}
	}
	if !order.Status.Tracked() {
		return nil, &errs.TrackingUnavailableError{Reason: "order is " + string(order.Status)}
	}

	s := newSession(t, orderID)

	t.mu.Lock()
	old := t.sessions[orderID]
	t.sessions[orderID] = s
	t.mu.Unlock()

	if old != nil {
		old.halt(false)
	}
	go s.loop()

	t.log.Info("tracking started", logger.String("order_id", orderID))
	return s, nil
}

func (t *Tracker) Session(orderID string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[orderID]
	return s, ok
}

// Stop ends tracking for the order, if any, and clears its position.
func (t *Tracker) Stop(orderID string) {
	if s, ok := t.Session(orderID); ok {
		s.Stop()
	}
}

func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Run stops sessions whose order left delivering and releases every
// session when ctx is done. Hub events stop a session right away; a
// periodic check against the store catches transitions whose event was
// dropped.
func (t *Tracker) Run(ctx context.Context) error {
	events, cancel := t.hub.Subscribe(0)
	defer cancel()
	defer t.stopAll()

	ticker := time.NewTicker(t.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Order != nil {
				t.Observe(ev.Order)
			}
			for _, o := range ev.Orders {
				t.Observe(o)
			}
		case <-ticker.C:
			t.verify(ctx)
		}
	}
}

// Observe stops the order's session unless the order is still delivering.
// It is safe to call from any feed (hub, viewer callbacks).
func (t *Tracker) Observe(o *models.Order) {
	if o.Status.Tracked() {
		return
	}
	if s, ok := t.Session(o.ID); ok {
		t.log.Info("order left delivering, tracking stopped",
			logger.String("order_id", o.ID),
			logger.String("status", string(o.Status)),
		)
		s.Stop()
	}
}

// verify re-reads every tracked order from the store.
func (t *Tracker) verify(ctx context.Context) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		order, err := t.orders.GetOrder(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			t.Stop(id)
			continue
		}
		if err != nil {
			t.log.Warning("tracking check failed", logger.String("order_id", id), logger.Error(err))
			continue
		}
		t.Observe(order)
	}
}

func (t *Tracker) stopAll() {
	t.mu.Lock()
	sessions := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}

func (t *Tracker) forget(s *Session) {
	t.mu.Lock()
	if t.sessions[s.orderID] == s {
		delete(t.sessions, s.orderID)
	}
	t.mu.Unlock()
}
