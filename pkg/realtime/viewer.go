package realtime

import (
	"context"
	"sync"
	"time"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
)

// Lister is the authoritative source polled by a Viewer.
type Lister interface {
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error)
}

// Viewer keeps one view's projection current. Hub events and polled
// snapshots are applied by the same reducer, so either source alone keeps
// the projection correct; the hub only shortens the delay.
type Viewer struct {
	hub      *Hub
	lister   Lister
	filter   models.OrderFilter
	interval time.Duration
	proj     *Projection
	log      logger.ILogger

	mu        sync.RWMutex
	listeners []func(*models.Order)
}

// NewViewer builds a viewer. A nil hub means poll only; a non-positive
// interval means push only.
func NewViewer(hub *Hub, lister Lister, filter models.OrderFilter, interval time.Duration, log logger.ILogger) *Viewer {
	return &Viewer{
		hub:      hub,
		lister:   lister,
		filter:   filter,
		interval: interval,
		proj:     NewProjection(filter),
		log:      log,
	}
}

func (v *Viewer) Projection() *Projection {
	return v.proj
}

// OnChange registers fn to be called with every order whose visible state
// changed. Must be called before Run.
func (v *Viewer) OnChange(fn func(*models.Order)) {
	v.mu.Lock()
	v.listeners = append(v.listeners, fn)
	v.mu.Unlock()
}

// Run loads an initial snapshot and then applies hub events and polls until
// ctx is done.
func (v *Viewer) Run(ctx context.Context) error {
	var events <-chan models.ChangeEvent
	if v.hub != nil {
		ch, cancel := v.hub.Subscribe(0)
		defer cancel()
		events = ch
	}

	if err := v.Poll(ctx); err != nil {
		v.log.Warning("initial order snapshot failed", logger.Error(err))
	}

	var tick <-chan time.Time
	if v.interval > 0 {
		t := time.NewTicker(v.interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			v.apply(ev)
		case <-tick:
			if err := v.Poll(ctx); err != nil && ctx.Err() == nil {
				v.log.Warning("order poll failed", logger.Error(err))
			}
		}
	}
}

// Poll fetches the authoritative list and applies it as a snapshot.
func (v *Viewer) Poll(ctx context.Context) error {
	orders, err := v.lister.ListOrders(ctx, v.filter)
	if err != nil {
		return err
	}
	v.apply(models.ChangeEvent{Type: models.ChangeSnapshot, Orders: orders, At: time.Now()})
	return nil
}

// ApplyLocal records an order this process just created, ahead of any
// event for it. The later insert event is then a no-op.
func (v *Viewer) ApplyLocal(o *models.Order) {
	v.apply(models.ChangeEvent{Type: models.ChangeInsert, Order: o, At: o.CreatedAt})
}

func (v *Viewer) apply(ev models.ChangeEvent) {
	changed := v.proj.Apply(ev)
	if len(changed) == 0 {
		return
	}

	v.mu.RLock()
	listeners := v.listeners
	v.mu.RUnlock()

	for _, o := range changed {
		for _, fn := range listeners {
			fn(o)
		}
	}
}
