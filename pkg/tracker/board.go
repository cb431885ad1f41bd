package tracker

import (
	"context"
	"sync"
	"time"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/pkg/routing"
)

const (
	minInterval = 250 * time.Millisecond
	maxInterval = 10 * time.Second
)

// Tracking is what an observer's map shows for one order.
type Tracking struct {
	OrderID     string              `json:"order_id"`
	HasMarker   bool                `json:"has_marker"`
	Marker      models.Coordinates  `json:"marker"`
	Driver      *models.Coordinates `json:"driver,omitempty"`
	Destination *models.Coordinates `json:"destination,omitempty"`
	Route       *routing.Route      `json:"route,omitempty"`
	ETA         time.Duration       `json:"eta"`
	Distance    float64             `json:"distance"`
	RoutedAt    time.Time           `json:"routed_at"`
	Stale       bool                `json:"stale"`
}

type sample struct {
	at   models.Coordinates
	seen time.Time
}

// View is the observer-side state of one delivering order.
type View struct {
	orderID     string
	destination *models.Coordinates

	from, to *sample
	interval time.Duration

	route      *routing.Route
	routedAt   time.Time
	routeStale bool
	pending    bool
	inFlight   bool
}

// marker interpolates between the last two samples over the interval they
// arrived in, so the marker glides instead of snapping.
func (v *View) marker(now time.Time) (models.Coordinates, bool) {
	if v.to == nil {
		return models.Coordinates{}, false
	}
	if v.from == nil || v.interval <= 0 {
		return v.to.at, true
	}
	f := float64(now.Sub(v.to.seen)) / float64(v.interval)
	if f <= 0 {
		return v.from.at, true
	}
	if f >= 1 {
		return v.to.at, true
	}
	return models.Coordinates{
		Lat: v.from.at.Lat + (v.to.at.Lat-v.from.at.Lat)*f,
		Lng: v.from.at.Lng + (v.to.at.Lng-v.from.at.Lng)*f,
	}, true
}

// Board holds a View per delivering order, fed by projection changes.
// Routes are recomputed at most once per throttle window; a failed routing
// call keeps the previous route and marks it stale.
type Board struct {
	router   routing.Router
	throttle time.Duration
	log      logger.ILogger
	now      func() time.Time

	mu    sync.Mutex
	views map[string]*View
	wg    sync.WaitGroup
}

func NewBoard(router routing.Router, throttle time.Duration, log logger.ILogger) *Board {
	return &Board{
		router:   router,
		throttle: throttle,
		log:      log,
		now:      time.Now,
		views:    make(map[string]*View),
	}
}

// Observe updates the board with the latest known state of an order.
func (b *Board) Observe(o *models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !o.Status.Tracked() {
		delete(b.views, o.ID)
		return
	}

	v, ok := b.views[o.ID]
	if !ok {
		v = &View{orderID: o.ID}
		b.views[o.ID] = v
	}
	if dest, ok := o.DeliveryPosition(); ok {
		v.destination = &dest
	}

	pos, ok := o.DriverPosition()
	if !ok {
		v.from, v.to, v.interval = nil, nil, 0
		return
	}
	if v.to != nil && v.to.at == pos {
		return
	}

	now := b.now()
	if v.to == nil {
		v.to = &sample{at: pos, seen: now}
	} else {
		current, _ := v.marker(now)
		v.interval = clampInterval(now.Sub(v.to.seen))
		v.from = &sample{at: current, seen: v.to.seen}
		v.to = &sample{at: pos, seen: now}
	}

	v.pending = true
	b.maybeRoute(v, now)
}

// Tracking returns the map state of an order, false when it is not being
// delivered.
func (b *Board) Tracking(orderID string) (Tracking, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.views[orderID]
	if !ok {
		return Tracking{}, false
	}
	now := b.now()
	b.maybeRoute(v, now)

	tr := Tracking{
		OrderID:     orderID,
		Destination: v.destination,
		Route:       v.route,
		RoutedAt:    v.routedAt,
		Stale:       v.routeStale,
	}
	if m, ok := v.marker(now); ok {
		tr.HasMarker = true
		tr.Marker = m
		driver := v.to.at
		tr.Driver = &driver
	}
	if v.route != nil {
		tr.ETA = v.route.Duration
		tr.Distance = v.route.Distance
	}
	return tr, true
}

func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.views)
}

// Wait blocks until in-flight routing calls finish.
func (b *Board) Wait() {
	b.wg.Wait()
}

// maybeRoute must be called with b.mu held.
func (b *Board) maybeRoute(v *View, now time.Time) {
	if !v.pending || v.inFlight || v.to == nil || v.destination == nil || b.router == nil {
		return
	}
	if !v.routedAt.IsZero() && now.Sub(v.routedAt) < b.throttle {
		return
	}

	v.pending = false
	v.inFlight = true
	v.routedAt = now
	from, to := v.to.at, *v.destination

	b.wg.Add(1)
	go b.route(v.orderID, from, to)
}

func (b *Board) route(orderID string, from, to models.Coordinates) {
	defer b.wg.Done()

	route, err := b.router.Route(context.Background(), from, to)

	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.views[orderID]
	if !ok {
		return
	}
	v.inFlight = false
	if err != nil {
		v.routeStale = v.route != nil
		b.log.Warning("route unavailable, keeping previous",
			logger.String("order_id", orderID),
			logger.Error(&errs.TrackingUnavailableError{Reason: "routing failed", Err: err}),
		)
		return
	}
	v.route = route
	v.routeStale = false
}

func clampInterval(d time.Duration) time.Duration {
	if d < minInterval {
		return minInterval
	}
	if d > maxInterval {
		return maxInterval
	}
	return d
}
