package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/pkg/routing"
)

type fakeRouter struct {
	mu    sync.Mutex
	calls []models.Coordinates
	err   error
}

func (f *fakeRouter) Route(ctx context.Context, from, to models.Coordinates) (*routing.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, from)
	if f.err != nil {
		return nil, f.err
	}
	return &routing.Route{
		Geometry: []models.Coordinates{from, to},
		Duration: time.Duration(len(f.calls)) * time.Minute,
		Distance: 1000,
	}, nil
}

func (f *fakeRouter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRouter) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBoard(router routing.Router) (*Board, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	b := NewBoard(router, 2*time.Second, logger.NewNop())
	b.now = c.now
	return b, c
}

func delivering(id string, lat, lng float64) *models.Order {
	return &models.Order{
		ID:          id,
		Status:      models.StatusDelivering,
		DeliveryLat: models.Float(41.0),
		DeliveryLng: models.Float(69.0),
		DriverLat:   models.Float(lat),
		DriverLng:   models.Float(lng),
	}
}

func TestBoardInterpolatesMarker(t *testing.T) {
	b, c := newTestBoard(nil)

	b.Observe(delivering("a", 0, 0))
	tr, ok := b.Tracking("a")
	require.True(t, ok)
	assert.True(t, tr.HasMarker)
	assert.Equal(t, models.Coordinates{}, tr.Marker)

	c.advance(time.Second)
	b.Observe(delivering("a", 10, 20))

	tr, _ = b.Tracking("a")
	assert.Equal(t, models.Coordinates{Lat: 0, Lng: 0}, tr.Marker)
	require.NotNil(t, tr.Driver)
	assert.Equal(t, models.Coordinates{Lat: 10, Lng: 20}, *tr.Driver)

	c.advance(500 * time.Millisecond)
	tr, _ = b.Tracking("a")
	assert.InDelta(t, 5, tr.Marker.Lat, 1e-9)
	assert.InDelta(t, 10, tr.Marker.Lng, 1e-9)

	c.advance(time.Second)
	tr, _ = b.Tracking("a")
	assert.Equal(t, models.Coordinates{Lat: 10, Lng: 20}, tr.Marker)
}

func TestBoardNewSampleStartsFromCurrentMarker(t *testing.T) {
	b, c := newTestBoard(nil)

	b.Observe(delivering("a", 0, 0))
	c.advance(time.Second)
	b.Observe(delivering("a", 10, 0))
	c.advance(500 * time.Millisecond)
	// Marker is halfway (5, 0) when the next sample lands.
	b.Observe(delivering("a", 20, 0))

	tr, _ := b.Tracking("a")
	assert.InDelta(t, 5, tr.Marker.Lat, 1e-9)
}

func TestBoardThrottlesRouting(t *testing.T) {
	router := &fakeRouter{}
	b, c := newTestBoard(router)

	b.Observe(delivering("a", 1, 1))
	b.Wait()
	assert.Equal(t, 1, router.count())

	c.advance(500 * time.Millisecond)
	b.Observe(delivering("a", 2, 2))
	b.Wait()
	assert.Equal(t, 1, router.count())

	// The skipped position is routed once the window has passed.
	c.advance(2 * time.Second)
	b.Tracking("a")
	b.Wait()
	require.Equal(t, 2, router.count())
	assert.Equal(t, models.Coordinates{Lat: 2, Lng: 2}, router.calls[1])

	tr, _ := b.Tracking("a")
	assert.Equal(t, 2*time.Minute, tr.ETA)
	assert.Equal(t, 1000.0, tr.Distance)
	assert.False(t, tr.Stale)
}

func TestBoardKeepsStaleRouteOnFailure(t *testing.T) {
	router := &fakeRouter{}
	b, c := newTestBoard(router)

	b.Observe(delivering("a", 1, 1))
	b.Wait()

	router.fail(errors.New("osrm down"))
	c.advance(3 * time.Second)
	b.Observe(delivering("a", 2, 2))
	b.Wait()

	tr, ok := b.Tracking("a")
	require.True(t, ok)
	require.NotNil(t, tr.Route)
	assert.Equal(t, time.Minute, tr.ETA)
	assert.True(t, tr.Stale)
}

func TestBoardDropsViewWhenDeliveryEnds(t *testing.T) {
	b, _ := newTestBoard(nil)

	b.Observe(delivering("a", 1, 1))
	assert.Equal(t, 1, b.Len())

	done := delivering("a", 1, 1)
	done.Status = models.StatusDelivered
	done.DriverLat, done.DriverLng = nil, nil
	b.Observe(done)

	_, ok := b.Tracking("a")
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestBoardWithoutDriverPosition(t *testing.T) {
	b, _ := newTestBoard(&fakeRouter{})

	o := delivering("a", 0, 0)
	o.DriverLat, o.DriverLng = nil, nil
	b.Observe(o)

	tr, ok := b.Tracking("a")
	require.True(t, ok)
	assert.False(t, tr.HasMarker)
	assert.Nil(t, tr.Route)
	require.NotNil(t, tr.Destination)
}
