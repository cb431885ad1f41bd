package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenbot/pkg/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testOrder(id string, customer int64, at time.Time) *models.Order {
	return &models.Order{
		ID:          id,
		OrderNumber: id,
		CustomerID:  customer,
		Items:       []models.OrderItem{{MenuItemID: 1, Name: "Plov", Quantity: 2, Price: 500}},
		Total:       1399,
		Status:      models.StatusPending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestProjectionInsertIsIdempotent(t *testing.T) {
	p := NewProjection(models.OrderFilter{})
	ev := models.ChangeEvent{Type: models.ChangeInsert, Order: testOrder("a", 1, t0)}

	assert.Len(t, p.Apply(ev), 1)
	assert.Empty(t, p.Apply(ev))
	assert.Equal(t, 1, p.Len())
}

func TestProjectionUpdateMergesWithoutClobberingItems(t *testing.T) {
	p := NewProjection(models.OrderFilter{})
	p.Apply(models.ChangeEvent{Type: models.ChangeInsert, Order: testOrder("a", 1, t0)})

	// Lightweight payload: no items, but a new status and driver position.
	update := &models.Order{
		ID:         "a",
		CustomerID: 1,
		Status:     models.StatusDelivering,
		DriverLat:  models.Float(41.3),
		DriverLng:  models.Float(69.2),
		UpdatedAt:  t0.Add(time.Minute),
	}
	changed := p.Apply(models.ChangeEvent{Type: models.ChangeUpdate, Order: update})
	require.Len(t, changed, 1)

	got, ok := p.Get("a")
	require.True(t, ok)
	assert.Equal(t, models.StatusDelivering, got.Status)
	assert.Len(t, got.Items, 1)
	assert.Equal(t, int64(1399), got.Total)
	require.NotNil(t, got.DriverLat)
	assert.Equal(t, 41.3, *got.DriverLat)

	// Same payload again changes nothing.
	assert.Empty(t, p.Apply(models.ChangeEvent{Type: models.ChangeUpdate, Order: update}))
}

func TestProjectionDropsOlderUpdate(t *testing.T) {
	p := NewProjection(models.OrderFilter{})
	o := testOrder("a", 1, t0)
	o.Status = models.StatusCooking
	o.UpdatedAt = t0.Add(2 * time.Minute)
	p.Apply(models.ChangeEvent{Type: models.ChangeInsert, Order: o})

	stale := o.Clone()
	stale.Status = models.StatusAccepted
	stale.UpdatedAt = t0.Add(time.Minute)
	assert.Empty(t, p.Apply(models.ChangeEvent{Type: models.ChangeUpdate, Order: stale}))

	got, _ := p.Get("a")
	assert.Equal(t, models.StatusCooking, got.Status)
}

func TestProjectionUpdateForUnknownOrderInserts(t *testing.T) {
	p := NewProjection(models.OrderFilter{})
	changed := p.Apply(models.ChangeEvent{Type: models.ChangeUpdate, Order: testOrder("b", 1, t0)})
	assert.Len(t, changed, 1)
	assert.Equal(t, 1, p.Len())
}

func TestProjectionSnapshotRebuilds(t *testing.T) {
	p := NewProjection(models.OrderFilter{})
	p.Apply(models.ChangeEvent{Type: models.ChangeInsert, Order: testOrder("gone", 1, t0)})
	p.Apply(models.ChangeEvent{Type: models.ChangeInsert, Order: testOrder("kept", 1, t0)})

	kept := testOrder("kept", 1, t0)
	fresh := testOrder("new", 1, t0.Add(time.Minute))
	changed := p.Apply(models.ChangeEvent{Type: models.ChangeSnapshot, Orders: []*models.Order{kept, fresh}})

	require.Len(t, changed, 1)
	assert.Equal(t, "new", changed[0].ID)

	orders := p.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "new", orders[0].ID)
	assert.Equal(t, "kept", orders[1].ID)
	_, ok := p.Get("gone")
	assert.False(t, ok)
}

func TestProjectionFiltersByCustomer(t *testing.T) {
	customer := int64(7)
	p := NewProjection(models.OrderFilter{CustomerID: &customer})

	p.Apply(models.ChangeEvent{Type: models.ChangeInsert, Order: testOrder("mine", 7, t0)})
	p.Apply(models.ChangeEvent{Type: models.ChangeInsert, Order: testOrder("theirs", 8, t0)})
	p.Apply(models.ChangeEvent{Type: models.ChangeUpdate, Order: testOrder("theirs2", 8, t0)})

	assert.Equal(t, 1, p.Len())
	_, ok := p.Get("mine")
	assert.True(t, ok)
}

func TestProjectionReturnsCopies(t *testing.T) {
	p := NewProjection(models.OrderFilter{})
	o := testOrder("a", 1, t0)
	p.Apply(models.ChangeEvent{Type: models.ChangeInsert, Order: o})

	o.Status = models.StatusCancelled
	got, _ := p.Get("a")
	got.Items[0].Name = "changed"

	again, _ := p.Get("a")
	assert.Equal(t, models.StatusPending, again.Status)
	assert.Equal(t, "Plov", again.Items[0].Name)
}

func TestProjectionOrdersSameInstantByNumber(t *testing.T) {
	p := NewProjection(models.OrderFilter{})
	older, newer := testOrder("a", 1, t0), testOrder("b", 1, t0)
	older.OrderNumber, newer.OrderNumber = "9999", "10000"

	p.Apply(models.ChangeEvent{Type: models.ChangeSnapshot, Orders: []*models.Order{older, newer}})

	orders := p.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, "10000", orders[0].OrderNumber)
	assert.Equal(t, "9999", orders[1].OrderNumber)
}
