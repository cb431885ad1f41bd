package realtime

import (
	"sort"
	"sync"

	"kitchenbot/pkg/models"
)

// Projection is a view's local copy of the orders it can see. Apply is the
// only way to change it; readers get copies.
type Projection struct {
	mu     sync.RWMutex
	filter models.OrderFilter
	orders map[string]*models.Order
}

func NewProjection(filter models.OrderFilter) *Projection {
	return &Projection{
		filter: filter,
		orders: make(map[string]*models.Order),
	}
}

// Apply folds one event into the projection and returns copies of the
// orders whose visible state changed.
//
// Inserts are ignored when the id is already known. Updates merge status,
// payment status, driver coordinates and UpdatedAt only, so line items
// loaded earlier survive lightweight payloads; an update older than the
// local copy is dropped. Snapshots replace everything.
func (p *Projection) Apply(ev models.ChangeEvent) []*models.Order {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case models.ChangeInsert:
		if ev.Order == nil || !p.visible(ev.Order) {
			return nil
		}
		if _, ok := p.orders[ev.Order.ID]; ok {
			return nil
		}
		p.orders[ev.Order.ID] = ev.Order.Clone()
		return []*models.Order{ev.Order.Clone()}

	case models.ChangeUpdate:
		if ev.Order == nil || !p.visible(ev.Order) {
			return nil
		}
		cur, ok := p.orders[ev.Order.ID]
		if !ok {
			p.orders[ev.Order.ID] = ev.Order.Clone()
			return []*models.Order{ev.Order.Clone()}
		}
		if ev.Order.UpdatedAt.Before(cur.UpdatedAt) {
			return nil
		}
		if !merge(cur, ev.Order) {
			return nil
		}
		return []*models.Order{cur.Clone()}

	case models.ChangeSnapshot:
		next := make(map[string]*models.Order, len(ev.Orders))
		var changed []*models.Order
		for _, o := range ev.Orders {
			if o == nil || !p.visible(o) {
				continue
			}
			c := o.Clone()
			next[o.ID] = c
			if prev, ok := p.orders[o.ID]; !ok || differs(prev, c) {
				changed = append(changed, c.Clone())
			}
		}
		p.orders = next
		return changed
	}
	return nil
}

func (p *Projection) Get(id string) (*models.Order, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	o, ok := p.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

// Orders returns the projection newest first.
func (p *Projection) Orders() []*models.Order {
	p.mu.RLock()
	orders := make([]*models.Order, 0, len(p.orders))
	for _, o := range p.orders {
		orders = append(orders, o.Clone())
	}
	p.mu.RUnlock()

	sort.SliceStable(orders, func(i, j int) bool { return models.NewerFirst(orders[i], orders[j]) })
	return orders
}

func (p *Projection) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.orders)
}

func (p *Projection) visible(o *models.Order) bool {
	return p.filter.CustomerID == nil || *p.filter.CustomerID == o.CustomerID
}

func merge(dst, src *models.Order) bool {
	if !differs(dst, src) {
		return false
	}
	dst.Status = src.Status
	dst.PaymentStatus = src.PaymentStatus
	dst.DriverLat = copyFloat(src.DriverLat)
	dst.DriverLng = copyFloat(src.DriverLng)
	if src.UpdatedAt.After(dst.UpdatedAt) {
		dst.UpdatedAt = src.UpdatedAt
	}
	return true
}

func differs(a, b *models.Order) bool {
	return a.Status != b.Status ||
		a.PaymentStatus != b.PaymentStatus ||
		!sameFloat(a.DriverLat, b.DriverLat) ||
		!sameFloat(a.DriverLng, b.DriverLng)
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	return models.Float(*f)
}
