// Package memory is an in-process implementation of storage.IStorage. It
// mirrors the Postgres semantics (conditional status updates, driver
// coordinates only while delivering, change notifications on every order
// write) and backs local runs with STORAGE_DRIVER=memory and the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

type Store struct {
	mu sync.RWMutex

	orders      map[string]*models.Order
	orderSeq    int64
	itemSeq     int64
	menu        map[int64]*models.MenuItem
	settings    models.StoreSettings
	users       map[int64]*models.User
	userSeq     int64
	writeErr    error
	listeners   map[int]chan models.ChangeEvent
	listenerSeq int

	now func() time.Time
}

func New() *Store {
	return &Store{
		orders:    make(map[string]*models.Order),
		menu:      make(map[int64]*models.MenuItem),
		users:     make(map[int64]*models.User),
		settings:  models.StoreSettings{AcceptingOrders: true, UpdatedAt: time.Now()},
		listeners: make(map[int]chan models.ChangeEvent),
		now:       time.Now,
	}
}

// NewWithMenu seeds the store with the given menu items.
func NewWithMenu(items ...models.MenuItem) *Store {
	s := New()
	for i := range items {
		item := items[i]
		s.menu[item.ID] = &item
	}
	return s
}

// FailWrites makes every subsequent order write return err; nil restores.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.listeners {
		close(ch)
		delete(s.listeners, id)
	}
}

// Listeners reports how many change feed subscriptions are open.
func (s *Store) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

func (s *Store) Order() storage.IOrderStorage       { return (*orderRepo)(s) }
func (s *Store) Menu() storage.IMenuStorage         { return (*menuRepo)(s) }
func (s *Store) Settings() storage.ISettingsStorage { return (*settingsRepo)(s) }
func (s *Store) User() storage.IUserStorage         { return (*userRepo)(s) }
func (s *Store) Changes() storage.IChangeFeed       { return (*feed)(s) }

// emit must be called with s.mu held.
func (s *Store) emit(typ models.ChangeType, o *models.Order) {
	ev := models.ChangeEvent{Type: typ, Order: o.Clone(), At: o.UpdatedAt}
	for _, ch := range s.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

type orderRepo Store

func (r *orderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return nil, s.writeErr
	}
	if _, ok := s.orders[order.ID]; ok {
		return nil, errDuplicate
	}

	s.orderSeq++
	now := s.now()
	order.OrderNumber = models.FormatOrderNumber(s.orderSeq)
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		s.itemSeq++
		order.Items[i].ID = s.itemSeq
		order.Items[i].OrderID = order.ID
	}

	stored := order.Clone()
	s.orders[order.ID] = stored
	s.emit(models.ChangeInsert, stored)
	return order, nil
}

func (r *orderRepo) GetByID(ctx context.Context, id string) (*models.Order, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *orderRepo) GetAll(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if filter.CustomerID != nil && o.CustomerID != *filter.CustomerID {
			continue
		}
		orders = append(orders, o.Clone())
	}
	sortNewestFirst(orders)
	return orders, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	o, ok := s.orders[id]
	if !ok {
		return errs.ErrNotFound
	}
	if o.Status != from {
		return storage.ErrStaleStatus
	}

	o.Status = to
	if !to.Tracked() {
		o.DriverLat, o.DriverLng = nil, nil
	}
	o.UpdatedAt = s.now()
	s.emit(models.ChangeUpdate, o)
	return nil
}

func (r *orderRepo) UpdateDriverPosition(ctx context.Context, id string, lat, lng float64) (bool, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return false, s.writeErr
	}
	o, ok := s.orders[id]
	if !ok || !o.Status.Tracked() {
		return false, nil
	}

	o.DriverLat, o.DriverLng = models.Float(lat), models.Float(lng)
	o.UpdatedAt = s.now()
	s.emit(models.ChangeUpdate, o)
	return true, nil
}

func (r *orderRepo) ClearDriverPosition(ctx context.Context, id string) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	o, ok := s.orders[id]
	if !ok || (o.DriverLat == nil && o.DriverLng == nil) {
		return nil
	}

	o.DriverLat, o.DriverLng = nil, nil
	o.UpdatedAt = s.now()
	s.emit(models.ChangeUpdate, o)
	return nil
}

func (r *orderRepo) UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeErr != nil {
		return s.writeErr
	}
	o, ok := s.orders[id]
	if !ok {
		return errs.ErrNotFound
	}

	o.PaymentStatus = status
	o.UpdatedAt = s.now()
	s.emit(models.ChangeUpdate, o)
	return nil
}

type menuRepo Store

func (r *menuRepo) GetAll(ctx context.Context) ([]*models.MenuItem, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*models.MenuItem, 0, len(s.menu))
	for _, m := range s.menu {
		c := *m
		items = append(items, &c)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (r *menuRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.MenuItem, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make(map[int64]*models.MenuItem, len(ids))
	for _, id := range ids {
		if m, ok := s.menu[id]; ok {
			c := *m
			items[id] = &c
		}
	}
	return items, nil
}

// SetPrice changes a menu price; placed orders keep their snapshot.
func (s *Store) SetPrice(menuItemID, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.menu[menuItemID]; ok {
		m.Price = price
	}
}

type settingsRepo Store

func (r *settingsRepo) Get(ctx context.Context) (*models.StoreSettings, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.settings
	return &c, nil
}

func (r *settingsRepo) SetAcceptingOrders(ctx context.Context, accepting bool) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.AcceptingOrders = accepting
	s.settings.UpdatedAt = s.now()
	return nil
}

type feed Store

func (f *feed) Listen(ctx context.Context, fn func(models.ChangeEvent)) error {
	s := (*Store)(f)
	ch := make(chan models.ChangeEvent, 256)

	s.mu.Lock()
	s.listenerSeq++
	id := s.listenerSeq
	s.listeners[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.listeners[id]; ok {
			delete(s.listeners, id)
			close(ch)
		}
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			fn(ev)
		}
	}
}

func sortNewestFirst(orders []*models.Order) {
	sort.SliceStable(orders, func(i, j int) bool { return models.NewerFirst(orders[i], orders[j]) })
}
