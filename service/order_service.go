package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

// MaxLineQuantity bounds one cart line so totals stay far from int64 limits
// and fit the order_items.quantity column.
const MaxLineQuantity = 99

type OrderService interface {
	CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error)
	ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, next models.OrderStatus) error
	Advance(ctx context.Context, id string) (models.OrderStatus, error)
	Cancel(ctx context.Context, id string) error
	UpdateDriverPosition(ctx context.Context, id string, lat, lng float64) error
	ClearDriverPosition(ctx context.Context, id string) error
	MarkPaid(ctx context.Context, id string) error
}

type orderService struct {
	orders   storage.IOrderStorage
	menu     storage.IMenuStorage
	settings storage.ISettingsStorage
	users    storage.IUserStorage
	opts     Options
	log      logger.ILogger
}

func NewOrderService(stg storage.IStorage, opts Options, log logger.ILogger) OrderService {
	return &orderService{
		orders:   stg.Order(),
		menu:     stg.Menu(),
		settings: stg.Settings(),
		users:    stg.User(),
		opts:     opts,
		log:      log,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, errs.Persistence("get settings", err)
	}
	if !settings.AcceptingOrders {
		return nil, errs.Validation("the kitchen is closed and not accepting orders")
	}

	items, err := s.snapshotItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	quote := s.opts.Pricing.Quote(items)
	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = models.PaymentPending
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		CustomerID:    req.CustomerID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		Items:         items,
		Subtotal:      quote.Subtotal,
		DeliveryFee:   quote.DeliveryFee,
		Total:         quote.Total,
		Status:        models.StatusPending,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: paymentStatus,
		Instructions:  strings.TrimSpace(req.Delivery.Instructions),
		Address:       strings.TrimSpace(req.Delivery.Address),
		DeliveryLat:   req.Delivery.Lat,
		DeliveryLng:   req.Delivery.Lng,
	}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		s.log.Error("failed to place order", logger.Int64("customer_id", req.CustomerID), logger.Error(err))
		return nil, errs.Persistence("create order", err)
	}

	s.log.Info("order placed",
		logger.String("order_id", created.ID),
		logger.String("order_number", created.OrderNumber),
		logger.Int64("total", created.Total),
	)
	return created, nil
}

func (s *orderService) validateRequest(req models.CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return errs.Validation("cart is empty")
	}
	for i, line := range req.Items {
		if line.Quantity <= 0 {
			return errs.Validation("item %d: quantity must be greater than zero", i+1)
		}
		if line.Quantity > MaxLineQuantity {
			return errs.Validation("item %d: quantity must be at most %d", i+1, MaxLineQuantity)
		}
	}

	if req.PaymentMethod != models.PaymentCash && req.PaymentMethod != models.PaymentCard {
		return errs.Validation("invalid payment method %q", req.PaymentMethod)
	}
	switch req.PaymentStatus {
	case "", models.PaymentPending, models.PaymentPaid:
	default:
		return errs.Validation("invalid payment status %q", req.PaymentStatus)
	}

	d := req.Delivery
	if (d.Lat == nil) != (d.Lng == nil) {
		return errs.Validation("delivery location is incomplete")
	}
	if d.Lat == nil {
		if s.opts.RequireDeliveryLocation {
			return errs.Validation("delivery location is required")
		}
		return nil
	}
	if !(models.Coordinates{Lat: *d.Lat, Lng: *d.Lng}).Valid() {
		return errs.Validation("delivery location is out of range")
	}
	return nil
}

// snapshotItems copies name and price from the menu so later menu edits do
// not affect the order. Repeated lines for the same menu item are kept as is.
func (s *orderService) snapshotItems(ctx context.Context, lines []models.CartLine) ([]models.OrderItem, error) {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.MenuItemID)
	}

	menu, err := s.menu.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errs.Persistence("get menu items", err)
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		m, ok := menu[line.MenuItemID]
		if !ok {
			return nil, errs.Validation("menu item %d does not exist", line.MenuItemID)
		}
		if !m.IsAvailable {
			return nil, errs.Validation("%s is not available right now", m.Name)
		}
		items = append(items, models.OrderItem{
			MenuItemID: m.ID,
			Name:       m.Name,
			Quantity:   line.Quantity,
			Price:      m.Price,
		})
	}
	return items, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	orders, err := s.orders.GetAll(ctx, filter)
	if err != nil {
		return nil, errs.Persistence("list orders", err)
	}
	return orders, nil
}

func (s *orderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errs.Persistence("get order", err)
	}
	return order, nil
}

// UpdateStatus applies one state machine step. The transition is checked
// before any write and the write itself is conditional on the status read,
// so a concurrent change surfaces as InvalidTransitionError.
func (s *orderService) UpdateStatus(ctx context.Context, id string, next models.OrderStatus) error {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return err
	}

	if !order.Status.CanTransitionTo(next) {
		return &errs.InvalidTransitionError{From: string(order.Status), To: string(next)}
	}

	err = s.orders.UpdateStatus(ctx, id, order.Status, next)
	if errors.Is(err, storage.ErrStaleStatus) {
		current := order.Status
		if fresh, gerr := s.orders.GetByID(ctx, id); gerr == nil {
			current = fresh.Status
		}
		return &errs.InvalidTransitionError{From: string(current), To: string(next)}
	}
	if err != nil {
		return errs.Persistence("update status", err)
	}

	s.log.Info("order status changed",
		logger.String("order_id", id),
		logger.String("from", string(order.Status)),
		logger.String("to", string(next)),
	)

	if next == models.StatusDelivered {
		s.awardPoints(ctx, order)
	}
	return nil
}

func (s *orderService) Advance(ctx context.Context, id string) (models.OrderStatus, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return "", err
	}

	next, ok := order.Status.Next()
	if !ok {
		return "", &errs.InvalidTransitionError{From: string(order.Status), To: "next"}
	}
	if err := s.UpdateStatus(ctx, id, next); err != nil {
		return "", err
	}
	return next, nil
}

func (s *orderService) Cancel(ctx context.Context, id string) error {
	return s.UpdateStatus(ctx, id, models.StatusCancelled)
}

// UpdateDriverPosition is a silent no-op unless the order is delivering, so
// late samples never bring coordinates back after delivery.
func (s *orderService) UpdateDriverPosition(ctx context.Context, id string, lat, lng float64) error {
	if !(models.Coordinates{Lat: lat, Lng: lng}).Valid() {
		return errs.Validation("coordinates out of range")
	}
	if err := checkID(id); err != nil {
		return err
	}

	applied, err := s.orders.UpdateDriverPosition(ctx, id, lat, lng)
	if err != nil {
		return errs.Persistence("update driver position", err)
	}
	if !applied {
		s.log.Debug("driver position ignored, order not delivering", logger.String("order_id", id))
	}
	return nil
}

func (s *orderService) ClearDriverPosition(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.orders.ClearDriverPosition(ctx, id); err != nil {
		return errs.Persistence("clear driver position", err)
	}
	return nil
}

func (s *orderService) MarkPaid(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.orders.UpdatePaymentStatus(ctx, id, models.PaymentPaid); err != nil {
		return errs.Persistence("mark paid", err)
	}
	s.log.Info("order marked paid", logger.String("order_id", id))
	return nil
}

func (s *orderService) awardPoints(ctx context.Context, order *models.Order) {
	points := loyaltyPoints(order.Total)
	if points == 0 {
		return
	}
	if err := s.users.AddPoints(ctx, order.CustomerID, points); err != nil {
		s.log.Warning("failed to award loyalty points",
			logger.String("order_id", order.ID),
			logger.Int64("customer_id", order.CustomerID),
			logger.Error(err),
		)
	}
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.ErrNotFound
	}
	return nil
}
