package bot

import (
	"context"
	"fmt"
	"sync"

	tele "gopkg.in/telebot.v3"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/service"
)

// Sender is the part of *tele.Bot the notifier needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier turns order changes into Telegram messages: new orders go to
// every operator through the kitchen bot, status changes go to the
// customer through the customer bot. Position-only updates are silent.
// Orders arrive through Observe, registered on a viewer.
type Notifier struct {
	customers Sender
	kitchen   Sender
	users     service.UserService
	log       logger.ILogger

	mu    sync.Mutex
	last  map[string]models.OrderStatus
	queue []*models.Order
	wake  chan struct{}
}

// NewNotifier accepts nil senders for bots that are not configured.
func NewNotifier(customers, kitchen Sender, users service.UserService, log logger.ILogger) *Notifier {
	return &Notifier{
		customers: customers,
		kitchen:   kitchen,
		users:     users,
		log:       log,
		last:      make(map[string]models.OrderStatus),
		wake:      make(chan struct{}, 1),
	}
}

// Observe queues a changed order. It never blocks; sending happens in Run.
func (n *Notifier) Observe(o *models.Order) {
	n.mu.Lock()
	n.queue = append(n.queue, o.Clone())
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-n.wake:
			for _, o := range n.drain() {
				n.handle(ctx, o)
			}
		}
	}
}

func (n *Notifier) drain() []*models.Order {
	n.mu.Lock()
	defer n.mu.Unlock()
	queue := n.queue
	n.queue = nil
	return queue
}

// handle announces orders first seen while pending to the kitchen and
// status changes of known orders to their customer. After a restart the
// pending orders are announced again.
func (n *Notifier) handle(ctx context.Context, o *models.Order) {
	seen, changed := n.record(o)
	switch {
	case !seen && o.Status == models.StatusPending:
		n.notifyKitchen(ctx, o)
	case changed:
		n.notifyCustomer(ctx, o)
	}
}

// record stores the order's status and reports whether the order was known
// and whether its status differs from the last one seen. Terminal orders
// are forgotten.
func (n *Notifier) record(o *models.Order) (seen, changed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	prev, seen := n.last[o.ID]
	if o.Status.IsTerminal() {
		delete(n.last, o.ID)
	} else {
		n.last[o.ID] = o.Status
	}
	return seen, seen && prev != o.Status
}

func (n *Notifier) notifyKitchen(ctx context.Context, o *models.Order) {
	if n.kitchen == nil {
		return
	}
	operators, err := n.users.Operators(ctx)
	if err != nil {
		n.log.Error("failed to list operators", logger.Error(err))
		return
	}

	text := fmt.Sprintf(msg("notif_new"), o.OrderNumber, formatOrder(o))
	for _, op := range operators {
		if _, err := n.kitchen.Send(&tele.User{ID: op.TelegramID}, text, kitchenOrderKeyboard(o)); err != nil {
			n.log.Warning("failed to notify operator", logger.Int64("telegram_id", op.TelegramID), logger.Error(err))
		}
	}
}

func (n *Notifier) notifyCustomer(ctx context.Context, o *models.Order) {
	if n.customers == nil {
		return
	}
	user, err := n.users.GetByID(ctx, o.CustomerID)
	if err != nil {
		n.log.Warning("order owner not found", logger.String("order_id", o.ID), logger.Int64("customer_id", o.CustomerID))
		return
	}

	if _, err := n.customers.Send(&tele.User{ID: user.TelegramID}, customerStatusText(o), customerOrderKeyboard(o)); err != nil {
		n.log.Warning("failed to notify customer", logger.Int64("telegram_id", user.TelegramID), logger.Error(err))
	}
}

func customerStatusText(o *models.Order) string {
	text := fmt.Sprintf(msg("notif_status"), o.OrderNumber, statusLabel(o.Status))
	switch o.Status {
	case models.StatusDelivering:
		text += "\nTap 📍 Track to follow the courier."
	case models.StatusDelivered:
		text += "\nEnjoy your meal! 🍽"
	}
	return text
}
