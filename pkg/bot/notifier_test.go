package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/pkg/realtime"
	"kitchenbot/service"
	"kitchenbot/storage/memory"
)

type sentMessage struct {
	to   string
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: to.Recipient(), text: fmt.Sprint(what)})
	return &tele.Message{}, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type notifierEnv struct {
	notifier  *Notifier
	customers *fakeSender
	kitchen   *fakeSender
	svc       service.IServiceManager
	ann       *models.User
}

func newNotifierEnv(t *testing.T) notifierEnv {
	t.Helper()
	ctx := context.Background()
	log := logger.NewNop()

	stg := memory.NewWithMenu(models.MenuItem{ID: 1, Name: "Plov", Price: 500, IsAvailable: true})
	svc := service.New(stg, service.Options{}, log)
	_, err := svc.User().Register(ctx, 900, "cook", "Cook")
	require.NoError(t, err)
	require.NoError(t, svc.User().PromoteOperator(ctx, 900))
	ann, err := svc.User().Register(ctx, 555, "ann", "Ann")
	require.NoError(t, err)

	env := notifierEnv{
		customers: &fakeSender{},
		kitchen:   &fakeSender{},
		svc:       svc,
		ann:       ann,
	}
	env.notifier = NewNotifier(env.customers, env.kitchen, svc.User(), log)
	return env
}

func orderOf(customerID int64, status models.OrderStatus) *models.Order {
	return &models.Order{
		ID:            "a6f1c2de-0000-4000-8000-000000000001",
		OrderNumber:   "0001",
		CustomerID:    customerID,
		Status:        status,
		Items:         []models.OrderItem{{Name: "Plov", Quantity: 1, Price: 500}},
		Subtotal:      500,
		DeliveryFee:   399,
		Total:         899,
		PaymentMethod: models.PaymentCash,
		PaymentStatus: models.PaymentPending,
	}
}

func TestNotifierNewOrderGoesToOperators(t *testing.T) {
	env := newNotifierEnv(t)
	ctx := context.Background()
	o := orderOf(env.ann.ID, models.StatusPending)

	env.notifier.handle(ctx, o)
	env.notifier.handle(ctx, o)

	sent := env.kitchen.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "900", sent[0].to)
	assert.Contains(t, sent[0].text, "NEW ORDER #0001")
	assert.Empty(t, env.customers.messages())
}

func TestNotifierStatusChangeGoesToCustomer(t *testing.T) {
	env := newNotifierEnv(t)
	ctx := context.Background()
	env.notifier.handle(ctx, orderOf(env.ann.ID, models.StatusPending))

	accepted := orderOf(env.ann.ID, models.StatusAccepted)
	env.notifier.handle(ctx, accepted)
	// Payment and position updates keep the status.
	env.notifier.handle(ctx, accepted)

	sent := env.customers.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "555", sent[0].to)
	assert.Contains(t, sent[0].text, "Order #0001: 👍 Accepted")
}

func TestNotifierUnknownOrderIsRecordedSilently(t *testing.T) {
	env := newNotifierEnv(t)
	ctx := context.Background()

	env.notifier.handle(ctx, orderOf(env.ann.ID, models.StatusCooking))
	assert.Empty(t, env.customers.messages())
	assert.Empty(t, env.kitchen.messages())

	env.notifier.handle(ctx, orderOf(env.ann.ID, models.StatusReady))
	require.Len(t, env.customers.messages(), 1)
}

func TestNotifierForgetsTerminalOrders(t *testing.T) {
	env := newNotifierEnv(t)
	ctx := context.Background()

	env.notifier.handle(ctx, orderOf(env.ann.ID, models.StatusPending))
	env.notifier.handle(ctx, orderOf(env.ann.ID, models.StatusCancelled))

	sent := env.customers.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].text, "Cancelled")

	env.notifier.mu.Lock()
	assert.Empty(t, env.notifier.last)
	env.notifier.mu.Unlock()
}

func TestNotifierWithoutBots(t *testing.T) {
	log := logger.NewNop()
	n := NewNotifier(nil, nil, service.NewUserService(memory.New(), log), log)

	assert.NotPanics(t, func() {
		n.handle(context.Background(), orderOf(1, models.StatusPending))
		n.handle(context.Background(), orderOf(1, models.StatusAccepted))
	})
}

// No change feed is running: the polled kitchen view alone must deliver
// both the new-order and the status-change messages.
func TestNotifierFollowsPolledViewer(t *testing.T) {
	env := newNotifierEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	view := realtime.NewViewer(nil, env.svc.Order(), models.OrderFilter{}, 10*time.Millisecond, logger.NewNop())
	view.OnChange(env.notifier.Observe)

	done := make(chan error, 1)
	go func() { done <- env.notifier.Run(ctx) }()
	go view.Run(ctx)

	order, err := env.svc.Order().CreateOrder(ctx, models.CreateOrderRequest{
		CustomerID:    env.ann.ID,
		Items:         []models.CartLine{{MenuItemID: 1, Quantity: 1}},
		PaymentMethod: models.PaymentCash,
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(env.kitchen.messages()) == 1 }, time.Second, 5*time.Millisecond)

	_, err = env.svc.Order().Advance(ctx, order.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		sent := env.customers.messages()
		return len(sent) == 1 && sent[0].to == "555"
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop")
	}
}
