package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"kitchenbot/pkg/models"
	"kitchenbot/service"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{399, "$3.99"},
		{2399, "$23.99"},
		{-150, "-$1.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMoney(tt.cents))
	}
}

func TestAddToCartMergesLines(t *testing.T) {
	var cart []models.CartLine
	cart = addToCart(cart, 1)
	cart = addToCart(cart, 2)
	cart = addToCart(cart, 1)

	assert.Equal(t, []models.CartLine{
		{MenuItemID: 1, Quantity: 2},
		{MenuItemID: 2, Quantity: 1},
	}, cart)
}

func TestAddToCartStopsAtLineLimit(t *testing.T) {
	cart := []models.CartLine{{MenuItemID: 1, Quantity: service.MaxLineQuantity}}
	cart = addToCart(cart, 1)
	assert.Equal(t, service.MaxLineQuantity, cart[0].Quantity)
}

func TestFormatCart(t *testing.T) {
	menu := []*models.MenuItem{
		{ID: 1, Name: "Plov", Price: 500, IsAvailable: true},
		{ID: 2, Name: "Manti", Price: 900, IsAvailable: false},
	}
	pricing := service.Pricing{DeliveryFee: 399, FreeDeliveryThreshold: 2500}

	text := formatCart([]models.CartLine{{MenuItemID: 1, Quantity: 2}, {MenuItemID: 2, Quantity: 1}}, menu, pricing)
	assert.Contains(t, text, "Plov × 2 = $10.00")
	assert.Contains(t, text, "item 2 × 1 (unavailable)")
	assert.Contains(t, text, "Delivery: $3.99")
	assert.Contains(t, text, "Free delivery from $25.00")
	assert.Contains(t, text, "Total: $13.99")

	text = formatCart([]models.CartLine{{MenuItemID: 1, Quantity: 5}}, menu, pricing)
	assert.Contains(t, text, "Delivery: free")
	assert.Contains(t, text, "Total: $25.00")
}

func TestFormatOrder(t *testing.T) {
	o := &models.Order{
		OrderNumber:   "0007",
		CustomerName:  "Ann",
		Items:         []models.OrderItem{{Name: "Samsa", Quantity: 3, Price: 300}},
		Subtotal:      900,
		DeliveryFee:   399,
		Total:         1299,
		Status:        models.StatusCooking,
		PaymentMethod: models.PaymentCash,
		PaymentStatus: models.PaymentPending,
		Instructions:  "ring twice",
	}

	text := formatOrder(o)
	assert.Contains(t, text, "Order #0007 · 🍳 Cooking")
	assert.Contains(t, text, "Samsa × 3 = $9.00")
	assert.Contains(t, text, "Total: $12.99 (cash, pending)")
	assert.Contains(t, text, "📝 ring twice")
	assert.NotContains(t, text, "📍")
}

func TestFormatETAAndDistance(t *testing.T) {
	assert.Equal(t, "less than a minute", formatETA(40*time.Second))
	assert.Equal(t, "7 min", formatETA(6*time.Minute+40*time.Second))
	assert.Equal(t, "850 m", formatDistance(850.2))
	assert.Equal(t, "2.3 km", formatDistance(2340))
}

func uniques(m *tele.ReplyMarkup) [][]string {
	var rows [][]string
	for _, row := range m.InlineKeyboard {
		var r []string
		for _, btn := range row {
			r = append(r, btn.Unique)
		}
		rows = append(rows, r)
	}
	return rows
}

func TestKitchenOrderKeyboard(t *testing.T) {
	o := &models.Order{ID: "o1", Status: models.StatusPending, PaymentStatus: models.PaymentPending}
	assert.Equal(t, [][]string{{"adv", "kcancel"}, {"paid"}}, uniques(kitchenOrderKeyboard(o)))

	o.Status = models.StatusDelivering
	o.PaymentStatus = models.PaymentPaid
	assert.Equal(t, [][]string{{"adv"}, {"nav"}}, uniques(kitchenOrderKeyboard(o)))

	o.Status = models.StatusDelivered
	assert.Empty(t, uniques(kitchenOrderKeyboard(o)))
}

func TestCustomerOrderKeyboard(t *testing.T) {
	o := &models.Order{ID: "o1", Status: models.StatusPending}
	assert.Equal(t, [][]string{{"cancel"}}, uniques(customerOrderKeyboard(o)))

	o.Status = models.StatusDelivering
	rows := uniques(customerOrderKeyboard(o))
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"track"}, rows[0])
	assert.Equal(t, "o1", customerOrderKeyboard(o).InlineKeyboard[0][0].Data)

	o.Status = models.StatusCooking
	assert.Empty(t, uniques(customerOrderKeyboard(o)))
}
