package bot

import (
	"fmt"
	"math"
	"strings"
	"time"

	"kitchenbot/pkg/models"
	"kitchenbot/service"
)

var statusLabels = map[models.OrderStatus]string{
	models.StatusPending:    "🕐 Pending",
	models.StatusAccepted:   "👍 Accepted",
	models.StatusCooking:    "🍳 Cooking",
	models.StatusReady:      "📦 Ready",
	models.StatusDelivering: "🚚 On the way",
	models.StatusDelivered:  "✅ Delivered",
	models.StatusCancelled:  "❌ Cancelled",
}

func statusLabel(s models.OrderStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

func formatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func formatOrder(o *models.Order) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🧾 Order #%s · %s\n", o.OrderNumber, statusLabel(o.Status))
	if o.CustomerName != "" {
		fmt.Fprintf(&sb, "👤 %s\n", o.CustomerName)
	}
	for _, it := range o.Items {
		fmt.Fprintf(&sb, "• %s × %d = %s\n", it.Name, it.Quantity, formatMoney(it.Price*int64(it.Quantity)))
	}
	fmt.Fprintf(&sb, "Subtotal: %s\n", formatMoney(o.Subtotal))
	if o.DeliveryFee == 0 {
		sb.WriteString("Delivery: free\n")
	} else {
		fmt.Fprintf(&sb, "Delivery: %s\n", formatMoney(o.DeliveryFee))
	}
	fmt.Fprintf(&sb, "💰 Total: %s (%s, %s)", formatMoney(o.Total), o.PaymentMethod, o.PaymentStatus)
	if o.Address != "" {
		fmt.Fprintf(&sb, "\n📍 %s", o.Address)
	}
	if o.Instructions != "" {
		fmt.Fprintf(&sb, "\n📝 %s", o.Instructions)
	}
	return sb.String()
}

// formatCart prices the cart against the current menu. Lines whose item is
// gone from the menu are listed as unavailable and not counted.
func formatCart(cart []models.CartLine, menu []*models.MenuItem, pricing service.Pricing) string {
	byID := make(map[int64]*models.MenuItem, len(menu))
	for _, m := range menu {
		byID[m.ID] = m
	}

	var (
		sb    strings.Builder
		items []models.OrderItem
	)
	sb.WriteString("🛒 Your cart:\n")
	for _, line := range cart {
		m, ok := byID[line.MenuItemID]
		if !ok || !m.IsAvailable {
			fmt.Fprintf(&sb, "• item %d × %d (unavailable)\n", line.MenuItemID, line.Quantity)
			continue
		}
		items = append(items, models.OrderItem{MenuItemID: m.ID, Name: m.Name, Quantity: line.Quantity, Price: m.Price})
		fmt.Fprintf(&sb, "• %s × %d = %s\n", m.Name, line.Quantity, formatMoney(m.Price*int64(line.Quantity)))
	}

	q := pricing.Quote(items)
	fmt.Fprintf(&sb, "Subtotal: %s\n", formatMoney(q.Subtotal))
	if q.DeliveryFee == 0 {
		sb.WriteString("Delivery: free\n")
	} else {
		fmt.Fprintf(&sb, "Delivery: %s\n", formatMoney(q.DeliveryFee))
		if pricing.FreeDeliveryThreshold > 0 {
			fmt.Fprintf(&sb, "Free delivery from %s\n", formatMoney(pricing.FreeDeliveryThreshold))
		}
	}
	fmt.Fprintf(&sb, "💰 Total: %s", formatMoney(q.Total))
	return sb.String()
}

// addToCart bumps the quantity of an existing line instead of adding a
// second one, up to the per-line limit.
func addToCart(cart []models.CartLine, menuItemID int64) []models.CartLine {
	for i := range cart {
		if cart[i].MenuItemID == menuItemID {
			if cart[i].Quantity < service.MaxLineQuantity {
				cart[i].Quantity++
			}
			return cart
		}
	}
	return append(cart, models.CartLine{MenuItemID: menuItemID, Quantity: 1})
}

func formatETA(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	return fmt.Sprintf("%d min", int(math.Round(d.Minutes())))
}

func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}
