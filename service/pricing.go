package service

import "kitchenbot/pkg/models"

// Pricing holds delivery fee rules, all in cents. A subtotal at or above
// FreeDeliveryThreshold ships free; a non-positive threshold disables free
// delivery.
type Pricing struct {
	DeliveryFee           int64
	FreeDeliveryThreshold int64
}

type Quote struct {
	Subtotal    int64
	DeliveryFee int64
	Total       int64
}

func (p Pricing) Quote(items []models.OrderItem) Quote {
	var subtotal int64
	for _, it := range items {
		subtotal += it.Price * int64(it.Quantity)
	}

	fee := p.DeliveryFee
	if p.FreeDeliveryThreshold > 0 && subtotal >= p.FreeDeliveryThreshold {
		fee = 0
	}

	return Quote{
		Subtotal:    subtotal,
		DeliveryFee: fee,
		Total:       subtotal + fee,
	}
}

// loyaltyPoints awards one point per whole currency unit of the total.
func loyaltyPoints(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return total / 100
}
