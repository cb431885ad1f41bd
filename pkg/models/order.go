package models

import (
	"fmt"
	"time"
)

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// Order amounts are in cents.
type Order struct {
	ID            string        `json:"id"`
	OrderNumber   string        `json:"order_number"`
	CustomerID    int64         `json:"customer_id"`
	CustomerName  string        `json:"customer_name"`
	Items         []OrderItem   `json:"items"`
	Subtotal      int64         `json:"subtotal"`
	DeliveryFee   int64         `json:"delivery_fee"`
	Total         int64         `json:"total"`
	Status        OrderStatus   `json:"status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Instructions  string        `json:"instructions"`
	Address       string        `json:"address"`
	DeliveryLat   *float64      `json:"delivery_lat"`
	DeliveryLng   *float64      `json:"delivery_lng"`
	DriverLat     *float64      `json:"driver_lat"`
	DriverLng     *float64      `json:"driver_lng"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// OrderItem is a snapshot of a menu entry taken when the order was placed.
type OrderItem struct {
	ID         int64  `json:"id"`
	OrderID    string `json:"order_id"`
	MenuItemID int64  `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Price      int64  `json:"price"`
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.DeliveryLat = cloneFloat(o.DeliveryLat)
	c.DeliveryLng = cloneFloat(o.DeliveryLng)
	c.DriverLat = cloneFloat(o.DriverLat)
	c.DriverLng = cloneFloat(o.DriverLng)
	return &c
}

func (o *Order) DriverPosition() (Coordinates, bool) {
	if o.DriverLat == nil || o.DriverLng == nil {
		return Coordinates{}, false
	}
	return Coordinates{Lat: *o.DriverLat, Lng: *o.DriverLng}, true
}

func (o *Order) DeliveryPosition() (Coordinates, bool) {
	if o.DeliveryLat == nil || o.DeliveryLng == nil {
		return Coordinates{}, false
	}
	return Coordinates{Lat: *o.DeliveryLat, Lng: *o.DeliveryLng}, true
}

type OrderFilter struct {
	CustomerID *int64
}

type CartLine struct {
	MenuItemID int64 `json:"menu_item_id"`
	Quantity   int   `json:"quantity"`
}

type DeliveryInfo struct {
	Address      string   `json:"address"`
	Instructions string   `json:"instructions"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
}

type CreateOrderRequest struct {
	CustomerID    int64         `json:"customer_id"`
	CustomerName  string        `json:"customer_name"`
	Items         []CartLine    `json:"items"`
	Delivery      DeliveryInfo  `json:"delivery"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// FormatOrderNumber renders the monotonic order sequence for display.
func FormatOrderNumber(n int64) string {
	return fmt.Sprintf("%04d", n)
}

// NewerFirst orders a before b when a was created later. Orders created in
// the same instant fall back to the order number, compared numerically
// ("10000" is after "9999").
func NewerFirst(a, b *Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if len(a.OrderNumber) != len(b.OrderNumber) {
		return len(a.OrderNumber) > len(b.OrderNumber)
	}
	if a.OrderNumber != b.OrderNumber {
		return a.OrderNumber > b.OrderNumber
	}
	return a.ID > b.ID
}
