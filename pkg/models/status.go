package models

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusAccepted   OrderStatus = "accepted"
	StatusCooking    OrderStatus = "cooking"
	StatusReady      OrderStatus = "ready"
	StatusDelivering OrderStatus = "delivering"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// lifecycle is the forward path; an order moves exactly one step at a time.
var lifecycle = []OrderStatus{
	StatusPending,
	StatusAccepted,
	StatusCooking,
	StatusReady,
	StatusDelivering,
	StatusDelivered,
}

func (s OrderStatus) Valid() bool {
	return s == StatusCancelled || s.index() >= 0
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Tracked reports whether driver coordinates may exist in this status.
func (s OrderStatus) Tracked() bool {
	return s == StatusDelivering
}

// Next returns the following forward status, false for terminal states.
func (s OrderStatus) Next() (OrderStatus, bool) {
	i := s.index()
	if i < 0 || i == len(lifecycle)-1 {
		return "", false
	}
	return lifecycle[i+1], true
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if next == StatusCancelled {
		return s == StatusPending
	}
	n, ok := s.Next()
	return ok && n == next
}

func (s OrderStatus) index() int {
	for i, st := range lifecycle {
		if st == s {
			return i
		}
	}
	return -1
}
