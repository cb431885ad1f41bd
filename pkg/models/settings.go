package models

import "time"

type StoreSettings struct {
	AcceptingOrders bool      `json:"accepting_orders"`
	UpdatedAt       time.Time `json:"updated_at"`
}
