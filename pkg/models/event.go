package models

import "time"

type ChangeType string

const (
	ChangeInsert   ChangeType = "insert"
	ChangeUpdate   ChangeType = "update"
	ChangeSnapshot ChangeType = "snapshot"
)

// ChangeEvent is the only input of the order projection. Insert and update
// events carry one order; snapshot events carry the full authoritative list.
type ChangeEvent struct {
	Type   ChangeType `json:"type"`
	Order  *Order     `json:"order,omitempty"`
	Orders []*Order   `json:"orders,omitempty"`
	At     time.Time  `json:"at"`
}
