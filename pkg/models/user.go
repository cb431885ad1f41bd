package models

import "time"

const (
	RoleCustomer = "customer"
	RoleOperator = "operator"
)

type User struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	FullName   string    `json:"full_name"`
	Phone      *string   `json:"phone"`
	Role       string    `json:"role"`
	Points     int64     `json:"points"`
	AvatarURL  *string   `json:"avatar_url"`
	Address    *string   `json:"address"`
	Lat        *float64  `json:"lat"`
	Lng        *float64  `json:"lng"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
