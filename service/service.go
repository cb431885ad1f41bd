package service

import (
	"kitchenbot/pkg/logger"
	"kitchenbot/storage"
)

type IServiceManager interface {
	Order() OrderService
	Settings() SettingsService
	User() UserService
	Menu() MenuService
}

type Options struct {
	Pricing                 Pricing
	RequireDeliveryLocation bool
}

type service struct {
	orderService    OrderService
	settingsService SettingsService
	userService     UserService
	menuService     MenuService
}

func New(stg storage.IStorage, opts Options, log logger.ILogger) IServiceManager {
	return &service{
		orderService:    NewOrderService(stg, opts, log),
		settingsService: NewSettingsService(stg, log),
		userService:     NewUserService(stg, log),
		menuService:     NewMenuService(stg, log),
	}
}

func (s *service) Order() OrderService {
	return s.orderService
}

func (s *service) Settings() SettingsService {
	return s.settingsService
}

func (s *service) User() UserService {
	return s.userService
}

func (s *service) Menu() MenuService {
	return s.menuService
}
