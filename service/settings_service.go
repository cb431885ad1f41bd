package service

import (
	"context"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

type SettingsService interface {
	Get(ctx context.Context) (*models.StoreSettings, error)
	SetAcceptingOrders(ctx context.Context, accepting bool) error
}

type settingsService struct {
	stg storage.ISettingsStorage
	log logger.ILogger
}

func NewSettingsService(stg storage.IStorage, log logger.ILogger) SettingsService {
	return &settingsService{
		stg: stg.Settings(),
		log: log,
	}
}

func (s *settingsService) Get(ctx context.Context) (*models.StoreSettings, error) {
	settings, err := s.stg.Get(ctx)
	if err != nil {
		return nil, errs.Persistence("get settings", err)
	}
	return settings, nil
}

func (s *settingsService) SetAcceptingOrders(ctx context.Context, accepting bool) error {
	if err := s.stg.SetAcceptingOrders(ctx, accepting); err != nil {
		return errs.Persistence("set accepting orders", err)
	}
	s.log.Info("kitchen availability changed", logger.Bool("accepting_orders", accepting))
	return nil
}
