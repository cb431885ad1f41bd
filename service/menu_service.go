package service

import (
	"context"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

type MenuService interface {
	List(ctx context.Context) ([]*models.MenuItem, error)
}

type menuService struct {
	stg storage.IMenuStorage
	log logger.ILogger
}

func NewMenuService(stg storage.IStorage, log logger.ILogger) MenuService {
	return &menuService{
		stg: stg.Menu(),
		log: log,
	}
}

func (s *menuService) List(ctx context.Context) ([]*models.MenuItem, error) {
	items, err := s.stg.GetAll(ctx)
	if err != nil {
		return nil, errs.Persistence("list menu", err)
	}
	return items, nil
}
