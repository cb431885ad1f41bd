package service

import (
	"context"

	"kitchenbot/pkg/errs"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

type UserService interface {
	Register(ctx context.Context, teleID int64, username, fullname string) (*models.User, error)
	Get(ctx context.Context, teleID int64) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Operators(ctx context.Context) ([]*models.User, error)
	PromoteOperator(ctx context.Context, teleID int64) error
	SetPhone(ctx context.Context, teleID int64, phone string) error
	SetAddress(ctx context.Context, teleID int64, address string, at models.Coordinates) error
}

type userService struct {
	stg storage.IUserStorage
	log logger.ILogger
}

func NewUserService(stg storage.IStorage, log logger.ILogger) UserService {
	return &userService{
		stg: stg.User(),
		log: log,
	}
}

func (s *userService) Register(ctx context.Context, teleID int64, username, fullname string) (*models.User, error) {
	u, err := s.stg.GetOrCreate(ctx, teleID, username, fullname)
	if err != nil {
		return nil, errs.Persistence("register user", err)
	}
	return u, nil
}

func (s *userService) Get(ctx context.Context, teleID int64) (*models.User, error) {
	u, err := s.stg.Get(ctx, teleID)
	if err != nil {
		return nil, errs.Persistence("get user", err)
	}
	if u == nil {
		return nil, errs.ErrNotFound
	}
	return u, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := s.stg.GetByID(ctx, id)
	if err != nil {
		return nil, errs.Persistence("get user", err)
	}
	if u == nil {
		return nil, errs.ErrNotFound
	}
	return u, nil
}

func (s *userService) Operators(ctx context.Context) ([]*models.User, error) {
	users, err := s.stg.GetOperators(ctx)
	if err != nil {
		return nil, errs.Persistence("list operators", err)
	}
	return users, nil
}

func (s *userService) PromoteOperator(ctx context.Context, teleID int64) error {
	if err := s.stg.UpdateRole(ctx, teleID, models.RoleOperator); err != nil {
		return errs.Persistence("promote operator", err)
	}
	return nil
}

func (s *userService) SetPhone(ctx context.Context, teleID int64, phone string) error {
	if phone == "" {
		return errs.Validation("phone is empty")
	}
	if err := s.stg.UpdatePhone(ctx, teleID, phone); err != nil {
		return errs.Persistence("set phone", err)
	}
	return nil
}

func (s *userService) SetAddress(ctx context.Context, teleID int64, address string, at models.Coordinates) error {
	if !at.Valid() {
		return errs.Validation("coordinates out of range")
	}
	if err := s.stg.UpdateAddress(ctx, teleID, address, at.Lat, at.Lng); err != nil {
		return errs.Persistence("set address", err)
	}
	return nil
}
