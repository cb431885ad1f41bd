package memory

import (
	"context"
	"errors"

	"kitchenbot/pkg/models"
)

var errDuplicate = errors.New("duplicate key")

type userRepo Store

func (r *userRepo) GetOrCreate(ctx context.Context, teleID int64, username, fullname string) (*models.User, error) {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.TelegramID == teleID {
			u.UpdatedAt = s.now()
			c := *u
			return &c, nil
		}
	}

	s.userSeq++
	now := s.now()
	u := &models.User{
		ID:         s.userSeq,
		TelegramID: teleID,
		Username:   username,
		FullName:   fullname,
		Role:       models.RoleCustomer,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.users[u.ID] = u
	c := *u
	return &c, nil
}

func (r *userRepo) Get(ctx context.Context, teleID int64) (*models.User, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.TelegramID == teleID {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	c := *u
	return &c, nil
}

func (r *userRepo) GetOperators(ctx context.Context) ([]*models.User, error) {
	s := (*Store)(r)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []*models.User
	for _, u := range s.users {
		if u.Role == models.RoleOperator {
			c := *u
			users = append(users, &c)
		}
	}
	return users, nil
}

func (r *userRepo) UpdateRole(ctx context.Context, teleID int64, role string) error {
	return r.update(teleID, func(u *models.User) { u.Role = role })
}

func (r *userRepo) UpdatePhone(ctx context.Context, teleID int64, phone string) error {
	return r.update(teleID, func(u *models.User) { u.Phone = &phone })
}

func (r *userRepo) UpdateAddress(ctx context.Context, teleID int64, address string, lat, lng float64) error {
	return r.update(teleID, func(u *models.User) {
		u.Address = &address
		u.Lat, u.Lng = models.Float(lat), models.Float(lng)
	})
}

func (r *userRepo) AddPoints(ctx context.Context, id int64, points int64) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[id]; ok {
		u.Points += points
		u.UpdatedAt = s.now()
	}
	return nil
}

func (r *userRepo) update(teleID int64, fn func(u *models.User)) error {
	s := (*Store)(r)
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.TelegramID == teleID {
			fn(u)
			u.UpdatedAt = s.now()
		}
	}
	return nil
}
