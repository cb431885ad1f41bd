package storage

import (
	"context"
	"errors"

	"kitchenbot/pkg/models"
)

// ErrStaleStatus is returned by a conditional status update when the row
// was no longer in the expected status.
var ErrStaleStatus = errors.New("order status changed concurrently")

type IStorage interface {
	Order() IOrderStorage
	Menu() IMenuStorage
	Settings() ISettingsStorage
	User() IUserStorage
	Changes() IChangeFeed
	Close()
}

type IOrderStorage interface {
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetAll(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to models.OrderStatus) error
	UpdateDriverPosition(ctx context.Context, id string, lat, lng float64) (bool, error)
	ClearDriverPosition(ctx context.Context, id string) error
	UpdatePaymentStatus(ctx context.Context, id string, status models.PaymentStatus) error
}

type IMenuStorage interface {
	GetAll(ctx context.Context) ([]*models.MenuItem, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.MenuItem, error)
}

type ISettingsStorage interface {
	Get(ctx context.Context) (*models.StoreSettings, error)
	SetAcceptingOrders(ctx context.Context, accepting bool) error
}

type IUserStorage interface {
	GetOrCreate(ctx context.Context, teleID int64, username, fullname string) (*models.User, error)
	Get(ctx context.Context, teleID int64) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetOperators(ctx context.Context) ([]*models.User, error)
	UpdateRole(ctx context.Context, teleID int64, role string) error
	UpdatePhone(ctx context.Context, teleID int64, phone string) error
	UpdateAddress(ctx context.Context, teleID int64, address string, lat, lng float64) error
	AddPoints(ctx context.Context, id int64, points int64) error
}

// IChangeFeed is the push side of order synchronization. Listen blocks,
// calling fn for every insert/update on orders until ctx is done or the
// underlying connection fails.
type IChangeFeed interface {
	Listen(ctx context.Context, fn func(models.ChangeEvent)) error
}
