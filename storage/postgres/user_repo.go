package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

const userColumns = `id, telegram_id, full_name, username, phone, role, points, avatar_url, address, lat, lng, created_at, updated_at`

type userRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewUserRepo(db *pgxpool.Pool, log logger.ILogger) storage.IUserStorage {
	return &userRepo{db: db, log: log}
}

func (r *userRepo) GetOrCreate(ctx context.Context, teleID int64, username, fullname string) (*models.User, error) {
	query := `
		INSERT INTO users (telegram_id, username, full_name, role)
		VALUES ($1, $2, $3, 'customer')
		ON CONFLICT (telegram_id) DO UPDATE
		SET updated_at = NOW()
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRow(ctx, query, teleID, username, fullname))
	if err != nil {
		r.log.Error("failed to get or create user", logger.Error(err))
		return nil, err
	}
	return user, nil
}

func (r *userRepo) Get(ctx context.Context, teleID int64) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, teleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get user", logger.Error(err))
		return nil, err
	}
	return user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.Error("failed to get user by id", logger.Error(err))
		return nil, err
	}
	return user, nil
}

func (r *userRepo) GetOperators(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = 'operator'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepo) UpdateRole(ctx context.Context, teleID int64, role string) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET role=$1, updated_at=NOW() WHERE telegram_id=$2", role, teleID)
	return err
}

func (r *userRepo) UpdatePhone(ctx context.Context, teleID int64, phone string) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET phone=$1, updated_at=NOW() WHERE telegram_id=$2", phone, teleID)
	return err
}

func (r *userRepo) UpdateAddress(ctx context.Context, teleID int64, address string, lat, lng float64) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET address=$1, lat=$2, lng=$3, updated_at=NOW() WHERE telegram_id=$4", address, lat, lng, teleID)
	return err
}

func (r *userRepo) AddPoints(ctx context.Context, id int64, points int64) error {
	_, err := r.db.Exec(ctx, "UPDATE users SET points = points + $1, updated_at=NOW() WHERE id=$2", points, id)
	if err != nil {
		r.log.Error("failed to add points", logger.Int64("user_id", id), logger.Error(err))
	}
	return err
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.TelegramID, &u.FullName, &u.Username, &u.Phone, &u.Role, &u.Points,
		&u.AvatarURL, &u.Address, &u.Lat, &u.Lng, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
