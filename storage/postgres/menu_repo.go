package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

type menuRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewMenuRepo(db *pgxpool.Pool, log logger.ILogger) storage.IMenuStorage {
	return &menuRepo{db: db, log: log}
}

func (r *menuRepo) GetAll(ctx context.Context) ([]*models.MenuItem, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, price_cents, is_available FROM menu_items ORDER BY id ASC`)
	if err != nil {
		r.log.Error("failed to list menu", logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	var items []*models.MenuItem
	for rows.Next() {
		var m models.MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.IsAvailable); err != nil {
			return nil, err
		}
		items = append(items, &m)
	}
	return items, rows.Err()
}

func (r *menuRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*models.MenuItem, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, price_cents, is_available FROM menu_items WHERE id = ANY($1)`, ids)
	if err != nil {
		r.log.Error("failed to get menu items", logger.Error(err))
		return nil, err
	}
	defer rows.Close()

	items := make(map[int64]*models.MenuItem, len(ids))
	for rows.Next() {
		var m models.MenuItem
		if err := rows.Scan(&m.ID, &m.Name, &m.Price, &m.IsAvailable); err != nil {
			return nil, err
		}
		items[m.ID] = &m
	}
	return items, rows.Err()
}
