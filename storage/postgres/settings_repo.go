package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/storage"
)

type settingsRepo struct {
	db  *pgxpool.Pool
	log logger.ILogger
}

func NewSettingsRepo(db *pgxpool.Pool, log logger.ILogger) storage.ISettingsStorage {
	return &settingsRepo{db: db, log: log}
}

// The settings table holds exactly one row, id = 1, seeded by migrations.
func (r *settingsRepo) Get(ctx context.Context) (*models.StoreSettings, error) {
	var s models.StoreSettings
	err := r.db.QueryRow(ctx, `SELECT accepting_orders, updated_at FROM store_settings WHERE id = 1`).
		Scan(&s.AcceptingOrders, &s.UpdatedAt)
	if err != nil {
		r.log.Error("failed to get store settings", logger.Error(err))
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepo) SetAcceptingOrders(ctx context.Context, accepting bool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO store_settings (id, accepting_orders, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET accepting_orders = EXCLUDED.accepting_orders, updated_at = NOW()
	`, accepting)
	if err != nil {
		r.log.Error("failed to update store settings", logger.Bool("accepting", accepting), logger.Error(err))
	}
	return err
}
