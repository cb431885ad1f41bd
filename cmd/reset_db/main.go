package main

import (
	"context"
	"os"

	"kitchenbot/config"
	"kitchenbot/pkg/logger"
	"kitchenbot/storage/postgres"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)
	pg, err := postgres.New(context.Background(), cfg, log)
	if err != nil {
		log.Error("failed to connect postgres", logger.Error(err))
		os.Exit(1)
	}
	defer pg.Close()

	// Orders go, menu, users and settings stay. The next order is #0001 again.
	for _, stmt := range []string{
		"TRUNCATE TABLE order_items, orders RESTART IDENTITY CASCADE",
		"ALTER SEQUENCE order_number_seq RESTART WITH 1",
	} {
		if _, err := pg.GetPool().Exec(context.Background(), stmt); err != nil {
			log.Error("failed to reset order tables", logger.String("stmt", stmt), logger.Error(err))
			os.Exit(1)
		}
	}
	log.Info("truncated orders and order_items")
}
