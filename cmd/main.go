package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"kitchenbot/config"
	"kitchenbot/pkg/api"
	"kitchenbot/pkg/bot"
	"kitchenbot/pkg/broker"
	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
	"kitchenbot/pkg/realtime"
	"kitchenbot/pkg/routing"
	"kitchenbot/pkg/tracker"
	"kitchenbot/service"
	"kitchenbot/storage"
	"kitchenbot/storage/memory"
	"kitchenbot/storage/postgres"
)

// demoMenu seeds the in-memory store for local runs.
var demoMenu = []models.MenuItem{
	{ID: 1, Name: "Plov", Price: 1200, IsAvailable: true},
	{ID: 2, Name: "Samsa", Price: 350, IsAvailable: true},
	{ID: 3, Name: "Manti", Price: 900, IsAvailable: true},
	{ID: 4, Name: "Lagman", Price: 1100, IsAvailable: true},
}

func main() {
	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Logger
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Storage
	stg, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", logger.Error(err))
		os.Exit(1)
	}
	defer stg.Close()

	svc := service.New(stg, service.Options{
		Pricing: service.Pricing{
			DeliveryFee:           cfg.DeliveryFee,
			FreeDeliveryThreshold: cfg.FreeDeliveryThreshold,
		},
		RequireDeliveryLocation: cfg.RequireDeliveryLocation,
	}, log)

	// 4. Change propagation: store feed -> hub (+ RabbitMQ)
	hub := realtime.NewHub(log)

	var sinks []realtime.Sink
	if cfg.RabbitMQURL != "" {
		pub, err := broker.Dial(cfg.RabbitMQURL, log)
		if err != nil {
			log.Error("failed to connect RabbitMQ", logger.Error(err))
			os.Exit(1)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}
	relay := realtime.NewRelay(stg.Changes(), hub, log.With(logger.String("component", "relay")), sinks...)

	// 5. Tracking: driver sessions write, the kitchen board renders
	tr := tracker.New(svc.Order(), hub, cfg.PositionThrottle, log.With(logger.String("component", "tracker")))
	board := tracker.NewBoard(routing.NewClient(cfg.RoutingURL, cfg.RoutingTimeout), cfg.RouteThrottle, log)

	// The kitchen view sees every order by push and by polling; everything
	// that must not miss a transition hangs off it.
	kitchenView := realtime.NewViewer(hub, svc.Order(), models.OrderFilter{}, cfg.PollInterval, log.With(logger.String("component", "kitchen_view")))
	kitchenView.OnChange(board.Observe)
	kitchenView.OnChange(tr.Observe)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(ctx) })
	g.Go(func() error { return tr.Run(ctx) })

	// 6. HTTP API
	if cfg.JWTSecret == "" {
		log.Warning("JWT_SECRET is empty, HTTP API disabled")
	} else {
		engine := api.NewRouter(api.NewHandler(svc, tr, board, hub, log), cfg.JWTSecret)
		g.Go(func() error { return api.Run(ctx, cfg.HTTPPort, engine, log) })
	}

	// 7. Telegram bots
	var customerSender, kitchenSender bot.Sender

	if cfg.TelegramBotToken != "" {
		customerBot, err := bot.New(bot.BotTypeCustomer, &cfg, svc, tr, board, log)
		if err != nil {
			log.Error("failed to initialize customer bot", logger.Error(err))
			os.Exit(1)
		}
		customerSender = customerBot.Bot
		g.Go(func() error { return customerBot.Run(ctx) })
	}
	if cfg.KitchenBotToken != "" {
		kitchenBot, err := bot.New(bot.BotTypeKitchen, &cfg, svc, tr, board, log)
		if err != nil {
			log.Error("failed to initialize kitchen bot", logger.Error(err))
			os.Exit(1)
		}
		kitchenSender = kitchenBot.Bot
		g.Go(func() error { return kitchenBot.Run(ctx) })
	}
	if customerSender != nil || kitchenSender != nil {
		notifier := bot.NewNotifier(customerSender, kitchenSender, svc.User(), log.With(logger.String("component", "notifier")))
		kitchenView.OnChange(notifier.Observe)
		g.Go(func() error { return notifier.Run(ctx) })
	}

	g.Go(func() error { return kitchenView.Run(ctx) })

	log.Info("🚀 kitchenbot is running", logger.String("storage", cfg.StorageDriver))

	if err := g.Wait(); err != nil {
		log.Error("shutting down after failure", logger.Error(err))
		os.Exit(1)
	}
	log.Info("stopped")
}

func openStorage(ctx context.Context, cfg config.Config, log logger.ILogger) (storage.IStorage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warning("using in-memory storage, data is lost on exit")
		return memory.NewWithMenu(demoMenu...), nil
	}
	return postgres.New(ctx, cfg, log)
}
