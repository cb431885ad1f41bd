package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	ServiceName string
	LoggerLevel string

	HTTPPort int

	StorageDriver    string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	MigrationsPath   string

	RabbitMQURL string

	TelegramBotToken string
	KitchenBotToken  string
	AdminID          int64
	AdminUsername    string

	JWTSecret string
	TokenTTL  time.Duration
	WebAppURL string

	// Money values are in cents.
	DeliveryFee             int64
	FreeDeliveryThreshold   int64
	RequireDeliveryLocation bool

	PollInterval     time.Duration
	PositionThrottle time.Duration
	RouteThrottle    time.Duration

	RoutingURL     string
	RoutingTimeout time.Duration
}

func Load() Config {
	_ = godotenv.Load(".env")

	cfg := Config{}

	cfg.ServiceName = cast.ToString(getOrReturnDefault("SERVICE_NAME", "kitchenbot"))
	cfg.LoggerLevel = cast.ToString(getOrReturnDefault("LOGGER_LEVEL", "debug"))
	cfg.HTTPPort = cast.ToInt(getOrReturnDefault("HTTP_PORT", 8080))

	cfg.StorageDriver = cast.ToString(getOrReturnDefault("STORAGE_DRIVER", StorageDriverPostgres))
	cfg.PostgresHost = cast.ToString(getOrReturnDefault("POSTGRES_HOST", "localhost"))
	cfg.PostgresPort = cast.ToString(getOrReturnDefault("POSTGRES_PORT", "5432"))
	cfg.PostgresUser = cast.ToString(getOrReturnDefault("POSTGRES_USER", "postgres"))
	cfg.PostgresPassword = cast.ToString(getOrReturnDefault("POSTGRES_PASSWORD", "1234"))
	cfg.PostgresDB = cast.ToString(getOrReturnDefault("POSTGRES_DB", "kitchenbot"))
	cfg.MigrationsPath = cast.ToString(getOrReturnDefault("MIGRATIONS_PATH", "migrations"))

	cfg.RabbitMQURL = cast.ToString(getOrReturnDefault("RABBITMQ_URL", ""))

	cfg.TelegramBotToken = cast.ToString(getOrReturnDefault("TG_BOT_TOKEN", ""))
	cfg.KitchenBotToken = cast.ToString(getOrReturnDefault("KITCHEN_BOT_TOKEN", ""))
	cfg.AdminID = cast.ToInt64(getOrReturnDefault("ADMIN_ID", 0))
	cfg.AdminUsername = cast.ToString(getOrReturnDefault("ADMIN_USERNAME", ""))

	cfg.JWTSecret = cast.ToString(getOrReturnDefault("JWT_SECRET", ""))
	cfg.TokenTTL = cast.ToDuration(getOrReturnDefault("TOKEN_TTL", "720h"))
	cfg.WebAppURL = cast.ToString(getOrReturnDefault("WEBAPP_URL", ""))

	cfg.DeliveryFee = cast.ToInt64(getOrReturnDefault("DELIVERY_FEE_CENTS", 399))
	cfg.FreeDeliveryThreshold = cast.ToInt64(getOrReturnDefault("FREE_DELIVERY_THRESHOLD_CENTS", 2500))
	cfg.RequireDeliveryLocation = cast.ToBool(getOrReturnDefault("REQUIRE_DELIVERY_LOCATION", true))

	cfg.PollInterval = cast.ToDuration(getOrReturnDefault("POLL_INTERVAL", "3s"))
	cfg.PositionThrottle = cast.ToDuration(getOrReturnDefault("POSITION_THROTTLE", "1500ms"))
	cfg.RouteThrottle = cast.ToDuration(getOrReturnDefault("ROUTE_THROTTLE", "2s"))

	cfg.RoutingURL = cast.ToString(getOrReturnDefault("ROUTING_URL", "https://router.project-osrm.org"))
	cfg.RoutingTimeout = cast.ToDuration(getOrReturnDefault("ROUTING_TIMEOUT", "5s"))

	return cfg
}

func getOrReturnDefault(key string, defaultValue interface{}) interface{} {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}
