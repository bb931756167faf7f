package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,       default=8080"`
	Env       string `env:"ENV,        default=development"`
	JWTSecret string `env:"JWT_SECRET, required"`
	LogLevel  string `env:"LOG_LEVEL,  default=info"`

	Mongo    MongoConfig
	Redis    RedisConfig
	Chat     ChatConfig
	Socket   SocketConfig
	Presence PresenceConfig
}

type MongoConfig struct {
	URI         string `env:"MONGO_URI,           default=mongodb://localhost:27017"`
	Database    string `env:"MONGO_DB,            default=intranet_realtime"`
	MaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE, default=100"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,      default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,        default=0"`
	PoolSize int    `env:"REDIS_POOL_SIZE, default=20"`
}

type ChatConfig struct {
	MaxContentLength  int           `env:"CHAT_MAX_CONTENT_LENGTH,   default=4000"`
	NotificationChars int           `env:"CHAT_NOTIFICATION_PREVIEW, default=100"`
	HistoryLimit      int           `env:"CHAT_HISTORY_LIMIT,        default=50"`
	SendRateLimit     int           `env:"CHAT_SEND_RATE_LIMIT,      default=30"`
	SendRateWindow    time.Duration `env:"CHAT_SEND_RATE_WINDOW,     default=10s"`
	DedupTTL          time.Duration `env:"CHAT_DEDUP_TTL,            default=10m"`
	FanoutWorkers     int           `env:"CHAT_FANOUT_WORKERS,       default=4"`
}

type SocketConfig struct {
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS,  default=*"`
	MaxMessageSize int64    `env:"WS_MAX_MESSAGE_SIZE, default=65536"`
	RelayEnabled   bool     `env:"WS_RELAY_ENABLED,    default=true"`
	RelayChannel   string   `env:"WS_RELAY_CHANNEL,    default=realtime:relay"`
}

type PresenceConfig struct {
	TTL time.Duration `env:"PRESENCE_TTL, default=90s"`
}

// IsDevelopment reports whether the service runs with developer defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadFrom(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadFrom reads configuration through the given lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, err
	}
	return &cfg, nil
}
