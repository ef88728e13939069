package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Cost     CostConfig
	Events   EventsConfig
	Metrics  MetricsConfig
}

// AppConfig holds process-wide settings.
type AppConfig struct {
	Env          string        `mapstructure:"APP_ENV"`
	LogLevel     string        `mapstructure:"LOG_LEVEL"`
	Store        string        `mapstructure:"STORE_DRIVER"`
	WriteTimeout time.Duration `mapstructure:"ROUTE_WRITE_TIMEOUT"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"POSTGRES_HOST"`
	Port     int    `mapstructure:"POSTGRES_PORT"`
	User     string `mapstructure:"POSTGRES_USER"`
	Password string `mapstructure:"POSTGRES_PASSWORD"`
	DBName   string `mapstructure:"POSTGRES_DB"`
	SSLMode  string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns int32  `mapstructure:"POSTGRES_MIN_CONNS"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// CacheConfig controls the van/load read-through cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"CACHE_ENABLED"`
	TTL     time.Duration `mapstructure:"CACHE_TTL"`
}

// CostConfig feeds the route metric calculator.
type CostConfig struct {
	FuelPricePerLiter       decimal.Decimal
	FuelConsumptionPer100Km float64 `mapstructure:"COST_FUEL_CONSUMPTION_PER_100KM"`
	AverageSpeedKmph        float64 `mapstructure:"COST_AVERAGE_SPEED_KMPH"`
}

// EventsConfig selects where route events are forwarded. Empty brokers
// disable the corresponding sink.
type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string `mapstructure:"EVENTS_KAFKA_TOPIC"`
	MQTTBroker   string `mapstructure:"EVENTS_MQTT_BROKER"`
	MQTTTopic    string `mapstructure:"EVENTS_MQTT_TOPIC"`
	MQTTClientID string `mapstructure:"EVENTS_MQTT_CLIENT_ID"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"METRICS_ENABLED"`
	Path    string `mapstructure:"METRICS_PATH"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from environment variables and an env file.
// envFile defaults to ./.env when empty.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	if envFile != "" {
		v.SetConfigFile(envFile)
	} else {
		v.SetConfigName(".env")
		v.AddConfigPath(".")
	}
	v.SetConfigType("env")
	v.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	v.SetDefault("APP_ENV", "prod")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("ROUTE_WRITE_TIMEOUT", "5s")

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "5s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "freight")
	v.SetDefault("POSTGRES_PASSWORD", "freight_secret")
	v.SetDefault("POSTGRES_DB", "freight_db")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("POSTGRES_MAX_CONNS", 20)
	v.SetDefault("POSTGRES_MIN_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 20)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("COST_FUEL_PRICE_PER_LITER", "1.65")
	v.SetDefault("COST_FUEL_CONSUMPTION_PER_100KM", 11.0)
	v.SetDefault("COST_AVERAGE_SPEED_KMPH", 70.0)

	v.SetDefault("EVENTS_KAFKA_BROKERS", "")
	v.SetDefault("EVENTS_KAFKA_TOPIC", "route-events")
	v.SetDefault("EVENTS_MQTT_BROKER", "")
	v.SetDefault("EVENTS_MQTT_TOPIC", "freight/routes/events")
	v.SetDefault("EVENTS_MQTT_CLIENT_ID", "freightroute")

	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PATH", "/metrics")

	// A missing file is fine: the environment alone is enough.
	if err := v.ReadInConfig(); err != nil && envFile != "" {
		return nil, fmt.Errorf("config: read %s: %w", envFile, err)
	}

	cfg := &Config{}

	// ── App ─────────────────────────────────────────────
	cfg.App = AppConfig{
		Env:          v.GetString("APP_ENV"),
		LogLevel:     v.GetString("LOG_LEVEL"),
		Store:        strings.ToLower(v.GetString("STORE_DRIVER")),
		WriteTimeout: v.GetDuration("ROUTE_WRITE_TIMEOUT"),
	}
	if cfg.App.Store != "postgres" && cfg.App.Store != "memory" {
		return nil, fmt.Errorf("config: STORE_DRIVER must be postgres or memory, got %q", cfg.App.Store)
	}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         v.GetString("SERVER_HOST"),
		Port:         v.GetInt("SERVER_PORT"),
		ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Postgres ────────────────────────────────────────
	cfg.Postgres = PostgresConfig{
		Host:     v.GetString("POSTGRES_HOST"),
		Port:     v.GetInt("POSTGRES_PORT"),
		User:     v.GetString("POSTGRES_USER"),
		Password: v.GetString("POSTGRES_PASSWORD"),
		DBName:   v.GetString("POSTGRES_DB"),
		SSLMode:  v.GetString("POSTGRES_SSLMODE"),
		MaxConns: v.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns: v.GetInt32("POSTGRES_MIN_CONNS"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
	}
	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("CACHE_ENABLED"),
		TTL:     v.GetDuration("CACHE_TTL"),
	}

	// ── Cost model ──────────────────────────────────────
	price, err := decimal.NewFromString(v.GetString("COST_FUEL_PRICE_PER_LITER"))
	if err != nil {
		return nil, fmt.Errorf("config: COST_FUEL_PRICE_PER_LITER: %w", err)
	}
	cfg.Cost = CostConfig{
		FuelPricePerLiter:       price,
		FuelConsumptionPer100Km: v.GetFloat64("COST_FUEL_CONSUMPTION_PER_100KM"),
		AverageSpeedKmph:        v.GetFloat64("COST_AVERAGE_SPEED_KMPH"),
	}
	if cfg.Cost.AverageSpeedKmph <= 0 {
		return nil, fmt.Errorf("config: COST_AVERAGE_SPEED_KMPH must be positive")
	}

	// ── Events ──────────────────────────────────────────
	cfg.Events = EventsConfig{
		KafkaBrokers: splitList(v.GetString("EVENTS_KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("EVENTS_KAFKA_TOPIC"),
		MQTTBroker:   v.GetString("EVENTS_MQTT_BROKER"),
		MQTTTopic:    v.GetString("EVENTS_MQTT_TOPIC"),
		MQTTClientID: v.GetString("EVENTS_MQTT_CLIENT_ID"),
	}

	// ── Metrics ─────────────────────────────────────────
	cfg.Metrics = MetricsConfig{
		Enabled: v.GetBool("METRICS_ENABLED"),
		Path:    v.GetString("METRICS_PATH"),
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
