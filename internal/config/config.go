package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Database holds the Postgres connection settings.
type Database struct {
	Host     string `env:"DB_HOST" env-default:"localhost"`
	Port     string `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER" env-default:"postgres"`
	Password string `env:"DB_PASSWORD" env-default:"password"`
	Name     string `env:"DB_NAME" env-default:"tracker"`
	SSLMode  string `env:"DB_SSLMODE" env-default:"disable"`
	TimeZone string `env:"DB_TIMEZONE" env-default:"UTC"`
}

// DSN builds the lib/pq style connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode, d.TimeZone,
	)
}

// Tracking tunes the geofence engine.
type Tracking struct {
	StaleAfter      time.Duration `env:"TRACKING_STALE_AFTER" env-default:"5m"`
	DefaultSpeedMPS float64       `env:"TRACKING_DEFAULT_SPEED_MPS" env-default:"8.33"`
	MinSpeedMPS     float64       `env:"TRACKING_MIN_SPEED_MPS" env-default:"1"`
	Retention       time.Duration `env:"TRACKING_RETENTION" env-default:"720h"`
	AbandonAfter    time.Duration `env:"TRACKING_ABANDON_AFTER" env-default:"2h"`
	SweepInterval   time.Duration `env:"TRACKING_SWEEP_INTERVAL" env-default:"1m"`
	MaxClockSkew    time.Duration `env:"TRACKING_MAX_CLOCK_SKEW" env-default:"2m"`
}

// Config is everything the server reads from the environment.
type Config struct {
	HTTPAddr    string  `env:"HTTP_ADDR" env-default:":8080"`
	JWTSecret   string  `env:"JWT_SECRET" env-required:"true"`
	LogLevel    string  `env:"LOG_LEVEL" env-default:"info"`
	LogFile     string  `env:"LOG_FILE" env-default:"./logs/app.log"`
	IngestRate  float64 `env:"INGEST_RATE_PER_SEC" env-default:"2"`
	IngestBurst int     `env:"INGEST_BURST" env-default:"5"`
	HubBuffer   int     `env:"HUB_BUFFER" env-default:"100"`

	DB       Database
	Tracking Tracking
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on env vars")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Tracking.DefaultSpeedMPS <= 0 {
		return fmt.Errorf("config: TRACKING_DEFAULT_SPEED_MPS must be positive")
	}
	if c.Tracking.MinSpeedMPS <= 0 {
		return fmt.Errorf("config: TRACKING_MIN_SPEED_MPS must be positive")
	}
	if c.Tracking.StaleAfter <= 0 {
		return fmt.Errorf("config: TRACKING_STALE_AFTER must be positive")
	}
	if c.IngestRate <= 0 || c.IngestBurst <= 0 {
		return fmt.Errorf("config: INGEST_RATE_PER_SEC and INGEST_BURST must be positive")
	}
	return nil
}
