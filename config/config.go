// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Prefix is prepended to every variable name (HUB_PORT, HUB_DB_PATH, ...).
const Prefix = "HUB"

type Config struct {
	// HTTP
	Port        int      `envconfig:"PORT" default:"8080"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
	PublicURL   string   `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`

	// Storage
	DBPath string `envconfig:"DB_PATH" default:"hub.db"`

	// Certificates
	CertPrefix    string `envconfig:"CERT_PREFIX" default:"KDIH"`
	CertSecretKey string `envconfig:"CERT_SECRET_KEY" required:"true"`

	// Bookings
	RoomRatePerSeatHour decimal.Decimal `envconfig:"ROOM_RATE_PER_SEAT_HOUR" default:"2000"`
	DeskCount           int             `envconfig:"DESK_COUNT" default:"20"`
	HoldTTL             time.Duration   `envconfig:"HOLD_TTL" default:"30m"`
	SweepInterval       time.Duration   `envconfig:"SWEEP_INTERVAL" default:"5m"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`

	// Payments
	PaystackSecretKey string `envconfig:"PAYSTACK_SECRET_KEY"`
	PaystackBaseURL   string `envconfig:"PAYSTACK_BASE_URL" default:"https://api.paystack.co"`

	// Notifications. Empty AMQPURL logs notifications instead.
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"hub.notifications"`
}

// Load reads an optional .env file, then the environment.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	// A missing .env is normal outside development.
	_ = godotenv.Load(envFiles...)

	var c Config
	if err := envconfig.Process(Prefix, &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: %s_PORT %d out of range", Prefix, c.Port)
	}
	if strings.TrimSpace(c.CertPrefix) == "" {
		return fmt.Errorf("config: %s_CERT_PREFIX must not be empty", Prefix)
	}
	if !c.RoomRatePerSeatHour.IsPositive() {
		return fmt.Errorf("config: %s_ROOM_RATE_PER_SEAT_HOUR must be positive", Prefix)
	}
	if c.DeskCount < 0 {
		return fmt.Errorf("config: %s_DESK_COUNT must not be negative", Prefix)
	}
	if c.HoldTTL <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("config: %s_HOLD_TTL and %s_SWEEP_INTERVAL must be positive", Prefix, Prefix)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
