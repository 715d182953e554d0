package config

import (
	"github.com/caarlos0/env/v10"
	_ "github.com/joho/godotenv/autoload"
)

// Config holds all application configuration
type Config struct {
	Mongo         MongoConfig
	Server        ServerConfig
	Redis         RedisConfig
	AuthService   AuthServiceConfig
	Gateway       GatewayConfig
	Notifications NotificationConfig
	RateLimit     RateLimitConfig
}

// MongoConfig holds document store configuration
type MongoConfig struct {
	URI    string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	DBName string `env:"MONGO_DBNAME" envDefault:"marketplace"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string `env:"SERVER_PORT" envDefault:":8002"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
}

// AuthServiceConfig holds auth service configuration
type AuthServiceConfig struct {
	URL string `env:"AUTH_SERVICE_URL" envDefault:"http://auth-service:8000"`
}

// GatewayConfig holds payment gateway configuration; the service degrades to
// ErrGateway on payment paths when BaseURL or APIKey is missing.
type GatewayConfig struct {
	BaseURL       string `env:"PAYMENT_GATEWAY_URL"`
	APIKey        string `env:"PAYMENT_GATEWAY_API_KEY"`
	WebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET"`
	SuccessURL    string `env:"PAYMENT_SUCCESS_URL" envDefault:"http://localhost:3000/payments/success"`
	CancelURL     string `env:"PAYMENT_CANCEL_URL" envDefault:"http://localhost:3000/payments/cancel"`
}

type NotificationConfig struct {
	URL string `env:"NOTIFI_SERVICE_URL"`
}

type RateLimitConfig struct {
	Requests      int `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	WindowSeconds int `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
}

// NewConfig creates a new Config from the environment
func NewConfig() (*Config, error) {
	cfg := new(Config)
	err := env.Parse(cfg)

	return cfg, err
}
