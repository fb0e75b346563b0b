package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	GrpcPort       string `mapstructure:"GRPC_PORT"`
	EndpointPrefix string `mapstructure:"SERVICE_ENDPOINT_PREFIX"`
	GinMode        string `mapstructure:"GIN_MODE"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`

	DbHost    string `mapstructure:"POSTGRES_HOST"`
	DbPort    string `mapstructure:"POSTGRES_PORT"`
	DbUser    string `mapstructure:"POSTGRES_USER"`
	DbPas     string `mapstructure:"POSTGRES_PASSWORD"`
	DbName    string `mapstructure:"POSTGRES_DB"`
	DbSSLMode string `mapstructure:"POSTGRES_SSLMODE"`

	JwtSecret        string `mapstructure:"JWT_SECRET"`
	JwtIssuer        string `mapstructure:"JWT_ISSUER"`
	JwtAudience      string `mapstructure:"JWT_AUDIENCE"`
	JwtExpiryMinutes int    `mapstructure:"JWT_EXPIRY_MINUTES"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeCurrency      string `mapstructure:"STRIPE_CURRENCY"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`

	ConsulAddr  string `mapstructure:"CONSUL_HTTP_ADDR"`
	ServiceName string `mapstructure:"SERVICE_NAME"`
	ServiceHost string `mapstructure:"SERVICE_HOST"`

	StrictOrderTransitions bool `mapstructure:"ORDER_STRICT_TRANSITIONS"`
	RateLimitPerMinute     int  `mapstructure:"RATE_LIMIT_PER_MINUTE"`
}

var defaults = map[string]any{
	"SERVER_PORT":              "8080",
	"GRPC_PORT":                "5001",
	"SERVICE_ENDPOINT_PREFIX":  "/api",
	"GIN_MODE":                 "debug",
	"LOG_LEVEL":                "info",
	"POSTGRES_HOST":            "localhost",
	"POSTGRES_PORT":            "5432",
	"POSTGRES_USER":            "",
	"POSTGRES_PASSWORD":        "",
	"POSTGRES_DB":              "",
	"POSTGRES_SSLMODE":         "disable",
	"JWT_SECRET":               "",
	"JWT_ISSUER":               "storefront-service",
	"JWT_AUDIENCE":             "storefront-client",
	"JWT_EXPIRY_MINUTES":       60,
	"STRIPE_SECRET_KEY":        "",
	"STRIPE_WEBHOOK_SECRET":    "",
	"STRIPE_CURRENCY":          "usd",
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"KAFKA_BROKERS":            "",
	"CONSUL_HTTP_ADDR":         "",
	"SERVICE_NAME":             "storefront",
	"SERVICE_HOST":             "localhost",
	"ORDER_STRICT_TRANSITIONS": false,
	"RATE_LIMIT_PER_MINUTE":    5,
}

// Load reads .env (when present) into the process environment and then resolves every key
// from the environment, falling back to defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded, using process environment")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cf := &Config{}
	if err := v.Unmarshal(cf); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cf, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.JwtSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.DbUser == "" || c.DbName == "" {
		errs = append(errs, errors.New("POSTGRES_USER and POSTGRES_DB must be set"))
	}
	if c.JwtExpiryMinutes <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY_MINUTES must be positive"))
	}
	if !strings.HasPrefix(c.EndpointPrefix, "/") {
		errs = append(errs, errors.New("SERVICE_ENDPOINT_PREFIX must start with /"))
	}
	return errors.Join(errs...)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
		c.DbUser, c.DbPas, c.DbHost, c.DbPort, c.DbName, c.DbSSLMode)
}

func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
