package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Log      LogConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Payment  PaymentConfig
	Order    OrderConfig
	Cart     CartConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type StorageConfig struct {
	Driver string
}

type LogConfig struct {
	Level string
	// File enables a rotating file sink next to stdout when set.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled is false when no address is configured; in-process stores are used instead.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type KafkaConfig struct {
	Brokers       []string
	CustomerTopic string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
	TokenTTL  time.Duration
}

const (
	PaymentModeWebpay    = "webpay"
	PaymentModeSimulated = "simulated"
)

type PaymentConfig struct {
	Mode             string
	BaseURL          string
	CommerceCode     string
	APIKey           string
	Timeout          time.Duration
	ReturnURL        string
	CurrencyExponent int32
}

type OrderConfig struct {
	TxTimeout             time.Duration
	MaxRetryAttempts      int
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	IdempotencyTTL        time.Duration
}

type CartConfig struct {
	TTL time.Duration
}

// Load reads CONFIG_FILE when set, then lets environment variables override it.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	setDefaults(v)

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	shippingFee, err := decimal.NewFromString(v.GetString("ORDER_SHIPPING_FEE"))
	if err != nil {
		return nil, fmt.Errorf("parsing ORDER_SHIPPING_FEE: %w", err)
	}
	freeThreshold, err := decimal.NewFromString(v.GetString("ORDER_FREE_SHIPPING_THRESHOLD"))
	if err != nil {
		return nil, fmt.Errorf("parsing ORDER_FREE_SHIPPING_THRESHOLD: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Name:            v.GetString("DB_NAME"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("DB_AUTO_MIGRATE"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		},
		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			File:       v.GetString("LOG_FILE"),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Brokers:       splitList(v.GetString("KAFKA_BROKERS")),
			CustomerTopic: v.GetString("KAFKA_CUSTOMER_TOPIC"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("AUTH_JWT_SECRET"),
			Issuer:    v.GetString("AUTH_ISSUER"),
			Audience:  v.GetString("AUTH_AUDIENCE"),
			TokenTTL:  v.GetDuration("AUTH_TOKEN_TTL"),
		},
		Payment: PaymentConfig{
			Mode:             strings.ToLower(v.GetString("PAYMENT_MODE")),
			BaseURL:          v.GetString("PAYMENT_BASE_URL"),
			CommerceCode:     v.GetString("PAYMENT_COMMERCE_CODE"),
			APIKey:           v.GetString("PAYMENT_API_KEY"),
			Timeout:          v.GetDuration("PAYMENT_TIMEOUT"),
			ReturnURL:        v.GetString("PAYMENT_RETURN_URL"),
			CurrencyExponent: v.GetInt32("PAYMENT_CURRENCY_EXPONENT"),
		},
		Order: OrderConfig{
			TxTimeout:             v.GetDuration("ORDER_TX_TIMEOUT"),
			MaxRetryAttempts:      v.GetInt("ORDER_MAX_RETRY_ATTEMPTS"),
			ShippingFee:           shippingFee,
			FreeShippingThreshold: freeThreshold,
			IdempotencyTTL:        v.GetDuration("ORDER_IDEMPOTENCY_TTL"),
		},
		Cart: CartConfig{
			TTL: v.GetDuration("CART_TTL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 3306)
	v.SetDefault("DB_USER", "storefront")
	v.SetDefault("DB_PASSWORD", "secret")
	v.SetDefault("DB_NAME", "storefront")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("STORAGE_DRIVER", StorageMySQL)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("LOG_MAX_AGE_DAYS", 7)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_CUSTOMER_TOPIC", "storefront.customer-notifications")
	v.SetDefault("AUTH_JWT_SECRET", "")
	v.SetDefault("AUTH_ISSUER", "storefront")
	v.SetDefault("AUTH_AUDIENCE", "storefront-api")
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("PAYMENT_MODE", PaymentModeSimulated)
	v.SetDefault("PAYMENT_BASE_URL", "https://webpay3gint.transbank.cl")
	v.SetDefault("PAYMENT_COMMERCE_CODE", "597055555532")
	v.SetDefault("PAYMENT_API_KEY", "")
	v.SetDefault("PAYMENT_TIMEOUT", "15s")
	v.SetDefault("PAYMENT_RETURN_URL", "http://localhost:8080/payments/webpay/return")
	v.SetDefault("PAYMENT_CURRENCY_EXPONENT", 0)
	v.SetDefault("ORDER_TX_TIMEOUT", "5s")
	v.SetDefault("ORDER_MAX_RETRY_ATTEMPTS", 3)
	v.SetDefault("ORDER_SHIPPING_FEE", "3990")
	v.SetDefault("ORDER_FREE_SHIPPING_THRESHOLD", "25000")
	v.SetDefault("ORDER_IDEMPOTENCY_TTL", "24h")
	v.SetDefault("CART_TTL", "72h")
}

func (c *Config) validate() error {
	if c.Storage.Driver != StorageMySQL && c.Storage.Driver != StorageMemory {
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StorageMySQL, StorageMemory, c.Storage.Driver)
	}
	if c.Payment.Mode != PaymentModeWebpay && c.Payment.Mode != PaymentModeSimulated {
		return fmt.Errorf("PAYMENT_MODE must be %q or %q, got %q", PaymentModeWebpay, PaymentModeSimulated, c.Payment.Mode)
	}
	if c.Payment.Mode == PaymentModeWebpay && c.Payment.APIKey == "" {
		return fmt.Errorf("PAYMENT_API_KEY is required when PAYMENT_MODE is %q", PaymentModeWebpay)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Order.MaxRetryAttempts < 1 {
		return fmt.Errorf("ORDER_MAX_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Order.ShippingFee.IsNegative() || c.Order.FreeShippingThreshold.IsNegative() {
		return fmt.Errorf("shipping fee and free-shipping threshold must be non-negative")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
