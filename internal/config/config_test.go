package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StorageMySQL, cfg.Storage.Driver)
	assert.Equal(t, PaymentModeSimulated, cfg.Payment.Mode)
	assert.Equal(t, 5*time.Second, cfg.Order.TxTimeout)
	assert.Equal(t, 3, cfg.Order.MaxRetryAttempts)
	assert.True(t, decimal.NewFromInt(25000).Equal(cfg.Order.FreeShippingThreshold))
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Kafka.Enabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "MEMORY")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ORDER_SHIPPING_FEE", "2500")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, decimal.NewFromInt(2500).Equal(cfg.Order.ShippingFee))
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT: 9191\nAUTH_JWT_SECRET: from-file\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
}

func TestLoad_RejectsMissingSecret(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownStorage(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "sqlite")

	_, err := Load()
	assert.ErrorContains(t, err, "STORAGE_DRIVER")
}

func TestLoad_WebpayRequiresAPIKey(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	t.Setenv("PAYMENT_MODE", "webpay")

	_, err := Load()
	assert.ErrorContains(t, err, "PAYMENT_API_KEY")
}
