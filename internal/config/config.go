package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Postgres configuration
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string

	// Provisioning API configuration
	ProvisioningURL   string
	ProvisioningToken string
	AccessGroupID     int64

	// Telegram configuration
	TelegramBotToken string

	// Crypto-invoice provider
	CryptoPayURL   string
	CryptoPayToken string
	CryptoPayAsset string

	// Card/SBP gateway
	CardGateURL    string
	CardGateShopID string
	CardGateSecret string
	CardReturnURL  string

	// Merchant gateway
	MerchantURL    string
	MerchantID     string
	MerchantSecret string

	// Reconciliation configuration
	PollInterval      time.Duration
	PendingTTL        time.Duration
	LockLeaseSeconds  int64
	ReferralBonusDays int64
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "spnbot"),

		ProvisioningURL:   getEnv("PROVISIONING_URL", ""),
		ProvisioningToken: getEnv("PROVISIONING_TOKEN", ""),
		AccessGroupID:     getEnvAsInt64("ACCESS_GROUP_ID", 1),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		CryptoPayURL:   getEnv("CRYPTOPAY_URL", "https://pay.crypt.bot"),
		CryptoPayToken: getEnv("CRYPTOPAY_TOKEN", ""),
		CryptoPayAsset: getEnv("CRYPTOPAY_ASSET", "USDT"),

		CardGateURL:    getEnv("CARDGATE_URL", "https://api.yookassa.ru"),
		CardGateShopID: getEnv("CARDGATE_SHOP_ID", ""),
		CardGateSecret: getEnv("CARDGATE_SECRET", ""),
		CardReturnURL:  getEnv("CARD_RETURN_URL", ""),

		MerchantURL:    getEnv("MERCHANT_URL", ""),
		MerchantID:     getEnv("MERCHANT_ID", ""),
		MerchantSecret: getEnv("MERCHANT_SECRET", ""),

		PollInterval:      getEnvAsDuration("POLL_INTERVAL", 90*time.Second),
		PendingTTL:        getEnvAsDuration("PENDING_TTL", 24*time.Hour),
		LockLeaseSeconds:  getEnvAsInt64("LOCK_LEASE_SECONDS", 300),
		ReferralBonusDays: getEnvAsInt64("REFERRAL_BONUS_DAYS", 7),

		APIPort: getEnvAsInt("API_PORT", 8443),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	if c.ProvisioningURL == "" {
		return fmt.Errorf("PROVISIONING_URL is required")
	}

	if c.ProvisioningToken == "" {
		return fmt.Errorf("PROVISIONING_TOKEN is required")
	}

	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	if c.PostgresDB == "" {
		return fmt.Errorf("POSTGRES_DB is required")
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}

	if c.LockLeaseSeconds <= 0 {
		return fmt.Errorf("LOCK_LEASE_SECONDS must be positive")
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt64(name string, defaultValue int64) int64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
