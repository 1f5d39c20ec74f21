// Package config loads typed application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full application configuration.
type Config struct {
	Market    MarketConfig    `json:"market"`
	Portfolio PortfolioConfig `json:"portfolio"`
	Redis     RedisConfig     `json:"redis"`
	Server    ServerConfig    `json:"server"`
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Alerts    AlertsConfig    `json:"alerts"`
}

// MarketConfig configures the exchange data source.
type MarketConfig struct {
	BaseURL string `json:"baseUrl"`
	WSURL   string `json:"wsUrl"`
	// MockMode replaces the live client with deterministic simulated data.
	MockMode bool          `json:"mockMode"`
	Timeout  time.Duration `json:"timeout"`
}

// PortfolioConfig seeds the paper portfolio.
type PortfolioConfig struct {
	InitialBalance float64 `json:"initialBalance"`
}

// RedisConfig configures state persistence. When disabled the engine runs
// on an in-memory store and state does not survive restarts.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"poolSize"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	AllowedOrigins string        `json:"allowedOrigins"`
	ReadTimeout    time.Duration `json:"readTimeout"`
	WriteTimeout   time.Duration `json:"writeTimeout"`
}

// TelegramConfig configures the Telegram notification channel.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"botToken"`
	ChatID   string `json:"chatId"`
}

// LoggingConfig configures the zerolog root logger.
type LoggingConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

// AlertsConfig configures the price alert checker.
type AlertsConfig struct {
	CheckInterval time.Duration `json:"checkInterval"`
}

// Load reads .env if present, then the environment, and validates ranges.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg := &Config{
		Market: MarketConfig{
			BaseURL:  getEnvOrDefault("MARKET_BASE_URL", "https://api.binance.com"),
			WSURL:    getEnvOrDefault("MARKET_WS_URL", "wss://stream.binance.com:9443"),
			MockMode: getEnvOrDefault("MARKET_MOCK_MODE", "false") == "true",
			Timeout:  getEnvDurationOrDefault("MARKET_TIMEOUT", 10*time.Second),
		},
		Portfolio: PortfolioConfig{
			InitialBalance: getEnvFloatOrDefault("PORTFOLIO_INITIAL_BALANCE", 10000),
		},
		Redis: RedisConfig{
			Enabled:  getEnvOrDefault("REDIS_ENABLED", "false") == "true",
			Address:  getEnvOrDefault("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvIntOrDefault("REDIS_DB", 0),
			PoolSize: getEnvIntOrDefault("REDIS_POOL_SIZE", 10),
		},
		Server: ServerConfig{
			Host:           getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvIntOrDefault("SERVER_PORT", 8080),
			AllowedOrigins: getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*"),
			ReadTimeout:    getEnvDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getEnvDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Telegram: TelegramConfig{
			Enabled:  getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true",
			BotToken: getEnvOrDefault("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getEnvOrDefault("TELEGRAM_CHAT_ID", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Pretty: getEnvOrDefault("LOG_PRETTY", "false") == "true",
		},
		Alerts: AlertsConfig{
			CheckInterval: getEnvDurationOrDefault("ALERTS_CHECK_INTERVAL", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Portfolio.InitialBalance <= 0 {
		return fmt.Errorf("PORTFOLIO_INITIAL_BALANCE must be positive, got %f", c.Portfolio.InitialBalance)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.Market.Timeout <= 0 {
		return fmt.Errorf("MARKET_TIMEOUT must be positive")
	}
	if c.Alerts.CheckInterval < time.Second {
		return fmt.Errorf("ALERTS_CHECK_INTERVAL must be at least 1s")
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("TELEGRAM_ENABLED requires TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
