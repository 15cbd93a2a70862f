package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Feed     Feed     `mapstructure:"feed"`
	Auth     Auth     `mapstructure:"auth"`
	Database Database `mapstructure:"database"`
	Client   Client   `mapstructure:"client"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Server holds the configuration for the HTTP boundary.
type Server struct {
	Port           int     `mapstructure:"port"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Feed holds the configuration for the simulated market.
type Feed struct {
	Interval          time.Duration      `mapstructure:"interval"`
	StockVolatility   float64            `mapstructure:"stock_volatility"`
	FXVolatility      float64            `mapstructure:"fx_volatility"`
	ReferenceCurrency string             `mapstructure:"reference_currency"`
	Quotes            map[string]float64 `mapstructure:"quotes"`
	Rates             map[string]float64 `mapstructure:"rates"`
	Seed              int64              `mapstructure:"seed"`
}

// Auth holds the configuration for the credential store.
type Auth struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// Database holds the configuration for the trade journal.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Client holds the configuration for the API client used by bankctl.
type Client struct {
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// LoadConfig reads config.yml from path, then environment overrides. A missing
// file is not an error; every key has a default.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	// Allow environment variables to override config file
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 200) // requests per second
	v.SetDefault("server.rate_limit_burst", 50)

	v.SetDefault("feed.interval", "2s")
	v.SetDefault("feed.stock_volatility", 0.03)
	v.SetDefault("feed.fx_volatility", 0.005)
	v.SetDefault("feed.reference_currency", "USD")
	v.SetDefault("feed.quotes", map[string]float64{
		"AAPL": 178.50, "GOOGL": 140.20, "TSLA": 245.00, "AMZN": 185.60,
		"MSFT": 415.30, "NFLX": 620.00, "META": 510.40, "NVDA": 790.00,
	})
	v.SetDefault("feed.rates", map[string]float64{"USD": 1.0, "RUB": 92.5, "EUR": 0.92})
	v.SetDefault("feed.seed", 0)

	v.SetDefault("auth.bcrypt_cost", 10)

	v.SetDefault("database.dsn", "file::memory:")

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.rate_limit", 20)
	v.SetDefault("client.rate_limit_burst", 5)
	v.SetDefault("client.max_retries", 3)
}
