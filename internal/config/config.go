/**
 * @description
 * This package handles the configuration management for the ATM service. It
 * uses the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings. Operational constants of the state machine (PIN attempt limit,
 * idle timeout, withdrawal limit) are externally supplied here, never
 * hard-coded in the core.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ATM service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	DispenserBaseURL     string `mapstructure:"DISPENSER_BASE_URL"`
	DispenserAPIKey      string `mapstructure:"DISPENSER_API_KEY"`
	AdminJWTSecret       string `mapstructure:"ADMIN_JWT_SECRET"`
	AdminPanelOrigin     string `mapstructure:"ADMIN_PANEL_ORIGIN"`

	MaxPINAttempts               int    `mapstructure:"MAX_PIN_ATTEMPTS"`
	IdleTimeoutSeconds           int    `mapstructure:"IDLE_TIMEOUT_SECONDS"`
	WithdrawalLimit              int64  `mapstructure:"WITHDRAWAL_LIMIT"`
	AmountMaxDigits              int    `mapstructure:"AMOUNT_MAX_DIGITS"`
	CardInsertRateLimitPerMinute int    `mapstructure:"CARD_INSERT_RATE_LIMIT_PER_MINUTE"`
	SessionSweepSchedule         string `mapstructure:"SESSION_SWEEP_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "atm:rate_limit")
	viper.SetDefault("ADMIN_PANEL_ORIGIN", "http://localhost:5173")
	viper.SetDefault("MAX_PIN_ATTEMPTS", 3)
	viper.SetDefault("IDLE_TIMEOUT_SECONDS", 60)
	viper.SetDefault("WITHDRAWAL_LIMIT", 50000)
	viper.SetDefault("AMOUNT_MAX_DIGITS", 8)
	viper.SetDefault("CARD_INSERT_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("SESSION_SWEEP_SCHEDULE", "*/5 * * * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("DISPENSER_BASE_URL")
	_ = viper.BindEnv("DISPENSER_API_KEY")
	_ = viper.BindEnv("ADMIN_JWT_SECRET")
	_ = viper.BindEnv("ADMIN_PANEL_ORIGIN")
	_ = viper.BindEnv("MAX_PIN_ATTEMPTS")
	_ = viper.BindEnv("IDLE_TIMEOUT_SECONDS")
	_ = viper.BindEnv("WITHDRAWAL_LIMIT")
	_ = viper.BindEnv("AMOUNT_MAX_DIGITS")
	_ = viper.BindEnv("CARD_INSERT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("SESSION_SWEEP_SCHEDULE")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "atm:rate_limit"
	}

	if config.MaxPINAttempts <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive pin attempt limit configured; using default\" max_pin_attempts=%d", config.MaxPINAttempts)
		config.MaxPINAttempts = 3
	}
	if config.IdleTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive idle timeout configured; using default\" idle_timeout_seconds=%d", config.IdleTimeoutSeconds)
		config.IdleTimeoutSeconds = 60
	}
	if config.WithdrawalLimit <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive withdrawal limit configured; using default\" withdrawal_limit=%d", config.WithdrawalLimit)
		config.WithdrawalLimit = 50000
	}
	if config.AmountMaxDigits <= 0 {
		config.AmountMaxDigits = 8
	}
	if config.CardInsertRateLimitPerMinute < 0 {
		config.CardInsertRateLimitPerMinute = 0
	}
	if strings.TrimSpace(config.SessionSweepSchedule) == "" {
		config.SessionSweepSchedule = "*/5 * * * * *"
	}

	return
}
