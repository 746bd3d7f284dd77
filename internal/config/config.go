package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	APIURL      string
	APISecret   string
	HTTPTimeout time.Duration

	// Preview coordinator tuning
	PreviewFreshness  time.Duration
	PreviewRatePerSec float64
	PreviewBurst      int

	LogLevel string
	Env      string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64
	Port                   string
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SHOPPING_HTTP_TIMEOUT", 30*time.Second)
	v.SetDefault("PREVIEW_FRESHNESS", 5*time.Minute)
	v.SetDefault("PREVIEW_RATE_PER_SEC", 2.0)
	v.SetDefault("PREVIEW_BURST", 1)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8080")

	apiURL := v.GetString("SHOPPING_API_URL")
	if apiURL == "" {
		return nil, fmt.Errorf("SHOPPING_API_URL environment variable not set")
	}

	timeout := v.GetDuration("SHOPPING_HTTP_TIMEOUT")
	if timeout <= 0 {
		return nil, fmt.Errorf("SHOPPING_HTTP_TIMEOUT must be a positive duration")
	}

	freshness := v.GetDuration("PREVIEW_FRESHNESS")
	if freshness < 0 {
		return nil, fmt.Errorf("PREVIEW_FRESHNESS must not be negative")
	}

	allowed, err := parseUserIDs(v.GetString("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	// Telegram Config (Optional for CLI, required for Bot)
	return &Config{
		APIURL:                 apiURL,
		APISecret:              v.GetString("SHOPPING_API_SECRET"),
		HTTPTimeout:            timeout,
		PreviewFreshness:       freshness,
		PreviewRatePerSec:      v.GetFloat64("PREVIEW_RATE_PER_SEC"),
		PreviewBurst:           v.GetInt("PREVIEW_BURST"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		Env:                    v.GetString("ENV"),
		TelegramBotToken:       v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     v.GetString("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowed,
		AdminTelegramID:        v.GetInt64("ADMIN_TELEGRAM_ID"),
		Port:                   v.GetString("PORT"),
	}, nil
}

// IsProduction reports whether the app runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
