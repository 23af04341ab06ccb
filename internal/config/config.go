// Package config loads runtime settings from the environment, with an
// optional .env style file for local runs.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	BotToken string
	MongoURI string
	MongoDB  string

	// Storage channel chat ids keyed by category.
	MoviesChannel    int64
	WebseriesChannel int64
	AnimeChannel     int64

	// AdminIDs are bootstrapped as admin operators on startup.
	AdminIDs []int64

	// Telegram API budget.
	RatePerSecond float64
	RateBurst     int
	UploadPacing  time.Duration
	RetryAttempts int
	RetryWait     time.Duration

	LogLevel string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // the file is optional, env vars win anyway
	v.AutomaticEnv()

	v.SetDefault("MONGODB_DB", "mediastash")
	v.SetDefault("RATE_PER_SECOND", 0.5)
	v.SetDefault("RATE_BURST", 3)
	v.SetDefault("UPLOAD_PACING", "2s")
	v.SetDefault("RETRY_ATTEMPTS", 5)
	v.SetDefault("RETRY_WAIT", "3s")
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		BotToken:         v.GetString("BOT_TOKEN"),
		MongoURI:         v.GetString("MONGODB_URI"),
		MongoDB:          v.GetString("MONGODB_DB"),
		MoviesChannel:    v.GetInt64("MOVIES_CHANNEL_ID"),
		WebseriesChannel: v.GetInt64("WEBSERIES_CHANNEL_ID"),
		AnimeChannel:     v.GetInt64("ANIME_CHANNEL_ID"),
		RatePerSecond:    v.GetFloat64("RATE_PER_SECOND"),
		RateBurst:        v.GetInt("RATE_BURST"),
		UploadPacing:     v.GetDuration("UPLOAD_PACING"),
		RetryAttempts:    v.GetInt("RETRY_ATTEMPTS"),
		RetryWait:        v.GetDuration("RETRY_WAIT"),
		LogLevel:         v.GetString("LOG_LEVEL"),
	}

	ids, err := parseIDList(v.GetString("ADMIN_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.BotToken == "":
		return fmt.Errorf("BOT_TOKEN is required")
	case c.MongoURI == "":
		return fmt.Errorf("MONGODB_URI is required")
	case c.MoviesChannel == 0:
		return fmt.Errorf("MOVIES_CHANNEL_ID is required")
	case c.WebseriesChannel == 0:
		return fmt.Errorf("WEBSERIES_CHANNEL_ID is required")
	case c.AnimeChannel == 0:
		return fmt.Errorf("ANIME_CHANNEL_ID is required")
	case c.RatePerSecond <= 0:
		return fmt.Errorf("RATE_PER_SECOND must be positive")
	case c.RetryAttempts <= 0:
		return fmt.Errorf("RETRY_ATTEMPTS must be positive")
	}
	return nil
}

// Channels maps the chooser keys used in the upload flows to chat ids.
func (c *Config) Channels() map[string]int64 {
	return map[string]int64{
		"MOVIES":    c.MoviesChannel,
		"WEBSERIES": c.WebseriesChannel,
		"ANIME":     c.AnimeChannel,
	}
}

func parseIDList(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
