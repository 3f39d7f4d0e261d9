package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken          string
	GuildID               string
	NotificationChannelID string
	HonorChannelID        string

	// Riot API
	RiotAPIKey     string
	AccountRegion  string // regional routing for account-v1 (e.g. "asia")
	PlatformRegion string // platform routing for league-v4 (e.g. "jp1")

	// Database
	DatabasePath string

	// Daily rank check
	CheckHour     int
	CheckTimezone string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:          os.Getenv("DISCORD_BOT_TOKEN"),
		GuildID:               os.Getenv("DISCORD_GUILD_ID"),
		NotificationChannelID: os.Getenv("NOTIFICATION_CHANNEL_ID"),
		HonorChannelID:        os.Getenv("HONOR_CHANNEL_ID"),
		RiotAPIKey:            os.Getenv("RIOT_API_KEY"),
		AccountRegion:         getEnvOrDefault("RIOT_ACCOUNT_REGION", "asia"),
		PlatformRegion:        getEnvOrDefault("RIOT_PLATFORM_REGION", "jp1"),
		DatabasePath:          getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		CheckTimezone:         getEnvOrDefault("RANK_CHECK_TIMEZONE", "Asia/Tokyo"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Parse daily check hour
	hourStr := getEnvOrDefault("RANK_CHECK_HOUR", "12")
	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour < 0 || hour > 23 {
		return nil, fmt.Errorf("invalid RANK_CHECK_HOUR: %q", hourStr)
	}
	cfg.CheckHour = hour

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("RIOT_API_KEY is required")
	}
	if cfg.GuildID == "" {
		return nil, fmt.Errorf("DISCORD_GUILD_ID is required")
	}
	if cfg.NotificationChannelID == "" {
		return nil, fmt.Errorf("NOTIFICATION_CHANNEL_ID is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
