package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses values like "90s" or "5m". A bare integer is taken as seconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

// GetEnvBool accepts the forms understood by strconv.ParseBool.
func GetEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(key); s != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b
		}
	}
	return fallback
}

// Settings is the full runtime configuration.
type Settings struct {
	Port      string
	LogLevel  string
	LogFormat string

	HolodexAPIKey   string
	HolodexBaseURL  string
	HolodexTimeout  time.Duration
	ChannelID       string
	ChannelURL      string
	BreakerFailures int
	BreakerDelay    time.Duration

	RefreshInterval    time.Duration
	StalenessThreshold time.Duration
	OnDemandRefresh    bool

	SiteTitle  string
	ArtCatalog string
	ImagesDir  string
	StaticDir  string
}

// FromEnv reads Settings from the environment, applying defaults.
func FromEnv() Settings {
	return Settings{
		Port:      GetEnv("PORT", "8080"),
		LogLevel:  GetEnv("LOG_LEVEL", "info"),
		LogFormat: GetEnv("LOG_FORMAT", "json"),

		HolodexAPIKey:   GetEnv("HOLODEX_API_KEY", ""),
		HolodexBaseURL:  GetEnv("HOLODEX_BASE_URL", "https://holodex.net/api/v2"),
		HolodexTimeout:  GetEnvDuration("HOLODEX_TIMEOUT", 10*time.Second),
		ChannelID:       GetEnv("HOLODEX_CHANNEL_ID", ""),
		ChannelURL:      GetEnv("CHANNEL_URL", ""),
		BreakerFailures: GetEnvInt("BREAKER_FAILURES", 5),
		BreakerDelay:    GetEnvDuration("BREAKER_DELAY", 5*time.Minute),

		RefreshInterval:    GetEnvDuration("REFRESH_INTERVAL", 60*time.Second),
		StalenessThreshold: GetEnvDuration("STALENESS_THRESHOLD", 60*time.Second),
		OnDemandRefresh:    GetEnvBool("ON_DEMAND_REFRESH", false),

		SiteTitle:  GetEnv("SITE_TITLE", "I MISS MONO"),
		ArtCatalog: GetEnv("ART_CATALOG", "config/art.toml"),
		ImagesDir:  GetEnv("IMAGES_DIR", "images"),
		StaticDir:  GetEnv("STATIC_DIR", "static"),
	}
}

// ErrMissingChannel is returned by Validate when no channel is configured.
var ErrMissingChannel = errors.New("HOLODEX_CHANNEL_ID is required")

// Validate reports the first invalid setting.
func (s Settings) Validate() error {
	if s.ChannelID == "" {
		return ErrMissingChannel
	}
	if s.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %s", s.RefreshInterval)
	}
	if s.StalenessThreshold <= 0 {
		return fmt.Errorf("STALENESS_THRESHOLD must be positive, got %s", s.StalenessThreshold)
	}
	if s.BreakerFailures < 0 {
		return fmt.Errorf("BREAKER_FAILURES must not be negative, got %d", s.BreakerFailures)
	}
	return nil
}
