package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	TelegramToken string
	GeminiAPIKey  string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	MaxConcurrent    int
	RequestTimeout   time.Duration
	HTTPTimeout      time.Duration
	GeminiBaseURL    string
	GeminiAPIVersion string

	PresetDir           string
	GlobalVariablesFile string
	WatchPresets        bool
	WatchDebounce       time.Duration
	MaxVariableDepth    int

	PoolBaseURL       string
	PoolTimeout       time.Duration
	PoolCacheTTL      time.Duration
	PoolRatePerSecond float64
	PoolRetryAttempts int

	WebAddr string
}

// Require lists the settings a binary cannot start without.
type Require struct {
	Telegram bool
	Gemini   bool
	Presets  bool
}

func Load(req Require) (Config, error) {
	cfg := Config{
		LogLevel:            strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:               getEnvBool("DEBUG", false),
		PreferIPv4:          getEnvBool("PREFER_IPV4", true),
		MaxConcurrent:       getEnvInt("MAX_CONCURRENT", 4),
		RequestTimeout:      time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 180)) * time.Second,
		HTTPTimeout:         time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		GeminiBaseURL:       strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion:    strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
		PresetDir:           strings.TrimSpace(getEnv("PRESET_DIR", "presets")),
		GlobalVariablesFile: strings.TrimSpace(getEnv("GLOBAL_VARIABLES_FILE", "")),
		WatchPresets:        getEnvBool("WATCH_PRESETS", true),
		WatchDebounce:       time.Duration(getEnvInt("WATCH_DEBOUNCE_MS", 300)) * time.Millisecond,
		MaxVariableDepth:    getEnvInt("MAX_VARIABLE_DEPTH", 8),
		PoolBaseURL:         strings.TrimSpace(getEnv("POOL_BASE_URL", "")),
		PoolTimeout:         time.Duration(getEnvInt("POOL_TIMEOUT_MS", 5000)) * time.Millisecond,
		PoolCacheTTL:        time.Duration(getEnvInt("POOL_CACHE_TTL_SECONDS", 1800)) * time.Second,
		PoolRatePerSecond:   getEnvFloat("POOL_RATE_PER_SECOND", 2),
		PoolRetryAttempts:   getEnvInt("POOL_RETRY_ATTEMPTS", 3),
		WebAddr:             strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	switch {
	case req.Telegram && cfg.TelegramToken == "":
		return Config{}, errors.New("TELEGRAM_BOT_TOKEN is required")
	case req.Gemini && cfg.GeminiAPIKey == "":
		return Config{}, errors.New("GEMINI_API_KEY is required")
	case req.Presets && cfg.PresetDir == "":
		return Config{}, errors.New("PRESET_DIR is required")
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.WatchDebounce <= 0 {
		cfg.WatchDebounce = 300 * time.Millisecond
	}
	if cfg.MaxVariableDepth < 1 {
		cfg.MaxVariableDepth = 8
	}
	if cfg.PoolTimeout <= 0 {
		cfg.PoolTimeout = 5 * time.Second
	}
	if cfg.PoolCacheTTL <= 0 {
		cfg.PoolCacheTTL = 30 * time.Minute
	}
	if cfg.PoolRatePerSecond < 0 {
		cfg.PoolRatePerSecond = 0
	}
	if cfg.PoolRetryAttempts < 1 {
		cfg.PoolRetryAttempts = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
