package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for the timing knobs of the client. They match the behaviour of the
// Merry web client and only exist as configuration so tests and slow networks
// can tune them.
const (
	DefaultRequestTimeout   = 30 * time.Second
	DefaultMaxRetries       = 2
	DefaultRetryDelay       = 1 * time.Second
	DefaultCacheTTL         = 30 * time.Second
	DefaultDebounceInterval = 1500 * time.Millisecond
	DefaultSaveRetryDelay   = 2 * time.Second
	DefaultMaxSaveAttempts  = 3
	DefaultRefreshMargin    = 60 * time.Second
	DefaultFreePromptQuota  = 5
)

// Config carries everything the client needs to talk to the Merry backend and
// to keep its local state.
type Config struct {
	APIBaseURL string
	StorePath  string

	RequestTimeout   time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	CacheTTL         time.Duration
	DebounceInterval time.Duration
	SaveRetryDelay   time.Duration
	MaxSaveAttempts  int
	RefreshMargin    time.Duration
	FreePromptQuota  int
}

// Load reads configuration from the environment. A .env file is honoured when
// present so local development does not need exported variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:       strings.TrimRight(getEnv("MERRY_API_URL", "http://localhost:8000/api"), "/"),
		StorePath:        getEnv("MERRY_STORE_PATH", defaultStorePath()),
		RequestTimeout:   DefaultRequestTimeout,
		MaxRetries:       DefaultMaxRetries,
		RetryDelay:       DefaultRetryDelay,
		CacheTTL:         DefaultCacheTTL,
		DebounceInterval: DefaultDebounceInterval,
		SaveRetryDelay:   DefaultSaveRetryDelay,
		MaxSaveAttempts:  DefaultMaxSaveAttempts,
		RefreshMargin:    DefaultRefreshMargin,
		FreePromptQuota:  DefaultFreePromptQuota,
	}

	timeoutSec, err := strconv.Atoi(getEnv("MERRY_REQUEST_TIMEOUT_SECONDS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid MERRY_REQUEST_TIMEOUT_SECONDS: %w", err)
	}
	cfg.RequestTimeout = time.Duration(timeoutSec) * time.Second

	retries, err := strconv.Atoi(getEnv("MERRY_MAX_RETRIES", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid MERRY_MAX_RETRIES: %w", err)
	}
	cfg.MaxRetries = retries

	quota, err := strconv.Atoi(getEnv("MERRY_FREE_PROMPT_QUOTA", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid MERRY_FREE_PROMPT_QUOTA: %w", err)
	}
	cfg.FreePromptQuota = quota

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("MERRY_API_URL must not be empty")
	}
	return cfg, nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".merry", "state.db")
	}
	return filepath.Join(home, ".merry", "state.db")
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
