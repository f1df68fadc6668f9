package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate.
type Config struct {
	DatabaseURL string
	ListenAddr  string

	AdminUser     string
	AdminPassword string

	// Strava application credentials for the OAuth flows.
	StravaClientID     string
	StravaClientSecret string
	StravaRedirectURL  string

	// LookbackDays bounds how far back a full run lists activities.
	LookbackDays int
	// PerPage is the listing page size requested from the provider.
	PerPage int
	// MaxActivities caps how many listing entries one run ingests.
	MaxActivities int
	// BatchSize is the number of activities one enrichment batch covers.
	BatchSize int

	// MaxRetries bounds both the client's per-call retry budget and the
	// per-activity attempts within an enrichment batch.
	MaxRetries int
	// BaseBackoff is the initial sleep on a rate-limited provider call;
	// it doubles per consecutive hit.
	BaseBackoff time.Duration
	// Pacing is slept between successfully enriched activities.
	Pacing time.Duration

	// SyncInterval is the period of the scheduled sync worker. Zero
	// disables the worker; syncs then run only via the trigger endpoint.
	SyncInterval time.Duration
	// RunTimeout bounds one triggered ingestion+enrichment run.
	RunTimeout time.Duration
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	return &Config{
		DatabaseURL: os.Getenv("APP_DATABASE_URL"),
		ListenAddr:  getenv("APP_LISTEN_ADDR", ":8080"),

		AdminUser:     getenv("APP_ADMIN_USER", "admin"),
		AdminPassword: getenv("APP_ADMIN_PASSWORD", "changeme"),

		StravaClientID:     os.Getenv("STRAVA_CLIENT_ID"),
		StravaClientSecret: os.Getenv("STRAVA_CLIENT_SECRET"),
		StravaRedirectURL:  getenv("STRAVA_REDIRECT_URL", "http://localhost:8080/oauth/callback"),

		LookbackDays:  getint("APP_LOOKBACK_DAYS", 30),
		PerPage:       getint("APP_PER_PAGE", 50),
		MaxActivities: getint("APP_MAX_ACTIVITIES", 200),
		BatchSize:     getint("APP_BATCH_SIZE", 10),

		MaxRetries:  getint("APP_MAX_RETRIES", 5),
		BaseBackoff: getdur("APP_BASE_BACKOFF", 5*time.Second),
		Pacing:      getdur("APP_PACING", time.Second),

		SyncInterval: getdur("APP_SYNC_INTERVAL", time.Hour),
		RunTimeout:   getdur("APP_RUN_TIMEOUT", 15*time.Minute),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getdur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}
