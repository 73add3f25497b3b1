package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// DatabaseURL maps to env var DB_URL.
	// Required so the app fails fast if it's missing.
	DatabaseURL string `envconfig:"DB_URL" required:"true"`
	// DatabaseDriver is "pgx" for Postgres or "sqlite" for a local file.
	DatabaseDriver string `envconfig:"DB_DRIVER" default:"pgx"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	PropertyWorkers  int    `envconfig:"PROPERTY_WORKERS" default:"3"`
	ImageWorkers     int    `envconfig:"IMAGE_WORKERS" default:"5"`
	ListingWorkers   int    `envconfig:"LISTING_WORKERS" default:"3"`
	MaxAttempts      int    `envconfig:"MAX_ATTEMPTS" default:"3"`
	PipelineStrategy string `envconfig:"PIPELINE_STRATEGY" default:"pool"`
	ProgressEvery    int    `envconfig:"PROGRESS_EVERY" default:"10"`

	// Embedded so envconfig keeps the tagged names without a prefix.
	ChallengeConfig

	CredentialTTL time.Duration `envconfig:"CREDENTIAL_TTL" default:"30m"`

	// Random pause before each image request.
	ImageDelayMin time.Duration `envconfig:"IMAGE_DELAY_MIN" default:"500ms"`
	ImageDelayMax time.Duration `envconfig:"IMAGE_DELAY_MAX" default:"2s"`

	// RateLimit maps to RATE_LIMIT. Interval between requests to one host.
	RateLimit     time.Duration `envconfig:"RATE_LIMIT" default:"250ms"`
	RateBurst     int           `envconfig:"RATE_BURST" default:"5"`
	RespectRobots bool          `envconfig:"RESPECT_ROBOTS" default:"false"`

	SearchURL  string `envconfig:"SEARCH_URL" default:"https://www.daft.ie/property-for-sale/ireland?adState=published&terms=derelict"`
	MaxPages   int    `envconfig:"MAX_PAGES" default:"50"`
	WriteBatch int    `envconfig:"WRITE_BATCH" default:"20"`

	StorageConfig

	ListenAddr    string `envconfig:"LISTEN_ADDR" default:":8080"`
	GeocodeAPIKey string `envconfig:"GEOCODE_API_KEY"`
}

type ChallengeConfig struct {
	// EntryURL is where the browser goes to clear the challenge. Empty means
	// the root of whichever origin is being requested.
	EntryURL        string        `envconfig:"CHALLENGE_URL" default:"https://www.daft.ie/"`
	ClearanceCookie string        `envconfig:"CLEARANCE_COOKIE" default:"cf_clearance"`
	NavTimeout      time.Duration `envconfig:"NAV_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"30s"`
	SettleDelay     time.Duration `envconfig:"SETTLE_DELAY" default:"5s"`
	MouseMoves      int           `envconfig:"MOUSE_MOVES" default:"20"`
}

type StorageConfig struct {
	Backend   string `envconfig:"STORAGE_BACKEND" default:"fs"`
	Dir       string `envconfig:"STORAGE_DIR" default:"./media"`
	PublicURL string `envconfig:"STORAGE_PUBLIC_URL" default:"http://localhost:8080/media"`
	Bucket    string `envconfig:"GCS_BUCKET"`
	Token     string `envconfig:"GCS_TOKEN"`
}

// Load processes environment variables and populates the Config struct.
func Load() (*Config, error) {
	// A missing .env is normal when vars are injected directly; only complain
	// if the file exists and could not be read.
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			slog.Warn(".env file found but could not be loaded", "err", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
