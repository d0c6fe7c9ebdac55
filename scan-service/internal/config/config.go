package config

import (
	"fmt"
	"strings"
	"time"

	sharedauth "github.com/sortit/sortit-services/shared-libs/auth"
	"github.com/sortit/sortit-services/shared-libs/envconfig"
)

// Datastore backends.
const (
	DatastoreMemory    = "memory"
	DatastoreFirestore = "firestore"
	DatastorePostgres  = "postgres"
	DatastoreRedis     = "redis"
	DatastoreSQLite    = "sqlite"
)

const firestoreDefaultDatabase = "(default)"

// Config encapsulates the runtime configuration for the scan service.
type Config struct {
	Port         string `validate:"required"`
	GCPProjectID string
	Datastore    string `validate:"oneof=memory firestore postgres redis sqlite"`
	Timezone     string `validate:"required"`
	// HistoryLimit caps stored scan history; 0 keeps everything.
	HistoryLimit   int           `validate:"gte=0"`
	RequestTimeout time.Duration `validate:"gt=0"`

	Auth      AuthConfig
	Firestore FirestoreConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	SQLite    SQLiteConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
}

// AuthConfig stores authentication middleware setup.
type AuthConfig struct {
	Mode                    sharedauth.Mode
	JWKSURL                 string
	Audience                string
	Issuer                  string
	FirebaseCredentialsJSON string
	FirebaseCredentialsFile string
}

// FirestoreConfig selects the Firestore database.
type FirestoreConfig struct {
	DatabaseID string
}

// PostgresConfig points at the progress database.
type PostgresConfig struct {
	URL string
}

// RedisConfig points at the progress cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
}

// SQLiteConfig names the local database file.
type SQLiteConfig struct {
	Path string
}

// LLMConfig defines how images are classified with Gemini. Disabled serves
// the fallback classification for every scan.
type LLMConfig struct {
	Disabled  bool
	APIKey    string
	Model     string
	UseVertex bool
	Location  string
	Timeout   time.Duration `validate:"gt=0"`
}

// RateLimitConfig bounds scan and classification calls per user.
type RateLimitConfig struct {
	RPS   float64 `validate:"gt=0"`
	Burst int     `validate:"gt=0"`
}

// MetricsConfig protects /metrics with basic auth when both fields are set.
type MetricsConfig struct {
	User string
	Pass string
}

// Load reads environment variables into Config with validation.
func Load() (Config, error) {
	cfg := Config{
		Port:           envconfig.Get("PORT", "8080"),
		GCPProjectID:   envconfig.Get("GCP_PROJECT_ID", ""),
		Datastore:      strings.ToLower(envconfig.Get("DATASTORE", DatastoreMemory)),
		Timezone:       envconfig.Get("TIMEZONE", "UTC"),
		HistoryLimit:   envconfig.GetInt("HISTORY_LIMIT", 0),
		RequestTimeout: envconfig.GetDuration("REQUEST_TIMEOUT", 30*time.Second),
		Auth: AuthConfig{
			Mode:                    sharedauth.Mode(strings.ToLower(envconfig.Get("AUTH_MODE", string(sharedauth.ModeNoop)))),
			JWKSURL:                 envconfig.Get("CLERK_JWKS_URL", ""),
			Audience:                envconfig.Get("CLERK_AUDIENCE", ""),
			Issuer:                  envconfig.Get("CLERK_ISSUER", ""),
			FirebaseCredentialsJSON: envconfig.Get("FIREBASE_CREDENTIALS_JSON", ""),
			FirebaseCredentialsFile: envconfig.Get("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			DatabaseID: envconfig.Get("FIRESTORE_DATABASE_ID", firestoreDefaultDatabase),
		},
		Postgres: PostgresConfig{
			URL: envconfig.Get("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     envconfig.Get("REDIS_ADDR", ""),
			Password: envconfig.Get("REDIS_PASSWORD", ""),
			DB:       envconfig.GetInt("REDIS_DB", 0),
		},
		SQLite: SQLiteConfig{
			Path: envconfig.Get("SQLITE_PATH", "data/sortit.db"),
		},
		LLM: LLMConfig{
			Disabled:  envconfig.GetBool("CLASSIFIER_DISABLED", false),
			APIKey:    resolveAPIKey(),
			Model:     envconfig.Get("GEMINI_MODEL", "gemini-2.5-flash"),
			UseVertex: envconfig.GetBool("GOOGLE_GENAI_USE_VERTEXAI", false),
			Location:  envconfig.Get("GOOGLE_CLOUD_LOCATION", ""),
			Timeout:   envconfig.GetDuration("CLASSIFY_TIMEOUT", 20*time.Second),
		},
		RateLimit: RateLimitConfig{
			RPS:   envconfig.GetFloat("RATE_LIMIT_RPS", 1),
			Burst: envconfig.GetInt("RATE_LIMIT_BURST", 5),
		},
		Metrics: MetricsConfig{
			User: envconfig.Get("METRICS_USER", ""),
			Pass: envconfig.Get("METRICS_PASS", ""),
		},
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Location resolves the configured default timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

func validate(cfg Config) error {
	if err := envconfig.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := cfg.Location(); err != nil {
		return err
	}

	switch cfg.Datastore {
	case DatastoreFirestore:
		if cfg.GCPProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required when DATASTORE=firestore")
		}
	case DatastorePostgres:
		if cfg.Postgres.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATASTORE=postgres")
		}
	case DatastoreRedis:
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when DATASTORE=redis")
		}
	case DatastoreSQLite:
		if strings.TrimSpace(cfg.SQLite.Path) == "" {
			return fmt.Errorf("SQLITE_PATH is required when DATASTORE=sqlite")
		}
	}

	switch cfg.Auth.Mode {
	case sharedauth.ModeClerk:
		if cfg.Auth.JWKSURL == "" {
			return fmt.Errorf("CLERK_JWKS_URL is required when AUTH_MODE=clerk")
		}
	case sharedauth.ModeFirebase:
		if cfg.GCPProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required when AUTH_MODE=firebase")
		}
	case sharedauth.ModeNoop:
		// no-op
	default:
		return fmt.Errorf("unsupported auth mode: %s", cfg.Auth.Mode)
	}

	if cfg.LLM.Disabled {
		return nil
	}
	if cfg.LLM.UseVertex {
		if strings.TrimSpace(cfg.LLM.Location) == "" {
			return fmt.Errorf("GOOGLE_CLOUD_LOCATION is required when GOOGLE_GENAI_USE_VERTEXAI=true")
		}
		if cfg.GCPProjectID == "" {
			return fmt.Errorf("GCP_PROJECT_ID is required when GOOGLE_GENAI_USE_VERTEXAI=true")
		}
	} else if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY or GOOGLE_API_KEY is required unless CLASSIFIER_DISABLED=true")
	}

	return nil
}

func resolveAPIKey() string {
	if apiKey := envconfig.Get("GEMINI_API_KEY", ""); strings.TrimSpace(apiKey) != "" {
		return apiKey
	}
	return envconfig.Get("GOOGLE_API_KEY", "")
}
