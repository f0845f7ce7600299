package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	PropertyStorePostgres = "postgres"
	PropertyStoreSQLite   = "sqlite"
	PropertyStoreMemory   = "memory"

	TokenStoreProperty = "property"
	TokenStoreRedis    = "redis"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	PropertyStore   string        `mapstructure:"PROPERTY_STORE"`
	SQLitePath      string        `mapstructure:"SQLITE_PATH"`
	TokenStore      string        `mapstructure:"TOKEN_STORE"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	SHRBaseURL      string        `mapstructure:"SHR_BASE_URL"`
	ArchiveBucket   string        `mapstructure:"ARCHIVE_S3_BUCKET"`
	ArchiveRegion   string        `mapstructure:"ARCHIVE_S3_REGION"`
	ArchiveEndpoint string        `mapstructure:"ARCHIVE_S3_ENDPOINT"`
	OTLPEndpoint    string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var keys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"PROPERTY_STORE",
	"SQLITE_PATH",
	"TOKEN_STORE",
	"REDIS_URL",
	"SHR_BASE_URL",
	"ARCHIVE_S3_BUCKET",
	"ARCHIVE_S3_REGION",
	"ARCHIVE_S3_ENDPOINT",
	"OTEL_EXPORTER_OTLP_ENDPOINT",
	"SHUTDOWN_TIMEOUT",
}

// Load reads an optional .env file and the environment. It does not
// validate; call Validate before wiring stores.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("PROPERTY_STORE", PropertyStorePostgres)
	v.SetDefault("SQLITE_PATH", "interop.db")
	v.SetDefault("TOKEN_STORE", TokenStoreProperty)
	v.SetDefault("ARCHIVE_S3_REGION", "us-east-1")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	// Unmarshal only sees env vars that are bound explicitly.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HasDatabase reports whether the clinical read model is backed by PostgreSQL.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the selected stores have what they need.
func (c *Config) Validate() error {
	switch c.PropertyStore {
	case PropertyStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when PROPERTY_STORE is %q", PropertyStorePostgres)
		}
	case PropertyStoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when PROPERTY_STORE is %q", PropertyStoreSQLite)
		}
	case PropertyStoreMemory:
	default:
		return fmt.Errorf("PROPERTY_STORE must be %q, %q or %q, got %q",
			PropertyStorePostgres, PropertyStoreSQLite, PropertyStoreMemory, c.PropertyStore)
	}

	switch c.TokenStore {
	case TokenStoreProperty:
	case TokenStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when TOKEN_STORE is %q", TokenStoreRedis)
		}
	default:
		return fmt.Errorf("TOKEN_STORE must be %q or %q, got %q", TokenStoreProperty, TokenStoreRedis, c.TokenStore)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
