// Package config handles loading and parsing of ltcatalog configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for ltcatalog.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metadata      MetadataConfig      `yaml:"metadata"`
	Allocator     AllocatorConfig     `yaml:"allocator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout is the graceful shutdown window in seconds.
	ShutdownTimeout int `yaml:"shutdown_timeout"`
	// CORSOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS headers.
	CORSOrigin string `yaml:"cors_origin"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetadataConfig selects and configures the product store.
type MetadataConfig struct {
	// Engine is one of "sqlite", "postgres", "memory", "dynamodb",
	// "firestore", "cosmos" or "sheets".
	Engine    string          `yaml:"engine"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
	Firestore FirestoreConfig `yaml:"firestore"`
	Cosmos    CosmosConfig    `yaml:"cosmos"`
	Sheets    SheetsConfig    `yaml:"sheets"`
}

// SQLiteConfig holds SQLite-specific store settings.
type SQLiteConfig struct {
	// Path is the filesystem path for the SQLite database file.
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL store settings.
type PostgresConfig struct {
	// URL is a libpq-style connection string or postgres:// URL.
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

// DynamoDBConfig holds DynamoDB store settings.
type DynamoDBConfig struct {
	Table       string `yaml:"table"`
	Region      string `yaml:"region"`
	EndpointURL string `yaml:"endpoint_url"`
}

// FirestoreConfig holds Firestore store settings.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	Collection      string `yaml:"collection"`
	CredentialsFile string `yaml:"credentials_file"`
}

// CosmosConfig holds Azure Cosmos DB store settings.
type CosmosConfig struct {
	Endpoint  string `yaml:"endpoint"`
	MasterKey string `yaml:"master_key"`
	Database  string `yaml:"database"`
	Container string `yaml:"container"`
}

// SheetsConfig holds Google Sheets store settings.
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	SheetTitle      string `yaml:"sheet_title"`
	CredentialsFile string `yaml:"credentials_file"`
}

// AllocatorConfig bounds product code allocation.
type AllocatorConfig struct {
	// MaxAttempts is the number of random candidates drawn per allocation.
	MaxAttempts int `yaml:"max_attempts"`
	// SpaceSize is the number of distinct codes (#LT001..#LT{SpaceSize}).
	SpaceSize int `yaml:"space_size"`
	// CommitAttempts bounds allocate+insert retries after a store conflict.
	CommitAttempts int `yaml:"commit_attempts"`
}

// ObservabilityConfig toggles metrics and health endpoints.
type ObservabilityConfig struct {
	Metrics     bool `yaml:"metrics"`
	HealthCheck bool `yaml:"health_check"`
}

// Load reads a YAML configuration file from the given path and returns
// a parsed Config. A missing file is not an error: defaults are used.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		fallback := filepath.Join(filepath.Dir(path), "ltcatalog.example.yaml")
		data, err = os.ReadFile(fallback)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnv(cfg, os.Getenv)

	return cfg, nil
}

// Parse parses YAML bytes into a Config with defaults applied. No
// environment overrides are read.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ShutdownTimeout: 30,
			CORSOrigin:      "*",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metadata: MetadataConfig{
			Engine: "sqlite",
			SQLite: SQLiteConfig{
				Path: "./data/products.db",
			},
		},
		Allocator: AllocatorConfig{
			MaxAttempts:    10,
			SpaceSize:      999,
			CommitAttempts: 3,
		},
		Observability: ObservabilityConfig{
			Metrics:     true,
			HealthCheck: true,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		cfg.Server.ShutdownTimeout = 30
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Metadata.Engine == "" {
		cfg.Metadata.Engine = "sqlite"
	}
	if cfg.Metadata.SQLite.Path == "" {
		cfg.Metadata.SQLite.Path = "./data/products.db"
	}
	if cfg.Metadata.Postgres.MaxConns <= 0 {
		cfg.Metadata.Postgres.MaxConns = 10
	}
	if cfg.Metadata.DynamoDB.Region == "" {
		cfg.Metadata.DynamoDB.Region = "us-east-1"
	}
	if cfg.Metadata.Firestore.Collection == "" {
		cfg.Metadata.Firestore.Collection = "ltcatalog"
	}
	if cfg.Metadata.Sheets.SheetTitle == "" {
		cfg.Metadata.Sheets.SheetTitle = "Products"
	}
	if cfg.Allocator.MaxAttempts <= 0 {
		cfg.Allocator.MaxAttempts = 10
	}
	if cfg.Allocator.SpaceSize <= 0 {
		cfg.Allocator.SpaceSize = 999
	}
	if cfg.Allocator.CommitAttempts <= 0 {
		cfg.Allocator.CommitAttempts = 3
	}
}

// applyEnv applies the deployment environment variables the service has
// always honored: PORT, DATABASE_URL (selects postgres) and GOOGLE_SHEET_ID
// (selects sheets).
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.Metadata.Engine = "postgres"
		cfg.Metadata.Postgres.URL = v
	} else if v := getenv("GOOGLE_SHEET_ID"); v != "" {
		cfg.Metadata.Engine = "sheets"
		cfg.Metadata.Sheets.SpreadsheetID = v
		if f := getenv("GOOGLE_APPLICATION_CREDENTIALS"); f != "" && cfg.Metadata.Sheets.CredentialsFile == "" {
			cfg.Metadata.Sheets.CredentialsFile = f
		}
	}
}

// Validate checks that the selected engine has the settings it needs.
func (c *Config) Validate() error {
	m := c.Metadata
	switch m.Engine {
	case "sqlite", "memory":
	case "postgres":
		if m.Postgres.URL == "" {
			return fmt.Errorf("metadata.postgres.url is required when engine is 'postgres'")
		}
	case "dynamodb":
		if m.DynamoDB.Table == "" {
			return fmt.Errorf("metadata.dynamodb.table is required when engine is 'dynamodb'")
		}
	case "firestore":
		if m.Firestore.ProjectID == "" {
			return fmt.Errorf("metadata.firestore.project_id is required when engine is 'firestore'")
		}
	case "cosmos":
		if m.Cosmos.Endpoint == "" || m.Cosmos.MasterKey == "" || m.Cosmos.Database == "" || m.Cosmos.Container == "" {
			return fmt.Errorf("metadata.cosmos endpoint, master_key, database and container are required when engine is 'cosmos'")
		}
	case "sheets":
		if m.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("metadata.sheets.spreadsheet_id is required when engine is 'sheets'")
		}
	default:
		return fmt.Errorf("unknown metadata engine %q", m.Engine)
	}
	if c.Allocator.SpaceSize > 999 {
		return fmt.Errorf("allocator.space_size %d exceeds the three-digit code space", c.Allocator.SpaceSize)
	}
	return nil
}
