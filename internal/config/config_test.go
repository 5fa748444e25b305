package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GOOGLE_SHEET_ID", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Server.Port)
	}
	if cfg.Metadata.Engine != "sqlite" {
		t.Errorf("Engine = %q, want sqlite", cfg.Metadata.Engine)
	}
	if cfg.Allocator.MaxAttempts != 10 || cfg.Allocator.SpaceSize != 999 || cfg.Allocator.CommitAttempts != 3 {
		t.Errorf("Allocator = %+v", cfg.Allocator)
	}
	if !cfg.Observability.Metrics || !cfg.Observability.HealthCheck {
		t.Errorf("Observability = %+v, want both enabled", cfg.Observability)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GOOGLE_SHEET_ID", "")

	path := filepath.Join(t.TempDir(), "ltcatalog.yaml")
	data := []byte(`
server:
  port: 8080
logging:
  level: debug
  format: json
metadata:
  engine: dynamodb
  dynamodb:
    table: products
allocator:
  max_attempts: 25
observability:
  metrics: false
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Metadata.Engine != "dynamodb" || cfg.Metadata.DynamoDB.Table != "products" {
		t.Errorf("Metadata = %+v", cfg.Metadata)
	}
	if cfg.Metadata.DynamoDB.Region != "us-east-1" {
		t.Errorf("DynamoDB.Region = %q, want default", cfg.Metadata.DynamoDB.Region)
	}
	if cfg.Allocator.MaxAttempts != 25 || cfg.Allocator.SpaceSize != 999 {
		t.Errorf("Allocator = %+v", cfg.Allocator)
	}
	if cfg.Observability.Metrics {
		t.Error("Metrics = true, want false from file")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load succeeded on invalid YAML")
	}
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantEngine string
		wantPort   int
	}{
		{"none", nil, "sqlite", 3000},
		{"port", map[string]string{"PORT": "4000"}, "sqlite", 4000},
		{"bad port ignored", map[string]string{"PORT": "abc"}, "sqlite", 3000},
		{"database url", map[string]string{"DATABASE_URL": "postgres://x"}, "postgres", 3000},
		{"sheet id", map[string]string{"GOOGLE_SHEET_ID": "sheet-1"}, "sheets", 3000},
		{"database url wins", map[string]string{"DATABASE_URL": "postgres://x", "GOOGLE_SHEET_ID": "s"}, "postgres", 3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			applyEnv(cfg, func(k string) string { return tt.env[k] })
			if cfg.Metadata.Engine != tt.wantEngine {
				t.Errorf("Engine = %q, want %q", cfg.Metadata.Engine, tt.wantEngine)
			}
			if cfg.Server.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Server.Port, tt.wantPort)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"sqlite ok", func(c *Config) {}, false},
		{"memory ok", func(c *Config) { c.Metadata.Engine = "memory" }, false},
		{"postgres missing url", func(c *Config) { c.Metadata.Engine = "postgres" }, true},
		{"postgres ok", func(c *Config) {
			c.Metadata.Engine = "postgres"
			c.Metadata.Postgres.URL = "postgres://localhost/db"
		}, false},
		{"firestore missing project", func(c *Config) { c.Metadata.Engine = "firestore" }, true},
		{"cosmos missing fields", func(c *Config) { c.Metadata.Engine = "cosmos" }, true},
		{"sheets missing id", func(c *Config) { c.Metadata.Engine = "sheets" }, true},
		{"unknown engine", func(c *Config) { c.Metadata.Engine = "mongo" }, true},
		{"space too large", func(c *Config) { c.Allocator.SpaceSize = 1000 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("allocator:\n  space_size: 50\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Allocator.SpaceSize != 50 {
		t.Errorf("SpaceSize = %d, want 50", cfg.Allocator.SpaceSize)
	}
	if cfg.Allocator.MaxAttempts != 10 {
		t.Errorf("MaxAttempts = %d, want 10", cfg.Allocator.MaxAttempts)
	}
}
