package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ltcatalog/ltcatalog/internal/config"
)

// Open builds the ProductStore selected by cfg.Engine.
func Open(ctx context.Context, cfg *config.MetadataConfig) (ProductStore, error) {
	switch cfg.Engine {
	case "", "sqlite":
		path := cfg.SQLite.Path
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(ctx, &cfg.Postgres)
	case "dynamodb":
		return NewDynamoDBStore(ctx, &cfg.DynamoDB)
	case "firestore":
		return NewFirestoreStore(ctx, &cfg.Firestore)
	case "cosmos":
		return NewCosmosStore(ctx, &cfg.Cosmos)
	case "sheets":
		return NewSheetsStore(ctx, &cfg.Sheets)
	default:
		return nil, fmt.Errorf("unknown metadata engine %q", cfg.Engine)
	}
}
