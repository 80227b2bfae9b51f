package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fsec/internal/storage"
)

var ErrUnknownBackend = errors.New("unknown registry backend")

type Backend string

const (
	BackendJSON     Backend = "json"
	BackendYAML     Backend = "yaml"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case BackendJSON, BackendYAML, BackendSQLite, BackendPostgres, BackendRedis:
		return b, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

type Config struct {
	Backend  string
	Path     string
	DSN      string
	RedisURL string
}

// Open builds the store cfg names. The returned store is empty until Load.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (Store, error) {
	backend, err := ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	switch backend {
	case BackendJSON:
		return NewFileStore(cfg.Path, FormatJSON, logger), nil
	case BackendYAML:
		return NewFileStore(cfg.Path, FormatYAML, logger), nil
	case BackendSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Path
		}
		return OpenSQLStore(ctx, storage.SQLite, dsn, logger)
	case BackendPostgres:
		return OpenSQLStore(ctx, storage.Postgres, cfg.DSN, logger)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.RedisURL, logger)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
}
