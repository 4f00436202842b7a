package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beezwax/fmrest-go/pkg/cryptox"
	"github.com/beezwax/fmrest-go/pkg/tokenstore"
	"github.com/beezwax/fmrest-go/pkg/tokenstore/drivers/redisstore"
	"github.com/beezwax/fmrest-go/pkg/tokenstore/drivers/sqlstore"
)

// Token store kinds accepted in token_store.kind / FMREST_TOKEN_STORE.
const (
	StoreMemory   = "memory"
	StoreNull     = "null"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

type StoreConfig struct {
	Kind string `yaml:"kind"`
	// DSN is the file path (file, sqlite), redis:// URL or postgres
	// connection string, depending on Kind.
	DSN    string        `yaml:"dsn,omitempty"`
	Table  string        `yaml:"table,omitempty"`  // sqlite, postgres
	Prefix string        `yaml:"prefix,omitempty"` // redis key prefix, file namespace
	TTL    time.Duration `yaml:"ttl,omitempty"`    // redis, file

	// KeyFile holds key material used to encrypt a file store at rest.
	KeyFile string `yaml:"key_file,omitempty"`
}

// DefaultStoreDir is where file and sqlite stores live when no DSN is set.
func DefaultStoreDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fmrest"), nil
}

// OpenStore builds the configured token store. The returned close function
// releases any connection the store holds.
func OpenStore(ctx context.Context, cfg StoreConfig) (tokenstore.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case "", StoreMemory:
		return tokenstore.NewMemory(), noop, nil

	case StoreNull:
		return tokenstore.Null{}, noop, nil

	case StoreFile:
		path, err := storePath(cfg.DSN, "tokens.json")
		if err != nil {
			return nil, nil, err
		}
		var opts []tokenstore.KVOption
		if cfg.Prefix != "" {
			opts = append(opts, tokenstore.WithNamespace(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			opts = append(opts, tokenstore.WithTTL(cfg.TTL))
		}
		var backend tokenstore.Backend = tokenstore.NewFileBackend(path)
		if cfg.KeyFile != "" {
			sealer, err := cryptox.LoadSealer(cfg.KeyFile)
			if err != nil {
				return nil, nil, err
			}
			backend = tokenstore.NewSealedBackend(backend, sealer)
		}
		return tokenstore.NewKV(backend, opts...), noop, nil

	case StoreRedis:
		if cfg.DSN == "" {
			return nil, nil, fmt.Errorf("token store %q requires a dsn", cfg.Kind)
		}
		var opts []redisstore.Option
		if cfg.Prefix != "" {
			opts = append(opts, redisstore.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			opts = append(opts, redisstore.WithTTL(cfg.TTL))
		}
		s, err := redisstore.Open(ctx, cfg.DSN, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return s, s.Close, nil

	case StoreSQLite:
		path, err := storePath(cfg.DSN, "tokens.db")
		if err != nil {
			return nil, nil, err
		}
		return openSQL(sqlstore.SQLite, path, cfg.Table)

	case StorePostgres:
		if cfg.DSN == "" {
			return nil, nil, fmt.Errorf("token store %q requires a dsn", cfg.Kind)
		}
		return openSQL(sqlstore.Postgres, cfg.DSN, cfg.Table)

	default:
		return nil, nil, fmt.Errorf("unknown token store %q", cfg.Kind)
	}
}

func openSQL(dialect sqlstore.Dialect, dsn, table string) (tokenstore.Store, func() error, error) {
	var opts []sqlstore.Option
	if table != "" {
		opts = append(opts, sqlstore.WithTable(table))
	}

	s, err := sqlstore.Open(dialect, dsn, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s token store: %w", dialect, err)
	}
	return s, s.Close, nil
}

// storePath returns dsn, or name inside DefaultStoreDir when dsn is empty.
// The parent directory is created.
func storePath(dsn, name string) (string, error) {
	path := dsn
	if path == "" {
		dir, err := DefaultStoreDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(dir, name)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create store directory: %w", err)
	}
	return path, nil
}
