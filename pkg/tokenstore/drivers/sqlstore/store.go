// Package sqlstore keeps tokens in a relational table, created on first use.
//
// Supported dialects are SQLite (modernc.org/sqlite, driver name "sqlite")
// and PostgreSQL (pgx stdlib, driver name "pgx"). The table layout is
//
//	scope      text      not null, unique
//	token      text      not null
//	updated_at timestamp not null
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "fmrest_session_tokens"

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

var (
	ErrInvalidTable   = errors.New("sqlstore: invalid table name")
	ErrUnknownDialect = errors.New("sqlstore: unknown dialect")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// created remembers which (db, table) pairs have already been ensured. Table
// creation for every Store in the process is serialized by createMu.
var (
	createMu sync.Mutex
	created  = make(map[tableRef]bool)
)

type tableRef struct {
	db    *sql.DB
	table string
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	owned   bool
	q       queries
}

type Option func(*Store)

// WithTable overrides DefaultTable.
func WithTable(name string) Option {
	return func(s *Store) { s.table = name }
}

// New wraps an open database handle. The caller keeps ownership of db.
func New(db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	s := &Store{db: db, dialect: dialect, table: DefaultTable}
	for _, opt := range opts {
		opt(s)
	}

	if !identRe.MatchString(s.table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, s.table)
	}

	q, err := buildQueries(dialect, s.table)
	if err != nil {
		return nil, err
	}
	s.q = q

	return s, nil
}

// Open connects using the driver that matches dialect. The returned Store
// owns the connection and closes it on Close.
func Open(dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	var driver string
	switch dialect {
	case SQLite:
		driver = "sqlite"
	case Postgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if dialect == SQLite {
		// SQLite allows one writer; a single connection avoids SQLITE_BUSY
		// and keeps ":memory:" databases coherent.
		db.SetMaxOpenConns(1)
	}

	s, err := New(db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}

	createMu.Lock()
	delete(created, tableRef{s.db, s.table})
	createMu.Unlock()

	return s.db.Close()
}

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) ensureTable(ctx context.Context) error {
	ref := tableRef{s.db, s.table}

	createMu.Lock()
	defer createMu.Unlock()

	if created[ref] {
		return nil
	}

	for _, stmt := range s.q.create {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	created[ref] = true
	return nil
}

func (s *Store) Load(ctx context.Context, key string) (string, bool, error) {
	if err := s.ensureTable(ctx); err != nil {
		return "", false, err
	}

	var token string
	err := s.db.QueryRowContext(ctx, s.q.load, key).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

func (s *Store) Store(ctx context.Context, key, token string) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.q.upsert, key, token, time.Now().UTC())
	return err
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.ensureTable(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.q.delete, key)
	return err
}
