package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/tradebook/internal/client/migrations"
	"github.com/dmitrijs2005/tradebook/internal/dbx"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Store is an opened, migrated state database.
type Store struct {
	*SQLRepository
	DB      *sql.DB
	Dialect dbx.Dialect
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// ParseDSN picks the driver and dialect for a state DSN. postgres:// and
// postgresql:// URLs go to pgx; anything else (a bare path, file: or
// sqlite:// URL, or ":memory:") is opened with SQLite.
func ParseDSN(dsn string) (driver, source string, dialect dbx.Dialect, err error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", "", "", fmt.Errorf("empty state dsn")
	}

	if !strings.Contains(dsn, "://") {
		return "sqlite", dsn, dbx.DialectSQLite, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid state dsn: %w", err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return "pgx", dsn, dbx.DialectPostgres, nil
	case "sqlite", "sqlite3", "file":
		return "sqlite", strings.TrimPrefix(dsn, parsed.Scheme+"://"), dbx.DialectSQLite, nil
	default:
		return "", "", "", fmt.Errorf("unsupported state dsn scheme: %s", parsed.Scheme)
	}
}

// Open connects to the state database and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, dialect, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if dialect == dbx.DialectSQLite {
		// a single connection keeps ":memory:" databases alive across calls
		db.SetMaxOpenConns(1)
	}

	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{SQLRepository: NewSQLRepository(db, dialect), DB: db, Dialect: dialect}, nil
}

// RunMigrations applies the embedded migrations for the dialect.
func RunMigrations(ctx context.Context, db *sql.DB, dialect dbx.Dialect) error {
	dir := "sqlite"
	gd := goose.DialectSQLite3
	if dialect == dbx.DialectPostgres {
		dir = "postgres"
		gd = goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrations.FS, dir)
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(gd, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
