// Package gorm provides GORM-based record storage for orthomate.
package gorm

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers "sqlite3" (cgo)
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // registers "sqlite" (pure Go)

	"github.com/thebtf/orthomate/internal/config"
)

// Dialects supported by NewStore.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Store represents the GORM database connection.
type Store struct {
	DB      *gorm.DB
	sqlDB   *sql.DB
	dialect string
}

// Config holds database configuration.
type Config struct {
	Dialect  string          // DialectSQLite or DialectPostgres
	Path     string          // SQLite database file
	Driver   string          // SQLite database/sql driver: "sqlite3" (cgo) or "sqlite" (pure Go)
	DSN      string          // PostgreSQL connection string
	MaxConns int             // Maximum number of open connections (default: 4)
	LogLevel logger.LogLevel // GORM log level (logger.Silent for production)
}

// ConfigFromStore maps the worker's store settings onto a GORM config.
func ConfigFromStore(sc config.StoreConfig, level logger.LogLevel) Config {
	cfg := Config{
		Dialect:  DialectSQLite,
		Path:     sc.SQLitePath,
		Driver:   sc.SQLiteDriver,
		MaxConns: sc.MaxConns,
		LogLevel: level,
	}
	if sc.Backend == config.BackendPostgres {
		cfg.Dialect = DialectPostgres
		cfg.DSN = sc.PostgresDSN
	}
	return cfg
}

// NewStore opens the database, runs migrations and, for SQLite, enables WAL.
func NewStore(cfg Config) (*Store, error) {
	gcfg := &gorm.Config{
		Logger:      logger.Default.LogMode(cfg.LogLevel),
		PrepareStmt: true,
	}

	var (
		db    *gorm.DB
		sqlDB *sql.DB
		err   error
	)

	switch cfg.Dialect {
	case DialectPostgres:
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sqlDB, err = db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
	case DialectSQLite, "":
		cfg.Dialect = DialectSQLite
		sqlDB, err = sql.Open(sqliteDriver(cfg.Driver), sqliteDSN(cfg.Driver, cfg.Path))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db, err = gorm.Open(sqlite.Dialector{Conn: sqlDB}, gcfg)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("open gorm: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown dialect %q", cfg.Dialect)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{DB: db, sqlDB: sqlDB, dialect: cfg.Dialect}

	if err := runMigrations(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if cfg.Dialect == DialectSQLite {
		// Pragmas go through the raw handle to stay outside GORM transactions.
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
		} {
			if _, err := sqlDB.Exec(pragma); err != nil {
				_ = sqlDB.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Dialect reports which database the store talks to.
func (s *Store) Dialect() string {
	return s.dialect
}

func sqliteDriver(driver string) string {
	if driver == config.DriverPureGo {
		return config.DriverPureGo
	}
	return config.DriverCGO
}

// sqliteDSN sets per-connection pragmas using each driver's DSN syntax.
func sqliteDSN(driver, path string) string {
	if driver == config.DriverPureGo {
		return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	return path + "?_foreign_keys=ON&_busy_timeout=5000"
}
