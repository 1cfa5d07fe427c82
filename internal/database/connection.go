package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kadirbelkuyu/dbclone/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

const (
	maxOpenConns    = 5
	connMaxIdleTime = 5 * time.Minute
)

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx the migrators use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is one connection taken out of the pool. Settings such as
// MySQL FOREIGN_KEY_CHECKS only hold on the session that set them.
type Session interface {
	Querier
	Close() error
}

type Options struct {
	Category string
	// Driver selects the PostgreSQL driver: "postgres" (lib/pq) or "pgx".
	Driver string
	// RuntimeParams are forwarded as PostgreSQL session settings.
	RuntimeParams map[string]string
}

type Connection struct {
	DB       *sql.DB
	Config   config.DatabaseConfig
	Category string
}

func NewConnection(ctx context.Context, cfg config.DatabaseConfig, opts Options) (*Connection, error) {
	driverName, dsn, err := dataSource(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database connection: %w", ErrConnection, err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: unable to reach %s: %w", ErrConnection, cfg.Address(), err)
	}

	return &Connection{
		DB:       db,
		Config:   cfg,
		Category: opts.Category,
	}, nil
}

func dataSource(cfg config.DatabaseConfig, opts Options) (string, string, error) {
	switch opts.Category {
	case config.CategoryPostgres:
		driver := opts.Driver
		if driver == "" {
			driver = config.DriverPQ
		}
		if driver != config.DriverPQ && driver != config.DriverPGX {
			return "", "", fmt.Errorf("unsupported postgres driver: %s", driver)
		}
		return driver, cfg.PostgresURL(opts.RuntimeParams), nil
	case config.CategoryMySQL:
		return "mysql", cfg.MySQLDSN(), nil
	default:
		return "", "", fmt.Errorf("unsupported database type for SQL connection: %s", opts.Category)
	}
}

func (c *Connection) Close() error {
	return c.DB.Close()
}

// Session pins a single pooled connection until it is closed.
func (c *Connection) Session(ctx context.Context) (Session, error) {
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to acquire connection to %s: %w", ErrConnection, c.Config.Address(), err)
	}
	return conn, nil
}

func (c *Connection) GetDatabaseName() string {
	return c.Config.Database
}

// Schema is the configured namespace; empty on MySQL.
func (c *Connection) Schema() string {
	return c.Config.Schema
}
