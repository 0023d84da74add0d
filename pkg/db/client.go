// Package db opens the relational connection behind the gorm-backed store.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

// Client owns a pooled gorm connection for one driver.
type Client struct {
	conn   *gorm.DB
	driver string
}

// New opens and pings a connection for cfg.Driver, either postgres or sqlite.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverPostgres:
		dialector = postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported relational driver %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	tunePool(pool, cfg)

	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "driver", cfg.Driver), "database connected")
	}
	return &Client{conn: conn, driver: cfg.Driver}, nil
}

func tunePool(pool *sql.DB, cfg config.DBConfig) {
	if cfg.Driver == config.DriverSQLite {
		// one connection keeps a :memory: database alive and serializes writers
		pool.SetMaxOpenConns(1)
		pool.SetMaxIdleConns(1)
		return
	}
	if cfg.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

func (c *Client) DB() *gorm.DB { return c.conn }

func (c *Client) Driver() string { return c.driver }

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction on conn. An error or panic from fn rolls
// back; a panic is re-raised after the rollback.
func WithTx(ctx context.Context, conn *gorm.DB, fn func(tx *gorm.DB) error) error {
	return conn.WithContext(ctx).Transaction(fn)
}

func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return WithTx(ctx, c.conn, fn)
}
