// internal/common/database/postgres.go
package database

import (
	"context"
	"fmt"
	"time"

	"notification-pipeline/internal/common/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 5 * time.Minute
)

// PostgresClient holds the notification store's connection pool.
type PostgresClient struct {
	DB *sqlx.DB
}

// NewPostgres opens a pool sized from cfg. Nothing is dialed until the first query or Ping,
// so startup can retry Ping without reopening.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("postgres host and database are required")
	}

	db, err := sqlx.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	maxIdle := cfg.MaxIdle
	if cfg.MaxConnections > 0 && maxIdle > cfg.MaxConnections {
		maxIdle = cfg.MaxConnections
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
