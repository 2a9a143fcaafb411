package database

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/notifications-dashboard-api/pkg/config"
)

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// NewListener returns a LISTEN/NOTIFY connection dedicated to change feeds.
// The listener reconnects on its own; connection events are forwarded to onEvent.
func NewListener(dbCfg config.DatabaseConfig, feedCfg config.FeedConfig, onEvent func(pq.ListenerEventType, error)) *pq.Listener {
	minReconnect := feedCfg.MinReconnectInterval
	if minReconnect <= 0 {
		minReconnect = 10 * time.Second
	}
	maxReconnect := feedCfg.MaxReconnectInterval
	if maxReconnect < minReconnect {
		maxReconnect = minReconnect
	}
	return pq.NewListener(dbCfg.DSN(), minReconnect, maxReconnect, onEvent)
}
