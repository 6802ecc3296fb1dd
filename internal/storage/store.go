// Package storage persists alert snapshots and per-region metrics to a
// relational database. It is optional; a nil Store disables persistence.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"airwatch/internal/config"
	"airwatch/internal/model"
)

type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveAlerts(ctx context.Context, alerts []model.Alert) error
	SaveMetrics(ctx context.Context, region string, metrics model.RegionMetrics) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func encodeJSON(value any) string {
	data, _ := json.Marshal(value)
	return string(data)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
