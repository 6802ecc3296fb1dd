package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"airwatch/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/airwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			callsign TEXT NOT NULL,
			region TEXT NOT NULL,
			severity TEXT NOT NULL,
			anomalies_json JSONB NOT NULL,
			alert_ts BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS region_metrics (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			region TEXT NOT NULL,
			total_flights INTEGER NOT NULL,
			normal_flights INTEGER NOT NULL,
			anomaly_flights INTEGER NOT NULL,
			normal_percent INTEGER NOT NULL,
			active_alerts INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_region_metrics_region ON region_metrics(region)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveAlerts(ctx context.Context, alerts []model.Alert) error {
	if s.db == nil || len(alerts) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO alerts (ts, callsign, region, severity, anomalies_json, alert_ts)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, a := range alerts {
		var alertTS any
		if a.Timestamp != nil {
			alertTS = *a.Timestamp
		}
		if _, err := stmt.ExecContext(ctx,
			nowUTC(),
			a.Callsign,
			a.Region,
			a.Severity,
			encodeJSON(a.Anomalies),
			alertTS,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *postgresStore) SaveMetrics(ctx context.Context, region string, metrics model.RegionMetrics) error {
	if s.db == nil || region == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO region_metrics (ts, region, total_flights, normal_flights, anomaly_flights, normal_percent, active_alerts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		nowUTC(),
		region,
		metrics.TotalFlights,
		metrics.NormalFlights,
		metrics.AnomalyFlights,
		metrics.NormalPercent,
		metrics.ActiveAlerts,
	)
	return err
}
