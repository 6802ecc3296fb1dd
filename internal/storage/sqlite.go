package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"airwatch/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:airwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			callsign TEXT NOT NULL,
			region TEXT NOT NULL,
			severity TEXT NOT NULL,
			anomalies_json TEXT NOT NULL,
			alert_ts INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts)`,
		`CREATE TABLE IF NOT EXISTS region_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
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

func (s *sqliteStore) SaveAlerts(ctx context.Context, alerts []model.Alert) error {
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
		VALUES (?, ?, ?, ?, ?, ?)`)
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

func (s *sqliteStore) SaveMetrics(ctx context.Context, region string, metrics model.RegionMetrics) error {
	if s.db == nil || region == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO region_metrics (ts, region, total_flights, normal_flights, anomaly_flights, normal_percent, active_alerts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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
