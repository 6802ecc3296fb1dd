// Package feed subscribes to alert snapshot documents pushed over Kafka
// by an operations pipeline. Each message carries a full snapshot that
// replaces the in-memory alert list, the same way a poll of the backend
// would. The feed is disabled by default.
package feed

import (
	"context"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"airwatch/internal/alerts"
	"airwatch/internal/config"
	"airwatch/internal/model"
)

type snapshotDoc struct {
	Alerts []model.Alert `json:"alerts"`
}

func StartKafka(ctx context.Context, cfg *config.Manager, store *alerts.Store, logger *slog.Logger) {
	current := cfg.Get().Feed.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka alert feed disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka alert feed enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			var doc snapshotDoc
			if err := json.Unmarshal(m.Value, &doc); err != nil {
				if logger != nil {
					logger.Warn("kafka decode error", "err", err)
				}
				continue
			}
			store.Replace(doc.Alerts)
			if logger != nil {
				logger.Debug("alert snapshot applied from feed", "alerts", len(doc.Alerts))
			}
		}
	}()
}
