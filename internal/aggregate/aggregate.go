package aggregate

import (
	"math"

	"airwatch/internal/classify"
	"airwatch/internal/model"
)

// Aggregator reduces the classified flight set for the current selection
// plus the active alert snapshot to the dashboard counters.
type Aggregator struct {
	cls *classify.Classifier
}

func New(cls *classify.Classifier) *Aggregator {
	return &Aggregator{cls: cls}
}

// Aggregate computes region metrics. Anomaly flights are total minus
// normal. The alert count is the size of the snapshot as supplied; whether
// that snapshot is region-scoped is the caller's business.
func (a *Aggregator) Aggregate(flights []model.FlightState, alerts []model.Alert) model.RegionMetrics {
	normal := 0
	for _, f := range flights {
		if a.cls.Classify(f).IsNormal() {
			normal++
		}
	}
	total := len(flights)
	percent := 0
	if total > 0 {
		percent = int(math.Round(float64(normal) / float64(total) * 100))
	}
	return model.RegionMetrics{
		TotalFlights:   total,
		NormalFlights:  normal,
		AnomalyFlights: total - normal,
		NormalPercent:  percent,
		ActiveAlerts:   len(alerts),
	}
}
