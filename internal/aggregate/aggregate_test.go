package aggregate

import (
	"testing"

	"airwatch/internal/classify"
	"airwatch/internal/model"
)

func fp(v float64) *float64 { return &v }

func TestAggregateCounts(t *testing.T) {
	agg := New(classify.Default())
	flights := []model.FlightState{
		{Callsign: "QTR101", BaroAltitude: fp(31000), Velocity: fp(280), VerticalRate: fp(0)},
		{Callsign: "THY4KZ", BaroAltitude: fp(42000), Velocity: fp(250), VerticalRate: fp(0)},
		{Callsign: "DLH88", BaroAltitude: fp(25000), Velocity: fp(600), VerticalRate: fp(2500)},
		{Callsign: "PIA12"}, // all telemetry absent, counts as normal
	}
	alerts := []model.Alert{{Region: "region1"}, {Region: "region2"}}

	m := agg.Aggregate(flights, alerts)
	if m.TotalFlights != 4 {
		t.Errorf("total = %d, want 4", m.TotalFlights)
	}
	if m.NormalFlights != 2 {
		t.Errorf("normal = %d, want 2", m.NormalFlights)
	}
	if m.AnomalyFlights != 2 {
		t.Errorf("anomaly = %d, want 2", m.AnomalyFlights)
	}
	if m.NormalFlights+m.AnomalyFlights != m.TotalFlights {
		t.Errorf("normal+anomaly != total: %+v", m)
	}
	if m.NormalPercent != 50 {
		t.Errorf("percent = %d, want 50", m.NormalPercent)
	}
	if m.ActiveAlerts != 2 {
		t.Errorf("alerts = %d, want 2", m.ActiveAlerts)
	}
}

func TestAggregateEmptySet(t *testing.T) {
	agg := New(classify.Default())
	m := agg.Aggregate(nil, nil)
	if m.TotalFlights != 0 || m.NormalFlights != 0 || m.AnomalyFlights != 0 {
		t.Fatalf("empty set not all zero: %+v", m)
	}
	if m.NormalPercent != 0 {
		t.Fatalf("empty set percent = %d, want 0 (no divide by zero)", m.NormalPercent)
	}
}

func TestAggregatePercentRounds(t *testing.T) {
	agg := New(classify.Default())
	flights := []model.FlightState{
		{BaroAltitude: fp(30000), Velocity: fp(280)},
		{BaroAltitude: fp(30000), Velocity: fp(280)},
		{BaroAltitude: fp(42000), Velocity: fp(280)},
	}
	m := agg.Aggregate(flights, nil)
	// 2/3 rounds to 67, not truncates to 66.
	if m.NormalPercent != 67 {
		t.Fatalf("percent = %d, want 67", m.NormalPercent)
	}
}
