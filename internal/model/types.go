package model

import (
	"math"
	"strconv"
	"strings"
)

// FlightState is one aircraft's instantaneous telemetry as delivered by the
// backend snapshot. Numeric fields are pointers because the feed routinely
// omits them; an absent value is not zero and must never be coerced to zero.
type FlightState struct {
	ICAO24        string   `json:"icao24"`
	Callsign      string   `json:"callsign"`
	OriginCountry string   `json:"origin_country,omitempty"`
	BaroAltitude  *float64 `json:"baro_altitude"`
	Velocity      *float64 `json:"velocity"`
	TrueTrack     *float64 `json:"true_track"`
	VerticalRate  *float64 `json:"vertical_rate"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
}

// DisplayCallsign returns the trimmed callsign, or "N/A" when blank.
func (f FlightState) DisplayCallsign() string {
	cs := strings.TrimSpace(f.Callsign)
	if cs == "" {
		return "N/A"
	}
	return cs
}

type AltitudeBand string

const (
	AltitudeUnknown    AltitudeBand = "UNKNOWN"
	AltitudeLow        AltitudeBand = "LOW"
	AltitudeTransition AltitudeBand = "TRANSITION"
	AltitudeCruise     AltitudeBand = "CRUISE"
	AltitudeHigh       AltitudeBand = "HIGH"
	AltitudeVeryHigh   AltitudeBand = "VERY_HIGH"
)

type SpeedBand string

const (
	SpeedUnknown  SpeedBand = "UNKNOWN"
	SpeedSlow     SpeedBand = "SLOW"
	SpeedNormal   SpeedBand = "NORMAL"
	SpeedFast     SpeedBand = "FAST"
	SpeedVeryFast SpeedBand = "VERY_FAST"
)

type VerticalTrend string

const (
	TrendLevel   VerticalTrend = "LEVEL"
	TrendClimb   VerticalTrend = "CLIMB"
	TrendDescend VerticalTrend = "DESCEND"
)

// Anomaly is an operational-triage tag, independent of the display bands.
type Anomaly string

const (
	AnomalyAltitude     Anomaly = "Altitude"
	AnomalySpeed        Anomaly = "Speed"
	AnomalyVerticalRate Anomaly = "Vertical Rate"
	// AnomalyNormal is the sentinel an empty tag set is reported as: the
	// classification contract always carries at least one entry.
	AnomalyNormal Anomaly = "Normal"
)

// Classification is derived from a FlightState, never stored independently.
type Classification struct {
	AltitudeBand  AltitudeBand  `json:"altitude_band"`
	SpeedBand     SpeedBand     `json:"speed_band"`
	VerticalTrend VerticalTrend `json:"vertical_trend"`
	Anomalies     []Anomaly     `json:"anomalies"`
}

// IsNormal reports whether the anomaly set carries no real tags. Both the
// {Normal} sentinel and an empty set count as normal.
func (c Classification) IsNormal() bool {
	if len(c.Anomalies) == 0 {
		return true
	}
	return len(c.Anomalies) == 1 && c.Anomalies[0] == AnomalyNormal
}

// Alert is a server-raised event with its own identity, unrelated to any
// per-aircraft classification.
type Alert struct {
	Callsign  string   `json:"callsign,omitempty"`
	Region    string   `json:"region"`
	Anomalies []string `json:"anomalies"`
	Severity  string   `json:"severity"`
	Timestamp *int64   `json:"timestamp,omitempty"`
}

// RegionMetrics is the aggregate over the current (region, airline filter)
// selection plus the active alert snapshot.
type RegionMetrics struct {
	TotalFlights   int `json:"total_flights"`
	NormalFlights  int `json:"normal_flights"`
	AnomalyFlights int `json:"anomaly_flights"`
	NormalPercent  int `json:"normal_percent"`
	ActiveAlerts   int `json:"active_alerts"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one entry in the traveler chat transcript.
type Turn struct {
	Role      Role   `json:"role"`
	Callsign  string `json:"callsign,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	NeedOps   bool   `json:"need_ops,omitempty"`

	// OpsSummary carries the operations analysis attached to an agent
	// turn when the backend escalated the question.
	OpsSummary string `json:"ops_summary,omitempty"`
}

// FormatValue renders an optional telemetry value for display, truncated
// toward zero, "N/A" when absent.
func FormatValue(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatInt(int64(math.Trunc(*v)), 10)
}
