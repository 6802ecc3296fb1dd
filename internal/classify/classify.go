package classify

import (
	"math"

	"airwatch/internal/config"
	"airwatch/internal/model"
)

// Classifier maps a single aircraft's telemetry to display bands and to a
// list of anomaly tags. All methods are pure; a Classifier is safe for
// concurrent use once built.
type Classifier struct {
	cfg config.ClassifyConfig
}

func New(cfg config.ClassifyConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Default returns a classifier with the stock thresholds.
func Default() *Classifier {
	return New(config.DefaultConfig().Classify)
}

// Classify derives the full classification for one flight. It is total:
// every input, including one with every field absent, yields a result.
func (c *Classifier) Classify(f model.FlightState) model.Classification {
	return model.Classification{
		AltitudeBand:  c.AltitudeBand(f.BaroAltitude),
		SpeedBand:     c.SpeedBand(f.Velocity),
		VerticalTrend: c.VerticalTrend(f.VerticalRate),
		Anomalies:     c.Anomalies(f),
	}
}

// AltitudeBand buckets a barometric altitude in feet. The value is
// truncated toward zero, then walked through the ceilings lowest first;
// bounds are half-open, so a value exactly on a ceiling lands in the band
// above it.
func (c *Classifier) AltitudeBand(alt *float64) model.AltitudeBand {
	if alt == nil {
		return model.AltitudeUnknown
	}
	feet := math.Trunc(*alt)
	bands := c.cfg.Altitude
	switch {
	case feet < bands.LowCeiling:
		return model.AltitudeLow
	case feet < bands.TransitionCeiling:
		return model.AltitudeTransition
	case feet < bands.CruiseCeiling:
		return model.AltitudeCruise
	case feet < bands.HighCeiling:
		return model.AltitudeHigh
	default:
		return model.AltitudeVeryHigh
	}
}

// SpeedBand buckets a ground speed in knots, truncated toward zero.
func (c *Classifier) SpeedBand(vel *float64) model.SpeedBand {
	if vel == nil {
		return model.SpeedUnknown
	}
	kts := math.Trunc(*vel)
	bands := c.cfg.Speed
	switch {
	case kts < bands.SlowCeiling:
		return model.SpeedSlow
	case kts < bands.NormalCeiling:
		return model.SpeedNormal
	case kts < bands.FastCeiling:
		return model.SpeedFast
	default:
		return model.SpeedVeryFast
	}
}

// VerticalTrend labels the vertical rate for display. It uses the trend
// threshold, not the anomaly one.
func (c *Classifier) VerticalTrend(rate *float64) model.VerticalTrend {
	if rate == nil {
		return model.TrendLevel
	}
	v := math.Trunc(*rate)
	switch {
	case v > c.cfg.Trend.Rate:
		return model.TrendClimb
	case v < -c.cfg.Trend.Rate:
		return model.TrendDescend
	default:
		return model.TrendLevel
	}
}

// Anomalies evaluates the three per-field triage rules independently; a
// flight may carry several tags at once. An absent field never fires its
// rule. When nothing fires the set is reported as the {Normal} sentinel so
// the contract always returns at least one entry.
func (c *Classifier) Anomalies(f model.FlightState) []model.Anomaly {
	an := c.cfg.Anomaly
	tags := make([]model.Anomaly, 0, 3)
	if f.BaroAltitude != nil && (*f.BaroAltitude > an.AltitudeHigh || *f.BaroAltitude < an.AltitudeLow) {
		tags = append(tags, model.AnomalyAltitude)
	}
	if f.Velocity != nil && (*f.Velocity > an.SpeedHigh || *f.Velocity < an.SpeedLow) {
		tags = append(tags, model.AnomalySpeed)
	}
	if f.VerticalRate != nil && math.Abs(*f.VerticalRate) > an.VerticalRate {
		tags = append(tags, model.AnomalyVerticalRate)
	}
	if len(tags) == 0 {
		return []model.Anomaly{model.AnomalyNormal}
	}
	return tags
}
