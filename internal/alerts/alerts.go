package alerts

import (
	"strings"

	"airwatch/internal/model"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Tier collapses a raw severity onto the two display tiers. Only the
// literal "critical" (any casing) is distinguished; everything else,
// including an absent severity, is the warning tier.
func Tier(severity string) string {
	if strings.EqualFold(strings.TrimSpace(severity), SeverityCritical) {
		return SeverityCritical
	}
	return SeverityWarning
}

// Normalize coerces a server-pushed alert record for display and counting.
// The anomaly list keeps its full length and order; trimming for display
// is the consumer's call, see TruncateReasons.
func Normalize(raw model.Alert) model.Alert {
	out := raw
	out.Callsign = strings.TrimSpace(raw.Callsign)
	out.Severity = Tier(raw.Severity)
	if len(raw.Anomalies) > 0 {
		cleaned := make([]string, 0, len(raw.Anomalies))
		for _, a := range raw.Anomalies {
			cleaned = append(cleaned, cleanReason(a))
		}
		out.Anomalies = cleaned
	}
	return out
}

// cleanReason strips the redundant "anomaly" suffix some feeds attach.
func cleanReason(reason string) string {
	r := strings.TrimSpace(reason)
	r = strings.TrimSuffix(r, " anomaly")
	r = strings.TrimSuffix(r, " Anomaly")
	r = strings.TrimSuffix(r, "Anomaly")
	return strings.TrimSpace(r)
}

// TruncateReasons returns the first max reasons plus the count of those cut
// off. The input is never mutated, so truncation stays a presentation
// decision layered over the full ordered list.
func TruncateReasons(reasons []string, max int) ([]string, int) {
	if max <= 0 || len(reasons) <= max {
		return reasons, 0
	}
	return reasons[:max], len(reasons) - max
}
