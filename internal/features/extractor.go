package features

import (
	"math"
	"regexp"
	"strconv"

	"github.com/mongopulse/anomaly-engine/internal/models"
)

const (
	// durationCeiling caps duration normalisation; anything slower than
	// 10s saturates at 1.0.
	durationCeiling = 10000.0
	// defaultHour is assumed when the timestamp carries no parsable hour.
	defaultHour = 12
)

var severityCodes = map[string]float64{"I": 0, "W": 1, "E": 2}

// hourPattern matches the two-digit hour of an ISO-8601 instant, e.g. the
// "14" in "2024-05-01T14:03:09Z".
var hourPattern = regexp.MustCompile(`T(\d{2}):`)

// Extractor encodes log records into fixed feature vectors. It is stateless
// and never fails: missing or malformed fields fall back to defaults.
type Extractor struct{}

// NewExtractor constructs a feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract derives the 5-slot feature vector for a record.
func (e *Extractor) Extract(record models.LogRecord) models.FeatureVector {
	var v models.FeatureVector

	v[models.FeatureSeverityCode] = severityCodes[record.Severity()]

	if duration, ok := record.DurationMillis(); ok && duration > 0 {
		v[models.FeatureDurationNorm] = math.Min(1.0, duration/durationCeiling)
	}

	if connID, ok := record.ConnectionID(); ok && connID != 0 {
		m := math.Mod(connID, 1000)
		if m < 0 {
			m += 1000
		}
		v[models.FeatureConnectionIDNorm] = m / 1000.0
	}

	hour := hourOf(record.TimestampText())
	v[models.FeatureHourSin] = math.Sin(2 * math.Pi * float64(hour) / 24)
	v[models.FeatureHourCos] = math.Cos(2 * math.Pi * float64(hour) / 24)

	return v
}

// hourOf pulls the hour out of the timestamp's string form. The cyclical
// sin/cos encoding keeps hour 23 and hour 0 numerically adjacent.
func hourOf(timestamp string) int {
	if timestamp == "" {
		return defaultHour
	}
	m := hourPattern.FindStringSubmatch(timestamp)
	if m == nil {
		return defaultHour
	}
	hour, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultHour
	}
	return hour
}
