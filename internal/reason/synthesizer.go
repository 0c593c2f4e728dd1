package reason

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mongopulse/anomaly-engine/internal/models"
)

// NormalExplanation is returned verbatim for every non-anomalous record.
const NormalExplanation = "Normal: Feature values within expected range."

// highDurationMillis is the duration above which a query time is called out
// in the explanation.
const highDurationMillis = 3000

// Synthesizer renders a human-readable explanation for a scoring decision.
// It is stateless and total.
type Synthesizer struct{}

// NewSynthesizer constructs a reason synthesizer.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// Explain describes why a record was (or was not) flagged. For anomalies the
// applicable clauses are joined in a fixed order; when none apply the raw
// score is reported instead.
func (s *Synthesizer) Explain(record models.LogRecord, isAnomaly bool, score float64) string {
	if !isAnomaly {
		return NormalExplanation
	}

	var reasons []string

	switch record.Severity() {
	case "E":
		reasons = append(reasons, "Error severity (E) is rare and increases anomaly score.")
	case "W":
		reasons = append(reasons, "Warning severity (W) is less common than Info.")
	}

	if duration, ok := record.DurationMillis(); ok && duration > highDurationMillis {
		reasons = append(reasons, fmt.Sprintf("High duration (%sms) deviates from typical query times.", formatNumber(duration)))
	}

	msg := strings.ToLower(record.Message())
	if strings.Contains(msg, "fail") || strings.Contains(msg, "refused") {
		reasons = append(reasons, "Failure-related message pattern increases anomaly likelihood.")
	}
	if strings.Contains(msg, "auth") {
		reasons = append(reasons, "Authentication events are monitored for security.")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("Isolation Forest score (%.3f) indicates outlier in feature space.", score))
	}

	return strings.Join(reasons, " | ")
}

// formatNumber renders durations in plain decimal: no trailing ".0" for
// integral values and no exponent form for large ones.
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
