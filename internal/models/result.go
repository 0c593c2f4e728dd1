package models

// Feature vector slot positions. The order is fixed: the anomaly model is
// fitted and scored against vectors with identical slot semantics.
const (
	FeatureSeverityCode = iota
	FeatureDurationNorm
	FeatureConnectionIDNorm
	FeatureHourSin
	FeatureHourCos

	FeatureCount = 5
)

// FeatureVector is the fixed 5-slot numeric encoding of a LogRecord.
type FeatureVector [FeatureCount]float64

// Entities groups everything the entity extractor pulled out of one record.
type Entities struct {
	// IPs holds deduplicated IPv4 addresses (optionally with :port),
	// sorted for stable output.
	IPs []string `json:"ips"`
	// ErrorType is the first matching error category, nil when no rule
	// matched.
	ErrorType *string `json:"error_type"`
	// Entities maps NER categories to surface strings in first-seen order.
	// Empty (never nil) when the NER capability is unavailable.
	Entities map[string][]string `json:"entities"`
}

// AnalysisResult is the enriched output produced for each consumed record.
// It is assembled once, marshalled to the sink payload, and discarded.
type AnalysisResult struct {
	Log          LogRecord `json:"log"`
	IsAnomaly    bool      `json:"is_anomaly"`
	AnomalyScore float64   `json:"anomaly_score"`
	Reason       string    `json:"reason"`
	Entities     Entities  `json:"entities"`
	ModelUsed    bool      `json:"model_used"`
}
