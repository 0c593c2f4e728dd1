package entities

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/mongopulse/anomaly-engine/internal/models"
)

// Error categories assigned by the classification rules.
const (
	ErrorTypeAuthentication    = "Authentication"
	ErrorTypeConnectionRefused = "ConnectionRefused"
	ErrorTypeSlowQuery         = "SlowQuery"
	ErrorTypeIndexBuildFailure = "IndexBuildFailure"
	ErrorTypeTimeout           = "Timeout"
)

// ipPattern matches IPv4 dotted quads, optionally with a :port suffix.
var ipPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d+)?\b`)

type classificationRule struct {
	errorType string
	matches   func(msg, blob string) bool
}

// classificationRules are evaluated in order against the lower-cased message
// and blob; the first match wins. The order is mutually exclusive and
// load-bearing: Authentication outranks ConnectionRefused, so a record
// mentioning both classifies as Authentication.
var classificationRules = []classificationRule{
	{ErrorTypeAuthentication, func(msg, blob string) bool {
		return strings.Contains(msg, "auth") ||
			strings.Contains(blob, "authentication") ||
			(strings.Contains(msg, "failed") && strings.Contains(blob, "principal"))
	}},
	{ErrorTypeConnectionRefused, func(msg, blob string) bool {
		return strings.Contains(msg, "refused") || strings.Contains(blob, "connection refused")
	}},
	{ErrorTypeSlowQuery, func(msg, blob string) bool {
		return strings.Contains(msg, "slow") || strings.Contains(blob, "slow query")
	}},
	{ErrorTypeIndexBuildFailure, func(msg, blob string) bool {
		return strings.Contains(msg, "index") &&
			(strings.Contains(blob, "fail") || strings.Contains(msg, "build"))
	}},
	{ErrorTypeTimeout, func(_, blob string) bool {
		return strings.Contains(blob, "timeout")
	}},
}

// Classify returns the first matching error category for a message and its
// surrounding blob text, or false when no rule matches. Inputs are matched
// case-insensitively.
func Classify(msg, blob string) (string, bool) {
	msg = strings.ToLower(msg)
	blob = strings.ToLower(blob)
	for _, rule := range classificationRules {
		if rule.matches(msg, blob) {
			return rule.errorType, true
		}
	}
	return "", false
}

// Extractor pulls IP addresses, an inferred error category, and (when the
// capability is available) named entities out of a log record. Extraction is
// total: it never fails, it only degrades.
type Extractor struct {
	ner    Capability
	logger *slog.Logger
}

// NewExtractor constructs an entity extractor. A nil Capability disables NER
// enrichment; regex and heuristic extraction still run.
func NewExtractor(ner Capability, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ner: ner, logger: logger}
}

// Extract analyses one record. The scanned text is the message followed by
// the serialized form of the whole record, so entities buried in non-message
// fields (remote addresses, principal names) are still visible.
func (e *Extractor) Extract(ctx context.Context, record models.LogRecord) models.Entities {
	result := models.Entities{
		IPs:      []string{},
		Entities: map[string][]string{},
	}

	blob := combinedText(record)

	seen := make(map[string]struct{})
	for _, ip := range ipPattern.FindAllString(blob, -1) {
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		result.IPs = append(result.IPs, ip)
	}
	sort.Strings(result.IPs)

	if e.ner != nil {
		groups, err := e.ner.Annotate(ctx, blob)
		if err != nil {
			e.logger.Debug("ner annotation unavailable", slog.Any("error", err))
		} else {
			for category, surfaces := range groups {
				result.Entities[category] = dedupe(surfaces)
			}
		}
	}

	if errorType, ok := Classify(record.Message(), blob); ok {
		result.ErrorType = &errorType
	}

	return result
}

func combinedText(record models.LogRecord) string {
	serialized, err := json.Marshal(record)
	if err != nil {
		serialized = nil
	}
	return record.Message() + " " + string(serialized)
}

// dedupe removes repeated surface strings while preserving first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
