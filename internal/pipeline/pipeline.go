package pipeline

import (
	"context"
	"log/slog"
	"math"

	"github.com/mongopulse/anomaly-engine/internal/anomaly"
	"github.com/mongopulse/anomaly-engine/internal/entities"
	"github.com/mongopulse/anomaly-engine/internal/features"
	"github.com/mongopulse/anomaly-engine/internal/metrics"
	"github.com/mongopulse/anomaly-engine/internal/models"
	"github.com/mongopulse/anomaly-engine/internal/reason"
)

// Analyzer drives the per-record flow: feature extraction, window update,
// scoring, entity extraction, reason synthesis, result assembly. It inherits
// the detector's single-writer contract: one Analyze call at a time.
type Analyzer struct {
	logger   *slog.Logger
	features *features.Extractor
	detector *anomaly.Detector
	entities *entities.Extractor
	reasons  *reason.Synthesizer
}

// NewAnalyzer constructs the analysis flow around a detector and an entity
// extractor.
func NewAnalyzer(logger *slog.Logger, detector *anomaly.Detector, entityExtractor *entities.Extractor) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		logger:   logger,
		features: features.NewExtractor(),
		detector: detector,
		entities: entityExtractor,
		reasons:  reason.NewSynthesizer(),
	}
}

// Analyze scores and enriches one record. The record's vector joins the
// sample window before scoring, so the training trigger counts this record;
// before the window reaches the training threshold every record scores as
// (false, 0) with model_used=false. Analyze never fails.
func (a *Analyzer) Analyze(ctx context.Context, record models.LogRecord) models.AnalysisResult {
	vector := a.features.Extract(record)

	wasTrained := a.detector.Trained()
	a.detector.Observe(vector)
	if !wasTrained && a.detector.Trained() {
		metrics.SetModelTrained(true)
	}

	isAnomaly, score := a.detector.Score(vector)
	extracted := a.entities.Extract(ctx, record)
	explanation := a.reasons.Explain(record, isAnomaly, score)

	if isAnomaly {
		metrics.ObserveAnomaly()
	}

	return models.AnalysisResult{
		Log:          record,
		IsAnomaly:    isAnomaly,
		AnomalyScore: round4(score),
		Reason:       explanation,
		Entities:     extracted,
		ModelUsed:    a.detector.Trained(),
	}
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
