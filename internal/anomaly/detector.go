package anomaly

import (
	"log/slog"

	"github.com/mongopulse/anomaly-engine/internal/models"
)

// Window defaults: capacity bounds detector memory, trainThreshold is the
// sample count at which the forest is fitted.
const (
	DefaultWindowCapacity = 500
	DefaultTrainThreshold = 50
)

// Detector owns the bounded sample window and the (at most one) fitted
// isolation forest. It is deliberately unsynchronised: the consumer loop is
// the single writer, processing one message at a time. Running multiple
// consumers against one Detector requires a mutex around Observe/Score or
// one Detector per consumer.
type Detector struct {
	window    []models.FeatureVector
	capacity  int
	threshold int
	forest    *IsolationForest
	logger    *slog.Logger
}

// NewDetector constructs an untrained detector. Non-positive capacity or
// threshold fall back to the defaults; the threshold is clamped to the
// capacity so training can actually trigger.
func NewDetector(capacity, trainThreshold int, logger *slog.Logger) *Detector {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	if trainThreshold <= 0 {
		trainThreshold = DefaultTrainThreshold
	}
	if trainThreshold > capacity {
		trainThreshold = capacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		window:    make([]models.FeatureVector, 0, capacity),
		capacity:  capacity,
		threshold: trainThreshold,
		logger:    logger,
	}
}

// Observe appends a vector to the window, evicting the oldest entry when the
// window is full. The first time the window reaches the training threshold
// the forest is fitted from a snapshot of the window; the model is never
// refitted afterwards. Observe never fails.
func (d *Detector) Observe(v models.FeatureVector) {
	d.window = append(d.window, v)
	if len(d.window) > d.capacity {
		copy(d.window, d.window[1:])
		d.window = d.window[:d.capacity]
	}

	if d.forest == nil && len(d.window) >= d.threshold {
		forest := NewIsolationForest()
		forest.Fit(d.snapshot())
		d.forest = forest
		d.logger.Info("isolation forest fitted", slog.Int("samples", len(d.window)))
	}
}

// Score evaluates a vector against the fitted forest. Before training it
// always returns (false, 0).
func (d *Detector) Score(v models.FeatureVector) (bool, float64) {
	if d.forest == nil {
		return false, 0
	}
	x := v[:]
	return d.forest.Predict(x), d.forest.Decision(x)
}

// Trained reports whether the forest has been fitted.
func (d *Detector) Trained() bool {
	return d.forest != nil
}

// WindowSize returns the current number of buffered samples.
func (d *Detector) WindowSize() int {
	return len(d.window)
}

func (d *Detector) snapshot() [][]float64 {
	data := make([][]float64, len(d.window))
	for i := range d.window {
		row := make([]float64, models.FeatureCount)
		copy(row, d.window[i][:])
		data[i] = row
	}
	return data
}
