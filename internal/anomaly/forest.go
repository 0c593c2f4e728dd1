package anomaly

import (
	"math"
	"math/rand"

	"github.com/montanaflynn/stats"
)

// Isolation forest defaults matching the detector's training contract.
const (
	defaultTrees         = 100
	defaultSampleSize    = 256
	defaultContamination = 0.1
	defaultSeed          = 42
)

// IsolationForest is a batch-fitted outlier ensemble. Scores follow the
// usual decision-function convention: values below zero mark outliers, and
// more negative means more anomalous. The random source is seeded, so a fit
// over the same snapshot always yields the same scorer.
type IsolationForest struct {
	trees         int
	sampleSize    int
	contamination float64
	seed          int64

	roots  []*isoNode
	cNorm  float64
	offset float64
}

type isoNode struct {
	feature int
	split   float64
	left    *isoNode
	right   *isoNode
	size    int
}

// NewIsolationForest constructs an unfitted forest with the default ensemble
// parameters (100 trees, 10% expected outlier fraction, fixed seed).
func NewIsolationForest() *IsolationForest {
	return &IsolationForest{
		trees:         defaultTrees,
		sampleSize:    defaultSampleSize,
		contamination: defaultContamination,
		seed:          defaultSeed,
	}
}

// Fit builds the ensemble from the given sample set and derives the
// contamination offset so that roughly the configured fraction of the
// training data lands below the decision boundary.
func (f *IsolationForest) Fit(data [][]float64) {
	if len(data) == 0 {
		return
	}

	sampleSize := f.sampleSize
	if sampleSize > len(data) {
		sampleSize = len(data)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))
	if heightLimit < 1 {
		heightLimit = 1
	}

	rng := rand.New(rand.NewSource(f.seed))
	roots := make([]*isoNode, 0, f.trees)
	for i := 0; i < f.trees; i++ {
		sample := subsample(rng, data, sampleSize)
		roots = append(roots, buildTree(rng, sample, 0, heightLimit))
	}

	f.roots = roots
	f.cNorm = averagePathLength(sampleSize)

	trainScores := make([]float64, len(data))
	for i, x := range data {
		trainScores[i] = f.scoreSamples(x)
	}
	offset, err := stats.Percentile(trainScores, 100*f.contamination)
	if err != nil {
		// Percentile only fails on empty input; fall back to the
		// midpoint of the score range.
		offset = -0.5
	}
	f.offset = offset
}

// Fitted reports whether Fit has been called with data.
func (f *IsolationForest) Fitted() bool {
	return len(f.roots) > 0
}

// Decision returns the decision-function value for a vector: negative for
// outliers, positive for inliers, relative to the contamination offset.
func (f *IsolationForest) Decision(x []float64) float64 {
	return f.scoreSamples(x) - f.offset
}

// Predict reports whether the vector is an outlier under the fitted model.
func (f *IsolationForest) Predict(x []float64) bool {
	return f.Decision(x) < 0
}

// scoreSamples returns the negated anomaly measure in [-1, 0): values near
// -1 isolate quickly and are the strongest outliers.
func (f *IsolationForest) scoreSamples(x []float64) float64 {
	if !f.Fitted() || f.cNorm == 0 {
		return 0
	}
	total := 0.0
	for _, root := range f.roots {
		total += pathLength(root, x, 0)
	}
	mean := total / float64(len(f.roots))
	return -math.Pow(2, -mean/f.cNorm)
}

func subsample(rng *rand.Rand, data [][]float64, size int) [][]float64 {
	if size >= len(data) {
		return data
	}
	picked := rng.Perm(len(data))[:size]
	sample := make([][]float64, 0, size)
	for _, idx := range picked {
		sample = append(sample, data[idx])
	}
	return sample
}

func buildTree(rng *rand.Rand, sample [][]float64, depth, heightLimit int) *isoNode {
	if depth >= heightLimit || len(sample) <= 1 {
		return &isoNode{size: len(sample)}
	}

	feature, split, ok := pickSplit(rng, sample)
	if !ok {
		// Every remaining point is identical; isolation cannot proceed.
		return &isoNode{size: len(sample)}
	}

	var left, right [][]float64
	for _, x := range sample {
		if x[feature] < split {
			left = append(left, x)
		} else {
			right = append(right, x)
		}
	}

	return &isoNode{
		feature: feature,
		split:   split,
		left:    buildTree(rng, left, depth+1, heightLimit),
		right:   buildTree(rng, right, depth+1, heightLimit),
	}
}

// pickSplit chooses a random feature with spread and a uniform split inside
// its range. Features whose values are constant in the sample are skipped.
func pickSplit(rng *rand.Rand, sample [][]float64) (int, float64, bool) {
	dims := len(sample[0])
	for _, feature := range rng.Perm(dims) {
		lo, hi := sample[0][feature], sample[0][feature]
		for _, x := range sample[1:] {
			if x[feature] < lo {
				lo = x[feature]
			}
			if x[feature] > hi {
				hi = x[feature]
			}
		}
		if hi > lo {
			return feature, lo + rng.Float64()*(hi-lo), true
		}
	}
	return 0, 0, false
}

func pathLength(node *isoNode, x []float64, depth int) float64 {
	if node.left == nil && node.right == nil {
		return float64(depth) + averagePathLength(node.size)
	}
	if x[node.feature] < node.split {
		return pathLength(node.left, x, depth+1)
	}
	return pathLength(node.right, x, depth+1)
}

// averagePathLength is c(n), the expected path length of an unsuccessful
// BST search over n points; it normalises depths across tree sizes.
func averagePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	harmonic := math.Log(fn-1) + 0.5772156649
	return 2*harmonic - 2*(fn-1)/fn
}
