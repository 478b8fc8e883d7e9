package risk

import "math"

// Scorer maps a feature vector to a risk score in [0,1]. Higher means
// riskier. Concrete models (ML or otherwise) live behind this interface;
// tests substitute a deterministic stub.
type Scorer interface {
	Score(features []float64) float64
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(features []float64) float64

func (f ScorerFunc) Score(features []float64) float64 { return f(features) }

// LinearScorer is the built-in fallback: a logistic squash over weighted
// features. It is deliberately simple; production deployments plug in a
// trained model.
type LinearScorer struct {
	Weights []float64
	Bias    float64
}

// NewDefaultScorer weights volatility heaviest, then exposure, then
// inverse-confidence.
func NewDefaultScorer() *LinearScorer {
	return &LinearScorer{
		Weights: []float64{1.4, 0.9, 0.6},
		Bias:    -1.5,
	}
}

func (s *LinearScorer) Score(features []float64) float64 {
	z := s.Bias
	for i, f := range features {
		if i >= len(s.Weights) {
			break
		}
		z += s.Weights[i] * f
	}
	return 1 / (1 + math.Exp(-z))
}
