package scan

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrNoModels     = errors.New("no model results")
	ErrUnknownModel = errors.New("unknown model")
)

// Predictions reported by a single model.
const (
	PredictionUlcer   = "Ulcer"
	PredictionHealthy = "Healthy"
)

// ModelConfig is a detector in the ensemble and its vote weight (its mAP).
type ModelConfig struct {
	ID     string
	Weight float64
}

// Models is the weighted ensemble.
var Models = []ModelConfig{
	{ID: "foot-ulcers-szvdf/3", Weight: 0.906},
	{ID: "foot-ulcers-szvdf/2", Weight: 0.914},
	{ID: "foot-ulcers-szvdf/1", Weight: 0.927},
}

// ModelResult is one model's output for an image. Confidence is a
// percentage in [0, 100].
type ModelResult struct {
	Model      string  `json:"model"`
	Weight     float64 `json:"weight"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// Consensus is the ensemble decision.
type Consensus struct {
	IsUlcer             bool
	Diagnosis           string
	Confidence          float64
	AgreementPercentage float64
	ConfidenceStdDev    float64
	ReliabilityScore    float64
	Severity            string
	RiskScore           int
	Recommendation      string
}

// Severities. SeverityNone is stored as the default risk level.
const (
	SeverityHigh     = "High"
	SeverityModerate = "Moderate"
	SeverityLow      = "Low"
	SeverityNone     = "None"
)

func weightFor(id string) (float64, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m.Weight, true
		}
	}
	return 0, false
}

// Analyze combines per-model results. Weights come from Models, never from
// the caller. Results are rounded to two decimals; thresholds use the
// unrounded mean.
func Analyze(results []ModelResult) (Consensus, []ModelResult, error) {
	if len(results) == 0 {
		return Consensus{}, nil, ErrNoModels
	}

	seen := make(map[string]bool, len(results))
	normalized := make([]ModelResult, 0, len(results))
	for _, r := range results {
		w, ok := weightFor(r.Model)
		if !ok {
			return Consensus{}, nil, fmt.Errorf("%w: %q", ErrUnknownModel, r.Model)
		}
		if seen[r.Model] {
			return Consensus{}, nil, fmt.Errorf("duplicate result for model %q", r.Model)
		}
		seen[r.Model] = true

		conf := r.Confidence
		if math.IsNaN(conf) || conf < 0 {
			conf = 0
		}
		if conf > 100 {
			conf = 100
		}
		pred := PredictionHealthy
		if r.Prediction == PredictionUlcer {
			pred = PredictionUlcer
		}
		normalized = append(normalized, ModelResult{Model: r.Model, Weight: w, Prediction: pred, Confidence: round2(conf)})
	}

	n := float64(len(normalized))
	var ulcerVotes, sum, weightSum, weighted float64
	for _, r := range normalized {
		sum += r.Confidence
		weightSum += r.Weight
		if r.Prediction == PredictionUlcer {
			ulcerVotes++
			weighted += r.Weight * r.Confidence
		}
	}
	mean := sum / n
	var variance float64
	for _, r := range normalized {
		variance += (r.Confidence - mean) * (r.Confidence - mean)
	}
	std := math.Sqrt(variance / n)
	agreement := ulcerVotes / n * 100

	c := Consensus{
		IsUlcer:             weighted >= weightSum*50,
		Confidence:          round2(mean),
		AgreementPercentage: round2(agreement),
		ConfidenceStdDev:    round2(std),
		ReliabilityScore:    round2((agreement / 100) * (1 - std/100) * (mean / 100) * 100),
	}
	c.Diagnosis = DiagnosisHealthy
	if c.IsUlcer {
		c.Diagnosis = DiagnosisUlcer
	}

	switch {
	case mean > 85:
		c.Severity, c.RiskScore = SeverityHigh, 90
		c.Recommendation = "Immediate medical consultation recommended."
	case mean > 60:
		c.Severity, c.RiskScore = SeverityModerate, 65
		c.Recommendation = "Monitor closely and consult healthcare provider."
	case mean > 40:
		c.Severity, c.RiskScore = SeverityLow, 40
		c.Recommendation = "Re-scan within 3 days."
	default:
		c.Severity, c.RiskScore = SeverityNone, 0
	}
	return c, normalized, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
