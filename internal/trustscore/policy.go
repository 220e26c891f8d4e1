package trustscore

import (
	"fmt"
	"math"
)

// Weights holds the fusion weight per signal category. The five weights must
// sum to 1.0 within weightTolerance.
type Weights struct {
	Face           float64 `yaml:"face"`
	Liveness       float64 `yaml:"liveness"`
	Document       float64 `yaml:"document"`
	AgeConsistency float64 `yaml:"age_consistency"`
	Uniqueness     float64 `yaml:"uniqueness"`
}

const weightTolerance = 1e-6

func (w Weights) sum() float64 {
	return w.Face + w.Liveness + w.Document + w.AgeConsistency + w.Uniqueness
}

// Policy is the immutable decision policy governing scoring: fusion weights,
// threshold bands, override constants, and confidence margins. It is built
// once at process start, validated, and injected into the Engine; it is never
// read from ambient global state.
type Policy struct {
	Weights Weights `yaml:"weights"`

	// AutoVerifyThreshold and ManualReviewThreshold are the ordered band
	// edges: score >= auto verifies, score >= review goes to review,
	// anything below is rejected.
	AutoVerifyThreshold   float64 `yaml:"auto_verify_threshold"`
	ManualReviewThreshold float64 `yaml:"manual_review_threshold"`

	// ConfidenceEdgeMargin is the distance from the nearest band edge below
	// which a decision is only medium confidence. HighConfidenceScore marks
	// the score at which confidence is high regardless of edge distance.
	ConfidenceEdgeMargin float64 `yaml:"confidence_edge_margin"`
	HighConfidenceScore  float64 `yaml:"high_confidence_score"`

	// AgeFullScoreYears and AgeZeroScoreYears bound the age-consistency
	// decay curve: full score up to the former, zero at the latter.
	AgeFullScoreYears int `yaml:"age_full_score_years"`
	AgeZeroScoreYears int `yaml:"age_zero_score_years"`
	// AgeOverrideYears is the age difference beyond which the request is
	// forced to manual review regardless of aggregate score.
	AgeOverrideYears int `yaml:"age_override_years"`

	// NeutralAgeScore is the age-consistency sub-score used when DOB or face
	// age is missing: insufficient evidence, neither penalized nor rewarded.
	NeutralAgeScore float64 `yaml:"neutral_age_score"`

	// UnknownDocumentPenalty is subtracted from the document sub-score when
	// the detected type is unknown; type ambiguity is itself a risk signal.
	UnknownDocumentPenalty float64 `yaml:"unknown_document_penalty"`

	// ConcernThreshold is the sub-score below which a category is reported
	// as a reason and flagged.
	ConcernThreshold float64 `yaml:"concern_threshold"`
}

// DefaultPolicy returns the production policy. Operators may override any of
// these through the policy file; the defaults match the documented contract.
func DefaultPolicy() Policy {
	return Policy{
		Weights: Weights{
			Face:           0.30,
			Liveness:       0.25,
			Document:       0.20,
			AgeConsistency: 0.10,
			Uniqueness:     0.15,
		},
		AutoVerifyThreshold:    85,
		ManualReviewThreshold:  50,
		ConfidenceEdgeMargin:   10,
		HighConfidenceScore:    90,
		AgeFullScoreYears:      3,
		AgeZeroScoreYears:      15,
		AgeOverrideYears:       10,
		NeutralAgeScore:        70,
		UnknownDocumentPenalty: 20,
		ConcernThreshold:       60,
	}
}

// Validate checks the policy invariants. It returns a ConfigurationError on
// the first violation; the caller is expected to treat that as fatal.
func (p Policy) Validate() error {
	if s := p.Weights.sum(); math.Abs(s-1.0) > weightTolerance {
		return &ConfigurationError{Reason: fmt.Sprintf("fusion weights sum to %g, want 1.0", s)}
	}
	for name, w := range map[string]float64{
		"face":            p.Weights.Face,
		"liveness":        p.Weights.Liveness,
		"document":        p.Weights.Document,
		"age_consistency": p.Weights.AgeConsistency,
		"uniqueness":      p.Weights.Uniqueness,
	} {
		if w < 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("negative weight for %s", name)}
		}
	}
	if p.ManualReviewThreshold < 0 || p.AutoVerifyThreshold > 100 {
		return &ConfigurationError{Reason: "threshold bands must lie within [0,100]"}
	}
	if p.ManualReviewThreshold >= p.AutoVerifyThreshold {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"non-monotonic bands: manual review threshold %g >= auto verify threshold %g",
			p.ManualReviewThreshold, p.AutoVerifyThreshold)}
	}
	if p.ConfidenceEdgeMargin < 0 {
		return &ConfigurationError{Reason: "confidence edge margin must not be negative"}
	}
	if p.HighConfidenceScore < p.AutoVerifyThreshold || p.HighConfidenceScore > 100 {
		return &ConfigurationError{Reason: "high confidence score must lie between the auto verify threshold and 100"}
	}
	if p.AgeFullScoreYears < 0 || p.AgeZeroScoreYears <= p.AgeFullScoreYears {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"age decay curve requires 0 <= full-score years (%d) < zero-score years (%d)",
			p.AgeFullScoreYears, p.AgeZeroScoreYears)}
	}
	if p.AgeOverrideYears <= 0 {
		return &ConfigurationError{Reason: "age override threshold must be positive"}
	}
	if p.NeutralAgeScore < 0 || p.NeutralAgeScore > 100 {
		return &ConfigurationError{Reason: "neutral age score must lie within [0,100]"}
	}
	if p.UnknownDocumentPenalty < 0 || p.UnknownDocumentPenalty > 100 {
		return &ConfigurationError{Reason: "unknown document penalty must lie within [0,100]"}
	}
	if p.ConcernThreshold < 0 || p.ConcernThreshold > 100 {
		return &ConfigurationError{Reason: "concern threshold must lie within [0,100]"}
	}
	return nil
}
