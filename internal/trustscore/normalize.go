package trustscore

import (
	"math"
	"time"
)

// SubScores is the complete normalized score vector in [0,100]. Missing
// inputs are mapped to documented defaults during normalization, so fusion
// always operates over all five categories.
type SubScores struct {
	Face           float64 `json:"face"`
	Liveness       float64 `json:"liveness"`
	Document       float64 `json:"document"`
	AgeConsistency float64 `json:"age_consistency"`
	Uniqueness     float64 `json:"uniqueness"`
}

// Map returns the breakdown keyed by category name, for result payloads.
func (s SubScores) Map() map[string]float64 {
	return map[string]float64{
		CategoryFace:           s.Face,
		CategoryLiveness:       s.Liveness,
		CategoryDocument:       s.Document,
		CategoryAgeConsistency: s.AgeConsistency,
		CategoryUniqueness:     s.Uniqueness,
	}
}

// Category names used in breakdowns, reasons, and low-score flags.
const (
	CategoryFace           = "face"
	CategoryLiveness       = "liveness"
	CategoryDocument       = "document"
	CategoryAgeConsistency = "age_consistency"
	CategoryUniqueness     = "uniqueness"
)

// normalized is the Normalizer output: the sub-score vector plus the derived
// facts the policy and flag generation need downstream.
type normalized struct {
	subs SubScores

	// ageDiffYears is set when both a DOB-derived age and a face age
	// estimate were available.
	ageDiffYears *int

	faceMissing     bool
	livenessMissing bool
	documentMissing bool
	ageDataMissing  bool
	documentUnknown bool
}

// normalize converts raw adapter signals into the [0,100] sub-score vector.
// Inputs are assumed validated; the clamps here only absorb floating-point
// overshoot at the unit boundary.
func normalize(p Policy, s VerificationSignals, now time.Time) normalized {
	var n normalized

	if s.FaceSimilarity != nil {
		n.subs.Face = round1(clamp01(*s.FaceSimilarity) * 100)
	} else {
		n.faceMissing = true
	}

	if s.LivenessScore != nil {
		n.subs.Liveness = round1(clamp01(*s.LivenessScore) * 100)
	} else {
		n.livenessMissing = true
	}

	if s.DocumentConfidence != nil {
		doc := clamp01(*s.DocumentConfidence) * 100
		if s.DocumentTypeDetected == DocumentUnknown {
			doc -= p.UnknownDocumentPenalty
			n.documentUnknown = true
		}
		n.subs.Document = round1(math.Max(doc, 0))
	} else {
		n.documentMissing = true
		if s.DocumentTypeDetected == DocumentUnknown {
			n.documentUnknown = true
		}
	}

	n.subs.AgeConsistency, n.ageDiffYears = ageConsistency(p, s, now)
	n.ageDataMissing = n.ageDiffYears == nil

	n.subs.Uniqueness = 100
	if s.IsDuplicate != nil && *s.IsDuplicate {
		n.subs.Uniqueness = 0
	}

	return n
}

// ageConsistency scores the agreement between the documented age and the
// face-model estimate: full score up to the tolerance, linear decay to zero
// at the far bound, neutral when either side is missing.
func ageConsistency(p Policy, s VerificationSignals, now time.Time) (float64, *int) {
	dob := s.ClaimedDOB
	if dob == nil {
		dob = s.ExtractedDOB
	}
	if dob == nil || s.EstimatedFaceAge == nil {
		return p.NeutralAgeScore, nil
	}

	diff := ageFromDOB(*dob, now) - *s.EstimatedFaceAge
	if diff < 0 {
		diff = -diff
	}

	switch {
	case diff <= p.AgeFullScoreYears:
		return 100, &diff
	case diff >= p.AgeZeroScoreYears:
		return 0, &diff
	}
	span := float64(p.AgeZeroScoreYears - p.AgeFullScoreYears)
	score := 100 - float64(diff-p.AgeFullScoreYears)/span*100
	return round1(math.Min(math.Max(score, 0), 100)), &diff
}

// ageFromDOB computes whole years elapsed, not yet counting the birthday if
// it has not occurred this year.
func ageFromDOB(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	return age
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
