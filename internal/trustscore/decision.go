package trustscore

import (
	"fmt"
	"math"
)

// Decision is the categorical verification outcome.
type Decision string

const (
	DecisionAutoVerified Decision = "auto_verified"
	DecisionManualReview Decision = "manual_review"
	DecisionRejected     Decision = "rejected"
)

// ConfidenceLevel expresses how far the result sits from a decision boundary.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// overrideHit records a hard-override rule that matched. The first hit
// decides; every hit still contributes its flag and reason so downstream
// reviewers see the full risk picture.
type overrideHit struct {
	decision Decision
	flag     Flag
	reason   string
}

// evaluateOverrides runs the hard-override chain in priority order:
//  1. Gender mismatch between document and selfie - deliberate-fraud signal
//  2. Explicit liveness failure - spoofing signal
//  3. Duplicate identity - can be legitimate re-verification, so review
//  4. Large age discrepancy - review regardless of aggregate score
//
// These conditions indicate deliberate spoofing rather than poor capture
// quality and must not be averaged away by otherwise-good sub-scores.
func evaluateOverrides(p Policy, s VerificationSignals, n normalized) []overrideHit {
	var hits []overrideHit

	if s.GenderDetectedDocument.known() && s.GenderDetectedSelfie.known() &&
		s.GenderDetectedDocument != s.GenderDetectedSelfie {
		hits = append(hits, overrideHit{
			decision: DecisionRejected,
			flag:     FlagGenderMismatch,
			reason:   "Gender mismatch between document and selfie",
		})
	}

	if s.LivenessPassed != nil && !*s.LivenessPassed {
		hits = append(hits, overrideHit{
			decision: DecisionRejected,
			flag:     FlagLivenessFailed,
			reason:   "Liveness check failed - possible spoofing attempt",
		})
	}

	if s.IsDuplicate != nil && *s.IsDuplicate {
		hits = append(hits, overrideHit{
			decision: DecisionManualReview,
			flag:     FlagDuplicateIdentity,
			reason:   "Face matches a previously verified identity",
		})
	}

	if n.ageDiffYears != nil && *n.ageDiffYears > p.AgeOverrideYears {
		hits = append(hits, overrideHit{
			decision: DecisionManualReview,
			flag:     FlagAgeDiffHigh,
			reason: fmt.Sprintf("Age difference of %d years between document and face estimate exceeds %d-year tolerance",
				*n.ageDiffYears, p.AgeOverrideYears),
		})
	}

	return hits
}

// decide maps the aggregate score onto the ordered threshold bands. Only
// reached when no override fired.
func decide(p Policy, score float64) Decision {
	switch {
	case score >= p.AutoVerifyThreshold:
		return DecisionAutoVerified
	case score >= p.ManualReviewThreshold:
		return DecisionManualReview
	default:
		return DecisionRejected
	}
}

// confidence derives the confidence level. Any override or missing-signal
// default forces low; otherwise the score must either clear the high
// confidence bar or sit at least the edge margin away from both band edges
// to count as high.
func confidence(p Policy, score float64, overrode, signalMissing bool) ConfidenceLevel {
	if overrode || signalMissing {
		return ConfidenceLow
	}
	edgeDistance := math.Min(
		math.Abs(score-p.ManualReviewThreshold),
		math.Abs(score-p.AutoVerifyThreshold),
	)
	if edgeDistance >= p.ConfidenceEdgeMargin || score >= p.HighConfidenceScore {
		return ConfidenceHigh
	}
	return ConfidenceMedium
}
