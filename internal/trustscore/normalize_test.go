package trustscore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUnknownDocumentPenalty(t *testing.T) {
	policy := DefaultPolicy()

	signals := VerificationSignals{
		DocumentConfidence:   Float64(0.9),
		DocumentTypeDetected: DocumentUnknown,
	}
	n := normalize(policy, signals, testClock())
	assert.Equal(t, 70.0, n.subs.Document)
	assert.True(t, n.documentUnknown)

	// The penalty floors at zero rather than going negative.
	signals.DocumentConfidence = Float64(0.1)
	n = normalize(policy, signals, testClock())
	assert.Equal(t, 0.0, n.subs.Document)
}

func TestAgeConsistencyCurve(t *testing.T) {
	policy := DefaultPolicy()
	now := testClock()

	cases := []struct {
		name         string
		estimatedAge int
		want         float64
	}{
		{"exact match", 34, 100},
		{"inside tolerance", 31, 100},
		{"middle of decay", 25, 50}, // diff 9: 100 - 6/12*100
		{"at zero bound", 19, 0},
		{"beyond zero bound", 10, 0},
	}
	for _, tc := range cases {
		signals := VerificationSignals{
			ClaimedDOB:       Date(1991, time.June, 1), // age 34 at the test clock
			EstimatedFaceAge: Int(tc.estimatedAge),
		}
		n := normalize(policy, signals, now)
		assert.Equal(t, tc.want, n.subs.AgeConsistency, tc.name)
		require.NotNil(t, n.ageDiffYears, tc.name)
	}
}

func TestAgeConsistencyFallsBackToExtractedDOB(t *testing.T) {
	policy := DefaultPolicy()

	signals := VerificationSignals{
		ExtractedDOB:     Date(1991, time.June, 1),
		EstimatedFaceAge: Int(34),
	}
	n := normalize(policy, signals, testClock())
	assert.Equal(t, 100.0, n.subs.AgeConsistency)
	assert.False(t, n.ageDataMissing)
}

func TestAgeConsistencyNeutralWhenDataMissing(t *testing.T) {
	policy := DefaultPolicy()

	n := normalize(policy, VerificationSignals{EstimatedFaceAge: Int(30)}, testClock())
	assert.Equal(t, 70.0, n.subs.AgeConsistency)
	assert.True(t, n.ageDataMissing)
	assert.Nil(t, n.ageDiffYears)
}

func TestAgeFromDOBCountsBirthdays(t *testing.T) {
	now := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 34, ageFromDOB(time.Date(1991, time.June, 1, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 35, ageFromDOB(time.Date(1991, time.January, 15, 0, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 34, ageFromDOB(time.Date(1991, time.January, 16, 0, 0, 0, 0, time.UTC), now))
}

func TestUniquenessBinary(t *testing.T) {
	policy := DefaultPolicy()

	n := normalize(policy, VerificationSignals{}, testClock())
	assert.Equal(t, 100.0, n.subs.Uniqueness)

	n = normalize(policy, VerificationSignals{IsDuplicate: Bool(false)}, testClock())
	assert.Equal(t, 100.0, n.subs.Uniqueness)

	n = normalize(policy, VerificationSignals{IsDuplicate: Bool(true)}, testClock())
	assert.Equal(t, 0.0, n.subs.Uniqueness)
}

func TestFuseMatchesHandComputedAggregate(t *testing.T) {
	weights := DefaultPolicy().Weights
	subs := SubScores{Face: 92, Liveness: 88, Document: 85, AgeConsistency: 100, Uniqueness: 100}

	assert.Equal(t, 91.6, fuse(weights, subs))
}

func TestValidateRejectsOutOfDomainFields(t *testing.T) {
	cases := []struct {
		field   string
		signals VerificationSignals
	}{
		{"face_similarity", VerificationSignals{FaceSimilarity: Float64(1.5)}},
		{"liveness_score", VerificationSignals{LivenessScore: Float64(-0.2)}},
		{"document_confidence", VerificationSignals{DocumentConfidence: Float64(2)}},
		{"estimated_face_age", VerificationSignals{EstimatedFaceAge: Int(-1)}},
		{"document_type_detected", VerificationSignals{DocumentTypeDetected: DocumentType("ssn")}},
		{"gender_detected_selfie", VerificationSignals{GenderDetectedSelfie: Gender("other")}},
	}
	for _, tc := range cases {
		err := tc.signals.Validate()
		require.Error(t, err, tc.field)

		sigErr := &InvalidSignalError{}
		require.ErrorAs(t, err, &sigErr, tc.field)
		assert.Equal(t, tc.field, sigErr.Field)
	}
}
