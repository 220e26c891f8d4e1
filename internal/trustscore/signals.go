package trustscore

import (
	"time"
)

// DocumentType classifies the identity document reported by the OCR adapter.
type DocumentType string

const (
	DocumentAadhaar        DocumentType = "aadhaar"
	DocumentPAN            DocumentType = "pan"
	DocumentPassport       DocumentType = "passport"
	DocumentDrivingLicense DocumentType = "driving_license"
	DocumentVoterID        DocumentType = "voter_id"
	DocumentUnknown        DocumentType = "unknown"
)

// Gender is the face-model gender estimate for a selfie or document photo.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// VerificationSignals carries the raw per-check outputs collected from the
// face, liveness, and document adapters for a single request. Optional fields
// are pointers; nil means the check was skipped or produced no value, which is
// handled through documented defaults, never treated as an error.
type VerificationSignals struct {
	// FaceSimilarity is the cosine similarity of the selfie and document
	// embeddings in [0,1]. Nil when the face step was skipped.
	FaceSimilarity *float64
	// FaceMatch is the adapter's own verdict at its match threshold. It is
	// recorded for audit purposes and override logic, not recomputed here.
	FaceMatch bool

	// LivenessScore is the anti-spoof confidence in [0,1].
	LivenessScore *float64
	// LivenessPassed distinguishes an explicit liveness failure (false) from
	// a skipped check (nil).
	LivenessPassed *bool

	// DocumentConfidence is the OCR/classification confidence in [0,1].
	DocumentConfidence *float64
	// DocumentTypeDetected is empty when no document was processed.
	DocumentTypeDetected DocumentType

	ClaimedDOB   *time.Time
	ExtractedDOB *time.Time
	// EstimatedFaceAge is the model's age estimate for the selfie, in years.
	EstimatedFaceAge *int

	// IsDuplicate reports whether the face embedding hash matched a
	// previously seen identity. Nil or false means presumed unique.
	IsDuplicate *bool

	GenderDetectedDocument Gender
	GenderDetectedSelfie   Gender
}

// unitEpsilon tolerates floating-point overshoot at the [0,1] boundary
// (e.g. 1.0000001 from an adapter's own arithmetic). Anything further out is
// an adapter contract violation.
const unitEpsilon = 1e-6

const maxPlausibleAge = 130

// Validate rejects any present field whose value is outside its declared
// domain. Absent optional fields are never an error.
func (s VerificationSignals) Validate() error {
	if err := validateUnit("face_similarity", s.FaceSimilarity); err != nil {
		return err
	}
	if err := validateUnit("liveness_score", s.LivenessScore); err != nil {
		return err
	}
	if err := validateUnit("document_confidence", s.DocumentConfidence); err != nil {
		return err
	}
	if s.EstimatedFaceAge != nil {
		if age := *s.EstimatedFaceAge; age < 0 || age > maxPlausibleAge {
			return &InvalidSignalError{Field: "estimated_face_age", Value: float64(age)}
		}
	}
	if !s.DocumentTypeDetected.valid() {
		return &InvalidSignalError{Field: "document_type_detected", Detail: string(s.DocumentTypeDetected)}
	}
	if !s.GenderDetectedDocument.valid() {
		return &InvalidSignalError{Field: "gender_detected_document", Detail: string(s.GenderDetectedDocument)}
	}
	if !s.GenderDetectedSelfie.valid() {
		return &InvalidSignalError{Field: "gender_detected_selfie", Detail: string(s.GenderDetectedSelfie)}
	}
	return nil
}

func validateUnit(field string, value *float64) error {
	if value == nil {
		return nil
	}
	if v := *value; v < -unitEpsilon || v > 1+unitEpsilon {
		return &InvalidSignalError{Field: field, Value: v}
	}
	return nil
}

func (d DocumentType) valid() bool {
	switch d {
	case "", DocumentAadhaar, DocumentPAN, DocumentPassport, DocumentDrivingLicense, DocumentVoterID, DocumentUnknown:
		return true
	}
	return false
}

func (g Gender) valid() bool {
	switch g {
	case "", GenderMale, GenderFemale, GenderUnknown:
		return true
	}
	return false
}

// known reports whether the estimate names an actual gender. Unknown counts
// as absent for the mismatch override: a model that could not tell must not
// trigger a fraud rejection.
func (g Gender) known() bool {
	return g == GenderMale || g == GenderFemale
}

// Float64 returns a pointer to v, for building signals literals.
func Float64(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Date returns a pointer to a UTC calendar date.
func Date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
