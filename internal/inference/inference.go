// Package inference defines the contracts for the external ML collaborators
// (face comparison, liveness analysis, document OCR) and an HTTP client for
// the inference gateway that hosts them. The scoring core never talks to
// these directly; the verification use case collects their outputs into one
// signal set.
package inference

import (
	"context"
	"time"

	"github.com/example/trustvault/internal/trustscore"
)

// FaceComparison is the face adapter output for a selfie/document pair.
type FaceComparison struct {
	// Similarity is the embedding cosine similarity in [0,1].
	Similarity float64
	// Match is the adapter's verdict at its own threshold.
	Match bool
	// EstimatedAge is the model's age estimate for the selfie, if any.
	EstimatedAge *int
	// GenderSelfie and GenderDocument are the model's gender estimates.
	GenderSelfie   trustscore.Gender
	GenderDocument trustscore.Gender
	// EmbeddingHash is a privacy-preserving digest of the quantized selfie
	// embedding, used for duplicate-identity lookups.
	EmbeddingHash string
}

// LivenessResult is the anti-spoof adapter output.
type LivenessResult struct {
	Score  float64
	Passed bool
}

// DocumentResult is the OCR/classification adapter output.
type DocumentResult struct {
	Confidence   float64
	DocumentType trustscore.DocumentType
	// ExtractedDOB is the date of birth read off the document, if legible.
	ExtractedDOB *time.Time
	// Fields holds the remaining extracted key/value pairs (name, id number).
	Fields map[string]string
}

// FaceComparer compares a selfie against a document photo.
type FaceComparer interface {
	CompareFaces(ctx context.Context, requestID string, selfie, document []byte) (*FaceComparison, error)
}

// LivenessDetector checks that the selfie is a live capture.
type LivenessDetector interface {
	DetectLiveness(ctx context.Context, requestID string, selfie []byte) (*LivenessResult, error)
}

// DocumentReader classifies the document and extracts its text fields.
type DocumentReader interface {
	ReadDocument(ctx context.Context, requestID string, document []byte) (*DocumentResult, error)
}
