package trustscore

import "strings"

// Flag is a machine-readable risk marker attached to a result. The known
// flags below form a closed set; new ones are introduced deliberately through
// ExtensionFlag rather than as ad-hoc strings at call sites.
type Flag string

const (
	FlagGenderMismatch      Flag = "GENDER_MISMATCH"
	FlagLivenessFailed      Flag = "LIVENESS_FAILED"
	FlagDuplicateIdentity   Flag = "DUPLICATE_IDENTITY"
	FlagAgeDiffHigh         Flag = "AGE_DIFF_HIGH"
	FlagFaceCheckSkipped    Flag = "FACE_CHECK_SKIPPED"
	FlagAgeDataInsufficient Flag = "AGE_DATA_INSUFFICIENT"
	FlagDocumentTypeUnknown Flag = "DOCUMENT_TYPE_UNKNOWN"

	FlagFaceScoreLow       Flag = "FACE_SCORE_LOW"
	FlagLivenessScoreLow   Flag = "LIVENESS_SCORE_LOW"
	FlagDocumentScoreLow   Flag = "DOCUMENT_SCORE_LOW"
	FlagAgeConsistencyLow  Flag = "AGE_CONSISTENCY_LOW"
	FlagUniquenessScoreLow Flag = "UNIQUENESS_SCORE_LOW"
)

// blockingFlags mark results that must never count as an overall pass, even
// if a future policy were to leave the decision at auto_verified.
var blockingFlags = map[Flag]bool{
	FlagGenderMismatch:    true,
	FlagLivenessFailed:    true,
	FlagDuplicateIdentity: true,
	FlagAgeDiffHigh:       true,
}

// Blocking reports whether the flag disqualifies an overall pass.
func (f Flag) Blocking() bool {
	return blockingFlags[f]
}

// ExtensionFlag builds a non-standard flag token in the canonical
// UPPER_SNAKE form. It is the escape hatch for deployment-specific risk
// markers layered on top of the closed set.
func ExtensionFlag(name string) Flag {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
	return Flag("X_" + name)
}

// lowScoreFlags maps each category to its below-threshold flag.
var lowScoreFlags = map[string]Flag{
	CategoryFace:           FlagFaceScoreLow,
	CategoryLiveness:       FlagLivenessScoreLow,
	CategoryDocument:       FlagDocumentScoreLow,
	CategoryAgeConsistency: FlagAgeConsistencyLow,
	CategoryUniqueness:     FlagUniquenessScoreLow,
}
