package trustscore

// overrideCoverage maps an override flag to the sub-score category it already
// explains, so the generator does not emit a redundant below-threshold reason
// for the same category. The flag itself is still recorded.
var overrideCoverage = map[Flag]string{
	FlagLivenessFailed:    CategoryLiveness,
	FlagDuplicateIdentity: CategoryUniqueness,
	FlagAgeDiffHigh:       CategoryAgeConsistency,
}

// categoryOrder fixes the reporting order of sub-score categories so reason
// and flag lists are deterministic.
var categoryOrder = []string{
	CategoryFace,
	CategoryLiveness,
	CategoryDocument,
	CategoryAgeConsistency,
	CategoryUniqueness,
}

// generateReasons builds the ordered, deduplicated reason list and flag set:
// override hits first in rule order, then every category below the concern
// threshold, then informational markers for defaulted signals. Flags
// accumulate from all of these even when an earlier override already forced
// the decision.
func generateReasons(p Policy, n normalized, hits []overrideHit) ([]string, []Flag) {
	var (
		reasons   []string
		flags     []Flag
		seenText  = map[string]bool{}
		seenFlag  = map[Flag]bool{}
		covered   = map[string]bool{}
		addReason = func(r string) {
			if r != "" && !seenText[r] {
				seenText[r] = true
				reasons = append(reasons, r)
			}
		}
		addFlag = func(f Flag) {
			if !seenFlag[f] {
				seenFlag[f] = true
				flags = append(flags, f)
			}
		}
	)

	for _, hit := range hits {
		addReason(hit.reason)
		addFlag(hit.flag)
		if category, ok := overrideCoverage[hit.flag]; ok {
			covered[category] = true
		}
	}

	subs := n.subs.Map()
	for _, category := range categoryOrder {
		if subs[category] >= p.ConcernThreshold {
			continue
		}
		addFlag(lowScoreFlags[category])
		if !covered[category] {
			addReason(category + " confidence below threshold")
		}
	}

	if n.documentUnknown {
		addFlag(FlagDocumentTypeUnknown)
		addReason("Document type could not be identified")
	}
	if n.faceMissing {
		addFlag(FlagFaceCheckSkipped)
	}
	if n.ageDataMissing {
		addFlag(FlagAgeDataInsufficient)
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "All verification checks passed")
	}
	return reasons, flags
}
