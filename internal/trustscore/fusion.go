package trustscore

// fuse combines the sub-score vector into the aggregate trust score using the
// policy weights, rounded to one decimal. The weights are validated once at
// construction, never per call.
func fuse(w Weights, s SubScores) float64 {
	aggregate := w.Face*s.Face +
		w.Liveness*s.Liveness +
		w.Document*s.Document +
		w.AgeConsistency*s.AgeConsistency +
		w.Uniqueness*s.Uniqueness
	return round1(aggregate)
}
