// Package trustscore fuses independently computed identity-verification
// signals into one bounded trust score and a categorical decision. The engine
// is a pure function of its input and the immutable policy it was built with:
// no I/O, no shared state, safe for unrestricted concurrent use.
package trustscore

import "time"

// TrustScoreResult is the immutable outcome of one evaluation.
type TrustScoreResult struct {
	// Score is the aggregate trust score in [0,100], one decimal.
	Score float64 `json:"score"`
	// Decision is the recommended handling of the verification.
	Decision Decision `json:"decision"`
	// Confidence reflects the score's distance to the nearest band edge.
	Confidence ConfidenceLevel `json:"confidence"`
	// Breakdown exposes the per-category sub-scores for auditability.
	Breakdown map[string]float64 `json:"breakdown"`
	// Reasons is the ordered, human-readable justification list.
	Reasons []string `json:"reasons"`
	// Flags is the machine-readable risk marker set.
	Flags []Flag `json:"flags"`
	// OverallPass is true only for an auto-verified result with no
	// blocking flag present.
	OverallPass bool `json:"overall_pass"`
}

// Engine evaluates verification signals against a fixed policy. Construct it
// once at startup and share it freely across request handlers.
type Engine struct {
	policy Policy
	now    func() time.Time
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock substitutes the time source used for DOB-to-age derivation.
// With a fixed clock the engine is fully deterministic, which is what tests
// rely on.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine validates the policy and builds an engine. An invalid policy is a
// ConfigurationError; the process must not start in that state.
func NewEngine(policy Policy, opts ...Option) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the policy the engine was built with.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Evaluate scores one set of verification signals. It either returns a
// complete result or an InvalidSignalError naming the offending field; there
// is no partial result shape. Absent optional fields are not errors - they
// fall back to the documented defaults.
func (e *Engine) Evaluate(signals VerificationSignals) (*TrustScoreResult, error) {
	if err := signals.Validate(); err != nil {
		return nil, err
	}

	norm := normalize(e.policy, signals, e.now())
	score := fuse(e.policy.Weights, norm.subs)
	hits := evaluateOverrides(e.policy, signals, norm)

	decision := decide(e.policy, score)
	if len(hits) > 0 {
		decision = hits[0].decision
	}

	signalMissing := norm.faceMissing || norm.livenessMissing || norm.documentMissing || norm.ageDataMissing
	level := confidence(e.policy, score, len(hits) > 0, signalMissing)

	reasons, flags := generateReasons(e.policy, norm, hits)

	pass := decision == DecisionAutoVerified
	for _, f := range flags {
		if f.Blocking() {
			pass = false
			break
		}
	}

	return &TrustScoreResult{
		Score:       score,
		Decision:    decision,
		Confidence:  level,
		Breakdown:   norm.subs.Map(),
		Reasons:     reasons,
		Flags:       flags,
		OverallPass: pass,
	}, nil
}
