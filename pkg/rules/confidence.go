package rules

import "github.com/civicmind/civicmind/pkg/civic"

// Confidence weights. The sum of the positive terms from a clean run
// (feasible, compliant, low risk, complete data) reaches 1.0; each retry and
// violation pulls the score down.
const (
	confidenceBase       = 0.30
	weightFeasible       = 0.25
	weightPolicy         = 0.20
	weightRiskLow        = 0.15
	weightRiskHigh       = -0.15
	weightRiskCritical   = -0.25
	weightDataFull       = 0.10
	weightDataPartial    = 0.05
	penaltyPerRetry      = 0.10
	penaltyPerViolation  = 0.05
	dataFullThreshold    = 0.8
	dataPartialThreshold = 0.4
)

// ConfidenceInput is everything the deterministic calculator looks at.
type ConfidenceInput struct {
	Feasible         bool
	PolicyOK         bool
	Risk             civic.RiskLevel
	DataCompleteness float64 // [0,1], from the context snapshot
	Retries          int
	Violations       int
}

// Confidence computes the deterministic score, clamped to [0,1].
func Confidence(in ConfidenceInput) float64 {
	score := confidenceBase
	if in.Feasible {
		score += weightFeasible
	}
	if in.PolicyOK {
		score += weightPolicy
	}
	switch in.Risk {
	case civic.RiskLow:
		score += weightRiskLow
	case civic.RiskHigh:
		score += weightRiskHigh
	case civic.RiskCritical:
		score += weightRiskCritical
	}
	switch {
	case in.DataCompleteness >= dataFullThreshold:
		score += weightDataFull
	case in.DataCompleteness >= dataPartialThreshold:
		score += weightDataPartial
	}
	score -= penaltyPerRetry * float64(in.Retries)
	score -= penaltyPerViolation * float64(in.Violations)

	return Clamp(score)
}

// Clamp bounds a score to [0,1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Blend mixes an LLM-suggested score 50/50 with the deterministic one. The
// suggestion is clamped first so a malformed oracle answer cannot push the
// blend outside [0,1].
func Blend(deterministic, suggested float64) float64 {
	return Clamp(0.5*Clamp(deterministic) + 0.5*Clamp(suggested))
}
