package triage

import "sort"

// Severity base scores.
const (
	scoreHigh   = 900
	scoreMedium = 400
	scoreLow    = 100
)

// Category bonuses. Only the first matching category applies.
const (
	bonusAdherence      = 5000
	bonusDoseSafety     = 4000
	bonusReferral       = 3500
	penaltyLowValueSide = -500
)

// recencyDivisor turns epoch milliseconds into a tie-break that stays well
// below the smallest severity gap.
const recencyDivisor = 1e11

func severityScore(s Severity) float64 {
	switch s {
	case SeverityHigh:
		return scoreHigh
	case SeverityMedium:
		return scoreMedium
	case SeverityLow:
		return scoreLow
	default:
		return 0
	}
}

// ComputeAlertPriorityScore ranks an alert: adherence and medication gaps
// first, then dose safety, then referral, then everything else, with
// severity deciding within a tier and creation time breaking exact ties.
func ComputeAlertPriorityScore(a Alert) float64 {
	score := severityScore(a.Severity)

	switch {
	case a.Has(TagAdherence) || a.Has(TagMedicationGap):
		score += bonusAdherence
	case a.Has(TagDoseSafety):
		score += bonusDoseSafety
	case a.Has(TagReferral):
		score += bonusReferral
	case a.Has(TagLowValueSideEffect):
		score += penaltyLowValueSide
	}

	if a.CreatedAt != nil && !a.CreatedAt.IsZero() {
		score += float64(a.CreatedAt.UnixMilli()) / recencyDivisor
	}
	return score
}

// PrioritizeAlerts returns a new slice stable-sorted by priority score,
// highest first. The input is left untouched.
func PrioritizeAlerts(alerts []Alert) []Alert {
	idx := make([]int, len(alerts))
	scores := make([]float64, len(alerts))
	for i, a := range alerts {
		idx[i] = i
		scores[i] = ComputeAlertPriorityScore(a)
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return scores[idx[i]] > scores[idx[j]]
	})
	out := make([]Alert, len(alerts))
	for i, k := range idx {
		out[i] = alerts[k]
	}
	return out
}
