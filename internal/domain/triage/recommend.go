package triage

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxRecommendations is how many recommendation cards are shown.
const MaxRecommendations = 4

const (
	adherencePriorityID  = "synthetic-adherence-priority"
	breakthroughAlertID  = "synthetic-breakthrough-investigation"
	stepConfirmSeizures  = "Confirm the events are true seizures (witness account, seizure diary, video if available)."
	stepScreenTriggers   = "Screen for intercurrent triggers: illness, fever, alcohol, sleep loss, interacting drugs."
	stepSleepHygiene     = "Ask about sleep hygiene and sleep deprivation, a frequent trigger in generalized epilepsy."
	stepOptimizeRegimen  = "Adherence confirmed: proceed to dose optimization or regimen review."
	stepResolveAdherence = "Adherence not confirmed: resolve adherence gaps before changing dose or regimen."
)

// Consolidation is the outcome of the recommendation pipeline.
type Consolidation struct {
	Recommendations []Alert
	SuppressedCount int
	StatusBadges    []Badge
}

// FilterLowValueSideEffects drops sedation/fall-risk noise. Applying it to
// its own output changes nothing.
func FilterLowValueSideEffects(alerts []Alert) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if !a.Has(TagLowValueSideEffect) {
			out = append(out, a)
		}
	}
	return out
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// normalizedKey is the dedupe key: lower-cased title and text with
// punctuation and whitespace collapsed.
func normalizedKey(a Alert) string {
	key := strings.ToLower(a.Title + " " + a.Text)
	return strings.TrimSpace(nonAlnum.ReplaceAllString(key, " "))
}

// DeduplicateAlerts merges alerts with the same normalized text. The first
// occurrence keeps its position; it takes the highest severity of the group
// and the union of next steps. Idempotent.
func DeduplicateAlerts(alerts []Alert) []Alert {
	out := make([]Alert, 0, len(alerts))
	index := make(map[string]int, len(alerts))
	for _, a := range alerts {
		key := normalizedKey(a)
		if key == "" {
			out = append(out, a)
			continue
		}
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, a)
			continue
		}
		out[i] = mergeAlerts(out[i], a)
	}
	return out
}

func mergeAlerts(kept, dup Alert) Alert {
	merged := kept
	if severityScore(dup.Severity) > severityScore(kept.Severity) {
		merged.Severity = dup.Severity
	}
	steps := make([]string, 0, len(kept.NextSteps)+len(dup.NextSteps))
	seen := make(map[string]bool, cap(steps))
	for _, s := range append(append([]string{}, kept.NextSteps...), dup.NextSteps...) {
		k := strings.ToLower(strings.TrimSpace(s))
		if seen[k] {
			continue
		}
		seen[k] = true
		steps = append(steps, s)
	}
	if len(steps) > 0 {
		merged.NextSteps = steps
	}
	merged.Tags = kept.Tags | dup.Tags
	if merged.Rationale == "" {
		merged.Rationale = dup.Rationale
	}
	return merged
}

// AdherencePriorityAlert is injected when adherence barriers meet polytherapy.
func AdherencePriorityAlert(activeMeds int) Alert {
	return newSyntheticAlert(
		adherencePriorityID,
		SeverityHigh,
		"Address adherence before regimen changes",
		fmt.Sprintf("Adherence barriers reported while on %d ASMs: address adherence before regimen changes.", activeMeds),
		[]string{
			"Explore reasons for missed doses (cost, stock-outs, side effects, forgetting).",
			"Simplify the regimen and agree on reminders before adjusting any of the current medicines.",
		},
		TagSet(0).With(TagAdherence),
	)
}

// BreakthroughInvestigationAlert guides work-up of a worsening seizure trend.
func BreakthroughInvestigationAlert(trend *TrendInfo, epilepsyType string, adherenceConfirmed bool) Alert {
	steps := []string{stepConfirmSeizures, stepScreenTriggers}
	if IsGeneralizedEpilepsy(epilepsyType) {
		steps = append(steps, stepSleepHygiene)
	}
	if adherenceConfirmed {
		steps = append(steps, stepOptimizeRegimen)
	} else {
		steps = append(steps, stepResolveAdherence)
	}
	text := "Seizure frequency is worsening."
	if trend != nil && trend.Detail != "" {
		text = "Seizure frequency is worsening (" + trend.Detail + ")."
	}
	return newSyntheticAlert(breakthroughAlertID, SeverityMedium, "Investigate breakthrough seizures", text, steps, 0)
}

// ConsolidateRecommendations runs the recommendation pipeline over prompts
// (already stripped of those promoted to critical alerts).
func ConsolidateRecommendations(prompts []Alert, state *State, tctx Context) Consolidation {
	recs := FilterLowValueSideEffects(prompts)
	recs = DeduplicateAlerts(recs)

	if state.AdherenceBarriersPresent && state.OnPolytherapy() && !hasCriticalAdherenceAlert(state.CriticalAlerts) {
		recs = append([]Alert{AdherencePriorityAlert(state.ActiveMedicationCount)}, recs...)
	}

	if state.Trend.Worsening() {
		recs = append(recs, BreakthroughInvestigationAlert(state.Trend, tctx.EpilepsyType, state.AdherenceConfirmed))
	}

	filtered := make([]Alert, 0, len(recs))
	for _, a := range recs {
		if !tctx.MedicationChangeIntent && a.Has(TagImmediateSideEffectCounseling) {
			continue
		}
		if state.AdherenceBarriersPresent && (a.Has(TagDoseAdequate) || a.Has(TagEscalation)) {
			continue
		}
		filtered = append(filtered, a)
	}

	var badges []Badge
	remaining := make([]Alert, 0, len(filtered))
	for _, a := range filtered {
		if a.Has(TagDoseAdequate) {
			badges = append(badges, Badge{
				Kind:   BadgeStatus,
				Label:  "Dose adequate",
				Value:  a.Display(),
				Tone:   ToneSuccess,
				Detail: a.Rationale,
			})
			continue
		}
		remaining = append(remaining, a)
	}

	sorted := PrioritizeAlerts(remaining)
	c := Consolidation{StatusBadges: badges}
	if len(sorted) > MaxRecommendations {
		c.SuppressedCount = len(sorted) - MaxRecommendations
		sorted = sorted[:MaxRecommendations]
	}
	c.Recommendations = sorted
	return c
}

// ExtractCriticalAlerts promotes high-severity prompts to critical alerts
// alongside the warnings and returns the prompts left over.
func ExtractCriticalAlerts(warnings, prompts []Alert) (critical, rest []Alert) {
	critical = make([]Alert, 0, len(warnings))
	critical = append(critical, warnings...)
	rest = make([]Alert, 0, len(prompts))
	for _, p := range prompts {
		if p.Severity == SeverityHigh {
			critical = append(critical, p)
			continue
		}
		rest = append(rest, p)
	}
	return PrioritizeAlerts(DeduplicateAlerts(critical)), rest
}

func hasCriticalAdherenceAlert(critical []Alert) bool {
	for _, a := range critical {
		if a.Has(TagAdherence) || a.Has(TagMedicationGap) {
			return true
		}
	}
	return false
}
