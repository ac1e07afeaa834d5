package triage

type adjustmentRule struct {
	name     string
	keywords []string
	banner   string
}

// adjustmentRules are the keyword families that signal a regimen change.
var adjustmentRules = []adjustmentRule{
	{
		name:     "dose-inadequate",
		keywords: []string{"subtherapeutic", "sub-therapeutic", "dose inadequate", "inadequate dose", "below target", "underdosed", "under-dosed"},
		banner:   "Dose below target range: consider uptitration.",
	},
	{
		name:     "dose-high",
		keywords: []string{"supratherapeutic", "supra-therapeutic", "toxicity", "dose too high", "above maximum", "exceeds maximum", "over limit"},
		banner:   "Dose above safe range: consider dose reduction.",
	},
	{
		name:     "switch",
		keywords: []string{"switch to", "switching", "replace with", "change to"},
		banner:   "Switching medication is suggested.",
	},
	{
		name:     "add-on",
		keywords: []string{"add-on", "adjunct", "add", "combination", "combine"},
		banner:   "Add-on or combination therapy is suggested.",
	},
}

// DeriveMedicationChangeSignal computes the medication-changed smart default.
// Adherence problems on their own never trigger it.
func DeriveMedicationChangeSignal(state *State, an *Analysis) MedicationSignal {
	sig := MedicationSignal{Suggestions: []string{}, BannerMessages: []string{}}
	if s := an.Plan.AddonSuggestion; s != "" {
		sig.Suggestions = append(sig.Suggestions, "Add-on suggested: "+s)
	}
	if s := an.Plan.MonotherapySuggestion; s != "" {
		sig.Suggestions = append(sig.Suggestions, "Switch to monotherapy: "+s)
	}

	scanned := [][]Alert{an.Warnings, state.Recommendations, an.Recommendations, an.Prompts}
	for _, rule := range adjustmentRules {
		if anyMatches(rule.keywords, scanned...) {
			sig.BannerMessages = append(sig.BannerMessages, rule.banner)
		}
	}

	hasSignal := len(sig.Suggestions) > 0 || len(sig.BannerMessages) > 0
	doseSafety := anyTagged(TagDoseSafety, scanned...)
	adherenceAllows := !state.AdherenceBarriersPresent || doseSafety

	escalation := anyTagged(TagEscalation, state.Recommendations)
	worsening := state.Trend.Worsening() && !state.AdherenceBarriersPresent
	planSuggests := an.Plan.AddonSuggestion != "" || an.Plan.MonotherapySuggestion != "" || an.Plan.TaperSuggestion != ""
	trigger := doseSafety || escalation || worsening || planSuggests || len(sig.BannerMessages) > 0

	sig.ShouldAuto = hasSignal && adherenceAllows && trigger
	return sig
}

// CanAutoApplyMedicationChange reports whether the medication-changed
// checkbox may be ticked automatically.
func CanAutoApplyMedicationChange(sig MedicationSignal, ctl Control) bool {
	return sig.ShouldAuto && !ctl.UserTouched && !ctl.AutoApplied
}
