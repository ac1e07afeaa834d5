package triage

import "strings"

// Badge kinds.
const (
	BadgeStatus     = "status"
	BadgeAdherence  = "adherence"
	BadgeTrend      = "trend"
	BadgePlan       = "plan"
	BadgeSuggestion = "suggestion"
)

// SummaryBadges builds the adherence, trend, plan and suggestion chips shown
// above the alert lists.
func SummaryBadges(state *State, tctx Context, plan PlanLine, p Plan) []Badge {
	badges := make([]Badge, 0, 5)

	adherence := Badge{Kind: BadgeAdherence, Label: "Adherence", Value: strings.TrimSpace(tctx.Adherence), Tone: ToneInfo}
	switch {
	case adherence.Value == "":
		adherence.Value = "Not recorded"
	case state.AdherenceBarriersPresent:
		adherence.Tone = ToneWarning
	case state.AdherenceConfirmed:
		adherence.Tone = ToneSuccess
	}
	badges = append(badges, adherence)

	if t := state.Trend; t != nil {
		badges = append(badges, Badge{Kind: BadgeTrend, Label: "Seizure trend", Value: t.Summary, Tone: t.Tone, Detail: t.Detail})
	}

	badges = append(badges, Badge{Kind: BadgePlan, Label: "Plan", Value: plan.Text, Tone: plan.Tone})

	if s := strings.TrimSpace(p.AddonSuggestion); s != "" {
		badges = append(badges, Badge{Kind: BadgeSuggestion, Label: "Add-on", Value: s, Tone: ToneInfo})
	}
	if s := strings.TrimSpace(p.MonotherapySuggestion); s != "" {
		badges = append(badges, Badge{Kind: BadgeSuggestion, Label: "Monotherapy", Value: s, Tone: ToneInfo})
	}
	if s := strings.TrimSpace(p.TaperSuggestion); s != "" {
		badges = append(badges, Badge{Kind: BadgeSuggestion, Label: "Taper", Value: s, Tone: ToneWarning})
	}
	return badges
}
