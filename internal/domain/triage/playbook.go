package triage

import "strings"

// Playbook directions.
const (
	DirectionTitrateUp = "titrate-up"
	DirectionTaper     = "taper"
)

// BuildPlaybook returns one entry per dose finding that carries titration
// (below range) or taper (above range) steps. Findings without steps are
// skipped.
func BuildPlaybook(findings []DoseFinding, weightKg float64) []PlaybookEntry {
	entries := make([]PlaybookEntry, 0, len(findings))
	for _, f := range findings {
		var direction string
		var steps []string
		switch {
		case f.IsSubtherapeutic && len(f.TitrationInstructions) > 0:
			direction, steps = DirectionTitrateUp, cleanSteps(f.TitrationInstructions)
		case f.IsSupratherapeutic && len(f.TaperInstructions) > 0:
			direction, steps = DirectionTaper, cleanSteps(f.TaperInstructions)
		}
		if len(steps) == 0 {
			continue
		}
		target, _ := TargetDailyMg(f, weightKg)
		entries = append(entries, PlaybookEntry{
			Drug:              CleanDrugName(f.Drug),
			Direction:         direction,
			CurrentDailyMg:    CurrentDailyMg(f, weightKg),
			TargetDailyMg:     target,
			MaxAllowedDailyMg: f.MaxAllowedDailyMg,
			Steps:             steps,
		})
	}
	return entries
}

func cleanSteps(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = cleanStep(s); strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
