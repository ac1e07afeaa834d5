package triage

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Plan texts of the precedence chain.
const (
	PlanAdherencePolytherapy = "Address adherence barriers before modifying multi-drug regimen."
	PlanAdherenceMonotherapy = "Resolve adherence gaps before adjusting therapy."
	PlanIncreaseGeneric      = "Increase to target dose before considering regimen changes."
	PlanReferralDefault      = "Refer to epilepsy specialist for further evaluation."
	PlanEscalate             = "Escalate seizure management; reassess regimen."
	PlanContinue             = "Continue current regimen and monitor closely."
)

// maxActionableLen caps the plan text taken from an actionable alert.
const maxActionableLen = 140

// PlanInput is what the plan line is derived from.
type PlanInput struct {
	AdherenceBarriersPresent bool
	OnPolytherapy            bool
	DoseFindings             []DoseFinding
	WeightKg                 float64
	NeedsSpecialistReferral  bool
	Plan                     Plan
	Trend                    *TrendInfo
	// Candidates for the actionable-alert shortcut, highest priority first.
	Alerts []Alert
}

// DerivePlan walks the precedence chain; the first step that fires decides
// the plan line. The actionable-alert shortcut only applies when none of the
// adherence, dose or referral steps fire.
func DerivePlan(in PlanInput) PlanLine {
	if in.AdherenceBarriersPresent && in.OnPolytherapy {
		return PlanLine{Text: PlanAdherencePolytherapy, Tone: ToneWarning}
	}
	if in.AdherenceBarriersPresent {
		return PlanLine{Text: PlanAdherenceMonotherapy, Tone: ToneWarning}
	}

	if hasSubtherapeutic(in.DoseFindings) {
		var targets []string
		for _, f := range in.DoseFindings {
			if !f.IsSubtherapeutic {
				continue
			}
			target, ok := TargetDailyMg(f, in.WeightKg)
			if !ok {
				continue
			}
			targets = append(targets, CleanDrugName(f.Drug)+" to "+formatMg(target)+" mg/day")
		}
		if len(targets) > 0 {
			return PlanLine{
				Text: "Increase " + strings.Join(targets, ", ") + " before considering regimen changes.",
				Tone: ToneWarning,
			}
		}
		return PlanLine{Text: PlanIncreaseGeneric, Tone: ToneWarning}
	}

	if in.NeedsSpecialistReferral {
		text := PlanReferralDefault
		if r := strings.TrimSpace(in.Plan.Referral); r != "" {
			text = "Refer: " + r
		}
		return PlanLine{Text: text, Tone: ToneDanger}
	}

	if text, ok := ActionablePlanText(in.Alerts); ok {
		return PlanLine{Text: text, Tone: ToneWarning}
	}

	if s := strings.TrimSpace(in.Plan.AddonSuggestion); s != "" {
		return PlanLine{Text: "Add: " + s, Tone: ToneWarning}
	}
	if s := strings.TrimSpace(in.Plan.MonotherapySuggestion); s != "" {
		return PlanLine{Text: "Consider: " + s, Tone: ToneInfo}
	}
	if in.Trend.Worsening() {
		return PlanLine{Text: PlanEscalate, Tone: ToneWarning}
	}
	return PlanLine{Text: PlanContinue, Tone: ToneInfo}
}

func hasSubtherapeutic(findings []DoseFinding) bool {
	for _, f := range findings {
		if f.IsSubtherapeutic {
			return true
		}
	}
	return false
}

// TargetDailyMg returns the recommended daily dose of a finding, either as
// given or computed from the mg/kg target and the patient's weight. The
// finding's own weight wins over the form weight.
func TargetDailyMg(f DoseFinding, weightKg float64) (float64, bool) {
	if f.RecommendedTargetDailyMg > 0 {
		return math.Round(f.RecommendedTargetDailyMg), true
	}
	w := f.WeightKg
	if w <= 0 {
		w = weightKg
	}
	if f.RecommendedTargetMgPerKg > 0 && w > 0 {
		return math.Round(f.RecommendedTargetMgPerKg * w), true
	}
	return 0, false
}

// CurrentDailyMg is the finding's current daily dose, if known.
func CurrentDailyMg(f DoseFinding, weightKg float64) float64 {
	if f.DailyMg > 0 {
		return f.DailyMg
	}
	w := f.WeightKg
	if w <= 0 {
		w = weightKg
	}
	if f.MgPerKg > 0 && w > 0 {
		return math.Round(f.MgPerKg * w)
	}
	return 0
}

// CleanDrugName strips strengths and formulation noise, so "Valproate 500"
// and "Valproate (500 mg)" both read "Valproate".
func CleanDrugName(drug string) string {
	fields := strings.Fields(drug)
	kept := fields[:0:0]
	for _, f := range fields {
		r, _ := utf8.DecodeRuneInString(f)
		if unicode.IsDigit(r) || r == '(' || r == '[' {
			break
		}
		kept = append(kept, f)
	}
	name := strings.Join(kept, " ")
	if name == "" {
		return strings.TrimSpace(drug)
	}
	return name
}

func formatMg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var (
	actionableCategories = []string{"safety", "dosing", "dose", "treatment"}
	actionableVerbs      = []string{"add", "maintain", "uptitrate", "switch"}
)

// ActionablePlanText picks the first high-severity safety, dosing or
// treatment alert whose next steps say to add, maintain, uptitrate or switch
// something. A "maintain" step paired with an "add" step is shown together.
func ActionablePlanText(alerts []Alert) (string, bool) {
	for _, a := range alerts {
		if a.Severity != SeverityHigh {
			continue
		}
		if !containsAny(strings.ToLower(a.Category), actionableCategories) {
			continue
		}
		var first, maintain, add string
		for _, raw := range a.NextSteps {
			step := cleanStep(raw)
			lower := strings.ToLower(step)
			if !containsAnyTerm(lower, actionableVerbs) {
				continue
			}
			if first == "" {
				first = step
			}
			if maintain == "" && containsWord(lower, "maintain") {
				maintain = step
			}
			if add == "" && containsWord(lower, "add") {
				add = step
			}
		}
		switch {
		case maintain != "" && add != "" && maintain != add:
			return truncate(strings.TrimSuffix(maintain, ".")+"; "+lowerFirst(add), maxActionableLen), true
		case first != "":
			return truncate(first, maxActionableLen), true
		}
	}
	return "", false
}

// cleanStep drops list markers and surrounding whitespace.
func cleanStep(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "-*•· ")
	if i := strings.IndexAny(s, ".)"); i > 0 && i <= 2 {
		if _, err := strconv.Atoi(s[:i]); err == nil {
			s = s[i+1:]
		}
	}
	return strings.TrimSpace(s)
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}

// truncate cuts s to at most limit runes, ending in an ellipsis when cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
