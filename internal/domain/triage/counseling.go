package triage

import (
	"strings"
	"time"
)

// MaxCounselingIcons caps the counseling strip.
const MaxCounselingIcons = 10

// staleWeightMonths is how old a recorded weight may get before it is flagged.
const staleWeightMonths = 6

// counselingInput is everything the counseling rules look at.
type counselingInput struct {
	text     string
	state    *State
	an       *Analysis
	ctx      Context
	referral bool
	now      time.Time
}

func (in *counselingInput) mentions(keywords ...string) bool {
	return containsAnyTerm(in.text, keywords)
}

type counselingRule struct {
	icon     string
	label    string
	severity string
	tooltip  string
	match    func(in *counselingInput) bool
}

var valproateKeywords = []string{"valproate", "valproic", "depakote", "epilim", "vpa"}

// counselingRules is evaluated top to bottom.
var counselingRules = []counselingRule{
	{"arrow-up", "Dose increase", "warning", "Dose is below the target range; counsel on uptitration.",
		func(in *counselingInput) bool {
			return in.an.HasSubtherapeuticDose() || in.mentions("uptitrate", "increase dose", "increase the dose")
		}},
	{"arrow-down", "Dose reduction", "danger", "Dose is above the safe range; counsel on reduction or taper.",
		func(in *counselingInput) bool {
			return in.an.HasSupratherapeuticDose() || in.mentions("reduce dose", "dose reduction", "taper")
		}},
	{"heart-pulse", "SUDEP", "danger", "Discuss sudden unexpected death in epilepsy and seizure safety.",
		func(in *counselingInput) bool { return in.mentions("sudep", "sudden unexpected death") }},
	{"rash", "SJS/TEN", "danger", "Warn about severe rash; stop and seek care if a rash appears.",
		func(in *counselingInput) bool {
			return in.mentions("sjs", "stevens-johnson", "toxic epidermal", "severe rash")
		}},
	{"liver", "Liver function", "warning", "Counsel on hepatotoxicity signs; consider liver function tests.",
		func(in *counselingInput) bool { return in.mentions("hepat", "liver") }},
	{"pancreas", "Pancreatitis", "warning", "Counsel on abdominal pain and vomiting as pancreatitis warning signs.",
		func(in *counselingInput) bool { return in.mentions("pancreat") }},
	{"scale", "Weight / PCOS", "info", "Discuss weight gain and polycystic ovary risk.",
		func(in *counselingInput) bool { return in.mentions("weight gain", "pcos", "polycystic") }},
	{"pill", "Contraception", "warning", "Enzyme-inducing ASMs reduce hormonal contraceptive efficacy.",
		func(in *counselingInput) bool { return in.mentions("contracepti", "enzyme-inducing", "enzyme inducing") }},
	{"leaf", "Folic acid", "info", "Advise folic acid supplementation for women of childbearing age.",
		func(in *counselingInput) bool { return in.mentions("folic", "folate") }},
	{"baby", "Pregnancy risk", "danger", "Teratogenic risk: review the regimen before or during pregnancy.",
		func(in *counselingInput) bool {
			if in.mentions("teratogen") {
				return true
			}
			onValproate := in.mentions(valproateKeywords...) || containsAnyTerm(strings.ToLower(strings.Join(in.ctx.ActiveMedications, " ")), valproateKeywords)
			return onValproate && (in.ctx.Pregnant || in.mentions("pregnan"))
		}},
	{"calendar", "Catamenial pattern", "info", "Seizures cluster around menses; consider a catamenial pattern.",
		func(in *counselingInput) bool { return in.mentions("catamenial", "menstrual", "menses") }},
	{"check-circle", "Adherence first", "warning", "Resolve missed doses before changing the regimen.",
		func(in *counselingInput) bool {
			return in.state.AdherenceBarriersPresent || anyTagged(TagAdherence, in.state.CriticalAlerts, in.state.Recommendations)
		}},
	{"clipboard", "Side-effect review", "info", "Ask about side effects at this visit.",
		func(in *counselingInput) bool { return in.mentions("side effect", "side-effect", "adverse") }},
	{"shuffle", "Add / switch plan", "info", "A regimen change is suggested; explain the plan to the patient.",
		func(in *counselingInput) bool {
			return in.an.Plan.AddonSuggestion != "" || in.an.Plan.MonotherapySuggestion != "" || anyTagged(TagEscalation, in.state.Recommendations)
		}},
	{"hospital", "Specialist referral", "danger", "Specialist referral is indicated.",
		func(in *counselingInput) bool { return in.referral }},
	{"flask", "Drug level", "info", "Consider checking the serum drug level.",
		func(in *counselingInput) bool {
			return in.mentions("drug level", "serum level", "plasma level", "blood level", "therapeutic drug monitoring")
		}},
	{"wave", "EEG", "info", "An EEG is suggested.",
		func(in *counselingInput) bool { return in.mentions("eeg") }},
	{"car", "Driving", "info", "Advise on driving restrictions until seizure free.",
		func(in *counselingInput) bool { return in.mentions("driving", "driver") }},
	{"moon", "Sleep", "info", "Discuss sleep hygiene; sleep loss lowers the seizure threshold.",
		func(in *counselingInput) bool { return in.mentions("sleep") }},
	{"bed", "Sedation / falls", "info", "Counsel on drowsiness and fall risk.",
		func(in *counselingInput) bool { return in.mentions(lowValueSideEffectTerms...) }},
	{"link", "Drug interaction", "warning", "Check for interactions with the patient's other medicines.",
		func(in *counselingInput) bool { return in.mentions("interaction", "interacts") }},
	{"kidney", "Renal dosing", "warning", "Adjust the dose for renal function.",
		func(in *counselingInput) bool { return in.mentions("renal", "kidney", "creatinine", "egfr") }},
	{"weight-missing", "Weight missing", "warning", "No weight recorded; weight-based dosing cannot be checked.",
		func(in *counselingInput) bool { return !hasWeight(in) }},
	{"weight-stale", "Weight outdated", "warning", "Weight is more than 6 months old; re-weigh the patient.",
		func(in *counselingInput) bool {
			at := in.ctx.WeightRecordedAt
			return hasWeight(in) && at != nil && at.Before(in.now.AddDate(0, -staleWeightMonths, 0))
		}},
	{"calendar-missing", "Last visit missing", "info", "No last visit date recorded; intervals cannot be checked.",
		func(in *counselingInput) bool { return in.ctx.LastVisitDate == nil }},
}

func hasWeight(in *counselingInput) bool {
	if in.ctx.WeightKg > 0 {
		return true
	}
	for _, f := range in.an.DoseFindings {
		if f.WeightKg > 0 {
			return true
		}
	}
	return false
}

// ExtractCounselingIcons evaluates the counseling rules in order. A label is
// shown at most once and at most MaxCounselingIcons icons are returned.
func ExtractCounselingIcons(state *State, an *Analysis, tctx Context, needsReferral bool) []CounselingIcon {
	in := &counselingInput{
		text:     counselingText(state, an),
		state:    state,
		an:       an,
		ctx:      tctx,
		referral: needsReferral,
		now:      tctx.Now,
	}
	if in.now.IsZero() {
		in.now = time.Now()
	}
	return evaluateCounselingRules(counselingRules, in)
}

func evaluateCounselingRules(rules []counselingRule, in *counselingInput) []CounselingIcon {
	icons := make([]CounselingIcon, 0, MaxCounselingIcons)
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if len(icons) == MaxCounselingIcons {
			break
		}
		if seen[r.label] || !r.match(in) {
			continue
		}
		seen[r.label] = true
		icons = append(icons, CounselingIcon{Icon: r.icon, Label: r.label, Severity: r.severity, Tooltip: r.tooltip})
	}
	return icons
}

func counselingText(state *State, an *Analysis) string {
	var b strings.Builder
	for _, list := range [][]Alert{an.All(), state.Recommendations} {
		for _, a := range list {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(a.searchable)
		}
	}
	if an.Plan.TaperSuggestion != "" {
		b.WriteString(" taper ")
		b.WriteString(strings.ToLower(an.Plan.TaperSuggestion))
	}
	return b.String()
}
