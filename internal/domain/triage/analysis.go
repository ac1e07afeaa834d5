package triage

// Analysis is an AnalysisResult whose alert lists have been normalized.
type Analysis struct {
	Warnings              []Alert
	Prompts               []Alert
	SpecialConsiderations []Alert
	Recommendations       []Alert
	Alerts                []Alert
	DoseFindings          []DoseFinding
	Plan                  Plan
	Disclaimer            string
}

// NormalizeAnalysis runs every alert list of r through NormalizeAlert.
func NormalizeAnalysis(r *AnalysisResult) *Analysis {
	return &Analysis{
		Warnings:              NormalizeAlerts(r.Warnings, SourceWarning),
		Prompts:               NormalizeAlerts(r.Prompts, SourcePrompt),
		SpecialConsiderations: NormalizeAlerts(r.SpecialConsiderations, SourceSpecialConsideration),
		Recommendations:       NormalizeAlerts(r.Recommendations, SourceRecommendation),
		Alerts:                NormalizeAlerts(r.Alerts, SourceAlert),
		DoseFindings:          r.DoseFindings,
		Plan:                  r.Plan,
		Disclaimer:            r.Disclaimer,
	}
}

// All returns every alert of the analysis in a fixed source order.
func (a *Analysis) All() []Alert {
	n := len(a.Warnings) + len(a.Prompts) + len(a.SpecialConsiderations) + len(a.Recommendations) + len(a.Alerts)
	out := make([]Alert, 0, n)
	out = append(out, a.Warnings...)
	out = append(out, a.Prompts...)
	out = append(out, a.SpecialConsiderations...)
	out = append(out, a.Recommendations...)
	out = append(out, a.Alerts...)
	return out
}

// HasSubtherapeuticDose reports whether any dose finding is below range.
func (a *Analysis) HasSubtherapeuticDose() bool {
	for _, f := range a.DoseFindings {
		if f.IsSubtherapeutic {
			return true
		}
	}
	return false
}

// HasSupratherapeuticDose reports whether any dose finding is above range.
func (a *Analysis) HasSupratherapeuticDose() bool {
	for _, f := range a.DoseFindings {
		if f.IsSupratherapeutic {
			return true
		}
	}
	return false
}

func anyTagged(t Tag, lists ...[]Alert) bool {
	for _, list := range lists {
		for _, a := range list {
			if a.Has(t) {
				return true
			}
		}
	}
	return false
}

func anyMatches(keywords []string, lists ...[]Alert) bool {
	for _, list := range lists {
		for _, a := range list {
			if containsAnyTerm(a.searchable, keywords) {
				return true
			}
		}
	}
	return false
}
