package triage

import (
	"fmt"
	"strings"
)

// Roles allowed to have the referral checkbox ticked for them.
const (
	RolePHC         = "phc"
	RolePHCAdmin    = "phc_admin"
	RoleMasterAdmin = "master_admin"
)

type referralRule struct {
	name      string
	keywords  []string
	rationale string
}

// referralRules is scanned in order; the first match supplies the rationale.
var referralRules = []referralRule{
	{
		name:      "drug-resistant",
		keywords:  []string{"drug-resistant", "drug resistant", "refractory", "pharmacoresistant", "failed two", "failure of two"},
		rationale: "Possible drug-resistant epilepsy: refer for specialist evaluation.",
	},
	{
		name:      "status-epilepticus",
		keywords:  []string{"status epilepticus", "life-threatening", "life threatening", "prolonged seizure"},
		rationale: "Status epilepticus or life-threatening seizures reported: urgent specialist referral.",
	},
	{
		name:      "progressive-deficit",
		keywords:  []string{"progressive deficit", "progressive neurological", "neurological deficit", "focal deficit", "developmental regression", "cognitive decline"},
		rationale: "Progressive neurological deficit: refer for specialist assessment.",
	},
	{
		name:      "surgical-workup",
		keywords:  []string{"video-eeg", "video eeg", "veeg", "surgical", "epilepsy surgery", "presurgical", "pre-surgical"},
		rationale: "Candidate for video-EEG or surgical work-up: refer to a tertiary epilepsy centre.",
	},
}

// NeedsSpecialistReferral holds only when no local fix is pending: adherence
// is not a barrier, no dose is below range, and something asks for a
// referral (the backend plan, a special consideration, a warning or a
// recommendation).
func NeedsSpecialistReferral(state *State, an *Analysis) bool {
	if state.AdherenceBarriersPresent || an.HasSubtherapeuticDose() {
		return false
	}
	if strings.TrimSpace(an.Plan.Referral) != "" {
		return true
	}
	return anyTagged(TagReferral, an.SpecialConsiderations, an.Warnings, state.Recommendations, an.Recommendations)
}

// DeriveReferralSignal computes the referral smart default.
func DeriveReferralSignal(state *State, an *Analysis, needsReferral bool) ReferralSignal {
	sources := [][]Alert{state.Recommendations, an.Warnings, an.Prompts, an.SpecialConsiderations, an.Recommendations, an.Alerts}
	for _, rule := range referralRules {
		if anyMatches(rule.keywords, sources...) {
			return ReferralSignal{ShouldAuto: true, Rationale: rule.rationale}
		}
	}

	if state.Trend.Worsening() && !state.AdherenceBarriersPresent && state.OnPolytherapy() {
		return ReferralSignal{
			ShouldAuto: true,
			Rationale:  fmt.Sprintf("Seizures %s despite %d+ ASMs.", state.Trend.Detail, state.ActiveMedicationCount),
		}
	}

	if needsReferral {
		rationale := strings.TrimSpace(an.Plan.Referral)
		if rationale == "" {
			rationale = "Specialist referral recommended by clinical decision support."
		}
		return ReferralSignal{ShouldAuto: true, Rationale: rationale}
	}
	return ReferralSignal{}
}

// CanAutoApplyReferral reports whether the referral checkbox may be ticked
// automatically for a user holding roles.
func CanAutoApplyReferral(sig ReferralSignal, roles []string, ctl Control) bool {
	if !sig.ShouldAuto || ctl.UserTouched || ctl.AutoApplied {
		return false
	}
	for _, r := range roles {
		if r == RolePHCAdmin || r == RoleMasterAdmin {
			return true
		}
	}
	return false
}
