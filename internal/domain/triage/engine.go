package triage

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCDSUnavailable is returned when the CDS evaluation failed; the
	// follow-up form stays usable without recommendations.
	ErrCDSUnavailable = errors.New("clinical decision support unavailable")
)

// DegradedMessage is shown when the engine could not build a plan.
const DegradedMessage = "No specific recommendations. Standard monitoring applies."

// Triage turns one CDS evaluation into a render plan. A failed evaluation
// returns ErrCDSUnavailable and no plan. An internal failure never escapes:
// it yields a degraded plan carrying DegradedMessage.
func Triage(result *AnalysisResult, tctx Context) (plan *RenderPlan, err error) {
	if result == nil {
		return nil, ErrCDSUnavailable
	}
	if !result.Success {
		if result.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrCDSUnavailable, result.Error)
		}
		return nil, ErrCDSUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			plan = DegradedPlan(result.Disclaimer)
			err = nil
		}
	}()

	return buildRenderPlan(result, tctx), nil
}

// DegradedPlan is the fallback plan: no alerts, no signals, the standard
// monitoring message.
func DegradedPlan(disclaimer string) *RenderPlan {
	return &RenderPlan{
		CriticalAlerts:   []Alert{},
		Recommendations:  []Alert{},
		StatusBadges:     []Badge{},
		SummaryBadges:    []Badge{},
		CounselingIcons:  []CounselingIcon{},
		Playbook:         []PlaybookEntry{},
		Plan:             PlanLine{Text: DegradedMessage, Tone: ToneInfo},
		MedicationChange: MedicationSignal{Suggestions: []string{}, BannerMessages: []string{}},
		Disclaimer:       disclaimer,
		Degraded:         true,
		Message:          DegradedMessage,
	}
}

// DeriveState computes the trend, adherence and medication-count parts of
// the triage state from the form context.
func DeriveState(tctx Context) *State {
	return &State{
		Trend:                    ComputeTrend(tctx.BaselineFrequency, tctx.CurrentFrequency),
		AdherenceBarriersPresent: HasAdherenceBarrier(tctx.Adherence),
		AdherenceConfirmed:       AdherenceConfirmed(tctx.Adherence),
		ActiveMedicationCount:    countActiveMedications(tctx.ActiveMedications),
	}
}

func buildRenderPlan(result *AnalysisResult, tctx Context) *RenderPlan {
	if tctx.Now.IsZero() {
		tctx.Now = time.Now().UTC()
	}
	an := NormalizeAnalysis(result)
	state := DeriveState(tctx)

	critical, rest := ExtractCriticalAlerts(an.Warnings, an.Prompts)
	state.CriticalAlerts = critical

	cons := ConsolidateRecommendations(rest, state, tctx)
	state.Recommendations = cons.Recommendations
	state.StatusBadges = cons.StatusBadges

	needsReferral := NeedsSpecialistReferral(state, an)

	candidates := PrioritizeAlerts(append(append(append([]Alert{}, critical...), state.Recommendations...), an.Recommendations...))
	planLine := DerivePlan(PlanInput{
		AdherenceBarriersPresent: state.AdherenceBarriersPresent,
		OnPolytherapy:            state.OnPolytherapy(),
		DoseFindings:             an.DoseFindings,
		WeightKg:                 tctx.WeightKg,
		NeedsSpecialistReferral:  needsReferral,
		Plan:                     an.Plan,
		Trend:                    state.Trend,
		Alerts:                   candidates,
	})

	plan := &RenderPlan{
		CriticalAlerts:          nonNilAlerts(state.CriticalAlerts),
		Recommendations:         nonNilAlerts(state.Recommendations),
		SuppressedCount:         cons.SuppressedCount,
		StatusBadges:            nonNilBadges(state.StatusBadges),
		SummaryBadges:           SummaryBadges(state, tctx, planLine, an.Plan),
		CounselingIcons:         ExtractCounselingIcons(state, an, tctx, needsReferral),
		Playbook:                BuildPlaybook(an.DoseFindings, tctx.WeightKg),
		Plan:                    planLine,
		Trend:                   state.Trend,
		NeedsSpecialistReferral: needsReferral,
		Referral:                DeriveReferralSignal(state, an, needsReferral),
		MedicationChange:        DeriveMedicationChangeSignal(state, an),
		Disclaimer:              an.Disclaimer,
	}
	return plan
}

func nonNilAlerts(a []Alert) []Alert {
	if a == nil {
		return []Alert{}
	}
	return a
}

func nonNilBadges(b []Badge) []Badge {
	if b == nil {
		return []Badge{}
	}
	return b
}
