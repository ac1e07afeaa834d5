package triage

import (
	"strings"
	"testing"
)

func TestFilterLowValueSideEffects_Idempotent(t *testing.T) {
	in := []Alert{
		alertOf("medium", "", "Causes drowsiness"),
		alertOf("high", "", "Check sodium"),
		alertOf("low", "", "Risk of falls in elderly"),
		alertOf("medium", "", "Order EEG"),
	}
	once := FilterLowValueSideEffects(in)
	twice := FilterLowValueSideEffects(once)
	if len(once) != 2 || len(twice) != 2 {
		t.Fatalf("expected 2 alerts after filtering, got %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Text != twice[i].Text {
			t.Errorf("position %d changed: %q vs %q", i, once[i].Text, twice[i].Text)
		}
	}
}

func TestDeduplicateAlerts_Merges(t *testing.T) {
	in := []Alert{
		NormalizeAlert(RawAlert{Severity: "low", Title: "Check level", Text: "Order a serum level.", NextSteps: StringList{"Draw trough"}}, SourcePrompt),
		alertOf("medium", "", "Order EEG"),
		NormalizeAlert(RawAlert{Severity: "high", Title: "check LEVEL", Text: "Order a serum level", NextSteps: StringList{"draw trough", "Repeat in 3 months"}, Rationale: "Toxicity suspected"}, SourcePrompt),
	}
	out := DeduplicateAlerts(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(out))
	}
	merged := out[0]
	if merged.Severity != SeverityHigh {
		t.Errorf("expected highest severity, got %s", merged.Severity)
	}
	if len(merged.NextSteps) != 2 || merged.NextSteps[1] != "Repeat in 3 months" {
		t.Errorf("expected union of next steps, got %v", merged.NextSteps)
	}
	if merged.Rationale != "Toxicity suspected" {
		t.Errorf("expected rationale filled from duplicate, got %q", merged.Rationale)
	}
	if again := DeduplicateAlerts(out); len(again) != len(out) {
		t.Errorf("expected dedupe to be idempotent, got %d", len(again))
	}
}

func TestExtractCriticalAlerts(t *testing.T) {
	warnings := []Alert{NormalizeAlert(RawAlert{Severity: "medium", Text: "Valproate in pregnancy"}, SourceWarning)}
	prompts := []Alert{
		alertOf("high", "", "Dose above maximum, reduce now"),
		alertOf("medium", "", "Order EEG"),
	}
	critical, rest := ExtractCriticalAlerts(warnings, prompts)
	if len(critical) != 2 || len(rest) != 1 {
		t.Fatalf("expected 2 critical and 1 rest, got %d and %d", len(critical), len(rest))
	}
	if critical[0].Text != "Dose above maximum, reduce now" {
		t.Errorf("expected the dose-safety alert first, got %q", critical[0].Text)
	}
	if rest[0].Text != "Order EEG" {
		t.Errorf("unexpected rest %q", rest[0].Text)
	}
}

func TestConsolidate_AdherencePriorityInjected(t *testing.T) {
	tctx := Context{Adherence: "Frequently miss doses", ActiveMedications: []string{"Valproate", "Levetiracetam"}}
	state := DeriveState(tctx)
	c := ConsolidateRecommendations([]Alert{alertOf("medium", "", "Order EEG")}, state, tctx)
	if len(c.Recommendations) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(c.Recommendations))
	}
	if c.Recommendations[0].ID != adherencePriorityID {
		t.Errorf("expected the adherence priority alert first, got %q", c.Recommendations[0].ID)
	}
	if !strings.Contains(c.Recommendations[0].Text, "2 ASMs") {
		t.Errorf("expected medication count in text, got %q", c.Recommendations[0].Text)
	}
}

func TestConsolidate_NoInjectionWhenCriticalCoversAdherence(t *testing.T) {
	tctx := Context{Adherence: "Frequently miss doses", ActiveMedications: []string{"Valproate", "Levetiracetam"}}
	state := DeriveState(tctx)
	state.CriticalAlerts = []Alert{alertOf("high", "", "Adherence concern: missed doses")}
	c := ConsolidateRecommendations(nil, state, tctx)
	for _, a := range c.Recommendations {
		if a.ID == adherencePriorityID {
			t.Fatal("expected no injected adherence alert")
		}
	}
}

func TestConsolidate_AdherenceSuppressesEscalationAndDoseAdequate(t *testing.T) {
	tctx := Context{Adherence: "Occasionally miss doses", ActiveMedications: []string{"Valproate"}}
	state := DeriveState(tctx)
	prompts := []Alert{
		alertOf("medium", "", "Consider adding lamotrigine"),
		alertOf("info", "", "Current dose is adequate"),
		alertOf("medium", "", "Order EEG"),
	}
	c := ConsolidateRecommendations(prompts, state, tctx)
	if len(c.Recommendations) != 1 || c.Recommendations[0].Text != "Order EEG" {
		t.Errorf("expected only the EEG alert, got %+v", c.Recommendations)
	}
	if len(c.StatusBadges) != 0 {
		t.Errorf("expected no status badges, got %+v", c.StatusBadges)
	}
}

func TestConsolidate_DoseAdequateBecomesBadge(t *testing.T) {
	tctx := Context{Adherence: "Always takes medicine"}
	state := DeriveState(tctx)
	prompts := []Alert{NormalizeAlert(RawAlert{Text: "Current dose is adequate", Rationale: "15 mg/kg"}, SourcePrompt)}
	c := ConsolidateRecommendations(prompts, state, tctx)
	if len(c.Recommendations) != 0 {
		t.Errorf("expected no recommendations, got %d", len(c.Recommendations))
	}
	if len(c.StatusBadges) != 1 || c.StatusBadges[0].Tone != ToneSuccess || c.StatusBadges[0].Detail != "15 mg/kg" {
		t.Errorf("unexpected badges %+v", c.StatusBadges)
	}
}

func TestConsolidate_RashCounselingNeedsChangeIntent(t *testing.T) {
	rash := alertOf("medium", "", "Carbamazepine: counsel on severe rash")
	tctx := Context{}
	c := ConsolidateRecommendations([]Alert{rash}, DeriveState(tctx), tctx)
	if len(c.Recommendations) != 0 {
		t.Errorf("expected rash counseling dropped without change intent, got %d", len(c.Recommendations))
	}
	tctx.MedicationChangeIntent = true
	c = ConsolidateRecommendations([]Alert{rash}, DeriveState(tctx), tctx)
	if len(c.Recommendations) != 1 {
		t.Errorf("expected rash counseling kept with change intent, got %d", len(c.Recommendations))
	}
}

func TestConsolidate_CapAndSuppressedCount(t *testing.T) {
	var prompts []Alert
	for _, text := range []string{"Order EEG", "Check sodium", "Review diary", "Check level", "Discuss driving", "Plan MRI"} {
		prompts = append(prompts, alertOf("medium", "", text))
	}
	tctx := Context{}
	c := ConsolidateRecommendations(prompts, DeriveState(tctx), tctx)
	if len(c.Recommendations) != MaxRecommendations {
		t.Errorf("expected %d recommendations, got %d", MaxRecommendations, len(c.Recommendations))
	}
	if c.SuppressedCount != 2 {
		t.Errorf("expected 2 suppressed, got %d", c.SuppressedCount)
	}
}

func TestBreakthroughInvestigation_AdherenceNotConfirmed(t *testing.T) {
	trend := &TrendInfo{Summary: TrendWorsening, Detail: "Monthly → Weekly"}
	a := BreakthroughInvestigationAlert(trend, "Focal", false)
	last := a.NextSteps[len(a.NextSteps)-1]
	if last != stepResolveAdherence {
		t.Errorf("expected the adherence-resolution step last, got %q", last)
	}
	for _, s := range a.NextSteps {
		if s == stepOptimizeRegimen {
			t.Error("expected no dose-optimization step")
		}
	}
	if !strings.Contains(a.Text, "Monthly → Weekly") {
		t.Errorf("expected trend detail in text, got %q", a.Text)
	}
}

func TestBreakthroughInvestigation_GeneralizedAddsSleep(t *testing.T) {
	trend := &TrendInfo{Summary: TrendWorsening, Detail: "Yearly → Monthly"}
	a := BreakthroughInvestigationAlert(trend, "Juvenile myoclonic (JME)", true)
	want := []string{stepConfirmSeizures, stepScreenTriggers, stepSleepHygiene, stepOptimizeRegimen}
	if len(a.NextSteps) != len(want) {
		t.Fatalf("expected %d steps, got %v", len(want), a.NextSteps)
	}
	for i := range want {
		if a.NextSteps[i] != want[i] {
			t.Errorf("step %d: expected %q, got %q", i, want[i], a.NextSteps[i])
		}
	}
}
