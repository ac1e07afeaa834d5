package triage

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Severity is the normalized severity of an alert.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
	SeverityInfo   Severity = "info"
)

// Label is the upper-case label rendered on alert cards.
func (s Severity) Label() string {
	if s == "" {
		return "INFO"
	}
	return strings.ToUpper(string(s))
}

// Tone is the visual tone of a badge or plan line.
type Tone string

const (
	ToneInfo    Tone = "info"
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneDanger  Tone = "danger"
)

// Source records which list of the analysis an alert came from.
type Source string

const (
	SourceWarning              Source = "warning"
	SourcePrompt               Source = "prompt"
	SourceSpecialConsideration Source = "specialConsideration"
	SourceRecommendation       Source = "recommendation"
	SourceAlert                Source = "alert"
	SourceSynthetic            Source = "synthetic"
)

// StringList decodes a single string, a single object or a list whose items
// are strings or objects carrying a text/label/description field. Any other
// shape decodes as empty.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*l = nil
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"', '{':
		if s, ok := stringListItem(data); ok {
			*l = StringList{s}
		}
		return nil
	case '[':
	default:
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	out := make(StringList, 0, len(items))
	for _, raw := range items {
		if s, ok := stringListItem(raw); ok {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// stringListItem reads one entry: a non-blank string, or an object's text,
// label or description. Other shapes are skipped.
func stringListItem(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, strings.TrimSpace(s) != ""
	}
	var obj struct {
		Text        string `json:"text"`
		Label       string `json:"label"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	switch {
	case obj.Text != "":
		return obj.Text, true
	case obj.Label != "":
		return obj.Label, true
	case obj.Description != "":
		return obj.Description, true
	}
	return "", false
}

// RawAlert is the alert shape as the CDS backend sends it. Field names vary
// between rule versions, so every known alias is captured and folded into
// an Alert by NormalizeAlert.
type RawAlert struct {
	ID              string          `json:"id,omitempty"`
	Severity        string          `json:"severity,omitempty"`
	Title           string          `json:"title,omitempty"`
	Text            string          `json:"text,omitempty"`
	Message         string          `json:"message,omitempty"`
	Description     string          `json:"description,omitempty"`
	Name            string          `json:"name,omitempty"`
	Rationale       string          `json:"rationale,omitempty"`
	NextSteps       StringList      `json:"nextSteps,omitempty"`
	Recommendations StringList      `json:"recommendations,omitempty"`
	Actions         StringList      `json:"actions,omitempty"`
	Category        string          `json:"category,omitempty"`
	CreatedAt       json.RawMessage `json:"createdAt,omitempty"`
	Timestamp       json.RawMessage `json:"timestamp,omitempty"`
}

// Alert is the canonical, immutable form of one clinical finding.
type Alert struct {
	ID        string     `json:"id,omitempty"`
	Severity  Severity   `json:"severity"`
	Title     string     `json:"title,omitempty"`
	Text      string     `json:"text"`
	Rationale string     `json:"rationale,omitempty"`
	NextSteps []string   `json:"nextSteps,omitempty"`
	Category  string     `json:"category,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Source    Source     `json:"source"`
	Tags      TagSet     `json:"tags,omitempty"`

	searchable string
}

// Display returns the primary human-readable message.
func (a Alert) Display() string {
	if a.Text != "" {
		return a.Text
	}
	return a.Title
}

// Searchable returns the lower-cased concatenation of every text-bearing field.
func (a Alert) Searchable() string { return a.searchable }

// Has reports whether the alert carries the tag.
func (a Alert) Has(t Tag) bool { return a.Tags.Has(t) }

// DoseFinding is the per-medication dosing assessment.
type DoseFinding struct {
	Drug                     string     `json:"drug"`
	DailyMg                  float64    `json:"dailyMg,omitempty"`
	MgPerKg                  float64    `json:"mgPerKg,omitempty"`
	WeightKg                 float64    `json:"weightKg,omitempty"`
	IsSubtherapeutic         bool       `json:"isSubtherapeutic,omitempty"`
	IsSupratherapeutic       bool       `json:"isSupratherapeutic,omitempty"`
	RecommendedTargetDailyMg float64    `json:"recommendedTargetDailyMg,omitempty"`
	RecommendedTargetMgPerKg float64    `json:"recommendedTargetMgPerKg,omitempty"`
	MaxAllowedDailyMg        float64    `json:"maxAllowedDailyMg,omitempty"`
	TitrationInstructions    StringList `json:"titrationInstructions,omitempty"`
	TaperInstructions        StringList `json:"taperInstructions,omitempty"`
}

// UnmarshalJSON accepts the short target aliases used by older backends.
func (d *DoseFinding) UnmarshalJSON(data []byte) error {
	type plain DoseFinding
	aux := struct {
		*plain
		TargetDailyMg float64 `json:"targetDailyMg"`
		TargetMgPerKg float64 `json:"targetMgPerKg"`
	}{plain: (*plain)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if d.RecommendedTargetDailyMg == 0 {
		d.RecommendedTargetDailyMg = aux.TargetDailyMg
	}
	if d.RecommendedTargetMgPerKg == 0 {
		d.RecommendedTargetMgPerKg = aux.TargetMgPerKg
	}
	return nil
}

// Plan carries the backend's own regimen suggestions.
type Plan struct {
	AddonSuggestion       string `json:"addonSuggestion,omitempty"`
	MonotherapySuggestion string `json:"monotherapySuggestion,omitempty"`
	Referral              string `json:"referral,omitempty"`
	TaperSuggestion       string `json:"taperSuggestion,omitempty"`
}

// AnalysisResult is the envelope returned by a CDS evaluation.
type AnalysisResult struct {
	Success               bool          `json:"success"`
	Error                 string        `json:"error,omitempty"`
	Warnings              []RawAlert    `json:"warnings,omitempty"`
	Prompts               []RawAlert    `json:"prompts,omitempty"`
	SpecialConsiderations []RawAlert    `json:"specialConsiderations,omitempty"`
	Recommendations       []RawAlert    `json:"recommendations,omitempty"`
	Alerts                []RawAlert    `json:"alerts,omitempty"`
	DoseFindings          []DoseFinding `json:"doseFindings,omitempty"`
	Plan                  Plan          `json:"plan"`
	Disclaimer            string        `json:"disclaimer,omitempty"`
}

// Context is the patient and follow-up form state the engine reasons over.
type Context struct {
	Adherence              string     `json:"adherence,omitempty"`
	ActiveMedications      []string   `json:"activeMedications,omitempty"`
	EpilepsyType           string     `json:"epilepsyType,omitempty"`
	MedicationChangeIntent bool       `json:"medicationChangeIntent,omitempty"`
	SeizuresSinceLastVisit *float64   `json:"seizuresSinceLastVisit,omitempty"`
	BaselineFrequency      string     `json:"baselineFrequency,omitempty"`
	CurrentFrequency       string     `json:"currentFrequency,omitempty"`
	WeightKg               float64    `json:"weightKg,omitempty"`
	WeightRecordedAt       *time.Time `json:"weightRecordedAt,omitempty"`
	LastVisitDate          *time.Time `json:"lastVisitDate,omitempty"`
	Gender                 string     `json:"gender,omitempty"`
	Pregnant               bool       `json:"pregnant,omitempty"`
	Now                    time.Time  `json:"now,omitempty"`
}

// TrendInfo compares baseline and current seizure frequency.
type TrendInfo struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
	Tone    Tone   `json:"tone"`
}

const (
	TrendImproving = "Improving"
	TrendWorsening = "Worsening"
)

// Worsening reports whether t is a worsening trend. Nil-safe.
func (t *TrendInfo) Worsening() bool { return t != nil && t.Summary == TrendWorsening }

// Badge is a small labelled chip on the follow-up summary.
type Badge struct {
	Kind   string `json:"kind"`
	Label  string `json:"label"`
	Value  string `json:"value"`
	Tone   Tone   `json:"tone"`
	Detail string `json:"detail,omitempty"`
}

// CounselingIcon is one scannable counseling reminder.
type CounselingIcon struct {
	Icon     string `json:"icon"`
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Tooltip  string `json:"tooltip"`
}

// PlaybookEntry is the dose-optimization plan for one medication.
type PlaybookEntry struct {
	Drug              string   `json:"drug"`
	Direction         string   `json:"direction"`
	CurrentDailyMg    float64  `json:"currentDailyMg,omitempty"`
	TargetDailyMg     float64  `json:"targetDailyMg,omitempty"`
	MaxAllowedDailyMg float64  `json:"maxAllowedDailyMg,omitempty"`
	Steps             []string `json:"steps"`
}

// PlanLine is the single-line clinical summary.
type PlanLine struct {
	Text string `json:"text"`
	Tone Tone   `json:"tone"`
}

// ReferralSignal drives the referral checkbox smart default.
type ReferralSignal struct {
	ShouldAuto bool   `json:"shouldAuto"`
	Rationale  string `json:"rationale,omitempty"`
}

// MedicationSignal drives the medication-changed checkbox smart default.
type MedicationSignal struct {
	ShouldAuto     bool     `json:"shouldAuto"`
	Suggestions    []string `json:"suggestions"`
	BannerMessages []string `json:"bannerMessages"`
}

// State is the session-scoped derivation the signals and plan are built on.
type State struct {
	Trend                    *TrendInfo `json:"trend,omitempty"`
	AdherenceBarriersPresent bool       `json:"adherenceBarriersPresent"`
	AdherenceConfirmed       bool       `json:"adherenceConfirmed"`
	ActiveMedicationCount    int        `json:"activeMedicationCount"`
	StatusBadges             []Badge    `json:"statusBadges"`
	CriticalAlerts           []Alert    `json:"criticalAlerts"`
	Recommendations          []Alert    `json:"recommendations"`
}

// OnPolytherapy reports whether two or more medications are active.
func (s *State) OnPolytherapy() bool { return s.ActiveMedicationCount >= 2 }

// RenderPlan is everything the follow-up form renders from one evaluation.
type RenderPlan struct {
	CriticalAlerts          []Alert          `json:"criticalAlerts"`
	Recommendations         []Alert          `json:"recommendations"`
	SuppressedCount         int              `json:"suppressedCount"`
	StatusBadges            []Badge          `json:"statusBadges"`
	SummaryBadges           []Badge          `json:"summaryBadges"`
	CounselingIcons         []CounselingIcon `json:"counselingIcons"`
	Playbook                []PlaybookEntry  `json:"playbook"`
	Plan                    PlanLine         `json:"plan"`
	Trend                   *TrendInfo       `json:"trend,omitempty"`
	NeedsSpecialistReferral bool             `json:"needsSpecialistReferral"`
	Referral                ReferralSignal   `json:"referral"`
	MedicationChange        MedicationSignal `json:"medicationChange"`
	Disclaimer              string           `json:"disclaimer,omitempty"`
	Degraded                bool             `json:"degraded,omitempty"`
	Message                 string           `json:"message,omitempty"`
}
