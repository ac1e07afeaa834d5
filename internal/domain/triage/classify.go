package triage

import (
	"encoding/json"
	"strings"
	"unicode"
)

// Tag is one boolean classification of an alert.
type Tag uint16

const (
	TagAdherence Tag = 1 << iota
	TagMedicationGap
	TagDoseSafety
	TagReferral
	TagLowValueSideEffect
	TagImmediateSideEffectCounseling
	TagDoseAdequate
	TagEscalation
)

var tagNames = []struct {
	tag  Tag
	name string
}{
	{TagAdherence, "adherence"},
	{TagMedicationGap, "medication-gap"},
	{TagDoseSafety, "dose-safety"},
	{TagReferral, "referral"},
	{TagLowValueSideEffect, "low-value-side-effect"},
	{TagImmediateSideEffectCounseling, "immediate-side-effect-counseling"},
	{TagDoseAdequate, "dose-adequate"},
	{TagEscalation, "escalation"},
}

func (t Tag) String() string {
	for _, tn := range tagNames {
		if tn.tag == t {
			return tn.name
		}
	}
	return "unknown"
}

// TagSet is a bit set of tags.
type TagSet uint16

func (s TagSet) Has(t Tag) bool       { return s&TagSet(t) != 0 }
func (s TagSet) With(t Tag) TagSet    { return s | TagSet(t) }
func (s TagSet) Without(t Tag) TagSet { return s &^ TagSet(t) }

// Names lists the tag names in declaration order.
func (s TagSet) Names() []string {
	var out []string
	for _, tn := range tagNames {
		if s.Has(tn.tag) {
			out = append(out, tn.name)
		}
	}
	return out
}

func (s TagSet) MarshalJSON() ([]byte, error) {
	names := s.Names()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

func (s *TagSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out TagSet
	for _, n := range names {
		for _, tn := range tagNames {
			if tn.name == n {
				out = out.With(tn.tag)
			}
		}
	}
	*s = out
	return nil
}

// Keyword sets. Downstream ordering and suppression depend on these exact
// lists, so change them only together with the tests in classify_test.go.
var (
	medicationGapKeywords   = []string{"ran out of medicine", "no stock", "medication gap", "missed refill"}
	doseKeywords            = []string{"dose", "dosing", "mg/kg", "therapeutic range", "toxicity", "over limit", "weight-based", "dose reduction"}
	doseDirectionKeywords   = []string{"exceed", "above", "below", "reduce", "increase", "risk", "toxicity"}
	referralKeywords        = []string{"refer to", "refer ", "tertiary care", "specialist referral"}
	lowValueSideEffectTerms = []string{"sedation", "sedative", "sedating", "fall risk", "fall-risk", "risk of falls", "drowsiness", "drowsy", "somnolence"}
	severeReactionKeywords  = []string{"sjs", "stevens-johnson", "ten", "severe rash", "rash counseling", "infection risk"}
	carbamazepineKeywords   = []string{"carbamazepine", "cbz", "tegretol"}
	escalationCategories    = []string{"escalation", "adjunct", "add-on", "combo", "polytherapy"}
	escalationTextKeywords  = []string{"add ", "add-on", "adding", "adjunct", "combine", "combination", "switch to", "escalat"}
)

// classificationRule maps a tag to the predicate that assigns it.
type classificationRule struct {
	tag   Tag
	match func(a *Alert) bool
}

// classificationRules is evaluated once per alert by NormalizeAlert.
var classificationRules = []classificationRule{
	{TagAdherence, isAdherenceAlert},
	{TagMedicationGap, isMedicationGapAlert},
	{TagDoseSafety, isDoseSafetyAlert},
	{TagReferral, alertMentionsReferral},
	{TagLowValueSideEffect, isLowValueSideEffectAlert},
	{TagImmediateSideEffectCounseling, isImmediateSideEffectCounseling},
	{TagDoseAdequate, isDoseAdequatePrompt},
	{TagEscalation, isEscalationPrompt},
}

// classify returns the tag set for an alert whose searchable text is set.
func classify(a *Alert) TagSet {
	var set TagSet
	for _, r := range classificationRules {
		if r.match(a) {
			set = set.With(r.tag)
		}
	}
	return set
}

func isAdherenceAlert(a *Alert) bool {
	id := strings.ToLower(a.ID)
	text := a.searchable
	if strings.Contains(id, "adherence") || strings.Contains(id, "missed_dose") {
		return true
	}
	if strings.Contains(text, "adherence") || strings.Contains(text, "missed_dose") {
		return true
	}
	if strings.Contains(text, "miss") && strings.Contains(text, "dose") {
		return true
	}
	return strings.Contains(text, "frequently miss")
}

func isMedicationGapAlert(a *Alert) bool {
	return containsAny(a.searchable, medicationGapKeywords)
}

func isDoseSafetyAlert(a *Alert) bool {
	return containsAny(a.searchable, doseKeywords) && containsAny(a.searchable, doseDirectionKeywords)
}

func alertMentionsReferral(a *Alert) bool {
	return containsAny(a.searchable, referralKeywords)
}

func isLowValueSideEffectAlert(a *Alert) bool {
	return containsAny(a.searchable, lowValueSideEffectTerms)
}

func isImmediateSideEffectCounseling(a *Alert) bool {
	return containsAnyTerm(a.searchable, severeReactionKeywords) && containsAnyTerm(a.searchable, carbamazepineKeywords)
}

func isDoseAdequatePrompt(a *Alert) bool {
	return strings.Contains(a.searchable, "dose") && strings.Contains(a.searchable, "adequate")
}

func isEscalationPrompt(a *Alert) bool {
	category := strings.ToLower(strings.TrimSpace(a.Category))
	for _, c := range escalationCategories {
		if category == c {
			return true
		}
	}
	return containsAny(a.searchable, escalationTextKeywords)
}

// -- text helpers --

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// containsAnyTerm is containsAny, except that keywords of three letters or
// fewer must appear as whole words.
func containsAnyTerm(text string, keywords []string) bool {
	for _, k := range keywords {
		if len(k) <= 3 {
			if containsWord(text, k) {
				return true
			}
			continue
		}
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	for start := 0; ; {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(word)
		before := i == 0 || !isWordRune(rune(text[i-1]))
		after := end == len(text) || !isWordRune(rune(text[end]))
		if before && after {
			return true
		}
		start = i + 1
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
