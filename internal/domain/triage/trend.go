package triage

import (
	"strings"
)

// frequencyRanks orders seizure-frequency answers from the follow-up form.
// Longer phrases come first so "less than yearly" is not read as "yearly".
var frequencyRanks = []struct {
	phrase string
	rank   int
}{
	{"seizure free", 0},
	{"seizure-free", 0},
	{"no seizures", 0},
	{"less than yearly", 1},
	{"less than once a year", 1},
	{"yearly", 2},
	{"once a year", 2},
	{"every 6 months", 3},
	{"six monthly", 3},
	{"every 3 months", 4},
	{"quarterly", 4},
	{"monthly", 5},
	{"once a month", 5},
	{"weekly", 6},
	{"once a week", 6},
	{"daily", 7},
	{"every day", 7},
	{"multiple per day", 8},
}

// FrequencyRank returns the rank of a seizure-frequency answer.
func FrequencyRank(freq string) (int, bool) {
	f := strings.ToLower(strings.TrimSpace(freq))
	if f == "" {
		return 0, false
	}
	for _, fr := range frequencyRanks {
		if strings.Contains(f, fr.phrase) {
			return fr.rank, true
		}
	}
	return 0, false
}

// ComputeTrend compares baseline and current frequency. It returns nil when
// either is unknown or they rank the same.
func ComputeTrend(baseline, current string) *TrendInfo {
	b, okB := FrequencyRank(baseline)
	c, okC := FrequencyRank(current)
	if !okB || !okC || b == c {
		return nil
	}
	detail := strings.TrimSpace(baseline) + " → " + strings.TrimSpace(current)
	if c > b {
		return &TrendInfo{Summary: TrendWorsening, Detail: detail, Tone: ToneDanger}
	}
	return &TrendInfo{Summary: TrendImproving, Detail: detail, Tone: ToneSuccess}
}

var adherenceBarrierPhrases = []string{
	"occasionally miss",
	"frequently miss",
	"often miss",
	"sometimes miss",
	"stopped",
	"not taking",
	"not always take",
	"n't always take",
	"irregular",
	"skip",
	"forget",
	"forgot",
}

// adherenceNeutralPhrases are removed before the barrier check so their
// words do not read as missed doses.
var adherenceNeutralPhrases = []string{"never stopped", "never missed", "never miss"}

// adherenceNegations rule out confirmation without describing a barrier.
var adherenceNegations = []string{"not always", "n't always", "not regularly", "irregular", "sometimes", "occasionally"}

// HasAdherenceBarrier reports whether the adherence answer describes missed
// or stopped medicine.
func HasAdherenceBarrier(adherence string) bool {
	a := strings.ToLower(adherence)
	for _, p := range adherenceNeutralPhrases {
		a = strings.ReplaceAll(a, p, " ")
	}
	return containsAny(a, adherenceBarrierPhrases)
}

// AdherenceConfirmed reports whether the adherence answer confirms the
// patient takes every dose.
func AdherenceConfirmed(adherence string) bool {
	a := strings.ToLower(adherence)
	if HasAdherenceBarrier(a) || containsAny(a, adherenceNegations) {
		return false
	}
	return containsWord(a, "always") || strings.Contains(a, "never miss") || containsWord(a, "regularly")
}

var generalizedEpilepsyTerms = []string{"generalized", "generalised", "gge", "ige", "jme", "absence", "myoclonic"}

// IsGeneralizedEpilepsy reports whether the epilepsy type is a generalized one.
func IsGeneralizedEpilepsy(epilepsyType string) bool {
	return containsAnyTerm(strings.ToLower(epilepsyType), generalizedEpilepsyTerms)
}

// countActiveMedications counts non-blank medication names.
func countActiveMedications(meds []string) int {
	n := 0
	for _, m := range meds {
		if strings.TrimSpace(m) != "" {
			n++
		}
	}
	return n
}
