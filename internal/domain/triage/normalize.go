package triage

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// NormalizeAlert folds the wire aliases of a RawAlert into the canonical
// Alert shape, computing its searchable text and tags once. Missing fields
// are tolerated; nothing is ever rejected.
func NormalizeAlert(raw RawAlert, source Source) Alert {
	a := Alert{
		ID:        strings.TrimSpace(raw.ID),
		Severity:  ParseSeverity(raw.Severity),
		Title:     strings.TrimSpace(raw.Title),
		Text:      firstNonEmpty(raw.Text, raw.Message, raw.Description, raw.Name),
		Rationale: strings.TrimSpace(raw.Rationale),
		Category:  strings.TrimSpace(raw.Category),
		Source:    source,
	}

	steps := make([]string, 0, len(raw.NextSteps)+len(raw.Recommendations)+len(raw.Actions))
	steps = appendSteps(steps, raw.NextSteps)
	steps = appendSteps(steps, raw.Recommendations)
	steps = appendSteps(steps, raw.Actions)
	if len(steps) > 0 {
		a.NextSteps = steps
	}

	if t, ok := parseTimestamp(raw.CreatedAt); ok {
		a.CreatedAt = &t
	} else if t, ok := parseTimestamp(raw.Timestamp); ok {
		a.CreatedAt = &t
	}

	a.searchable = searchableText(raw)
	a.Tags = classify(&a)
	return a
}

// NormalizeAlerts normalizes a list, preserving order.
func NormalizeAlerts(raws []RawAlert, source Source) []Alert {
	out := make([]Alert, 0, len(raws))
	for _, r := range raws {
		out = append(out, NormalizeAlert(r, source))
	}
	return out
}

// newSyntheticAlert builds an engine-authored alert. Its tags are given
// explicitly rather than inferred from its wording.
func newSyntheticAlert(id string, severity Severity, title, text string, steps []string, tags TagSet) Alert {
	a := Alert{
		ID:        id,
		Severity:  severity,
		Title:     title,
		Text:      text,
		NextSteps: steps,
		Source:    SourceSynthetic,
	}
	parts := append([]string{title, text}, steps...)
	a.searchable = strings.ToLower(strings.Join(parts, " "))
	a.Tags = tags
	return a
}

// ParseSeverity maps free-text severity to a Severity; unknown values are info.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "critical", "severe":
		return SeverityHigh
	case "medium", "moderate":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

func searchableText(raw RawAlert) string {
	parts := []string{raw.Title, raw.Text, raw.Rationale, raw.Message, raw.Description, raw.Name}
	parts = append(parts, raw.NextSteps...)
	parts = append(parts, raw.Actions...)
	parts = append(parts, raw.Recommendations...)
	var b strings.Builder
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.ToLower(p))
	}
	return b.String()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// parseTimestamp accepts a JSON string in one of timestampLayouts or a JSON
// number of epoch milliseconds.
func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, false
		}
		return parseTimeString(s)
	}
	ms, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

func appendSteps(dst []string, src []string) []string {
	for _, s := range src {
		if s = strings.TrimSpace(s); s != "" {
			dst = append(dst, s)
		}
	}
	return dst
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
