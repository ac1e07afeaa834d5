package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/epicare/epicare/internal/platform/cdshooks"
	"github.com/epicare/epicare/internal/platform/metrics"
)

const (
	HookServiceID = "epilepsy-followup-triage"
	HookName      = "patient-view"

	cardSourceLabel = "Epilepsy follow-up CDS"
	summaryLimit    = 140
)

// HookService is the discovery entry for the triage hook.
func HookService() cdshooks.Service {
	return cdshooks.Service{
		Hook:        HookName,
		Title:       "Epilepsy follow-up triage",
		Description: "Prioritised safety alerts, recommendations and a one-line plan for an epilepsy follow-up visit.",
		ID:          HookServiceID,
		Prefetch: map[string]string{
			"patient": "Patient/{{context.patientId}}",
		},
	}
}

// RegisterHooks adds the triage hook service to reg.
func (s *Service) RegisterHooks(reg *cdshooks.Registry) {
	reg.Register(HookService(), s.HandleHook, s.HandleHookFeedback)
}

// HandleHook answers a patient-view invocation. A precomputed analysis may be
// supplied in the "analysis" prefetch; otherwise the CDS backend is called.
// The follow-up form state comes from the optional "followUp" context field.
func (s *Service) HandleHook(ctx context.Context, req cdshooks.Request) (*cdshooks.Response, error) {
	patientID := req.ContextString("patientId")
	if patientID == "" {
		return nil, fmt.Errorf("context.patientId is required")
	}

	var tctx Context
	if raw, ok := req.Context["followUp"]; ok {
		if err := json.Unmarshal(raw, &tctx); err != nil {
			return nil, fmt.Errorf("invalid context.followUp: %w", err)
		}
	}

	var result *AnalysisResult
	if raw, ok := req.Prefetch["analysis"]; ok && len(raw) > 0 && string(raw) != "null" {
		result = &AnalysisResult{}
		if err := json.Unmarshal(raw, result); err != nil {
			return nil, fmt.Errorf("invalid prefetch.analysis: %w", err)
		}
	} else {
		cdsStart := s.now()
		res, err := s.evaluator.Evaluate(ctx, EvaluationRequest{
			PatientID: patientID,
			Patient:   req.Prefetch["patient"],
			FollowUp:  tctx,
		})
		if err != nil {
			metrics.RecordCDSRequest("error", s.now().Sub(cdsStart))
			s.logger.Warn().Err(err).Str("hook_instance", req.HookInstance).Msg("cds evaluation failed")
			res = &AnalysisResult{Success: false, Error: err.Error()}
		} else {
			metrics.RecordCDSRequest("ok", s.now().Sub(cdsStart))
		}
		result = res
	}

	plan, err := s.Triage(ctx, result, tctx)
	if errors.Is(err, ErrCDSUnavailable) {
		return &cdshooks.Response{Cards: []cdshooks.Card{
			infoCard("Clinical decision support unavailable", UnavailableMessage(result)),
		}}, nil
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient", patientID).
		Str("hook_instance", req.HookInstance).
		Str("plan_tone", string(plan.Plan.Tone)).
		Msg("triage hook answered")
	return &cdshooks.Response{Cards: CardsFromPlan(plan)}, nil
}

// HandleHookFeedback logs card outcomes.
func (s *Service) HandleHookFeedback(_ context.Context, serviceID string, fb []cdshooks.Feedback) error {
	for _, f := range fb {
		outcome := f.Outcome
		if outcome == "" {
			outcome = "unknown"
		}
		metrics.RecordHookFeedback(serviceID, outcome)
		evt := s.logger.Info().
			Str("service", serviceID).
			Str("card", f.Card).
			Str("outcome", outcome)
		if len(f.OverrideReasons) > 0 {
			evt = evt.Str("override_reason", f.OverrideReasons[0].Code)
		}
		evt.Msg("cds hook feedback")
	}
	return nil
}

// CardsFromPlan renders a plan as CDS Hooks cards: critical alerts first,
// then recommendations, then the plan line.
func CardsFromPlan(plan *RenderPlan) []cdshooks.Card {
	if plan.Degraded {
		return []cdshooks.Card{infoCard(DegradedMessage, plan.Disclaimer)}
	}

	cards := make([]cdshooks.Card, 0, len(plan.CriticalAlerts)+len(plan.Recommendations)+1)
	for _, a := range plan.CriticalAlerts {
		cards = append(cards, alertCard(a, cdshooks.IndicatorCritical))
	}
	for _, a := range plan.Recommendations {
		indicator := cdshooks.IndicatorInfo
		if a.Severity == SeverityHigh || a.Severity == SeverityMedium {
			indicator = cdshooks.IndicatorWarning
		}
		cards = append(cards, alertCard(a, indicator))
	}

	if plan.Plan.Text != "" {
		card := newCard(plan.Plan.Text, toneIndicator(plan.Plan.Tone), plan.Disclaimer)
		if plan.Referral.ShouldAuto {
			card.Suggestions = append(card.Suggestions, cdshooks.Suggestion{
				Label:         "Refer to epilepsy specialist",
				UUID:          uuid.NewString(),
				IsRecommended: true,
			})
		}
		cards = append(cards, card)
	}
	return cards
}

func alertCard(a Alert, indicator string) cdshooks.Card {
	var b strings.Builder
	if a.Title != "" && a.Text != "" {
		b.WriteString(a.Text)
	}
	if a.Rationale != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(a.Rationale)
	}
	for _, step := range a.NextSteps {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(step)
	}
	summary := a.Title
	if summary == "" {
		summary = a.Display()
	}
	return newCard(summary, indicator, b.String())
}

func infoCard(summary, detail string) cdshooks.Card {
	return newCard(summary, cdshooks.IndicatorInfo, detail)
}

func newCard(summary, indicator, detail string) cdshooks.Card {
	return cdshooks.Card{
		UUID:      uuid.NewString(),
		Summary:   truncate(summary, summaryLimit),
		Detail:    detail,
		Indicator: indicator,
		Source:    cdshooks.Source{Label: cardSourceLabel},
	}
}

func toneIndicator(t Tone) string {
	switch t {
	case ToneDanger:
		return cdshooks.IndicatorCritical
	case ToneWarning:
		return cdshooks.IndicatorWarning
	default:
		return cdshooks.IndicatorInfo
	}
}
