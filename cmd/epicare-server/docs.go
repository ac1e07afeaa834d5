package main

import (
	"net/http"

	"github.com/epicare/epicare/internal/platform/openapi"
)

func object(description string) map[string]interface{} {
	return map[string]interface{}{"type": "object", "description": description}
}

// newDocs documents the routes newApp registers.
func newDocs() *openapi.Generator {
	g := openapi.NewGenerator("Epicare Triage API", version, "/")

	g.AddSchema("TriageRequest", object("CDS analysis result plus the follow-up context"))
	g.AddSchema("TriageResponse", object("Availability flag, headline message and render plan"))
	g.AddSchema("OpenSessionRequest", object("Patient id and initial follow-up context"))
	g.AddSchema("SessionSnapshot", object("Session state with smart-default controls"))
	g.AddSchema("EvaluateRequest", object("Optional replacement follow-up context"))
	g.AddSchema("EvaluationOutcome", object("Render plan, control states and audit run id"))
	g.AddSchema("TouchRequest", object("Checked state chosen by the clinician"))
	g.AddSchema("Control", object("Smart-default control state"))
	g.AddSchema("TriageRunPage", object("Paginated triage audit runs"))
	g.AddSchema("TriageRun", object("Audited evaluation"))

	g.Describe(
		openapi.Operation{Method: http.MethodGet, Path: "/health", Summary: "Liveness", Tag: "ops", Public: true},
		openapi.Operation{Method: http.MethodGet, Path: "/health/db", Summary: "Audit storage health", Tag: "ops", Public: true},
		openapi.Operation{Method: http.MethodGet, Path: "/metrics", Summary: "Prometheus metrics", Tag: "ops", Public: true},
		openapi.Operation{Method: http.MethodGet, Path: "/openapi.json", Summary: "This document", Tag: "ops", Public: true},
		openapi.Operation{Method: http.MethodGet, Path: "/docs", Summary: "Swagger UI", Tag: "ops", Public: true},
		openapi.Operation{Method: http.MethodGet, Path: "/ws", Summary: "Live plan and smart-default events", Tag: "events"},
		openapi.Operation{Method: http.MethodGet, Path: "/cds-services", Summary: "CDS Hooks discovery", Tag: "cds-hooks", Public: true},
		openapi.Operation{Method: http.MethodPost, Path: "/cds-services/:id", Summary: "Invoke a CDS Hooks service", Tag: "cds-hooks"},
		openapi.Operation{Method: http.MethodPost, Path: "/cds-services/:id/feedback", Summary: "Card feedback", Tag: "cds-hooks"},
		openapi.Operation{Method: http.MethodPost, Path: "/api/v1/triage", Summary: "Triage a CDS analysis", Tag: "triage", RequestBody: "TriageRequest", Response: "TriageResponse"},
		openapi.Operation{Method: http.MethodPost, Path: "/api/v1/followup-sessions", Summary: "Open a follow-up session", Tag: "sessions", RequestBody: "OpenSessionRequest", Response: "SessionSnapshot"},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/followup-sessions/:id", Summary: "Read a follow-up session", Tag: "sessions", Response: "SessionSnapshot"},
		openapi.Operation{Method: http.MethodDelete, Path: "/api/v1/followup-sessions/:id", Summary: "Close a follow-up session", Tag: "sessions"},
		openapi.Operation{Method: http.MethodPost, Path: "/api/v1/followup-sessions/:id/evaluate", Summary: "Evaluate the session context", Tag: "sessions", Response: "EvaluationOutcome"},
		openapi.Operation{Method: http.MethodPost, Path: "/api/v1/followup-sessions/:id/controls/:control", Summary: "Set a smart-default control", Tag: "sessions", RequestBody: "TouchRequest", Response: "Control"},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/triage-runs", Summary: "List audited runs", Tag: "audit", Response: "TriageRunPage"},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/triage-runs/:id", Summary: "Read an audited run", Tag: "audit", Response: "TriageRun"},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/triage-runs/:id/events", Summary: "Smart-default events of a run", Tag: "audit"},
		openapi.Operation{Method: http.MethodPost, Path: "/api/v1/auth/revoke", Summary: "Revoke a token", Tag: "auth"},
		openapi.Operation{Method: http.MethodPost, Path: "/api/v1/auth/revoke-user", Summary: "Revoke every token of a user", Tag: "auth"},
		openapi.Operation{Method: http.MethodGet, Path: "/api/v1/auth/revocations", Summary: "List revocations", Tag: "auth"},
	)
	return g
}
