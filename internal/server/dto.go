package server

import "screenpilot/internal/domain"

// Request payloads

type CreatePlanRequest struct {
	Goal       string `json:"goal"`
	Screenshot string `json:"screenshot,omitempty" doc:"base64-encoded PNG of the current screen"`
}

type AnalyzeRequest struct {
	Screenshot string `json:"screenshot" doc:"base64-encoded PNG to analyze"`
}

// Response payloads

type SessionResponse struct {
	Session domain.Session `json:"session"`
}

type SessionListResponse struct {
	Sessions []domain.Session `json:"sessions"`
}

type PlanResponse struct {
	Plan domain.Plan `json:"plan"`
}

type StatusResponse struct {
	Configured bool `json:"configured"`
	Active     bool `json:"active"`
}

type AuditLogResponse struct {
	Entries []domain.AuditLogEntry `json:"entries"`
}
