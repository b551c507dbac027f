package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"screenpilot/internal/agent"
	"screenpilot/internal/domain"
)

// Config for the HTTP API handler.
type Config struct {
	Agent    *agent.Agent
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"confirmation_required"`
	Message string         `json:"message" example:"action requires confirmation before execution"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the agent API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Screenpilot API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerStatus(group, cfg.Agent)
	registerSessions(group, cfg.Agent)
	registerPlans(group, cfg.Agent)
	registerActions(group, cfg.Agent)
	registerAudit(group, cfg.Agent)
	registerAnalyze(group, cfg.Agent)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, agent.ErrPlanNotFound), errors.Is(err, agent.ErrActionNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, agent.ErrNoActiveSession):
		return newAPIError(http.StatusConflict, "no_active_session", err.Error(), nil)
	case errors.Is(err, agent.ErrConfirmationRequired):
		return newAPIError(http.StatusConflict, "confirmation_required", err.Error(), nil)
	case errors.Is(err, agent.ErrNotConfigured):
		return newAPIError(http.StatusServiceUnavailable, "not_configured", err.Error(), nil)
	case errors.Is(err, agent.ErrPlanCreationFailed):
		return newAPIError(http.StatusBadGateway, "plan_creation_failed", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, a *agent.Agent) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Agent status",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatusResponse `json:"body"`
	}, error) {
		return &struct {
			Body StatusResponse `json:"body"`
		}{Body: StatusResponse{
			Configured: a.IsConfigured(),
			Active:     a.CurrentSession() != nil,
		}}, nil
	})
}

func registerSessions(api huma.API, a *agent.Agent) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-session",
		Method:        http.MethodPost,
		Path:          "/sessions",
		Summary:       "Start a session",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		s := a.StartSession(ctx)
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Session: s}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List persisted sessions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionListResponse `json:"body"`
	}, error) {
		sessions := a.AllSessions(ctx)
		if sessions == nil {
			sessions = []domain.Session{}
		}
		return &struct {
			Body SessionListResponse `json:"body"`
		}{Body: SessionListResponse{Sessions: sessions}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "current-session",
		Method:      http.MethodGet,
		Path:        "/sessions/current",
		Summary:     "Current session snapshot",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		s := a.CurrentSession()
		if s == nil {
			return nil, newAPIError(http.StatusNotFound, "no_active_session", "no active session", nil)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Session: *s}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "end-session",
		Method:      http.MethodPost,
		Path:        "/sessions/current/end",
		Summary:     "End the current session",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		a.EndSession(ctx)
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ended"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-sessions",
		Method:      http.MethodDelete,
		Path:        "/sessions",
		Summary:     "Clear all persisted sessions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := a.ClearSessions(ctx); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "cleared"}}, nil
	})
}

func registerPlans(api huma.API, a *agent.Agent) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-plan",
		Method:        http.MethodPost,
		Path:          "/plans",
		Summary:       "Create a plan from a goal",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Body CreatePlanRequest `json:"body"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Goal) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "goal is required", nil)
		}
		var screenshot []byte
		if input.Body.Screenshot != "" {
			decoded, err := base64.StdEncoding.DecodeString(input.Body.Screenshot)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "screenshot must be base64", nil)
			}
			screenshot = decoded
		}
		plan, err := a.CreatePlan(ctx, input.Body.Goal, screenshot)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: PlanResponse{Plan: plan}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-plan",
		Method:      http.MethodPost,
		Path:        "/plans/{plan_id}/run",
		Summary:     "Execute a plan's confirmed actions in order",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PlanID string `path:"plan_id"`
	}) (*struct {
		Body agent.RunSummary `json:"body"`
	}, error) {
		summary, err := a.ExecutePlan(ctx, input.PlanID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body agent.RunSummary `json:"body"`
		}{Body: summary}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-plan",
		Method:      http.MethodPost,
		Path:        "/plans/{plan_id}/cancel",
		Summary:     "Cancel a plan and its non-terminal actions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PlanID string `path:"plan_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := a.CancelPlan(ctx, input.PlanID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "cancelled"}}, nil
	})
}

func registerActions(api huma.API, a *agent.Agent) {
	type actionPath struct {
		PlanID   string `path:"plan_id"`
		ActionID string `path:"action_id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "confirm-action",
		Method:      http.MethodPost,
		Path:        "/plans/{plan_id}/actions/{action_id}/confirm",
		Summary:     "Confirm an action",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *actionPath) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := a.ConfirmAction(ctx, input.PlanID, input.ActionID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "confirmed"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-action",
		Method:      http.MethodPost,
		Path:        "/plans/{plan_id}/actions/{action_id}/cancel",
		Summary:     "Cancel an action",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *actionPath) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if err := a.CancelAction(ctx, input.PlanID, input.ActionID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "cancelled"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-action",
		Method:      http.MethodPost,
		Path:        "/plans/{plan_id}/actions/{action_id}/run",
		Summary:     "Execute a single action",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *actionPath) (*struct {
		Body agent.ActionResult `json:"body"`
	}, error) {
		res, err := a.ExecuteAction(ctx, input.PlanID, input.ActionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body agent.ActionResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerAudit(api huma.API, a *agent.Agent) {
	huma.Register(api, huma.Operation{
		OperationID: "export-audit-log",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "Export the audit log for a session",
	}, func(ctx context.Context, input *struct {
		SessionID string `query:"session_id"`
	}) (*struct {
		Body AuditLogResponse `json:"body"`
	}, error) {
		entries := a.ExportAuditLog(ctx, input.SessionID)
		return &struct {
			Body AuditLogResponse `json:"body"`
		}{Body: AuditLogResponse{Entries: entries}}, nil
	})
}

func registerAnalyze(api huma.API, a *agent.Agent) {
	huma.Register(api, huma.Operation{
		OperationID: "analyze-screen",
		Method:      http.MethodPost,
		Path:        "/analyze",
		Summary:     "Describe a captured screen",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body AnalyzeRequest `json:"body"`
	}) (*struct {
		Body struct {
			Analysis any `json:"analysis"`
		} `json:"body"`
	}, error) {
		decoded, err := base64.StdEncoding.DecodeString(input.Body.Screenshot)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "screenshot must be base64", nil)
		}
		analysis := a.AnalyzeScreen(ctx, decoded)
		out := &struct {
			Body struct {
				Analysis any `json:"analysis"`
			} `json:"body"`
		}{}
		out.Body.Analysis = analysis
		return out, nil
	})
}
