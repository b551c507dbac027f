package screenpilotsdk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Screenpilot HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Session represents the API session model.
type Session struct {
	ID        string          `json:"id"`
	StartedAt string          `json:"started_at"`
	EndedAt   *string         `json:"ended_at,omitempty"`
	Active    bool            `json:"active"`
	Plans     []Plan          `json:"plans"`
	AuditLog  []AuditLogEntry `json:"audit_log"`
}

// Plan represents a decomposed goal.
type Plan struct {
	ID          string   `json:"id"`
	Goal        string   `json:"goal"`
	Reasoning   string   `json:"reasoning,omitempty"`
	Actions     []Action `json:"actions"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	CompletedAt *string  `json:"completed_at,omitempty"`
}

// Action represents one step of a plan.
type Action struct {
	ID                   string         `json:"id"`
	Kind                 string         `json:"kind"`
	Description          string         `json:"description"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	IsIrreversible       bool           `json:"is_irreversible"`
	Status               string         `json:"status"`
	CreatedAt            string         `json:"created_at"`
	Result               *string        `json:"result,omitempty"`
	Error                *string        `json:"error,omitempty"`
}

// AuditLogEntry represents one audit record.
type AuditLogEntry struct {
	ID          string         `json:"id"`
	TS          string         `json:"ts"`
	Kind        string         `json:"kind"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	Screenshot  string         `json:"screenshot,omitempty"`
}

// ActionResult is the outcome of executing one action.
type ActionResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunSummary tallies a plan run.
type RunSummary struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// ScreenAnalysis describes a captured screen.
type ScreenAnalysis struct {
	Description      string          `json:"description"`
	Elements         []ScreenElement `json:"elements"`
	SuggestedActions []string        `json:"suggestedActions"`
}

// ScreenElement is one element found on screen.
type ScreenElement struct {
	Type         string `json:"type"`
	Description  string `json:"description"`
	Interactable bool   `json:"interactable"`
}

// Status reports the agent's readiness.
type Status struct {
	Configured bool `json:"configured"`
	Active     bool `json:"active"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Status returns the agent status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, "status", nil, &resp)
	return resp, err
}

// StartSession starts a new session, ending any active one.
func (c *Client) StartSession(ctx context.Context) (Session, error) {
	var resp struct {
		Session Session `json:"session"`
	}
	err := c.do(ctx, http.MethodPost, "sessions", nil, &resp)
	return resp.Session, err
}

// EndSession ends the active session.
func (c *Client) EndSession(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "sessions/current/end", nil, nil)
}

// CurrentSession fetches the active session snapshot.
func (c *Client) CurrentSession(ctx context.Context) (Session, error) {
	var resp struct {
		Session Session `json:"session"`
	}
	err := c.do(ctx, http.MethodGet, "sessions/current", nil, &resp)
	return resp.Session, err
}

// Sessions lists persisted sessions, oldest first.
func (c *Client) Sessions(ctx context.Context) ([]Session, error) {
	var resp struct {
		Sessions []Session `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, "sessions", nil, &resp)
	return resp.Sessions, err
}

// ClearSessions deletes all persisted sessions.
func (c *Client) ClearSessions(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "sessions", nil, nil)
}

// CreatePlan decomposes a goal into actions. screenshot may be nil.
func (c *Client) CreatePlan(ctx context.Context, goal string, screenshot []byte) (Plan, error) {
	body := map[string]any{"goal": goal}
	if len(screenshot) > 0 {
		body["screenshot"] = base64.StdEncoding.EncodeToString(screenshot)
	}
	var resp struct {
		Plan Plan `json:"plan"`
	}
	err := c.do(ctx, http.MethodPost, "plans", body, &resp)
	return resp.Plan, err
}

// RunPlan executes a plan's confirmed actions in order.
func (c *Client) RunPlan(ctx context.Context, planID string) (RunSummary, error) {
	var resp RunSummary
	endpoint := fmt.Sprintf("plans/%s/run", url.PathEscape(planID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CancelPlan cancels a plan and its non-terminal actions.
func (c *Client) CancelPlan(ctx context.Context, planID string) error {
	endpoint := fmt.Sprintf("plans/%s/cancel", url.PathEscape(planID))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

// ConfirmAction confirms an action for execution.
func (c *Client) ConfirmAction(ctx context.Context, planID, actionID string) error {
	endpoint := fmt.Sprintf("plans/%s/actions/%s/confirm", url.PathEscape(planID), url.PathEscape(actionID))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

// CancelAction cancels an action.
func (c *Client) CancelAction(ctx context.Context, planID, actionID string) error {
	endpoint := fmt.Sprintf("plans/%s/actions/%s/cancel", url.PathEscape(planID), url.PathEscape(actionID))
	return c.do(ctx, http.MethodPost, endpoint, nil, nil)
}

// RunAction executes a single action.
func (c *Client) RunAction(ctx context.Context, planID, actionID string) (ActionResult, error) {
	var resp ActionResult
	endpoint := fmt.Sprintf("plans/%s/actions/%s/run", url.PathEscape(planID), url.PathEscape(actionID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// AuditLog returns the audit entries for a session; empty id means current.
func (c *Client) AuditLog(ctx context.Context, sessionID string) ([]AuditLogEntry, error) {
	endpoint := "audit"
	if sessionID != "" {
		endpoint = fmt.Sprintf("audit?session_id=%s", url.QueryEscape(sessionID))
	}
	var resp struct {
		Entries []AuditLogEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Entries, err
}

// Analyze describes a captured screen.
func (c *Client) Analyze(ctx context.Context, screenshot []byte) (ScreenAnalysis, error) {
	body := map[string]any{"screenshot": base64.StdEncoding.EncodeToString(screenshot)}
	var resp struct {
		Analysis ScreenAnalysis `json:"analysis"`
	}
	err := c.do(ctx, http.MethodPost, "analyze", body, &resp)
	return resp.Analysis, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
