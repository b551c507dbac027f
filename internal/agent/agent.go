// Package agent implements the computer-use session state machine: one
// active session at a time, plans decomposed from operator goals, a
// confirm-before-execute policy for irreversible actions, and an append-only
// audit log persisted through a best-effort store.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"screenpilot/internal/config"
	"screenpilot/internal/domain"
	"screenpilot/internal/policy"
	"screenpilot/internal/store"
)

var (
	ErrNoActiveSession      = errors.New("no active session")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrActionNotFound       = errors.New("action not found")
	ErrConfirmationRequired = errors.New("action requires confirmation before execution")
	ErrPlanCreationFailed   = errors.New("plan creation failed")
	ErrNotConfigured        = errors.New("reasoning model credential not configured")
)

// Planner is the reasoning-model collaborator.
type Planner interface {
	Plan(ctx context.Context, goal string, screenshot []byte) (domain.PlanDraft, error)
	Analyze(ctx context.Context, screenshot []byte) (domain.ScreenAnalysis, error)
}

// Capturer is the screenshot-capture collaborator.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
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

// Agent owns the single active session. All public operations are atomic;
// the internal mutex stands in for the single-threaded event model of the
// original environment.
type Agent struct {
	Store    store.Store
	Planner  Planner
	Capturer Capturer
	Policy   *policy.Policy
	Config   *config.Config
	Now      func() time.Time

	mu      sync.Mutex
	current *domain.Session
}

func New(st store.Store, pl Planner, cap Capturer, cfg *config.Config) *Agent {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Agent{
		Store:    st,
		Planner:  pl,
		Capturer: cap,
		Policy:   policy.New(cfg.Policy.ExtraKeywords),
		Config:   cfg,
		Now:      time.Now,
	}
}

func (a *Agent) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *Agent) timestamp() string {
	return a.now().UTC().Format(time.RFC3339)
}

// IsConfigured reports whether a reasoning-model credential is present.
func (a *Agent) IsConfigured() bool {
	return a.Config.IsConfigured()
}

// StartSession begins a new active session, finalizing any prior one first.
func (a *Agent) StartSession(ctx context.Context) domain.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil && a.current.Active {
		a.endSessionLocked(ctx)
	}
	s := domain.Session{
		ID:        uuid.New().String(),
		StartedAt: a.timestamp(),
		Active:    true,
		Plans:     []domain.Plan{},
		AuditLog:  []domain.AuditLogEntry{},
	}
	a.current = &s
	a.appendEntryLocked(domain.EntrySessionStart, "Session started", nil, "")
	a.persistLocked(ctx)
	return a.current.Clone()
}

// EndSession finalizes the active session; no-op if none is active.
func (a *Agent) EndSession(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return
	}
	a.endSessionLocked(ctx)
}

func (a *Agent) endSessionLocked(ctx context.Context) {
	ended := a.timestamp()
	a.current.Active = false
	a.current.EndedAt = &ended
	a.appendEntryLocked(domain.EntrySessionEnd, "Session ended", nil, "")
	a.persistLocked(ctx)
	a.current = nil
}

// CurrentSession returns a snapshot of the in-memory session, or nil. It
// never reads persistent storage.
func (a *Agent) CurrentSession() *domain.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	s := a.current.Clone()
	return &s
}

// AllSessions returns every persisted session, oldest first.
func (a *Agent) AllSessions(ctx context.Context) []domain.Session {
	return a.Store.Load(ctx)
}

// ClearSessions wipes all persisted sessions and drops the active one.
func (a *Agent) ClearSessions(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.Store.Clear(ctx); err != nil {
		return err
	}
	a.current = nil
	return nil
}

// Resume adopts the most recently persisted active session as the in-memory
// one. This is adapter glue for callers that outlive a single process run;
// it does nothing when a session is already held.
func (a *Agent) Resume(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		return true
	}
	sessions := a.Store.Load(ctx)
	for i := len(sessions) - 1; i >= 0; i-- {
		if sessions[i].Active {
			s := sessions[i].Clone()
			a.current = &s
			return true
		}
	}
	return false
}

// CreatePlan asks the reasoning model to decompose a goal and materializes
// the reply into pending actions with the confirmation policy applied.
func (a *Agent) CreatePlan(ctx context.Context, goal string, screenshot []byte) (domain.Plan, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || !a.current.Active {
		return domain.Plan{}, ErrNoActiveSession
	}
	if a.Planner == nil {
		return domain.Plan{}, ErrNotConfigured
	}
	draft, err := a.Planner.Plan(ctx, goal, screenshot)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("%w: %v", ErrPlanCreationFailed, err)
	}
	now := a.timestamp()
	actions := make([]domain.Action, 0, len(draft.Steps))
	for _, step := range draft.Steps {
		flags := a.Policy.Strengthen(policy.Flags{
			RequiresConfirmation: step.RequiresConfirmation,
			IsIrreversible:       step.IsIrreversible,
		}, step.Description)
		actions = append(actions, domain.Action{
			ID:                   uuid.New().String(),
			Kind:                 domain.ActionKind(step.Type),
			Description:          step.Description,
			Parameters:           step.Parameters,
			RequiresConfirmation: flags.RequiresConfirmation,
			IsIrreversible:       flags.IsIrreversible,
			Status:               domain.ActionPending,
			CreatedAt:            now,
		})
	}
	plan := domain.Plan{
		ID:        uuid.New().String(),
		Goal:      goal,
		Reasoning: draft.Reasoning,
		Actions:   actions,
		Status:    domain.PlanAwaitingConfirmation,
		CreatedAt: now,
	}
	a.current.Plans = append(a.current.Plans, plan)
	a.appendEntryLocked(domain.EntryPlanCreated, fmt.Sprintf("Plan created for goal: %s", goal), map[string]any{
		"plan_id": plan.ID,
		"steps":   len(plan.Actions),
	}, "")
	a.persistLocked(ctx)
	return plan.Clone(), nil
}

// ConfirmAction marks an action as confirmed. The transition is
// unconditional: re-confirming an already-confirmed or terminal action
// simply re-stamps it.
func (a *Agent) ConfirmAction(ctx context.Context, planID, actionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, action, err := a.findActionLocked(planID, actionID)
	if err != nil {
		return err
	}
	action.Status = domain.ActionConfirmed
	a.appendEntryLocked(domain.EntryActionConfirmed, fmt.Sprintf("Action confirmed: %s", action.Description), map[string]any{
		"plan_id":   planID,
		"action_id": actionID,
	}, "")
	a.persistLocked(ctx)
	return nil
}

// CancelAction marks an action as cancelled.
func (a *Agent) CancelAction(ctx context.Context, planID, actionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, action, err := a.findActionLocked(planID, actionID)
	if err != nil {
		return err
	}
	action.Status = domain.ActionCancelled
	a.appendEntryLocked(domain.EntryActionCancelled, fmt.Sprintf("Action cancelled: %s", action.Description), map[string]any{
		"plan_id":   planID,
		"action_id": actionID,
	}, "")
	a.persistLocked(ctx)
	return nil
}

// CancelPlan cancels the plan and every action that has not yet reached a
// terminal state. Executed and failed actions keep their history.
func (a *Agent) CancelPlan(ctx context.Context, planID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	plan, err := a.findPlanLocked(planID)
	if err != nil {
		return err
	}
	plan.Status = domain.PlanCancelled
	cancelled := 0
	for i := range plan.Actions {
		st := plan.Actions[i].Status
		if st == domain.ActionPending || st == domain.ActionConfirmed {
			plan.Actions[i].Status = domain.ActionCancelled
			cancelled++
		}
	}
	a.appendEntryLocked(domain.EntryActionCancelled, fmt.Sprintf("Plan cancelled: %s", plan.Goal), map[string]any{
		"plan_id":           planID,
		"actions_cancelled": cancelled,
	}, "")
	a.persistLocked(ctx)
	return nil
}

// AnalyzeScreen describes a captured screen. Analysis is advisory, so any
// failure degrades to an empty payload instead of an error.
func (a *Agent) AnalyzeScreen(ctx context.Context, screenshot []byte) domain.ScreenAnalysis {
	empty := domain.ScreenAnalysis{
		Elements:         []domain.ScreenElement{},
		SuggestedActions: []string{},
	}
	if a.Planner == nil {
		return empty
	}
	analysis, err := a.Planner.Analyze(ctx, screenshot)
	if err != nil {
		return empty
	}
	if analysis.Elements == nil {
		analysis.Elements = []domain.ScreenElement{}
	}
	if analysis.SuggestedActions == nil {
		analysis.SuggestedActions = []string{}
	}
	return analysis
}

// ExportAuditLog returns the ordered audit entries for the named session, or
// for the current session when sessionID is empty. Unknown sessions yield an
// empty list.
func (a *Agent) ExportAuditLog(ctx context.Context, sessionID string) []domain.AuditLogEntry {
	a.mu.Lock()
	current := a.current
	var snapshot []domain.AuditLogEntry
	if current != nil && (sessionID == "" || sessionID == current.ID) {
		snapshot = current.Clone().AuditLog
	}
	a.mu.Unlock()
	if snapshot != nil {
		return snapshot
	}
	if sessionID == "" {
		return []domain.AuditLogEntry{}
	}
	for _, s := range a.Store.Load(ctx) {
		if s.ID == sessionID {
			return s.Clone().AuditLog
		}
	}
	return []domain.AuditLogEntry{}
}

// --- internal helpers (a.mu must be held) ---

func (a *Agent) findPlanLocked(planID string) (*domain.Plan, error) {
	if a.current == nil {
		return nil, ErrPlanNotFound
	}
	for i := range a.current.Plans {
		if a.current.Plans[i].ID == planID {
			return &a.current.Plans[i], nil
		}
	}
	return nil, ErrPlanNotFound
}

func (a *Agent) findActionLocked(planID, actionID string) (*domain.Plan, *domain.Action, error) {
	plan, err := a.findPlanLocked(planID)
	if err != nil {
		return nil, nil, err
	}
	for i := range plan.Actions {
		if plan.Actions[i].ID == actionID {
			return plan, &plan.Actions[i], nil
		}
	}
	return nil, nil, ErrActionNotFound
}

func (a *Agent) appendEntryLocked(kind domain.EntryKind, description string, details map[string]any, screenshot string) {
	if a.current == nil {
		return
	}
	a.current.AuditLog = append(a.current.AuditLog, domain.AuditLogEntry{
		ID:          uuid.New().String(),
		TS:          a.timestamp(),
		Kind:        kind,
		Description: description,
		Details:     details,
		Screenshot:  screenshot,
	})
}

// persistLocked rewrites the persisted session array with the current
// session folded in. Store failures are absorbed by the store itself.
func (a *Agent) persistLocked(ctx context.Context) {
	if a.current == nil {
		return
	}
	sessions := a.Store.Load(ctx)
	replaced := false
	for i := range sessions {
		if sessions[i].ID == a.current.ID {
			sessions[i] = a.current.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, a.current.Clone())
	}
	a.Store.Save(ctx, sessions)
}
