package domain

// ActionKind identifies what an action does when executed.
type ActionKind string

const (
	ActionScreenshot ActionKind = "screenshot"
	ActionClick      ActionKind = "click"
	ActionType       ActionKind = "type"
	ActionScroll     ActionKind = "scroll"
	ActionKey        ActionKind = "key"
	ActionWait       ActionKind = "wait"
)

// ActionStatus follows pending -> confirmed -> executed/failed, with
// cancelled reachable from pending or confirmed.
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionConfirmed ActionStatus = "confirmed"
	ActionExecuted  ActionStatus = "executed"
	ActionFailed    ActionStatus = "failed"
	ActionCancelled ActionStatus = "cancelled"
)

// Terminal reports whether the status can no longer change.
func (s ActionStatus) Terminal() bool {
	return s == ActionExecuted || s == ActionFailed || s == ActionCancelled
}

type PlanStatus string

const (
	PlanPlanning             PlanStatus = "planning"
	PlanAwaitingConfirmation PlanStatus = "awaiting_confirmation"
	PlanExecuting            PlanStatus = "executing"
	PlanCompleted            PlanStatus = "completed"
	PlanFailed               PlanStatus = "failed"
	PlanCancelled            PlanStatus = "cancelled"
)

func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanFailed || s == PlanCancelled
}

// EntryKind classifies audit log entries.
type EntryKind string

const (
	EntrySessionStart    EntryKind = "session_start"
	EntrySessionEnd      EntryKind = "session_end"
	EntryPlanCreated     EntryKind = "plan_created"
	EntryActionConfirmed EntryKind = "action_confirmed"
	EntryActionExecuted  EntryKind = "action_executed"
	EntryActionCancelled EntryKind = "action_cancelled"
	EntryError           EntryKind = "error"
)

// Session is one bounded period of agent activity. At most one session is
// active at a time; the active one is owned exclusively by the agent and
// callers only ever see copies.
type Session struct {
	ID        string          `json:"id"`
	StartedAt string          `json:"started_at" format:"date-time"`
	EndedAt   *string         `json:"ended_at,omitempty" format:"date-time"`
	Active    bool            `json:"active"`
	Plans     []Plan          `json:"plans"`
	AuditLog  []AuditLogEntry `json:"audit_log"`
}

// Plan decomposes one operator goal into ordered, independently confirmable
// actions. Sequence position is the only ordering signal.
type Plan struct {
	ID          string     `json:"id"`
	Goal        string     `json:"goal"`
	Reasoning   string     `json:"reasoning,omitempty"`
	Actions     []Action   `json:"actions"`
	Status      PlanStatus `json:"status" enum:"planning,awaiting_confirmation,executing,completed,failed,cancelled"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	CompletedAt *string    `json:"completed_at,omitempty" format:"date-time"`
}

// Action is one atomic step. IsIrreversible implies RequiresConfirmation;
// the policy layer enforces that on materialization.
type Action struct {
	ID                   string         `json:"id"`
	Kind                 ActionKind     `json:"kind" enum:"screenshot,click,type,scroll,key,wait"`
	Description          string         `json:"description"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	IsIrreversible       bool           `json:"is_irreversible"`
	Status               ActionStatus   `json:"status" enum:"pending,confirmed,executed,failed,cancelled"`
	CreatedAt            string         `json:"created_at" format:"date-time"`
	Result               *string        `json:"result,omitempty"`
	Error                *string        `json:"error,omitempty"`
}

// AuditLogEntry is append-only: once written it is never edited or removed,
// except by whole-session eviction or an explicit clear-all.
type AuditLogEntry struct {
	ID          string         `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	Kind        EntryKind      `json:"kind"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	Screenshot  string         `json:"screenshot,omitempty"`
}

// PlanDraft is the reasoning model's reply to a planning request, decoded
// from the JSON object embedded in its free-text answer. Field names match
// the model contract, not this module's conventions.
type PlanDraft struct {
	Reasoning string      `json:"reasoning"`
	Steps     []DraftStep `json:"steps"`
}

type DraftStep struct {
	Type                 string         `json:"type"`
	Description          string         `json:"description"`
	Parameters           map[string]any `json:"parameters,omitempty"`
	RequiresConfirmation bool           `json:"requiresConfirmation"`
	IsIrreversible       bool           `json:"isIrreversible"`
}

// ScreenAnalysis is the advisory description of a captured screen.
type ScreenAnalysis struct {
	Description      string          `json:"description"`
	Elements         []ScreenElement `json:"elements"`
	SuggestedActions []string        `json:"suggestedActions"`
}

type ScreenElement struct {
	Type         string `json:"type"`
	Description  string `json:"description"`
	Interactable bool   `json:"interactable"`
}

// Clone returns a deep copy so that callers can hold a snapshot while the
// agent keeps mutating the live session.
func (s Session) Clone() Session {
	out := s
	out.EndedAt = clonePtr(s.EndedAt)
	out.Plans = make([]Plan, len(s.Plans))
	for i, p := range s.Plans {
		out.Plans[i] = p.Clone()
	}
	out.AuditLog = make([]AuditLogEntry, len(s.AuditLog))
	for i, e := range s.AuditLog {
		out.AuditLog[i] = e.Clone()
	}
	return out
}

func (p Plan) Clone() Plan {
	out := p
	out.CompletedAt = clonePtr(p.CompletedAt)
	out.Actions = make([]Action, len(p.Actions))
	for i, a := range p.Actions {
		out.Actions[i] = a.Clone()
	}
	return out
}

func (a Action) Clone() Action {
	out := a
	out.Parameters = cloneMap(a.Parameters)
	out.Result = clonePtr(a.Result)
	out.Error = clonePtr(a.Error)
	return out
}

func (e AuditLogEntry) Clone() AuditLogEntry {
	out := e
	out.Details = cloneMap(e.Details)
	return out
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
