package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"screenpilot/internal/domain"
)

// ExecuteAction runs a single action. Actions flagged as requiring
// confirmation must be confirmed first. Dispatch failures land on the action
// (status failed, error recorded) and come back as a failure result, never
// as a raised error.
func (a *Agent) ExecuteAction(ctx context.Context, planID, actionID string) (ActionResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	plan, action, err := a.findActionLocked(planID, actionID)
	if err != nil {
		return ActionResult{}, err
	}
	if action.RequiresConfirmation && action.Status != domain.ActionConfirmed {
		return ActionResult{}, ErrConfirmationRequired
	}
	res := a.dispatchLocked(ctx, action)
	a.refreshPlanStatusLocked(plan)
	a.persistLocked(ctx)
	return res, nil
}

// ExecutePlan drains the plan's runnable actions strictly in stored order.
// The first failure halts the run; later actions keep whatever status they
// had before (fail-fast, not best-effort).
func (a *Agent) ExecutePlan(ctx context.Context, planID string) (RunSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || !a.current.Active {
		return RunSummary{}, ErrNoActiveSession
	}
	plan, err := a.findPlanLocked(planID)
	if err != nil {
		return RunSummary{}, err
	}
	plan.Status = domain.PlanExecuting
	var summary RunSummary
	anyFailed := false
	for i := range plan.Actions {
		action := &plan.Actions[i]
		switch action.Status {
		case domain.ActionCancelled:
			summary.Cancelled++
			continue
		case domain.ActionPending:
			if action.RequiresConfirmation {
				continue
			}
			// Auto-run policy: non-destructive steps are promoted in place.
			action.Status = domain.ActionConfirmed
		case domain.ActionExecuted, domain.ActionFailed:
			continue
		}
		res := a.dispatchLocked(ctx, action)
		if res.Success {
			summary.Completed++
			continue
		}
		summary.Failed++
		anyFailed = true
		break
	}
	if anyFailed {
		plan.Status = domain.PlanFailed
	} else {
		plan.Status = domain.PlanCompleted
	}
	completed := a.timestamp()
	plan.CompletedAt = &completed
	a.persistLocked(ctx)
	return summary, nil
}

// dispatchLocked performs one action and records the terminal transition,
// audit entry, and persistence. Callers must hold a.mu.
func (a *Agent) dispatchLocked(ctx context.Context, action *domain.Action) ActionResult {
	switch action.Kind {
	case domain.ActionScreenshot:
		img, err := a.captureLocked(ctx)
		if err != nil {
			return a.failLocked(ctx, action, err)
		}
		return a.succeedLocked(ctx, action, "Screenshot captured",
			map[string]any{"action_id": action.ID, "bytes": len(img)},
			base64.StdEncoding.EncodeToString(img))
	case domain.ActionClick, domain.ActionType, domain.ActionScroll, domain.ActionKey:
		// No real input injection exists; the fixed delay and "Simulated"
		// result reproduce the placeholder behavior of the original tool.
		if err := sleepCtx(ctx, a.simulateDelay()); err != nil {
			return a.failLocked(ctx, action, err)
		}
		return a.succeedLocked(ctx, action, fmt.Sprintf("Simulated: %s", action.Description),
			map[string]any{"action_id": action.ID, "simulated": true}, "")
	case domain.ActionWait:
		d := a.waitDuration(action.Parameters)
		if err := sleepCtx(ctx, d); err != nil {
			return a.failLocked(ctx, action, err)
		}
		return a.succeedLocked(ctx, action, fmt.Sprintf("Waited %dms", d.Milliseconds()),
			map[string]any{"action_id": action.ID, "duration_ms": d.Milliseconds()}, "")
	default:
		return a.succeedLocked(ctx, action, fmt.Sprintf("Unknown action type %q", action.Kind),
			map[string]any{"action_id": action.ID}, "")
	}
}

func (a *Agent) captureLocked(ctx context.Context) ([]byte, error) {
	if a.Capturer == nil {
		return nil, fmt.Errorf("screenshot capture not available")
	}
	img, err := a.Capturer.Capture(ctx)
	if err != nil {
		return nil, err
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("screenshot capture denied")
	}
	return img, nil
}

func (a *Agent) succeedLocked(ctx context.Context, action *domain.Action, result string, details map[string]any, screenshot string) ActionResult {
	action.Status = domain.ActionExecuted
	action.Result = &result
	action.Error = nil
	a.appendEntryLocked(domain.EntryActionExecuted, fmt.Sprintf("Action executed: %s", action.Description), details, screenshot)
	a.persistLocked(ctx)
	return ActionResult{Success: true, Output: result}
}

func (a *Agent) failLocked(ctx context.Context, action *domain.Action, err error) ActionResult {
	msg := err.Error()
	action.Status = domain.ActionFailed
	action.Error = &msg
	a.appendEntryLocked(domain.EntryError, fmt.Sprintf("Action failed: %s", action.Description), map[string]any{
		"action_id": action.ID,
		"error":     msg,
	}, "")
	a.persistLocked(ctx)
	return ActionResult{Success: false, Error: msg}
}

// refreshPlanStatusLocked recomputes plan status after a standalone action
// transition. It only concludes a plan once every action is terminal; a run
// through ExecutePlan sets status explicitly instead.
func (a *Agent) refreshPlanStatusLocked(plan *domain.Plan) {
	if plan.Status.Terminal() {
		return
	}
	anyFailed := false
	for i := range plan.Actions {
		if !plan.Actions[i].Status.Terminal() {
			return
		}
		if plan.Actions[i].Status == domain.ActionFailed {
			anyFailed = true
		}
	}
	if anyFailed {
		plan.Status = domain.PlanFailed
	} else {
		plan.Status = domain.PlanCompleted
	}
	completed := a.timestamp()
	plan.CompletedAt = &completed
}

func (a *Agent) simulateDelay() time.Duration {
	ms := a.Config.Executor.SimulateDelayMS
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// waitDuration reads the caller-supplied duration_ms parameter, falling back
// to the configured default. JSON numbers decode as float64.
func (a *Agent) waitDuration(params map[string]any) time.Duration {
	ms := a.Config.Executor.DefaultWaitMS
	if v, ok := params["duration_ms"]; ok {
		switch n := v.(type) {
		case float64:
			ms = int(n)
		case int:
			ms = n
		}
	}
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
