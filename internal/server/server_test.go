package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"screenpilot/internal/agent"
	"screenpilot/internal/config"
	"screenpilot/internal/db"
	"screenpilot/internal/domain"
	"screenpilot/internal/migrate"
	"screenpilot/internal/store"
)

type stubPlanner struct {
	draft   domain.PlanDraft
	planErr error
}

func (s stubPlanner) Plan(ctx context.Context, goal string, screenshot []byte) (domain.PlanDraft, error) {
	return s.draft, s.planErr
}

func (s stubPlanner) Analyze(ctx context.Context, screenshot []byte) (domain.ScreenAnalysis, error) {
	return domain.ScreenAnalysis{Description: "a desktop", Elements: []domain.ScreenElement{}, SuggestedActions: []string{}}, nil
}

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, pl agent.Planner, auth AuthConfig) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Executor.SimulateDelayMS = 0
	a := agent.New(store.Store{DB: conn}, pl, nil, cfg)
	handler, err := New(Config{Agent: a, BasePath: "/v1", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, data)
	}
	return envelope.Error.Code
}

func TestSessionPlanLifecycle(t *testing.T) {
	pl := stubPlanner{draft: domain.PlanDraft{
		Reasoning: "open then delete",
		Steps: []domain.DraftStep{
			{Type: "click", Description: "Click the inbox"},
			{Type: "click", Description: "Delete the draft email"},
		},
	}}
	srv := newTestServer(t, pl, AuthConfig{})
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", nil, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("start session status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/plans", map[string]any{"goal": "tidy inbox"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create plan status %d: %s", res.StatusCode, data)
	}
	var planResp struct {
		Plan domain.Plan `json:"plan"`
	}
	if err := json.Unmarshal(data, &planResp); err != nil {
		t.Fatalf("unmarshal plan: %v", err)
	}
	plan := planResp.Plan
	if len(plan.Actions) != 2 || !plan.Actions[1].RequiresConfirmation {
		t.Fatalf("unexpected plan: %+v", plan)
	}

	// destructive action blocks until confirmed
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/plans/"+plan.ID+"/actions/"+plan.Actions[1].ID+"/run", nil, nil)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "confirmation_required" {
		t.Fatalf("expected confirmation_required, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/plans/"+plan.ID+"/actions/"+plan.Actions[1].ID+"/confirm", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("confirm status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/plans/"+plan.ID+"/run", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("run status %d: %s", res.StatusCode, data)
	}
	var summary agent.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary.Completed != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/audit", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("audit status %d: %s", res.StatusCode, data)
	}
	var audit struct {
		Entries []domain.AuditLogEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &audit); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	if len(audit.Entries) < 4 {
		t.Fatalf("expected start, plan, confirm and execute entries, got %d", len(audit.Entries))
	}
}

func TestCreatePlanWithoutSession(t *testing.T) {
	srv := newTestServer(t, stubPlanner{}, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/plans", map[string]any{"goal": "anything"}, nil)
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "no_active_session" {
		t.Fatalf("expected no_active_session, got %d: %s", res.StatusCode, data)
	}
}

func TestCreatePlanRequiresGoal(t *testing.T) {
	srv := newTestServer(t, stubPlanner{}, AuthConfig{})
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/sessions", nil, nil)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/plans", map[string]any{"goal": "  "}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", res.StatusCode, data)
	}
}

func TestPlanCreationFailureEnvelope(t *testing.T) {
	srv := newTestServer(t, stubPlanner{planErr: errors.New("model unreachable")}, AuthConfig{})
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/sessions", nil, nil)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/plans", map[string]any{"goal": "tidy inbox"}, nil)
	if res.StatusCode != http.StatusBadGateway || errorCode(t, data) != "plan_creation_failed" {
		t.Fatalf("expected plan_creation_failed, got %d: %s", res.StatusCode, data)
	}
}

func TestUnknownPlanReturnsNotFound(t *testing.T) {
	srv := newTestServer(t, stubPlanner{}, AuthConfig{})
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/sessions", nil, nil)
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/plans/nope/cancel", nil, nil)
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("expected not_found, got %d: %s", res.StatusCode, data)
	}
}

func TestCurrentSessionWhenNoneActive(t *testing.T) {
	srv := newTestServer(t, stubPlanner{}, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/sessions/current", nil, nil)
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "no_active_session" {
		t.Fatalf("expected no_active_session, got %d: %s", res.StatusCode, data)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	auth := AuthConfig{APIKeyHashes: []string{HashAPIKey("local-key")}}
	srv := newTestServer(t, stubPlanner{}, auth)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/sessions", nil, map[string]string{"X-Api-Key": "local-key"})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 with valid key, got %d: %s", res.StatusCode, data)
	}
	// health stays reachable without credentials
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must be exempt from auth, got %d", res.StatusCode)
	}
}

func TestJWTAuth(t *testing.T) {
	secret := "test-secret"
	srv := newTestServer(t, stubPlanner{}, AuthConfig{JWTSecret: secret})
	client := srv.Client()

	claims := jwt.RegisteredClaims{
		Subject:   "operator",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/status", nil, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d: %s", res.StatusCode, data)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/status", nil, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}
