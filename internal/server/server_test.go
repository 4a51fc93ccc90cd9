package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"hireline/internal/config"
	"hireline/internal/db"
	"hireline/internal/domain"
	"hireline/internal/engine"
	"hireline/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	return newTestServerWith(t, config.Default())
}

func newTestServerWith(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler, err := New(Config{Engine: e, BasePath: "/v1"})
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
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
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

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func seedMarketplace(t *testing.T, srv *testServer) (employerID, candidateID, jobID string) {
	t.Helper()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/employers", map[string]any{"name": "Acme"}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create employer status %d: %s", res.StatusCode, string(data))
	}
	var emp domain.Employer
	_ = json.Unmarshal(data, &emp)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/candidates", map[string]any{
		"name":     "Jordan Li",
		"headline": "backend engineer",
		"skills":   []map[string]any{{"name": "Go", "level": "senior"}},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create candidate status %d: %s", res.StatusCode, string(data))
	}
	var cand domain.Candidate
	_ = json.Unmarshal(data, &cand)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs", map[string]any{
		"employer_id": emp.ID,
		"title":       "Go Developer",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create job status %d: %s", res.StatusCode, string(data))
	}
	var job domain.Job
	_ = json.Unmarshal(data, &job)

	return emp.ID, cand.ID, job.ID
}

func TestApplicationFlow(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	_, candID, jobID := seedMarketplace(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/"+jobID+"/applications", map[string]any{
		"candidate_id": candID,
		"match_score":  0.82,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var app ApplicationResponse
	_ = json.Unmarshal(data, &app)
	if app.Status != "APPLIED" {
		t.Fatalf("status = %s, want APPLIED", app.Status)
	}

	// Bundled view + transition from the employer's inbox.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/applications/"+app.ID, map[string]any{
		"to_status":   "interview",
		"note":        "strong Go background",
		"mark_viewed": true,
	}, map[string]string{"X-Actor-Id": "recruiter-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	var updated ApplicationResponse
	_ = json.Unmarshal(data, &updated)
	if updated.Status != "INTERVIEW" {
		t.Fatalf("status = %s, want INTERVIEW", updated.Status)
	}
	if updated.ViewedByEmployerAt == nil {
		t.Fatal("viewed_by_employer_at not set")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/applications/"+app.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("read model status %d: %s", res.StatusCode, string(data))
	}
	var detail ApplicationDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if len(detail.History) != 2 {
		t.Fatalf("history entries = %d, want 2", len(detail.History))
	}
	if detail.History[0].ToStatus != "INTERVIEW" || detail.History[0].ChangedBy != "recruiter-1" {
		t.Fatalf("newest history = %+v", detail.History[0])
	}
	if detail.History[1].FromStatus != nil {
		t.Fatalf("initial history has from_status %v", *detail.History[1].FromStatus)
	}
	if len(detail.Profile.Skills) != 1 || detail.Profile.Skills[0].Name != "Go" {
		t.Fatalf("profile skills = %+v", detail.Profile.Skills)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/activity?application_id="+app.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("activity status %d: %s", res.StatusCode, string(data))
	}
	var acts []ActivityResponse
	_ = json.Unmarshal(data, &acts)
	if len(acts) != 3 {
		t.Fatalf("activity entries = %d, want 3 (submitted, viewed, status changed)", len(acts))
	}
}

func TestErrorEnvelopes(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	_, candID, jobID := seedMarketplace(t, srv)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/applications/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "not_found" {
		t.Fatalf("code = %s, want not_found", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/"+jobID+"/applications", map[string]any{
		"candidate_id": candID,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var app ApplicationResponse
	_ = json.Unmarshal(data, &app)

	// Duplicate submission trips the unique job/candidate pair.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/"+jobID+"/applications", map[string]any{
		"candidate_id": candID,
	}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status %d, want 409: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "duplicate_application" {
		t.Fatalf("code = %s, want duplicate_application", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/applications/"+app.ID, map[string]any{
		"to_status": "FROZEN",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown status %d, want 400: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "unknown_status" {
		t.Fatalf("code = %s, want unknown_status", env.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/applications/"+app.ID, map[string]any{
		"to_status": "HIRED",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("invalid transition status %d, want 422: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "invalid_transition" {
		t.Fatalf("code = %s, want invalid_transition", env.Error.Code)
	}
	if env.Error.Details["from"] != "APPLIED" || env.Error.Details["to"] != "HIRED" {
		t.Fatalf("details = %v", env.Error.Details)
	}

	// Empty PATCH body is a valid no-op.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/applications/"+app.ID, map[string]any{}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("no-op status %d, want 200: %s", res.StatusCode, string(data))
	}
	var unchanged ApplicationResponse
	_ = json.Unmarshal(data, &unchanged)
	if unchanged.Status != "APPLIED" {
		t.Fatalf("no-op status = %s, want APPLIED", unchanged.Status)
	}
}

func TestConversationEndpoints(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	empID, candID, jobID := seedMarketplace(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/conversations", map[string]any{
		"job_id":       jobID,
		"employer_id":  empID,
		"candidate_id": candID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	var first ConversationResponse
	_ = json.Unmarshal(data, &first)

	// Omitting employer_id resolves it from the job and finds the same thread.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conversations", map[string]any{
		"job_id":       jobID,
		"candidate_id": candID,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("restart status %d: %s", res.StatusCode, string(data))
	}
	var again ConversationResponse
	_ = json.Unmarshal(data, &again)
	if again.ID != first.ID {
		t.Fatalf("conversation id changed: %s vs %s", again.ID, first.ID)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/conversations/"+first.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	var detail ConversationDetailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if detail.Conversation.ID != first.ID || len(detail.Messages) != 0 {
		t.Fatalf("detail = %+v", detail)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/conversations", map[string]any{
		"job_id":       "job-missing",
		"candidate_id": candID,
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing job status %d, want 400: %s", res.StatusCode, string(data))
	}
	var env errorEnvelope
	_ = json.Unmarshal(data, &env)
	if env.Error.Code != "invalid_reference" {
		t.Fatalf("code = %s, want invalid_reference", env.Error.Code)
	}
}

func TestSystemActorFallback(t *testing.T) {
	srv := newTestServer(t)
	client := srv.Client()
	_, candID, jobID := seedMarketplace(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/"+jobID+"/applications", map[string]any{
		"candidate_id": candID,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var app ApplicationResponse
	_ = json.Unmarshal(data, &app)

	// No credentials at all: the change is attributed to the system actor.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/applications/"+app.ID, map[string]any{
		"to_status": "REVIEWED",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/applications/"+app.ID+"/history", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history []StatusHistoryResponse
	_ = json.Unmarshal(data, &history)
	if len(history) != 2 || history[0].ChangedBy != "system" {
		t.Fatalf("history = %+v, want newest changed_by system", history)
	}

	// Garbage bearer tokens are rejected, not downgraded to system.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/applications/"+app.ID, map[string]any{
		"to_status": "SHORTLISTED",
	}, map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status %d, want 401: %s", res.StatusCode, string(data))
	}
}

func TestLegacyActorHeaderDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.AllowLegacyActorHeader = false
	srv := newTestServerWith(t, cfg)
	client := srv.Client()
	_, candID, jobID := seedMarketplace(t, srv)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/jobs/"+jobID+"/applications", map[string]any{
		"candidate_id": candID,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit status %d: %s", res.StatusCode, string(data))
	}
	var app ApplicationResponse
	_ = json.Unmarshal(data, &app)

	// With the legacy header disabled, X-Actor-Id is ignored and the change
	// is attributed to the system actor.
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/applications/"+app.ID, map[string]any{
		"to_status": "REVIEWED",
	}, map[string]string{"X-Actor-Id": "recruiter-1"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/applications/"+app.ID+"/history", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history []StatusHistoryResponse
	_ = json.Unmarshal(data, &history)
	if len(history) != 2 || history[0].ChangedBy != "system" {
		t.Fatalf("history = %+v, want newest changed_by system", history)
	}
}
