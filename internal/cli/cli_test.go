package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

// recordedRequest — запрос, полученный фейковым API.
type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// fakeAPI отвечает заранее заданными ответами и записывает запросы.
type fakeAPI struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()

	f := &fakeAPI{responses: make(map[string]fakeResponse)}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			json.Unmarshal(data, &req.Body)
		}

		f.mu.Lock()
		f.requests = append(f.requests, req)
		resp, ok := f.responses[r.Method+" "+r.URL.Path]
		f.mu.Unlock()

		if !ok {
			resp = fakeResponse{http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"no route"}}`}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.status)
		io.WriteString(w, resp.body)
	}))
	t.Cleanup(server.Close)

	return f, server
}

func (f *fakeAPI) on(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = fakeResponse{status, body}
}

func (f *fakeAPI) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

// run выполняет команду CLI и возвращает stdout и stderr.
func run(t *testing.T, serverURL string, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	clientFn := func() *Client { return NewClient(serverURL) }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }

	root := &cobra.Command{Use: "squad", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(NewExecutionCmd(clientFn, outputFn), NewMessageCmd(clientFn, outputFn))
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

const execID = "7d3f9a52-2f7e-4a43-9b0c-5f1f1b3c2a10"

// --- Client Tests ---

func TestClient_APIError(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodPost, "/api/v1/executions/"+execID+"/complete", http.StatusUnprocessableEntity,
		`{"error":{"code":"INVALID_STATE","message":"invalid state transition: in_progress -> completed"}}`)

	_, err := NewClient(server.URL).CompleteExecution(execID, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Code != "INVALID_STATE" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}

func TestClient_APIError_NonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).ListExecutions("")
	if err == nil || err.Error() != "API error: HTTP 502" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestClient_Inbox_Query(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodGet, "/api/v1/messages/backend-1", http.StatusOK, `{"data":[],"total":0}`)

	if _, err := NewClient(server.URL).Inbox("backend-1", "2026-01-01T00:00:00Z", 5); err != nil {
		t.Fatalf("Inbox: %v", err)
	}

	q := f.last(t).Query
	if !strings.Contains(q, "limit=5") || !strings.Contains(q, "since=2026-01-01T00%3A00%3A00Z") {
		t.Errorf("unexpected query: %s", q)
	}
}

// --- Execution Command Tests ---

func TestExecutionStart(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodPost, "/api/v1/executions", http.StatusCreated,
		`{"data":{"execution_id":"`+execID+`","state":"in_progress"}}`)

	stdout, stderr, err := run(t, server.URL, false,
		"execution", "start", "Add login endpoint",
		"--description", "- [ ] schema\n- [ ] handler",
		"--criteria", "returns 200",
	)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	req := f.last(t)
	task, _ := req.Body["task"].(map[string]any)
	if task["title"] != "Add login endpoint" {
		t.Errorf("unexpected task: %v", req.Body)
	}
	if _, ok := task["id"]; ok {
		t.Error("empty task id should be omitted")
	}
	if _, ok := req.Body["team_id"]; ok {
		t.Error("empty team id should be omitted")
	}
	if !strings.Contains(stderr, "Execution started: "+execID) {
		t.Errorf("unexpected stderr: %q", stderr)
	}
	if !strings.Contains(stdout, "in_progress") {
		t.Errorf("unexpected stdout: %q", stdout)
	}
}

func TestExecutionStart_Warning(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodPost, "/api/v1/executions", http.StatusCreated,
		`{"data":{"execution_id":"`+execID+`","state":"blocked","warning":"no eligible worker"}}`)

	_, stderr, err := run(t, server.URL, false, "execution", "start", "Deploy")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(stderr, "Warning: no eligible worker") {
		t.Errorf("expected warning in stderr, got %q", stderr)
	}
}

func TestExecutionList_JSON(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodGet, "/api/v1/executions", http.StatusOK,
		`{"data":[{"id":"`+execID+`","state":"blocked","open_blockers":2}],"total":1}`)

	stdout, _, err := run(t, server.URL, true, "execution", "list", "--state", "blocked")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if q := f.last(t).Query; q != "state=blocked" {
		t.Errorf("unexpected query: %s", q)
	}

	var list []ExecutionSummary
	if err := json.Unmarshal([]byte(stdout), &list); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if len(list) != 1 || list[0].OpenBlockers != 2 {
		t.Errorf("unexpected list: %+v", list)
	}
}

func TestExecutionShow_Table(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodGet, "/api/v1/executions/"+execID, http.StatusOK, `{"data":{
		"id":"`+execID+`","state":"analyzing",
		"log":[{"at":"t0","kind":"created","to":"pending"},{"at":"t1","kind":"transition","from":"pending","to":"analyzing","reason":"start"}]
	}}`)

	stdout, _, err := run(t, server.URL, false, "execution", "show", execID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, want := range []string{"STATE", "analyzing", "KIND", "transition", "start"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
}

func TestExecutionProgress(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodGet, "/api/v1/executions/"+execID+"/progress", http.StatusOK,
		`{"data":{"state":"in_progress","percentage":60,"delegations":{"total":3,"done":1}}}`)

	stdout, _, err := run(t, server.URL, false, "execution", "progress", execID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(stdout, "60%") {
		t.Errorf("expected percentage in output:\n%s", stdout)
	}
}

func TestExecutionBlockAndResolve(t *testing.T) {
	const blockerID = "0b8f4c1e-6f0e-4d8c-8a5e-2e7b8c9d0a11"
	f, server := newFakeAPI(t)
	f.on(http.MethodPost, "/api/v1/executions/"+execID+"/blockers", http.StatusCreated, `{"data":{"id":"`+blockerID+`"}}`)
	f.on(http.MethodPost, "/api/v1/executions/"+execID+"/blockers/"+blockerID+"/resolve", http.StatusOK, `{"data":{"state":"in_progress"}}`)

	_, stderr, err := run(t, server.URL, false, "execution", "block", execID, "db is down", "--severity", "high")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	if body := f.last(t).Body; body["severity"] != "high" || body["description"] != "db is down" {
		t.Errorf("unexpected blocker request: %v", body)
	}
	if !strings.Contains(stderr, blockerID) {
		t.Errorf("unexpected stderr: %q", stderr)
	}

	_, stderr, err = run(t, server.URL, false, "execution", "resolve", execID, blockerID, "restarted")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if body := f.last(t).Body; body["next_state"] != "in_progress" || body["resolution"] != "restarted" {
		t.Errorf("unexpected resolve request: %v", body)
	}
	if !strings.Contains(stderr, "execution is in_progress") {
		t.Errorf("unexpected stderr: %q", stderr)
	}
}

func TestExecutionEscalate(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodPost, "/api/v1/executions/"+execID+"/escalations", http.StatusCreated, `{"data":{"id":"e1"}}`)

	_, _, err := run(t, server.URL, false, "execution", "escalate", execID, "stuck",
		"--attempted", "restart", "--attempted", "rollback")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	attempted, _ := f.last(t).Body["attempted_solutions"].([]any)
	if len(attempted) != 2 {
		t.Errorf("expected 2 attempted solutions, got %v", attempted)
	}
}

func TestExecutionComplete_Result(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodPost, "/api/v1/executions/"+execID+"/complete", http.StatusOK, `{"data":{"state":"completed"}}`)

	_, stderr, err := run(t, server.URL, false, "execution", "complete", execID, "--result", "pr=42")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result, _ := f.last(t).Body["result"].(map[string]any)
	if result["pr"] != "42" {
		t.Errorf("unexpected result: %v", f.last(t).Body)
	}
	if !strings.Contains(stderr, "completed") {
		t.Errorf("unexpected stderr: %q", stderr)
	}

	if _, _, err := run(t, server.URL, false, "execution", "complete", execID, "--result", "broken"); err == nil {
		t.Error("expected error for malformed result")
	}
}

func TestExecutionCancel_Error(t *testing.T) {
	_, server := newFakeAPI(t)

	_, _, err := run(t, server.URL, false, "execution", "cancel", execID)
	if err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND error, got %v", err)
	}
}

// --- Message Command Tests ---

func TestMessageSend(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodPost, "/api/v1/messages", http.StatusCreated,
		`{"data":{"message":{"id":"m1","sender_id":"human"},"recipients":3}}`)

	_, stderr, err := run(t, server.URL, false, "message", "send", "freeze deploys", "--kind", "system")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	body := f.last(t).Body
	if _, ok := body["recipient_id"]; ok {
		t.Error("broadcast should omit recipient_id")
	}
	if body["sender_id"] != "human" || body["kind"] != "system" {
		t.Errorf("unexpected request: %v", body)
	}
	if !strings.Contains(stderr, "delivered to 3 recipient(s)") {
		t.Errorf("unexpected stderr: %q", stderr)
	}
}

func TestMessageConversation(t *testing.T) {
	f, server := newFakeAPI(t)
	f.on(http.MethodGet, "/api/v1/conversations", http.StatusOK, `{"data":[
		{"sender_id":"a","recipient_id":"b","kind":"question","body":"ping"},
		{"sender_id":"b","kind":"system","body":"pong"}
	],"total":2}`)

	stdout, _, err := run(t, server.URL, false, "message", "conversation", "a", "b")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if q := f.last(t).Query; q != "a=a&b=b" {
		t.Errorf("unexpected query: %s", q)
	}
	if !strings.Contains(stdout, "ping") || !strings.Contains(stdout, "*") {
		t.Errorf("unexpected stdout:\n%s", stdout)
	}
}

// --- Helper Tests ---

func TestParseKeyValues(t *testing.T) {
	got, err := parseKeyValues([]string{"a=1", "b=x=y"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["a"] != "1" || got["b"] != "x=y" {
		t.Errorf("unexpected map: %v", got)
	}

	if m, err := parseKeyValues(nil); m != nil || err != nil {
		t.Errorf("expected nil map for no pairs, got %v, %v", m, err)
	}
	if _, err := parseKeyValues([]string{"=1"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
}
