package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"codeflow/internal/api"
	"codeflow/internal/config"
	"codeflow/internal/logging"
	"codeflow/internal/sandbox"
	"codeflow/internal/submission"
	"codeflow/internal/testsupport"
	"codeflow/internal/workflow"
)

func newTestAPI(t *testing.T, opts ...testsupport.ConfigOption) (*httptest.Server, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	wf := workflow.NewManager(cfg, st, sandbox.NewClient(cfg.Sandbox.URL), logger)
	subs := submission.NewService(cfg, st, wf, logger)
	d, err := New(cfg, st, logger, wf, subs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(d.api.routes(cfg.Paths.APIToken))
	t.Cleanup(ts.Close)
	return ts, cfg
}

func doJSON(t *testing.T, method, url, user string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set(api.UserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestAPISubmitQueuesArtifact(t *testing.T) {
	ts, _ := newTestAPI(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/artifacts", "alice", api.SubmitRequest{Name: "main.c", Content: "int main(void){return 0;}"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decode[api.ArtifactResponse](t, resp).Artifact
	if created.ID == 0 || created.State != "pending" || created.OwnerID != "alice" || created.Visibility != "private" {
		t.Fatalf("unexpected artifact %+v", created)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	queue := decode[api.QueueResponse](t, doJSON(t, http.MethodGet, ts.URL+"/api/queue", "", nil))
	if len(queue.Pending) != 1 || queue.Pending[0].ArtifactID != created.ID {
		t.Fatalf("unexpected queue %+v", queue)
	}

	list := decode[api.ArtifactListResponse](t, doJSON(t, http.MethodGet, ts.URL+"/api/artifacts", "bob", nil))
	if len(list.Items) != 0 {
		t.Fatalf("private artifact leaked to bob: %+v", list.Items)
	}
}

func TestAPIMapsServiceErrors(t *testing.T) {
	ts, _ := newTestAPI(t)
	created := decode[api.ArtifactResponse](t, doJSON(t, http.MethodPost, ts.URL+"/api/artifacts", "alice",
		api.SubmitRequest{Name: "a.c", Content: "x"})).Artifact
	id := ts.URL + "/api/artifacts/" + strconv.FormatInt(created.ID, 10)

	tests := []struct {
		name   string
		method string
		url    string
		user   string
		body   any
		want   int
	}{
		{"bad extension", http.MethodPost, ts.URL + "/api/artifacts", "alice", api.SubmitRequest{Name: "a.txt", Content: "x"}, http.StatusBadRequest},
		{"anonymous submit", http.MethodPost, ts.URL + "/api/artifacts", "", api.SubmitRequest{Name: "b.c", Content: "x"}, http.StatusBadRequest},
		{"duplicate name", http.MethodPost, ts.URL + "/api/artifacts", "alice", api.SubmitRequest{Name: "a.c", Content: "y"}, http.StatusConflict},
		{"private to others", http.MethodGet, id, "bob", nil, http.StatusForbidden},
		{"missing", http.MethodGet, ts.URL + "/api/artifacts/999", "alice", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, ts.URL + "/api/artifacts/abc", "alice", nil, http.StatusBadRequest},
		{"retry pending", http.MethodPost, id + "/retry", "alice", nil, http.StatusConflict},
		{"delete by other", http.MethodDelete, id, "bob", nil, http.StatusForbidden},
		{"unknown file", http.MethodGet, ts.URL + "/files/nope.txt", "alice", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, tt.method, tt.url, tt.user, tt.body)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
			if msg := decode[api.ErrorResponse](t, resp).Error; msg == "" {
				t.Fatal("expected error message")
			}
		})
	}
}

func TestAPIRenameAndDelete(t *testing.T) {
	ts, _ := newTestAPI(t)
	created := decode[api.ArtifactResponse](t, doJSON(t, http.MethodPost, ts.URL+"/api/artifacts", "alice",
		api.SubmitRequest{Name: "a.c", Content: "x", Visibility: "public"})).Artifact
	id := ts.URL + "/api/artifacts/" + strconv.FormatInt(created.ID, 10)

	name := "b.c"
	resp := doJSON(t, http.MethodPatch, id, "alice", api.UpdateRequest{Name: &name})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := decode[api.ArtifactResponse](t, resp).Artifact.Name; got != "b.c" {
		t.Fatalf("expected rename, got %q", got)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/files/"+created.InputFile, "bob", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected public input to be readable, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, id, "alice", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, id, "alice", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	ts, _ := newTestAPI(t, testsupport.WithAPIToken("secret"))

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/artifacts", "alice", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz to skip auth, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/artifacts", nil)
	req.Header.Set("Authorization", "Bearer secret")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
}

func TestStatusForError(t *testing.T) {
	if got := statusForError(bytes.ErrTooLarge); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for unclassified error, got %d", got)
	}
}
