package sandbox

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeflow/internal/logging"
)

func newTestServer(t *testing.T, opts ...ServerOption) *httptest.Server {
	t.Helper()
	srv := NewServer(&Runner{}, logging.NewNop(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postRun(t *testing.T, url string, body string) (*http.Response, Response) {
	t.Helper()
	resp, err := http.Post(url+"/v1/run", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var decoded Response
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp, decoded
}

func TestServerRunSuccess(t *testing.T) {
	setHelperCommand(t, "success")
	ts := newTestServer(t)

	resp, decoded := postRun(t, ts.URL, `{"cmd":["cc","a.c"],"timeout":10}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if decoded.Error != nil || decoded.OK == nil {
		t.Fatalf("expected ok branch, got %#v", decoded)
	}
	if decoded.OK.ReturnCode != 0 || decoded.OK.Stdout != "compiled ok" {
		t.Fatalf("unexpected output %#v", decoded.OK)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestServerRunNonZeroExitReturnsOK(t *testing.T) {
	setHelperCommand(t, "failure")
	ts := newTestServer(t)

	_, decoded := postRun(t, ts.URL, `{"cmd":["cc"],"timeout":10}`)
	if decoded.OK == nil || decoded.OK.ReturnCode != 2 || decoded.OK.Stderr != "boom" {
		t.Fatalf("unexpected response %#v", decoded)
	}
}

func TestServerRunTimeoutReturnsErrorBranch(t *testing.T) {
	setHelperCommand(t, "sleep")
	ts := newTestServer(t)

	_, decoded := postRun(t, ts.URL, `{"cmd":["sleep"],"timeout":0.2}`)
	if decoded.OK != nil || decoded.Error == nil {
		t.Fatalf("expected error branch, got %#v", decoded)
	}
	if !strings.Contains(*decoded.Error, "timed out after 200ms") {
		t.Fatalf("unexpected error %q", *decoded.Error)
	}
}

func TestServerClampsTimeout(t *testing.T) {
	setHelperCommand(t, "sleep")
	ts := newTestServer(t, WithMaxTimeout(150*time.Millisecond))

	_, decoded := postRun(t, ts.URL, `{"cmd":["sleep"],"timeout":60}`)
	if decoded.Error == nil || !strings.Contains(*decoded.Error, "150ms") {
		t.Fatalf("expected clamped timeout error, got %#v", decoded)
	}
}

func TestServerClampsOverflowingTimeout(t *testing.T) {
	setHelperCommand(t, "sleep")
	ts := newTestServer(t, WithMaxTimeout(150*time.Millisecond))

	started := time.Now()
	_, decoded := postRun(t, ts.URL, `{"cmd":["sleep"],"timeout":1e11}`)
	if decoded.Error == nil || !strings.Contains(*decoded.Error, "150ms") {
		t.Fatalf("expected clamped timeout error, got %#v", decoded)
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("command ran for %s despite the maximum timeout", elapsed)
	}
}

func TestServerClampsDefaultTimeout(t *testing.T) {
	setHelperCommand(t, "sleep")
	ts := newTestServer(t, WithMaxTimeout(150*time.Millisecond))

	_, decoded := postRun(t, ts.URL, `{"cmd":["sleep"]}`)
	if decoded.Error == nil || !strings.Contains(*decoded.Error, "150ms") {
		t.Fatalf("expected default timeout to be clamped, got %#v", decoded)
	}
}

func TestServerSpawnFailureReturnsErrorBranch(t *testing.T) {
	ts := newTestServer(t)

	_, decoded := postRun(t, ts.URL, `{"cmd":["/nonexistent/codeflow-tool"],"timeout":1}`)
	if decoded.OK != nil || decoded.Error == nil {
		t.Fatalf("expected error branch, got %#v", decoded)
	}
}

func TestServerRejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"malformed", `{"cmd":`},
		{"empty cmd", `{"cmd":[],"timeout":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/run", "application/json", bytes.NewBufferString(tc.body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}

	resp, err := http.Get(ts.URL + "/v1/run")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestServerHealth(t *testing.T) {
	healthy := newTestServer(t)
	resp, err := http.Get(healthy.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	degraded := newTestServer(t, WithRequiredBinaries([]string{"codeflow-definitely-missing"}))
	resp, err = http.Get(degraded.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" || len(body.Dependencies) != 1 {
		t.Fatalf("unexpected health body %#v", body)
	}
}
