package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsIdentityAndDecodes(t *testing.T) {
	var gotAuth, gotUser string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.Header.Get(UserHeader)
		if r.Method != http.MethodPost || r.URL.Path != "/api/artifacts" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(ArtifactResponse{Artifact: Artifact{ID: 4, Name: req.Name, State: "pending"}})
	}))
	t.Cleanup(ts.Close)

	client := NewClient(ts.URL, WithToken("secret"), WithUser("alice"))
	artifact, err := client.Submit(context.Background(), SubmitRequest{Name: "a.c", Content: "int x;"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if artifact.ID != 4 || artifact.Name != "a.c" {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	if gotAuth != "Bearer secret" || gotUser != "alice" {
		t.Fatalf("unexpected headers auth=%q user=%q", gotAuth, gotUser)
	}
}

func TestClientReturnsAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "artifact \"a.c\" already exists"})
	}))
	t.Cleanup(ts.Close)

	_, err := NewClient(ts.URL).Retry(context.Background(), 1)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "artifact \"a.c\" already exists" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestClientDownload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/abc_t.c" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("int main;"))
	}))
	t.Cleanup(ts.Close)

	var buf bytes.Buffer
	if err := NewClient(ts.URL).Download(context.Background(), "abc_t.c", &buf); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if buf.String() != "int main;" {
		t.Fatalf("unexpected body %q", buf.String())
	}
}

func TestNewClientAddsScheme(t *testing.T) {
	if got := NewClient("127.0.0.1:7490/").BaseURL(); got != "http://127.0.0.1:7490" {
		t.Fatalf("unexpected base url %q", got)
	}
}
