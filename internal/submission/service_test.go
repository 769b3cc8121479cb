package submission_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"

	"codeflow/internal/logging"
	"codeflow/internal/services"
	"codeflow/internal/store"
	"codeflow/internal/submission"
	"codeflow/internal/testsupport"
)

type recordingQueue struct {
	mu  sync.Mutex
	ids []int64
}

func (q *recordingQueue) EnqueueArtifact(a *store.Artifact) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, a.ID)
}

func (q *recordingQueue) snapshot() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.ids...)
}

type failingCreateStore struct {
	*store.Store
}

func (f failingCreateStore) Create(context.Context, store.NewArtifact) (*store.Artifact, error) {
	return nil, errors.New("database is read-only")
}

func newService(t *testing.T) (*submission.Service, *store.Store, *recordingQueue) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	q := &recordingQueue{}
	return submission.NewService(cfg, st, q, logging.NewNop()), st, q
}

func submit(t *testing.T, svc *submission.Service, owner, name string) *store.Artifact {
	t.Helper()
	artifact, err := svc.Submit(context.Background(), submission.SubmitRequest{
		OwnerID: owner,
		Name:    name,
		Content: []byte("int main(void) { return 0; }\n"),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return artifact
}

func TestSubmitPersistsWritesAndEnqueues(t *testing.T) {
	svc, st, q := newService(t)

	artifact := submit(t, svc, "alice", "main.c")

	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(artifact.ContentRef) {
		t.Fatalf("unexpected content ref %q", artifact.ContentRef)
	}
	stored, err := st.GetByID(context.Background(), artifact.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Processed || stored.FlowError != "" || stored.Visibility != store.VisibilityPrivate {
		t.Fatalf("unexpected stored artifact %#v", stored)
	}
	data, err := os.ReadFile(svc.Layout().InputPath(artifact.ContentRef))
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if string(data) != "int main(void) { return 0; }\n" {
		t.Fatalf("unexpected input content %q", data)
	}
	if ids := q.snapshot(); len(ids) != 1 || ids[0] != artifact.ID {
		t.Fatalf("expected enqueue with store id %d, got %v", artifact.ID, ids)
	}
}

func TestSubmitNormalizesNameAndRejectsDuplicates(t *testing.T) {
	svc, _, q := newService(t)

	first := submit(t, svc, "alice", "cafe\u0301.c")
	if first.Name != "caf\u00e9.c" {
		t.Fatalf("expected NFC name, got %q", first.Name)
	}

	_, err := svc.Submit(context.Background(), submission.SubmitRequest{
		OwnerID: "alice",
		Name:    "caf\u00e9.c",
		Content: []byte("x"),
	})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	other := submit(t, svc, "bob", "caf\u00e9.c")
	if other.ID == first.ID {
		t.Fatal("expected a separate artifact for another owner")
	}
	if got := len(q.snapshot()); got != 2 {
		t.Fatalf("expected 2 enqueued jobs, got %d", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name string
		req  submission.SubmitRequest
	}{
		{"missing owner", submission.SubmitRequest{Name: "a.c", Content: []byte("x")}},
		{"empty name", submission.SubmitRequest{OwnerID: "a", Name: "  ", Content: []byte("x")}},
		{"wrong extension", submission.SubmitRequest{OwnerID: "a", Name: "a.py", Content: []byte("x")}},
		{"extension only", submission.SubmitRequest{OwnerID: "a", Name: ".c", Content: []byte("x")}},
		{"path separator", submission.SubmitRequest{OwnerID: "a", Name: "../a.c", Content: []byte("x")}},
		{"empty content", submission.SubmitRequest{OwnerID: "a", Name: "a.c"}},
		{"too large", submission.SubmitRequest{OwnerID: "a", Name: "a.c", Content: make([]byte, 2<<20)}},
		{"bad visibility", submission.SubmitRequest{OwnerID: "a", Name: "a.c", Visibility: "team", Content: []byte("x")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, q := newService(t)
			_, err := svc.Submit(context.Background(), tt.req)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if len(q.snapshot()) != 0 {
				t.Fatal("rejected submission must not be enqueued")
			}
		})
	}
}

func TestSubmitAcceptsUppercaseExtension(t *testing.T) {
	svc, _, _ := newService(t)
	if artifact := submit(t, svc, "alice", "MAIN.C"); artifact.Name != "MAIN.C" {
		t.Fatalf("unexpected name %q", artifact.Name)
	}
}

func TestSubmitRemovesFilesWhenPersistFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	q := &recordingQueue{}
	svc := submission.NewService(cfg, failingCreateStore{st}, q, logging.NewNop())

	_, err := svc.Submit(context.Background(), submission.SubmitRequest{OwnerID: "a", Name: "a.c", Content: []byte("x")})
	if !errors.Is(err, services.ErrUnexpected) {
		t.Fatalf("expected ErrUnexpected, got %v", err)
	}
	entries, err := os.ReadDir(cfg.Paths.FilesDir)
	if err != nil {
		t.Fatalf("read files dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no files left behind, found %d", len(entries))
	}
	if len(q.snapshot()) != 0 {
		t.Fatal("failed submission must not be enqueued")
	}
}

func TestGetEnforcesVisibility(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	artifact := submit(t, svc, "alice", "a.c")

	if _, err := svc.Get(ctx, "alice", artifact.ID); err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	if _, err := svc.Get(ctx, "bob", artifact.ID); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Get(ctx, "alice", 4242); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	public := "public"
	if _, err := svc.Update(ctx, "alice", artifact.ID, submission.UpdateRequest{Visibility: &public}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := svc.Get(ctx, "bob", artifact.ID); err != nil {
		t.Fatalf("expected public artifact readable, got %v", err)
	}
	listed, err := svc.List(ctx, "bob")
	if err != nil || len(listed) != 1 {
		t.Fatalf("List: %v (%d)", err, len(listed))
	}
}

func TestUpdateRenames(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	first := submit(t, svc, "alice", "a.c")
	submit(t, svc, "alice", "b.c")

	renamed := "c.c"
	updated, err := svc.Update(ctx, "alice", first.ID, submission.UpdateRequest{Name: &renamed})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "c.c" {
		t.Fatalf("unexpected name %q", updated.Name)
	}

	clash := "b.c"
	if _, err := svc.Update(ctx, "alice", first.ID, submission.UpdateRequest{Name: &clash}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := svc.Update(ctx, "bob", first.ID, submission.UpdateRequest{Name: &renamed}); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestRetryResetsFinishedArtifacts(t *testing.T) {
	svc, st, q := newService(t)
	ctx := context.Background()
	artifact := submit(t, svc, "alice", "a.c")

	if _, err := svc.Retry(ctx, "alice", artifact.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected ErrConflict for pending artifact, got %v", err)
	}

	if err := st.MarkFailed(ctx, artifact.ID, "EXTERNAL: output not generated"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	flow := svc.Layout().FlowPath(artifact.ContentRef)
	testsupport.WriteFile(t, flow, 10)

	retried, err := svc.Retry(ctx, "alice", artifact.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.Processed || retried.FlowError != "" {
		t.Fatalf("unexpected retried artifact %#v", retried)
	}
	stored, _ := st.GetByID(ctx, artifact.ID)
	if stored.State() != store.StatePending || stored.Attempts != 1 {
		t.Fatalf("unexpected stored state %#v", stored)
	}
	if _, err := os.Stat(flow); !os.IsNotExist(err) {
		t.Fatalf("expected previous byproduct removed, stat err=%v", err)
	}
	if ids := q.snapshot(); len(ids) != 2 || ids[1] != artifact.ID {
		t.Fatalf("expected retry to enqueue, got %v", ids)
	}
}

func TestDeleteRemovesRowAndFiles(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()
	artifact := submit(t, svc, "alice", "a.c")
	testsupport.WriteFile(t, svc.Layout().OutputPath(artifact.ContentRef), 10)

	if err := svc.Delete(ctx, "bob", artifact.ID); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.Delete(ctx, "alice", artifact.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := st.GetByID(ctx, artifact.ID); got != nil {
		t.Fatalf("expected row removed, got %#v", got)
	}
	for _, path := range svc.Layout().All(artifact.ContentRef) {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err=%v", filepath.Base(path), err)
		}
	}
	if err := svc.Delete(ctx, "alice", artifact.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestFileResolvesVisibleArtifacts(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	artifact := submit(t, svc, "alice", "a.c")
	name := store.OutputName(artifact.ContentRef)

	path, err := svc.File(ctx, "alice", name)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if path != svc.Layout().OutputPath(artifact.ContentRef) {
		t.Fatalf("unexpected path %q", path)
	}
	if _, err := svc.File(ctx, "bob", name); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.File(ctx, "alice", "passwd"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.File(ctx, "alice", "0000_t.c"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown ref, got %v", err)
	}
}
