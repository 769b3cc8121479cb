package testsupport

import (
	"context"
	"testing"

	"codeflow/internal/config"
	"codeflow/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewArtifact creates a private artifact owned by owner with the given ref.
func NewArtifact(t testing.TB, st *store.Store, owner, name, ref string) *store.Artifact {
	t.Helper()

	artifact, err := st.Create(context.Background(), store.NewArtifact{
		Name:       name,
		ContentRef: ref,
		OwnerID:    owner,
		Visibility: store.VisibilityPrivate,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return artifact
}
