package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeflow/internal/config"
	"codeflow/internal/events"
	"codeflow/internal/fileutil"
	"codeflow/internal/logging"
	"codeflow/internal/services"
	"codeflow/internal/store"
)

const maxNameLength = 255

// ArtifactStore is the subset of the artifact store the submission path uses.
type ArtifactStore interface {
	Create(ctx context.Context, in store.NewArtifact) (*store.Artifact, error)
	GetByID(ctx context.Context, id int64) (*store.Artifact, error)
	GetByOwnerAndName(ctx context.Context, ownerID, name string) (*store.Artifact, error)
	GetByContentRef(ctx context.Context, ref string) (*store.Artifact, error)
	ListVisible(ctx context.Context, viewer string) ([]*store.Artifact, error)
	UpdateMetadata(ctx context.Context, id int64, name *string, visibility *store.Visibility) error
	ResetForRetry(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

// Enqueuer accepts artifacts for processing.
type Enqueuer interface {
	EnqueueArtifact(a *store.Artifact)
}

// SubmitRequest carries a new artifact from a caller.
type SubmitRequest struct {
	OwnerID    string
	Name       string
	Visibility string
	Content    []byte
}

// UpdateRequest lists metadata changes. Nil fields are left untouched.
type UpdateRequest struct {
	Name       *string
	Visibility *string
}

// Service validates, persists and enqueues artifacts and implements the
// owner-scoped operations on them.
type Service struct {
	cfg    *config.Config
	store  ArtifactStore
	queue  Enqueuer
	events events.Publisher
	layout store.Layout
	logger *slog.Logger
	newRef func() string
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithEvents sets the lifecycle event publisher. Defaults to a no-op.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.events = p
		}
	}
}

// NewService builds a submission service writing into cfg.Paths.FilesDir.
func NewService(cfg *config.Config, st ArtifactStore, q Enqueuer, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		store:  st,
		queue:  q,
		events: events.Noop{},
		layout: store.Layout{Dir: cfg.Paths.FilesDir},
		logger: logging.NewComponentLogger(logger, "submission"),
		newRef: NewContentRef,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewContentRef returns a fresh content reference: a v4 UUID as 32
// lowercase hex characters.
func NewContentRef() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Layout exposes the file layout used for artifact content.
func (s *Service) Layout() store.Layout { return s.layout }

// Submit validates req, writes the input file, persists the artifact and
// enqueues it with the id assigned by the store. Files written before a
// persistence failure are removed.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*store.Artifact, error) {
	owner := strings.TrimSpace(req.OwnerID)
	if owner == "" {
		return nil, services.Wrap(services.ErrValidation, "submission", "validate", "owner is required", nil)
	}
	name, err := s.validateName(req.Name)
	if err != nil {
		return nil, err
	}
	visibility, err := parseVisibility(req.Visibility)
	if err != nil {
		return nil, err
	}
	if err := s.validateContent(req.Content); err != nil {
		return nil, err
	}

	existing, err := s.store.GetByOwnerAndName(ctx, owner, name)
	if err != nil {
		return nil, services.Wrap(services.ErrUnexpected, "submission", "lookup", "check existing name", err)
	}
	if existing != nil {
		return nil, services.Wrap(services.ErrConflict, "submission", "validate", fmt.Sprintf("artifact %q already exists", name), nil)
	}

	ref := s.newRef()
	inputPath := s.layout.InputPath(ref)
	size, digest, err := fileutil.WriteAtomic(inputPath, bytes.NewReader(req.Content), 0o644)
	if err != nil {
		return nil, services.Wrap(services.ErrUnexpected, "submission", "write", "store input file", err)
	}

	artifact, err := s.store.Create(ctx, store.NewArtifact{
		Name:       name,
		ContentRef: ref,
		OwnerID:    owner,
		Visibility: visibility,
	})
	if err != nil {
		if rmErr := fileutil.RemoveFiles(s.layout.All(ref)...); rmErr != nil {
			logging.WarnWithContext(s.logger, "failed to clean up artifact files", "submission_cleanup_failed",
				logging.String(logging.FieldContentRef, ref),
				logging.Error(rmErr),
				logging.String(logging.FieldErrorHint, "remove the orphaned files from the files directory"),
			)
		}
		if errors.Is(err, store.ErrDuplicateName) {
			return nil, services.Wrap(services.ErrConflict, "submission", "persist", fmt.Sprintf("artifact %q already exists", name), err)
		}
		return nil, services.Wrap(services.ErrUnexpected, "submission", "persist", "create artifact", err)
	}

	s.queue.EnqueueArtifact(artifact)
	s.logger.Info("artifact submitted",
		logging.Int64(logging.FieldArtifactID, artifact.ID),
		logging.String(logging.FieldContentRef, ref),
		logging.String("owner", owner),
		logging.Int64("size_bytes", size),
		logging.String("sha256", digest),
		logging.String(logging.FieldEventType, "artifact_submitted"),
	)
	s.publish(ctx, events.TypeSubmitted, artifact)
	return artifact, nil
}

// Get returns an artifact visible to viewer.
func (s *Service) Get(ctx context.Context, viewer string, id int64) (*store.Artifact, error) {
	artifact, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !artifact.VisibleTo(viewer) {
		return nil, services.Wrap(services.ErrForbidden, "submission", "get", fmt.Sprintf("artifact %d is private", id), nil)
	}
	return artifact, nil
}

// List returns public artifacts plus the viewer's own.
func (s *Service) List(ctx context.Context, viewer string) ([]*store.Artifact, error) {
	artifacts, err := s.store.ListVisible(ctx, strings.TrimSpace(viewer))
	if err != nil {
		return nil, services.Wrap(services.ErrUnexpected, "submission", "list", "list artifacts", err)
	}
	return artifacts, nil
}

// Update changes the name or visibility of an artifact owned by owner.
func (s *Service) Update(ctx context.Context, owner string, id int64, req UpdateRequest) (*store.Artifact, error) {
	if _, err := s.owned(ctx, owner, id, "update"); err != nil {
		return nil, err
	}

	var (
		name       *string
		visibility *store.Visibility
	)
	if req.Name != nil {
		normalized, err := s.validateName(*req.Name)
		if err != nil {
			return nil, err
		}
		name = &normalized
	}
	if req.Visibility != nil {
		parsed, ok := store.ParseVisibility(*req.Visibility)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "submission", "validate", fmt.Sprintf("unknown visibility %q", *req.Visibility), nil)
		}
		visibility = &parsed
	}

	if err := s.store.UpdateMetadata(ctx, id, name, visibility); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateName):
			return nil, services.Wrap(services.ErrConflict, "submission", "update", "an artifact with that name already exists", err)
		case errors.Is(err, store.ErrNotFound):
			return nil, services.Wrap(services.ErrNotFound, "submission", "update", fmt.Sprintf("artifact %d not found", id), err)
		}
		return nil, services.Wrap(services.ErrUnexpected, "submission", "update", "update artifact", err)
	}
	return s.load(ctx, id)
}

// Retry resets a finished artifact to pending and enqueues it again. Output
// from the previous attempt is removed first.
func (s *Service) Retry(ctx context.Context, owner string, id int64) (*store.Artifact, error) {
	artifact, err := s.owned(ctx, owner, id, "retry")
	if err != nil {
		return nil, err
	}
	if !artifact.Processed {
		return nil, services.Wrap(services.ErrConflict, "submission", "retry", fmt.Sprintf("artifact %d is already pending", id), nil)
	}

	if err := fileutil.RemoveFiles(s.layout.OutputPath(artifact.ContentRef), s.layout.FlowPath(artifact.ContentRef)); err != nil {
		return nil, services.Wrap(services.ErrUnexpected, "submission", "retry", "remove previous output", err)
	}
	if err := s.store.ResetForRetry(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, services.Wrap(services.ErrNotFound, "submission", "retry", fmt.Sprintf("artifact %d not found", id), err)
		}
		return nil, services.Wrap(services.ErrUnexpected, "submission", "retry", "reset artifact", err)
	}

	artifact.Processed = false
	artifact.FlowError = ""
	artifact.UpdatedAt = time.Now().UTC()
	s.queue.EnqueueArtifact(artifact)
	s.logger.Info("artifact queued for retry",
		logging.Int64(logging.FieldArtifactID, id),
		logging.Int("previous_attempts", artifact.Attempts),
		logging.String(logging.FieldEventType, "artifact_retried"),
	)
	s.publish(ctx, events.TypeRetried, artifact)
	return artifact, nil
}

// Delete removes an artifact and its files. Missing files are ignored.
func (s *Service) Delete(ctx context.Context, owner string, id int64) error {
	artifact, err := s.owned(ctx, owner, id, "delete")
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return services.Wrap(services.ErrNotFound, "submission", "delete", fmt.Sprintf("artifact %d not found", id), err)
		}
		return services.Wrap(services.ErrUnexpected, "submission", "delete", "delete artifact", err)
	}
	if err := fileutil.RemoveFiles(s.layout.All(artifact.ContentRef)...); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove artifact files", "delete_cleanup_failed",
			logging.Int64(logging.FieldArtifactID, id),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the orphaned files from the files directory"),
		)
	}
	s.logger.Info("artifact deleted",
		logging.Int64(logging.FieldArtifactID, id),
		logging.String(logging.FieldEventType, "artifact_deleted"),
	)
	s.publish(ctx, events.TypeDeleted, artifact)
	return nil
}

// File resolves a stored file name such as "<ref>_t.c" to its path when the
// owning artifact is visible to viewer.
func (s *Service) File(ctx context.Context, viewer, name string) (string, error) {
	name = filepath.Base(strings.TrimSpace(name))
	ref, ok := refFromFileName(name)
	if !ok || !store.ValidRef(ref) {
		return "", services.Wrap(services.ErrNotFound, "submission", "file", fmt.Sprintf("unknown file %q", name), nil)
	}
	artifact, err := s.store.GetByContentRef(ctx, ref)
	if err != nil {
		return "", services.Wrap(services.ErrUnexpected, "submission", "file", "lookup artifact", err)
	}
	if artifact == nil {
		return "", services.Wrap(services.ErrNotFound, "submission", "file", fmt.Sprintf("unknown file %q", name), nil)
	}
	if !artifact.VisibleTo(viewer) {
		return "", services.Wrap(services.ErrForbidden, "submission", "file", fmt.Sprintf("artifact %d is private", artifact.ID), nil)
	}
	return filepath.Join(s.layout.Dir, name), nil
}

func refFromFileName(name string) (string, bool) {
	for _, nameFor := range []func(string) string{store.InputName, store.OutputName, store.FlowName} {
		suffix := nameFor("")
		if ref, ok := strings.CutSuffix(name, suffix); ok {
			return ref, true
		}
	}
	return "", false
}

func (s *Service) load(ctx context.Context, id int64) (*store.Artifact, error) {
	artifact, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrUnexpected, "submission", "get", "load artifact", err)
	}
	if artifact == nil {
		return nil, services.Wrap(services.ErrNotFound, "submission", "get", fmt.Sprintf("artifact %d not found", id), nil)
	}
	return artifact, nil
}

func (s *Service) owned(ctx context.Context, owner string, id int64, operation string) (*store.Artifact, error) {
	artifact, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" || artifact.OwnerID != owner {
		return nil, services.Wrap(services.ErrForbidden, "submission", operation, fmt.Sprintf("artifact %d belongs to another user", id), nil)
	}
	return artifact, nil
}

func (s *Service) publish(ctx context.Context, eventType events.Type, artifact *store.Artifact) {
	err := s.events.Publish(ctx, events.Event{
		Type:       eventType,
		ArtifactID: artifact.ID,
		Name:       artifact.Name,
		ContentRef: artifact.ContentRef,
		OwnerID:    artifact.OwnerID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Debug("lifecycle event publish failed", logging.Error(err))
	}
}
