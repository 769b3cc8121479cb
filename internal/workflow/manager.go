package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"codeflow/internal/config"
	"codeflow/internal/events"
	"codeflow/internal/logging"
	"codeflow/internal/notifications"
	"codeflow/internal/queue"
	"codeflow/internal/sandbox"
	"codeflow/internal/store"
)

// ArtifactStore is the subset of the artifact store the manager consumes.
type ArtifactStore interface {
	GetByID(ctx context.Context, id int64) (*store.Artifact, error)
	ListUnprocessedOrFailed(ctx context.Context) ([]*store.Artifact, error)
	ListUnprocessed(ctx context.Context) ([]*store.Artifact, error)
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	Stats(ctx context.Context) (store.Stats, error)
}

// Sandbox runs a transform command remotely.
type Sandbox interface {
	Run(ctx context.Context, req sandbox.Request) (*sandbox.Response, error)
}

// Manager coordinates the job queue and its worker.
type Manager struct {
	cfg      *config.Config
	store    ArtifactStore
	sandbox  Sandbox
	logger   *slog.Logger
	notifier notifications.Service
	events   events.Publisher
	layout   store.Layout

	mu          sync.RWMutex
	queue       *queue.Queue
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	current     *queue.Job
	lastErr     error
	lastOutcome *Outcome

	queueActive bool
	queueStart  time.Time
	runCounts   outcomeCounts
}

type outcomeCounts struct {
	processed int
	failed    int
}

// ManagerOption configures optional Manager collaborators.
type ManagerOption func(*Manager)

// WithNotifier sets the notification service. Defaults to one built from config.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithEvents sets the lifecycle event publisher. Defaults to a no-op.
func WithEvents(p events.Publisher) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.events = p
		}
	}
}

// NewManager constructs a stopped manager. Jobs enqueued before Start wait
// in the queue.
func NewManager(cfg *config.Config, st ArtifactStore, sb Sandbox, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		store:    st,
		sandbox:  sb,
		logger:   logging.NewComponentLogger(logger, "workflow-manager"),
		notifier: notifications.NewService(cfg),
		events:   events.Noop{},
		layout:   store.Layout{Dir: cfg.Paths.FilesDir},
		queue:    queue.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Enqueue appends a job for processing. It never blocks and never fails;
// with workflow.dedupe_pending a job whose artifact is already waiting is
// dropped.
func (m *Manager) Enqueue(job queue.Job) {
	m.mu.RLock()
	q := m.queue
	m.mu.RUnlock()

	var err error
	added := true
	if m.cfg.Workflow.DedupePending {
		added, err = q.PushUnique(job)
	} else {
		err = q.Push(job)
	}
	if err != nil {
		// Only reachable while Stop swaps the queue; the store still
		// records the artifact as pending.
		m.logger.Warn("job not queued",
			logging.Int64(logging.FieldArtifactID, job.ArtifactID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "enqueue_dropped"),
			logging.String(logging.FieldErrorHint, "restart the daemon to reconcile pending artifacts"),
		)
		return
	}
	if !added {
		m.logger.Debug("job already pending", logging.Int64(logging.FieldArtifactID, job.ArtifactID))
		return
	}
	m.logger.Debug("job queued",
		logging.Int64(logging.FieldArtifactID, job.ArtifactID),
		logging.String(logging.FieldContentRef, job.ContentRef),
	)
}

// EnqueueArtifact queues a job built from an artifact record.
func (m *Manager) EnqueueArtifact(a *store.Artifact) {
	if a == nil {
		return
	}
	m.Enqueue(JobFor(a))
}

// JobFor builds the queue job for an artifact.
func JobFor(a *store.Artifact) queue.Job {
	return queue.Job{ArtifactID: a.ID, Name: a.Name, ContentRef: a.ContentRef}
}

// Pending returns a snapshot of the jobs waiting to be processed.
func (m *Manager) Pending() []queue.Job {
	m.mu.RLock()
	q := m.queue
	m.mu.RUnlock()
	return q.Snapshot()
}
