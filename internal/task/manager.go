package task

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ArtifactProducer turns a finished task's input into the artifact served on
// download. The default producer hands back the uploaded file itself as a
// stand-in for a real external processing result.
type ArtifactProducer func(t Task) (string, error)

// Manager owns the task lifecycle: it creates records, launches one
// simulator goroutine per submitted file and answers status and download
// queries. It is the only entry point the HTTP layer uses.
type Manager struct {
	mu        sync.RWMutex
	store     Store
	steps     int
	duration  time.Duration
	timeout   time.Duration
	produce   ArtifactProducer
	workersWG sync.WaitGroup
	baseCtx   context.Context
}

// NewManager creates a manager with the provided configuration. A nil store
// falls back to the in-memory implementation.
func NewManager(opts Options) *Manager {
	if opts.Steps <= 0 {
		opts.Steps = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Hour
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	return &Manager{
		store:    store,
		steps:    opts.Steps,
		duration: opts.Duration,
		timeout:  opts.Timeout,
		produce:  func(t Task) (string, error) { return t.FileLocation, nil },
		baseCtx:  context.Background(),
	}
}

// Submit registers a new task for an uploaded file and starts its simulated
// processing in the background. The file's bytes must already be durably
// written at fileLocation. Submit returns the task id immediately; progress
// is observable only through Status.
func (m *Manager) Submit(ctx context.Context, filename, fileLocation string) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", ErrEmptyFilename
	}
	if fileLocation == "" {
		return "", ErrEmptyFileLocation
	}

	newTask := &Task{
		ID:               uuid.NewString(),
		OriginalFilename: filename,
		FileLocation:     fileLocation,
		Status:           StatusPending,
	}
	if err := m.store.Create(ctx, newTask); err != nil {
		return "", err
	}

	m.workersWG.Add(1)
	go func() {
		defer m.workersWG.Done()
		m.runSimulation(newTask.ID)
	}()

	log.Info().Str("task_id", newTask.ID).Str("filename", filename).Msg("task submitted")
	return newTask.ID, nil
}

// Status returns a point-in-time snapshot of the task.
func (m *Manager) Status(ctx context.Context, taskID string) (Task, error) {
	return m.store.Get(ctx, taskID)
}

// Artifact returns where the processed result lives and the filename to
// suggest for the download. Before the task completes it fails with
// ErrTaskNotReady.
func (m *Manager) Artifact(ctx context.Context, taskID string) (Artifact, error) {
	snapshot, err := m.store.Get(ctx, taskID)
	if err != nil {
		return Artifact{}, err
	}
	if snapshot.Status != StatusComplete || snapshot.ArtifactPath == "" {
		return Artifact{}, ErrTaskNotReady
	}
	return Artifact{Path: snapshot.ArtifactPath, Filename: snapshot.OriginalFilename}, nil
}

// SetBaseContext sets the context that bounds all in-flight simulations.
// Intended to be set at process startup and cancelled during shutdown.
func (m *Manager) SetBaseContext(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
}

func (m *Manager) base() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.baseCtx == nil {
		return context.Background()
	}
	return m.baseCtx
}

// WaitAll blocks until all in-flight simulators finish or the context is
// done. Returns true if all of them finished.
func (m *Manager) WaitAll(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// UseArtifactProducer allows tests to inject a fake producer.
// Intended for test setup only, before any task is submitted.
func (m *Manager) UseArtifactProducer(produce ArtifactProducer) {
	m.mu.Lock()
	m.produce = produce
	m.mu.Unlock()
}

func (m *Manager) producer() ArtifactProducer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.produce
}
