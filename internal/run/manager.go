package run

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnknownRun is returned for an ID with no live run.
	ErrUnknownRun = errors.New("unknown run")
	// ErrAlreadyAttached rejects a second observer; each run has exactly one.
	ErrAlreadyAttached = errors.New("run already has an observer")
)

// DefaultAttachGrace is how long a run may sit without an observer before the
// manager drains it itself.
const DefaultAttachGrace = 2 * time.Minute

// Manager tracks live runs between the trigger and the observer attaching.
// A run is registered at start and disposed after its terminal event has been
// delivered; finished runs live on only in the archive. A run whose observer
// never attaches within AttachGrace is drained and disposed by the manager,
// so an abandoned trigger cannot pin a producer on the full bus forever.
type Manager struct {
	orch *Orchestrator

	// AttachGrace overrides DefaultAttachGrace; set before the first StartRun.
	AttachGrace time.Duration

	mu   sync.Mutex
	runs map[uuid.UUID]*managedRun
}

type managedRun struct {
	handle   *Handle
	attached bool
}

func NewManager(o *Orchestrator) *Manager {
	return &Manager{orch: o, runs: make(map[uuid.UUID]*managedRun)}
}

// StartRun triggers a run and registers its handle for later attachment.
func (m *Manager) StartRun(ctx context.Context, topic string) (*Handle, error) {
	h, err := m.orch.Start(ctx, topic)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.runs[h.ID] = &managedRun{handle: h}
	m.mu.Unlock()

	go m.reapUnattached(h)
	return h, nil
}

// reapUnattached claims the observer slot of a run nobody attached to within
// the grace period and drains it to termination.
func (m *Manager) reapUnattached(h *Handle) {
	grace := m.AttachGrace
	if grace <= 0 {
		grace = DefaultAttachGrace
	}
	time.Sleep(grace)

	m.mu.Lock()
	r, ok := m.runs[h.ID]
	if !ok || r.attached {
		m.mu.Unlock()
		return
	}
	r.attached = true
	m.mu.Unlock()

	for range h.Events() {
	}
	m.Release(h.ID)
}

// Attach claims the run's single observer slot and returns its handle.
func (m *Manager) Attach(id uuid.UUID) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[id]
	if !ok {
		return nil, ErrUnknownRun
	}
	if r.attached {
		return nil, ErrAlreadyAttached
	}
	r.attached = true
	return r.handle, nil
}

// Cancel signals the run's cancellation. The run still delivers its terminal
// event through the normal sequence.
func (m *Manager) Cancel(id uuid.UUID) error {
	m.mu.Lock()
	r, ok := m.runs[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownRun
	}
	r.handle.Cancel()
	return nil
}

// Release disposes the run after terminal delivery. Idempotent.
func (m *Manager) Release(id uuid.UUID) {
	m.mu.Lock()
	delete(m.runs, id)
	m.mu.Unlock()
}

// Live reports how many runs are currently registered.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}
