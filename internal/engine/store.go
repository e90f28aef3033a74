package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gemihub/gemiflow/pkg/schema"
)

// Execution is the in-memory record of one workflow run.
type Execution struct {
	ID         string
	WorkflowID string
	Owner      string
	CreatedAt  time.Time

	mu         sync.Mutex
	status     schema.ExecutionStatus
	errMessage string
	finishedAt time.Time
	cancel     context.CancelFunc
}

// Snapshot is the externally visible state of an execution.
type Snapshot struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflow_id"`
	Owner      string                 `json:"owner,omitempty"`
	Status     schema.ExecutionStatus `json:"status"`
	Error      string                 `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

// Status returns the current lifecycle state.
func (e *Execution) Status() schema.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// SetStatus transitions the lifecycle state. Terminal states also record the
// finish time; transitions out of a terminal state are ignored.
func (e *Execution) SetStatus(s schema.ExecutionStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status.Terminal() {
		return
	}
	e.status = s
	if s.Terminal() {
		e.finishedAt = time.Now().UTC()
	}
}

// SetError records the failure message alongside the error status.
func (e *Execution) SetError(msg string) {
	e.mu.Lock()
	e.errMessage = msg
	e.mu.Unlock()
	e.SetStatus(schema.ExecutionStatusError)
}

// Snapshot returns a copy of the visible state.
func (e *Execution) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{
		ID:         e.ID,
		WorkflowID: e.WorkflowID,
		Owner:      e.Owner,
		Status:     e.status,
		Error:      e.errMessage,
		CreatedAt:  e.CreatedAt,
	}
	if !e.finishedAt.IsZero() {
		t := e.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

// ExecutionStore tracks live and recently finished executions. Entries are
// evicted by the janitor once terminal, or unconditionally past the age
// ceiling.
type ExecutionStore struct {
	mu         sync.RWMutex
	executions map[string]*Execution

	retention time.Duration
	maxAge    time.Duration
}

// NewExecutionStore creates a store. retention is how long terminal entries
// linger for status queries; maxAge is the unconditional eviction ceiling.
func NewExecutionStore(retention, maxAge time.Duration) *ExecutionStore {
	if retention <= 0 {
		retention = 10 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &ExecutionStore{
		executions: make(map[string]*Execution),
		retention:  retention,
		maxAge:     maxAge,
	}
}

// Create registers a new execution bound to the given cancel func.
func (s *ExecutionStore) Create(workflowID, owner string, cancel context.CancelFunc) *Execution {
	exec := &Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Owner:      owner,
		CreatedAt:  time.Now().UTC(),
		status:     schema.ExecutionStatusIdle,
		cancel:     cancel,
	}
	s.mu.Lock()
	s.executions[exec.ID] = exec
	s.mu.Unlock()
	return exec
}

func (s *ExecutionStore) Get(id string) (*Execution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executions[id]
	return e, ok
}

// IsOwnedBy reports whether the execution exists and belongs to principal.
func (s *ExecutionStore) IsOwnedBy(id, principal string) bool {
	e, ok := s.Get(id)
	return ok && e.Owner == principal
}

// Cancel requests cooperative cancellation. Returns false when the
// execution is unknown or already terminal.
func (s *ExecutionStore) Cancel(id string) bool {
	e, ok := s.Get(id)
	if !ok || e.Status().Terminal() {
		return false
	}
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

func (s *ExecutionStore) Remove(id string) {
	s.mu.Lock()
	delete(s.executions, id)
	s.mu.Unlock()
}

// List returns snapshots of all tracked executions.
func (s *ExecutionStore) List() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, 0, len(s.executions))
	for _, e := range s.executions {
		out = append(out, e.Snapshot())
	}
	return out
}

// StartJanitor launches the eviction loop. It stops when ctx ends.
func (s *ExecutionStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(time.Now().UTC())
			}
		}
	}()
}

func (s *ExecutionStore) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.executions {
		snap := e.Snapshot()
		switch {
		case snap.FinishedAt != nil && now.Sub(*snap.FinishedAt) > s.retention:
			delete(s.executions, id)
		case now.Sub(snap.CreatedAt) > s.maxAge:
			if cancel := e.takeCancel(); cancel != nil {
				cancel()
			}
			delete(s.executions, id)
		}
	}
}

func (e *Execution) takeCancel() context.CancelFunc {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel
}
