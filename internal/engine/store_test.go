package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gemihub/gemiflow/pkg/schema"
)

func TestExecutionStatusTransitions(t *testing.T) {
	s := NewExecutionStore(0, 0)
	exec := s.Create("wf-1", "alice", nil)

	assert.Equal(t, schema.ExecutionStatusIdle, exec.Status())

	exec.SetStatus(schema.ExecutionStatusRunning)
	assert.Equal(t, schema.ExecutionStatusRunning, exec.Status())

	exec.SetStatus(schema.ExecutionStatusCompleted)
	assert.Equal(t, schema.ExecutionStatusCompleted, exec.Status())

	// Terminal states latch.
	exec.SetStatus(schema.ExecutionStatusRunning)
	assert.Equal(t, schema.ExecutionStatusCompleted, exec.Status())

	snap := exec.Snapshot()
	require.NotNil(t, snap.FinishedAt)
	assert.Equal(t, "wf-1", snap.WorkflowID)
}

func TestExecutionSetError(t *testing.T) {
	s := NewExecutionStore(0, 0)
	exec := s.Create("wf-1", "alice", nil)
	exec.SetStatus(schema.ExecutionStatusRunning)
	exec.SetError("boom")

	snap := exec.Snapshot()
	assert.Equal(t, schema.ExecutionStatusError, snap.Status)
	assert.Equal(t, "boom", snap.Error)
	assert.NotNil(t, snap.FinishedAt)
}

func TestStoreGetAndList(t *testing.T) {
	s := NewExecutionStore(0, 0)
	a := s.Create("wf-1", "alice", nil)
	b := s.Create("wf-2", "bob", nil)
	assert.NotEqual(t, a.ID, b.ID)

	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	assert.Len(t, s.List(), 2)
}

func TestStoreOwnership(t *testing.T) {
	s := NewExecutionStore(0, 0)
	exec := s.Create("wf-1", "alice", nil)

	assert.True(t, s.IsOwnedBy(exec.ID, "alice"))
	assert.False(t, s.IsOwnedBy(exec.ID, "bob"))
	assert.False(t, s.IsOwnedBy("missing", "alice"))

	assert.Equal(t, "alice", exec.Snapshot().Owner)
}

func TestStoreCancel(t *testing.T) {
	s := NewExecutionStore(0, 0)

	cancelled := false
	exec := s.Create("wf-1", "alice", func() { cancelled = true })
	exec.SetStatus(schema.ExecutionStatusRunning)

	assert.True(t, s.Cancel(exec.ID))
	assert.True(t, cancelled)

	assert.False(t, s.Cancel("missing"))

	exec.SetStatus(schema.ExecutionStatusCompleted)
	assert.False(t, s.Cancel(exec.ID))
}

func TestStoreSweepEvictsTerminal(t *testing.T) {
	s := NewExecutionStore(10*time.Minute, 24*time.Hour)

	done := s.Create("wf-1", "alice", nil)
	done.SetStatus(schema.ExecutionStatusCompleted)
	live := s.Create("wf-2", "alice", nil)
	live.SetStatus(schema.ExecutionStatusRunning)

	s.sweep(time.Now().UTC().Add(11 * time.Minute))

	_, ok := s.Get(done.ID)
	assert.False(t, ok)
	_, ok = s.Get(live.ID)
	assert.True(t, ok)
}

func TestStoreSweepAgeCeiling(t *testing.T) {
	s := NewExecutionStore(10*time.Minute, 24*time.Hour)

	cancelled := false
	stuck := s.Create("wf-1", "alice", func() { cancelled = true })
	stuck.SetStatus(schema.ExecutionStatusRunning)
	stuck.CreatedAt = time.Now().UTC().Add(-25 * time.Hour)

	s.sweep(time.Now().UTC())

	_, ok := s.Get(stuck.ID)
	assert.False(t, ok)
	assert.True(t, cancelled)
}
