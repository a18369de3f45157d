package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStoreCreateGetRoundTrip(t *testing.T) {
	store := NewTaskStore()
	created := store.Create("t1", Unlimited)
	assert.Equal(t, TaskWorking, created.Status)

	got, ok := store.Get("t1")
	require.True(t, ok)
	assert.Equal(t, created.TaskID, got.TaskID)
	assert.Equal(t, created.Status, got.Status)
}

func TestTaskStoreGetUnknownReturnsFalse(t *testing.T) {
	store := NewTaskStore()
	_, ok := store.Get("nope")
	assert.False(t, ok)
}

func TestTaskStoreGetReturnsACopyNotTheLivePointer(t *testing.T) {
	// A caller holding the *Task from Get must never observe a later
	// Update mutating it out from under them - only List's snapshot
	// semantics were originally guaranteed; Get must match.
	store := NewTaskStore()
	store.Create("t1", Unlimited)

	got, ok := store.Get("t1")
	require.True(t, ok)
	originalStatus := got.Status

	require.True(t, store.Update("t1", TaskCompleted, "done"))

	assert.Equal(t, originalStatus, got.Status, "Get's returned *Task must not alias the store's live entry")

	live, _ := store.Get("t1")
	assert.Equal(t, TaskCompleted, live.Status)
}

func TestTaskStoreUpdateUnknownReturnsFalse(t *testing.T) {
	store := NewTaskStore()
	assert.False(t, store.Update("nope", TaskCompleted, "done"))
}

func TestTaskStoreListReturnsCopies(t *testing.T) {
	store := NewTaskStore()
	store.Create("t1", Unlimited)

	list := store.List()
	require.Len(t, list, 1)
	list[0].Status = TaskFailed

	live, _ := store.Get("t1")
	assert.Equal(t, TaskWorking, live.Status, "mutating a List result must not affect the store")
}

func TestTaskStoreDeleteRemovesTask(t *testing.T) {
	store := NewTaskStore()
	store.Create("t1", Unlimited)
	store.Delete("t1")
	_, ok := store.Get("t1")
	assert.False(t, ok)
}

func TestTaskStoreSweepExpiredRemovesOnlyTerminalPastTTL(t *testing.T) {
	store := NewTaskStore()
	store.Create("active", Unlimited)
	store.Create("terminal-fresh", 1000)
	store.Create("terminal-stale", 1000)

	require.True(t, store.Update("terminal-fresh", TaskCompleted, "done"))
	require.True(t, store.Update("terminal-stale", TaskCompleted, "done"))

	now := time.Now()
	store.mu.Lock()
	store.tasks["terminal-stale"].LastUpdatedAt = now.Add(-2 * time.Second)
	store.mu.Unlock()

	store.SweepExpired(now)

	_, activeOK := store.Get("active")
	_, freshOK := store.Get("terminal-fresh")
	_, staleOK := store.Get("terminal-stale")
	assert.True(t, activeOK, "unlimited-ttl tasks are never swept")
	assert.True(t, freshOK, "fresh terminal task is within its ttl")
	assert.False(t, staleOK, "stale terminal task past its ttl must be swept")
}
