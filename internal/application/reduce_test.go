package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mvetter/stewardflow/internal/domain"
)

func TestReducePhaseChangeIsIdempotentOnPhase(t *testing.T) {
	t.Parallel()

	state := domain.NewProgressState()
	event := domain.PhaseChangeEvent{Phase: domain.PhaseDiscovery, Message: "discovery started"}

	state = reduce(state, event)
	assert.Equal(t, domain.PhaseDiscovery, state.Phase)

	// Folding the same event again is a no-op on phase; messages accumulate
	// for history display, which is expected.
	state = reduce(state, event)
	assert.Equal(t, domain.PhaseDiscovery, state.Phase)
	assert.Equal(t, []string{"discovery started", "discovery started"}, state.Messages)
}

func TestReduceProgressReplacesAgentMapWholesale(t *testing.T) {
	t.Parallel()

	state := domain.NewProgressState()
	state = reduce(state, domain.ProgressEvent{
		OverallProgress: 20,
		AgentUpdates: map[string]domain.AgentUpdate{
			"literature": {Status: "running", Progress: 40},
			"registry":   {Status: "running", Progress: 10},
		},
	})

	state = reduce(state, domain.ProgressEvent{
		OverallProgress: 42,
		AgentUpdates: map[string]domain.AgentUpdate{
			"literature": {Status: "running", Progress: 60, ItemsFound: 12},
		},
	})

	assert.Equal(t, 42, state.OverallProgress)
	// The backend sends full snapshots: registry must be gone, not merged.
	assert.Equal(t, map[string]domain.AgentUpdate{
		"literature": {Status: "running", Progress: 60, ItemsFound: 12},
	}, state.AgentUpdates)
}

func TestReduceProgressWithoutAgentMapKeepsExisting(t *testing.T) {
	t.Parallel()

	state := domain.NewProgressState()
	state = reduce(state, domain.ProgressEvent{
		OverallProgress: 20,
		AgentUpdates:    map[string]domain.AgentUpdate{"fda": {Status: "running", Progress: 5}},
	})
	state = reduce(state, domain.ProgressEvent{OverallProgress: 30})

	assert.Equal(t, 30, state.OverallProgress)
	assert.Contains(t, state.AgentUpdates, "fda")
}

func TestReduceProgressAppliesLastWriteWins(t *testing.T) {
	t.Parallel()

	state := domain.NewProgressState()
	state = reduce(state, domain.ProgressEvent{OverallProgress: 70})
	state = reduce(state, domain.ProgressEvent{OverallProgress: 42})

	// Out-of-order delivery can make progress regress; this is the
	// documented last-write-wins behavior.
	assert.Equal(t, 42, state.OverallProgress)
}

func TestReduceCompleteSetsTerminalState(t *testing.T) {
	t.Parallel()

	state := domain.NewProgressState()
	state.IsConnected = true
	state = reduce(state, domain.CompleteEvent{Message: "done"})

	assert.Equal(t, domain.PhaseComplete, state.Phase)
	assert.Equal(t, 100, state.OverallProgress)
	assert.True(t, state.IsComplete)
	assert.False(t, state.IsConnected)
	assert.Equal(t, []string{"done"}, state.Messages)
}

func TestReduceErrorDefaultsMessage(t *testing.T) {
	t.Parallel()

	state := domain.NewProgressState()
	state.IsConnected = true
	state = reduce(state, domain.ErrorEvent{})

	assert.Equal(t, genericStreamError, state.Error)
	assert.False(t, state.IsConnected)
}

func TestReduceAgentUpdateMergesSingleAgent(t *testing.T) {
	t.Parallel()

	state := domain.NewProgressState()
	state = reduce(state, domain.ProgressEvent{
		OverallProgress: 10,
		AgentUpdates:    map[string]domain.AgentUpdate{"literature": {Status: "running", Progress: 10}},
	})
	state = reduce(state, domain.AgentUpdateEvent{
		Agent:  "registry",
		Update: domain.AgentUpdate{Status: "running", Progress: 3, ItemsFound: 1},
	})

	assert.Len(t, state.AgentUpdates, 2)
	assert.Equal(t, domain.AgentUpdate{Status: "running", Progress: 3, ItemsFound: 1}, state.AgentUpdates["registry"])
}

func TestReducePartialFailureAccumulatesMessages(t *testing.T) {
	t.Parallel()

	state := domain.NewProgressState()
	state = reduce(state, domain.PartialFailureEvent{
		Message: "fda agent failed",
		Errors:  []string{"timeout fetching device registry"},
	})

	assert.Empty(t, state.Error)
	assert.Equal(t, []string{"fda agent failed", "timeout fetching device registry"}, state.Messages)
}
