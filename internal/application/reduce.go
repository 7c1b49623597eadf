package application

import "github.com/mvetter/stewardflow/internal/domain"

const genericStreamError = "workflow stream reported an error"

// reduce folds one stream event into the progress state and returns the new
// state. It is pure: no I/O, no callbacks, no clock. Feeding it the same
// event twice is harmless: phase_change is a no-op on phase the second
// time (the messages list does grow, which is expected: messages accumulate
// for history display, they are not deduplicated).
//
// Out-of-order progress events apply last-write-wins, so the percentage can
// regress visually. That mirrors the backend's contract of sending full
// snapshots; clamping to monotonic is a product decision nobody has made.
func reduce(state domain.ProgressState, event domain.StreamEvent) domain.ProgressState {
	switch ev := event.(type) {
	case domain.PhaseChangeEvent:
		if ev.Phase.Valid() {
			state.Phase = ev.Phase
		}
		if ev.Message != "" {
			state.Messages = append(state.Messages, ev.Message)
		}

	case domain.ProgressEvent:
		state.OverallProgress = ev.OverallProgress
		if ev.AgentUpdates != nil {
			// Full snapshot semantics: replace the map wholesale, never merge
			// per field.
			replaced := make(map[string]domain.AgentUpdate, len(ev.AgentUpdates))
			for name, update := range ev.AgentUpdates {
				replaced[name] = update
			}
			state.AgentUpdates = replaced
		}
		if ev.Message != "" {
			state.Messages = append(state.Messages, ev.Message)
		}

	case domain.AgentUpdateEvent:
		if ev.Agent != "" {
			updates := make(map[string]domain.AgentUpdate, len(state.AgentUpdates)+1)
			for name, update := range state.AgentUpdates {
				updates[name] = update
			}
			updates[ev.Agent] = ev.Update
			state.AgentUpdates = updates
		}

	case domain.CompleteEvent:
		state.Phase = domain.PhaseComplete
		state.OverallProgress = 100
		state.IsComplete = true
		state.IsConnected = false
		if ev.Message != "" {
			state.Messages = append(state.Messages, ev.Message)
		}

	case domain.ErrorEvent:
		message := ev.Message
		if message == "" {
			message = genericStreamError
		}
		state.Error = message
		state.IsConnected = false

	case domain.CancelledEvent:
		message := ev.Message
		if message == "" {
			message = "session cancelled"
		}
		state.Error = message
		state.IsConnected = false

	case domain.PartialFailureEvent:
		if ev.Message != "" {
			state.Messages = append(state.Messages, ev.Message)
		}
		state.Messages = append(state.Messages, ev.Errors...)
	}

	return state
}
