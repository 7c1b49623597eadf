package domain

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventProgress       EventType = "progress"
	EventPhaseChange    EventType = "phase_change"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
	EventCancelled      EventType = "cancelled"
	EventPartialFailure EventType = "partial_failure"
	EventAgentUpdate    EventType = "agent_update"
)

// EventTypes returns every named event type the stream can carry.
func EventTypes() []EventType {
	return []EventType{
		EventProgress,
		EventPhaseChange,
		EventComplete,
		EventError,
		EventCancelled,
		EventPartialFailure,
		EventAgentUpdate,
	}
}

// Terminal reports whether receiving this event type closes the stream.
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError || t == EventCancelled
}

// StreamEvent is one server-pushed event, discriminated by its concrete
// type. Each event type has a fully specified payload shape rather than one
// loosely optional record.
type StreamEvent interface {
	Type() EventType
}

// ProgressEvent carries the overall percentage and, when present, a full
// snapshot of every agent's progress. AgentUpdates of nil means the event
// carried no agent map; an empty map means it carried an empty one.
type ProgressEvent struct {
	Phase           Phase
	OverallProgress int
	AgentUpdates    map[string]AgentUpdate
	Message         string
}

func (ProgressEvent) Type() EventType { return EventProgress }

type PhaseChangeEvent struct {
	Phase   Phase
	Message string
}

func (PhaseChangeEvent) Type() EventType { return EventPhaseChange }

type CompleteEvent struct {
	Message string
	Data    map[string]any
}

func (CompleteEvent) Type() EventType { return EventComplete }

type ErrorEvent struct {
	Message string
	Errors  []string
}

func (ErrorEvent) Type() EventType { return EventError }

type CancelledEvent struct {
	Message string
}

func (CancelledEvent) Type() EventType { return EventCancelled }

type PartialFailureEvent struct {
	Message string
	Errors  []string
}

func (PartialFailureEvent) Type() EventType { return EventPartialFailure }

// AgentUpdateEvent reports a single agent's progress between full progress
// snapshots.
type AgentUpdateEvent struct {
	Agent  string
	Update AgentUpdate
}

func (AgentUpdateEvent) Type() EventType { return EventAgentUpdate }

// eventPayload is the wire shape shared by all event types.
type eventPayload struct {
	Phase           string                `json:"phase"`
	OverallProgress int                   `json:"overall_progress"`
	Agent           string                `json:"agent"`
	AgentUpdates    map[string]wireUpdate `json:"agent_updates"`
	Message         string                `json:"message"`
	Data            map[string]any        `json:"data"`
	Errors          []string              `json:"errors"`
}

type wireUpdate struct {
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	ItemsFound int    `json:"items_found"`
}

// ParseStreamEvent decodes the JSON payload of a named stream event into
// its tagged variant. Unknown event types are an error; the subscriber only
// listens for the enumerated set, so reaching one here means the transport
// and this client disagree.
func ParseStreamEvent(eventType EventType, data []byte) (StreamEvent, error) {
	var p eventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode %s event: %w", eventType, err)
	}

	switch eventType {
	case EventProgress:
		ev := ProgressEvent{
			Phase:           Phase(p.Phase),
			OverallProgress: p.OverallProgress,
			Message:         p.Message,
		}
		if p.AgentUpdates != nil {
			ev.AgentUpdates = make(map[string]AgentUpdate, len(p.AgentUpdates))
			for name, u := range p.AgentUpdates {
				ev.AgentUpdates[name] = AgentUpdate(u)
			}
		}
		return ev, nil
	case EventPhaseChange:
		return PhaseChangeEvent{Phase: Phase(p.Phase), Message: p.Message}, nil
	case EventComplete:
		return CompleteEvent{Message: p.Message, Data: p.Data}, nil
	case EventError:
		return ErrorEvent{Message: p.Message, Errors: p.Errors}, nil
	case EventCancelled:
		return CancelledEvent{Message: p.Message}, nil
	case EventPartialFailure:
		return PartialFailureEvent{Message: p.Message, Errors: p.Errors}, nil
	case EventAgentUpdate:
		ev := AgentUpdateEvent{Agent: p.Agent}
		if u, ok := p.AgentUpdates[p.Agent]; ok {
			ev.Update = AgentUpdate(u)
		} else {
			// Some backend builds omit the top-level agent name and send a
			// single-entry map instead.
			for name, u := range p.AgentUpdates {
				ev.Agent = name
				ev.Update = AgentUpdate(u)
			}
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}
