package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

// CompletionFunc receives the terminal complete event's data payload.
type CompletionFunc func(data map[string]any)

// PhaseChangeFunc observes phase transitions; the composition root uses it
// to invalidate and prefetch the next phase's cached data.
type PhaseChangeFunc func(previous, current domain.Phase)

// ProgressService owns the derived workflow state for one session at a
// time. State is mutated only by folding stream events through the pure
// reducer; external callers read snapshots and drive connect, disconnect,
// and reset.
//
// Folding never returns an error: every failure becomes state (the Error
// field) for the caller to render. That includes a subscribe call that
// fails synchronously.
type ProgressService struct {
	stream ports.EventStream
	logger *slog.Logger

	mu         sync.Mutex
	state      domain.ProgressState
	sessionID  domain.SessionID
	dispose    ports.Disposer
	generation uint64

	onComplete    CompletionFunc
	onStreamError func(err error)
	phaseHooks    []PhaseChangeFunc
}

type ProgressOption func(*ProgressService)

func WithCompletionFunc(fn CompletionFunc) ProgressOption {
	return func(s *ProgressService) { s.onComplete = fn }
}

// WithStreamErrorFunc observes stream-level errors in addition to the Error
// state field (for logging or alerting; rendering should read the field).
func WithStreamErrorFunc(fn func(error)) ProgressOption {
	return func(s *ProgressService) { s.onStreamError = fn }
}

func WithPhaseChangeFunc(fn PhaseChangeFunc) ProgressOption {
	return func(s *ProgressService) { s.phaseHooks = append(s.phaseHooks, fn) }
}

func WithProgressLogger(logger *slog.Logger) ProgressOption {
	return func(s *ProgressService) { s.logger = logger }
}

func NewProgressService(stream ports.EventStream, opts ...ProgressOption) *ProgressService {
	s := &ProgressService{
		stream: stream,
		logger: slog.Default(),
		state:  domain.NewProgressState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns a snapshot of the current derived state.
func (s *ProgressService) State() domain.ProgressState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// SessionID returns the session the service is currently bound to.
func (s *ProgressService) SessionID() domain.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Connect subscribes to the session's event channel. Any previous
// subscription is fully torn down first: at most one subscription is ever
// live per service instance, and late events from a torn-down stream are
// never folded (each connect bumps a generation token that stale handlers
// fail). A synchronous subscribe failure lands in the Error field rather
// than being returned, so the caller's error handling stays uniform with
// stream-delivered errors.
func (s *ProgressService) Connect(ctx context.Context, id domain.SessionID) {
	s.mu.Lock()
	if s.dispose != nil {
		s.dispose()
		s.dispose = nil
	}
	s.generation++
	generation := s.generation
	s.sessionID = id
	s.state.IsConnected = true
	s.state.Error = ""
	s.mu.Unlock()

	dispose, err := s.stream.Subscribe(ctx, id,
		func(event domain.StreamEvent) { s.fold(generation, event) },
		func(err error) { s.foldError(generation, err) },
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		// A newer Connect raced us; this subscription is already obsolete.
		if err == nil && dispose != nil {
			dispose()
		}
		return
	}
	if err != nil {
		s.logger.Warn("progress: subscribe failed", "session", id, "error", err)
		s.state.Error = err.Error()
		s.state.IsConnected = false
		return
	}
	s.dispose = dispose
}

// Disconnect unsubscribes and marks the state disconnected. Idempotent;
// already-folded state stays as it is.
func (s *ProgressService) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

func (s *ProgressService) disconnectLocked() {
	if s.dispose != nil {
		s.dispose()
		s.dispose = nil
	}
	s.generation++
	s.state.IsConnected = false
}

// Reset disconnects and restores the initial state.
func (s *ProgressService) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
	s.sessionID = ""
	s.state = domain.NewProgressState()
}

func (s *ProgressService) fold(generation uint64, event domain.StreamEvent) {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return
	}

	previous := s.state
	s.state = reduce(s.state, event)

	var hooks []PhaseChangeFunc
	if s.state.Phase != previous.Phase {
		hooks = append(hooks, s.phaseHooks...)
	}
	previousPhase, currentPhase := previous.Phase, s.state.Phase

	var completion CompletionFunc
	var completionData map[string]any
	if ev, ok := event.(domain.CompleteEvent); ok && s.onComplete != nil {
		completion = s.onComplete
		completionData = ev.Data
	}
	if event.Type().Terminal() {
		if s.dispose != nil {
			s.dispose()
			s.dispose = nil
		}
	}
	s.mu.Unlock()

	// Callbacks run outside the lock so they may read State().
	for _, hook := range hooks {
		hook(previousPhase, currentPhase)
	}
	if completion != nil {
		completion(completionData)
	}
	if ev, ok := event.(domain.ErrorEvent); ok && s.onStreamError != nil {
		message := ev.Message
		if message == "" {
			message = genericStreamError
		}
		s.onStreamError(errors.New(message))
	}
}

// foldError maps a transport-level failure to the same handling as an
// error event.
func (s *ProgressService) foldError(generation uint64, err error) {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.state = reduce(s.state, domain.ErrorEvent{Message: err.Error()})
	if s.dispose != nil {
		s.dispose()
		s.dispose = nil
	}
	s.mu.Unlock()

	if s.onStreamError != nil {
		s.onStreamError(err)
	}
}
