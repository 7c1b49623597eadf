package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

func TestProgressServiceFoldsEndToEndScenario(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{}
	var completedWith map[string]any
	svc := NewProgressService(stream, WithCompletionFunc(func(data map[string]any) {
		completedWith = data
	}))

	svc.Connect(context.Background(), "S1")
	sub := stream.latest()
	require.NotNil(t, sub)
	assert.True(t, svc.State().IsConnected)

	sub.onEvent(domain.PhaseChangeEvent{Phase: domain.PhaseDiscovery})
	state := svc.State()
	assert.Equal(t, domain.PhaseDiscovery, state.Phase)
	assert.Equal(t, 0, state.OverallProgress)

	sub.onEvent(domain.ProgressEvent{
		OverallProgress: 42,
		AgentUpdates:    map[string]domain.AgentUpdate{"literature": {Status: "running", Progress: 60}},
	})
	state = svc.State()
	assert.Equal(t, 42, state.OverallProgress)
	assert.Equal(t, domain.AgentUpdate{Status: "running", Progress: 60}, state.AgentUpdates["literature"])

	sub.onEvent(domain.CompleteEvent{Data: map[string]any{"accepted_sources": 3}})
	state = svc.State()
	assert.Equal(t, domain.PhaseComplete, state.Phase)
	assert.Equal(t, 100, state.OverallProgress)
	assert.True(t, state.IsComplete)
	assert.False(t, state.IsConnected)
	assert.Equal(t, map[string]any{"accepted_sources": 3}, completedWith)

	// Terminal events tear the subscription down.
	assert.True(t, sub.isDisposed())
}

func TestProgressServiceSingleActiveSubscription(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{}
	svc := NewProgressService(stream)

	svc.Connect(context.Background(), "sessionA")
	subA := stream.latest()

	svc.Connect(context.Background(), "sessionB")
	subB := stream.latest()

	require.True(t, subA.isDisposed())
	assert.Equal(t, domain.SessionID("sessionB"), svc.SessionID())

	// Late events from the torn-down stream must never be folded.
	subA.onEvent(domain.ProgressEvent{OverallProgress: 99})
	assert.Equal(t, 0, svc.State().OverallProgress)

	subB.onEvent(domain.ProgressEvent{OverallProgress: 10})
	assert.Equal(t, 10, svc.State().OverallProgress)
}

func TestProgressServiceSubscribeFailureBecomesErrorState(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{subscribeErr: errors.New("invalid session id")}
	svc := NewProgressService(stream)

	svc.Connect(context.Background(), "bogus")

	state := svc.State()
	assert.False(t, state.IsConnected)
	assert.Contains(t, state.Error, "invalid session id")
}

func TestProgressServiceTransportErrorMapsToErrorState(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{}
	var reported error
	svc := NewProgressService(stream, WithStreamErrorFunc(func(err error) { reported = err }))

	svc.Connect(context.Background(), "S1")
	sub := stream.latest()

	sub.onError(errors.New("connection dropped"))

	state := svc.State()
	assert.Equal(t, "connection dropped", state.Error)
	assert.False(t, state.IsConnected)
	require.Error(t, reported)
	assert.True(t, sub.isDisposed())
}

func TestProgressServicePhaseHooksFireOnTransition(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{}
	var transitions [][2]domain.Phase
	svc := NewProgressService(stream, WithPhaseChangeFunc(func(previous, current domain.Phase) {
		transitions = append(transitions, [2]domain.Phase{previous, current})
	}))

	svc.Connect(context.Background(), "S1")
	sub := stream.latest()

	sub.onEvent(domain.PhaseChangeEvent{Phase: domain.PhaseDiscovery})
	sub.onEvent(domain.PhaseChangeEvent{Phase: domain.PhaseDiscovery}) // no transition
	sub.onEvent(domain.PhaseChangeEvent{Phase: domain.PhaseRecommendations})

	assert.Equal(t, [][2]domain.Phase{
		{domain.PhaseContextCapture, domain.PhaseDiscovery},
		{domain.PhaseDiscovery, domain.PhaseRecommendations},
	}, transitions)
}

func TestProgressServiceResetRestoresInitialState(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{}
	svc := NewProgressService(stream)

	svc.Connect(context.Background(), "S1")
	sub := stream.latest()
	sub.onEvent(domain.ProgressEvent{OverallProgress: 55})
	sub.onEvent(domain.ErrorEvent{Message: "agent crashed"})

	svc.Reset()

	state := svc.State()
	assert.Equal(t, domain.NewProgressState(), state)
	assert.Empty(t, svc.SessionID())
	assert.True(t, sub.isDisposed())
}

func TestProgressServiceDisconnectIsIdempotent(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{}
	svc := NewProgressService(stream)

	svc.Connect(context.Background(), "S1")
	sub := stream.latest()
	sub.onEvent(domain.ProgressEvent{OverallProgress: 30})

	svc.Disconnect()
	svc.Disconnect()

	// Already-folded state is not retroactively undone.
	state := svc.State()
	assert.Equal(t, 30, state.OverallProgress)
	assert.False(t, state.IsConnected)
}

type fakeStream struct {
	mu           sync.Mutex
	subs         []*fakeSubscription
	subscribeErr error
}

type fakeSubscription struct {
	id      domain.SessionID
	onEvent func(domain.StreamEvent)
	onError func(error)

	mu       sync.Mutex
	disposed bool
}

func (f *fakeStream) Subscribe(_ context.Context, id domain.SessionID, onEvent func(domain.StreamEvent), onError func(error)) (ports.Disposer, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}

	sub := &fakeSubscription{id: id, onEvent: onEvent, onError: onError}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	return func() {
		sub.mu.Lock()
		sub.disposed = true
		sub.mu.Unlock()
	}, nil
}

func (f *fakeStream) latest() *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (s *fakeSubscription) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
