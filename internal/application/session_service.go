package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

// SessionService drives the backend's session lifecycle and keeps the local
// registry of sessions the steward has touched on this machine. The
// registry is a convenience memo; the backend remains the source of truth
// for phase and progress.
type SessionService struct {
	backend ports.WorkflowBackend
	repo    ports.SessionRepository
	clock   ports.Clock
}

func NewSessionService(backend ports.WorkflowBackend, repo ports.SessionRepository, clock ports.Clock) *SessionService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &SessionService{backend: backend, repo: repo, clock: clock}
}

func (s *SessionService) Start(ctx context.Context, studyName string, studyContext map[string]any) (domain.SessionSnapshot, error) {
	snapshot, err := s.backend.StartSession(ctx, studyName, studyContext)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("start session: %w", err)
	}

	now := s.clock.Now()
	if err := s.repo.Save(ctx, domain.SessionRecord{
		ID:        snapshot.ID,
		StudyName: studyName,
		LastPhase: snapshot.CurrentPhase,
		StartedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("record session: %w", err)
	}

	return snapshot, nil
}

func (s *SessionService) Status(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	snapshot, err := s.backend.GetSession(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("get session: %w", err)
	}

	s.touchRecord(ctx, snapshot)
	return snapshot, nil
}

func (s *SessionService) Cancel(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	snapshot, err := s.backend.CancelSession(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("cancel session: %w", err)
	}

	s.touchRecord(ctx, snapshot)
	return snapshot, nil
}

func (s *SessionService) Resume(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	snapshot, err := s.backend.ResumeSession(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("resume session: %w", err)
	}

	s.touchRecord(ctx, snapshot)
	return snapshot, nil
}

// AdvancePhase runs the backend operation for the snapshot's current phase:
// discovery, recommendation generation, deep research, or completion.
func (s *SessionService) AdvancePhase(ctx context.Context, id domain.SessionID, phase domain.Phase) (domain.SessionSnapshot, error) {
	var snapshot domain.SessionSnapshot
	var err error

	switch phase {
	case domain.PhaseContextCapture:
		snapshot, err = s.backend.RunDiscovery(ctx, id)
	case domain.PhaseDiscovery:
		snapshot, err = s.backend.GenerateRecommendations(ctx, id)
	case domain.PhaseRecommendations:
		snapshot, err = s.backend.AcceptRecommendations(ctx, id)
	case domain.PhaseDeepResearch:
		snapshot, err = s.backend.CompleteSession(ctx, id)
	default:
		return domain.SessionSnapshot{}, fmt.Errorf("no operation advances phase %q", phase)
	}
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("advance from %s: %w", phase, err)
	}

	s.touchRecord(ctx, snapshot)
	return snapshot, nil
}

func (s *SessionService) List(ctx context.Context) ([]domain.SessionRecord, error) {
	records, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return records, nil
}

// touchRecord refreshes the registry memo. Registry misses are tolerated:
// a session started elsewhere gets a record on first touch here.
func (s *SessionService) touchRecord(ctx context.Context, snapshot domain.SessionSnapshot) {
	record, err := s.repo.GetByID(ctx, snapshot.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return
		}
		record = domain.SessionRecord{ID: snapshot.ID, StartedAt: s.clock.Now()}
	}

	record.LastPhase = snapshot.CurrentPhase
	record.UpdatedAt = s.clock.Now()
	_ = s.repo.Save(ctx, record)
}
