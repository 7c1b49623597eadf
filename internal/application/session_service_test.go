package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvetter/stewardflow/internal/domain"
)

func TestSessionServiceStartRecordsSession(t *testing.T) {
	t.Parallel()

	repo := &inMemorySessionRepo{}
	clock := fixedClock{now: time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)}
	svc := NewSessionService(&fakeBackend{}, repo, clock)

	snapshot, err := svc.Start(context.Background(), "CARDIO-77", map[string]any{"indication": "heart failure"})
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseContextCapture, snapshot.CurrentPhase)

	records, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "CARDIO-77", records[0].StudyName)
	assert.Equal(t, clock.now, records[0].StartedAt)
}

func TestSessionServiceResumeTouchesUnknownSession(t *testing.T) {
	t.Parallel()

	repo := &inMemorySessionRepo{}
	svc := NewSessionService(&fakeBackend{}, repo, nil)

	snapshot, err := svc.Resume(context.Background(), "S9")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDiscovery, snapshot.CurrentPhase)

	record, err := repo.GetByID(context.Background(), "S9")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDiscovery, record.LastPhase)
}

func TestSessionServiceAdvancePhaseMapsOperations(t *testing.T) {
	t.Parallel()

	svc := NewSessionService(&fakeBackend{}, &inMemorySessionRepo{}, nil)

	snapshot, err := svc.AdvancePhase(context.Background(), "S1", domain.PhaseContextCapture)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDiscovery, snapshot.CurrentPhase)

	snapshot, err = svc.AdvancePhase(context.Background(), "S1", domain.PhaseDeepResearch)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, snapshot.CurrentPhase)

	_, err = svc.AdvancePhase(context.Background(), "S1", domain.PhaseComplete)
	require.Error(t, err)
}

type inMemorySessionRepo struct {
	records []domain.SessionRecord
}

func (r *inMemorySessionRepo) GetByID(_ context.Context, id domain.SessionID) (domain.SessionRecord, error) {
	for _, record := range r.records {
		if record.ID == id {
			return record, nil
		}
	}
	return domain.SessionRecord{}, domain.ErrSessionNotFound
}

func (r *inMemorySessionRepo) List(_ context.Context) ([]domain.SessionRecord, error) {
	return r.records, nil
}

func (r *inMemorySessionRepo) Save(_ context.Context, record domain.SessionRecord) error {
	for i := range r.records {
		if r.records[i].ID == record.ID {
			r.records[i] = record
			return nil
		}
	}
	r.records = append(r.records, record)
	return nil
}
