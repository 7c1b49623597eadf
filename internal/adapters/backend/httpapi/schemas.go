package httpapi

import (
	"time"

	"github.com/mvetter/stewardflow/internal/domain"
)

// Wire schemas for the backend's JSON API. Field names follow the server's
// snake_case convention; conversion to domain types happens here so nothing
// above the adapter sees wire shapes.

type startSessionSchema struct {
	StudyName    string         `json:"study_name"`
	StudyContext map[string]any `json:"study_context,omitempty"`
}

type sessionSchema struct {
	SessionID       string                         `json:"session_id"`
	CurrentPhase    string                         `json:"current_phase"`
	OverallProgress int                            `json:"overall_progress"`
	PhaseProgress   map[string]phaseProgressSchema `json:"phase_progress,omitempty"`
	PreviousPhase   string                         `json:"previous_phase,omitempty"`
}

type phaseProgressSchema struct {
	Completed bool `json:"completed"`
	Progress  int  `json:"progress"`
}

func (s sessionSchema) toDomain() domain.SessionSnapshot {
	snapshot := domain.SessionSnapshot{
		ID:              domain.SessionID(s.SessionID),
		CurrentPhase:    domain.Phase(s.CurrentPhase),
		OverallProgress: s.OverallProgress,
		PreviousPhase:   domain.Phase(s.PreviousPhase),
	}
	if len(s.PhaseProgress) > 0 {
		snapshot.PhaseProgress = make(map[domain.Phase]domain.PhaseProgress, len(s.PhaseProgress))
		for phase, progress := range s.PhaseProgress {
			snapshot.PhaseProgress[domain.Phase(phase)] = domain.PhaseProgress{
				Completed: progress.Completed,
				Progress:  progress.Progress,
			}
		}
	}
	return snapshot
}

type approvalsSchema struct {
	Approvals []approvalSchema `json:"approvals"`
	Summary   summarySchema    `json:"summary"`
}

type approvalSchema struct {
	SourceID   string         `json:"source_id"`
	SourceType string         `json:"source_type"`
	Status     string         `json:"status"`
	Reason     string         `json:"reason,omitempty"`
	ApprovedAt time.Time      `json:"approved_at,omitzero"`
	ApprovedBy string         `json:"approved_by,omitempty"`
	Settings   map[string]any `json:"settings,omitempty"`
}

func (a approvalSchema) toDomain() domain.SourceApproval {
	return domain.SourceApproval{
		SourceID:   a.SourceID,
		SourceType: a.SourceType,
		Status:     domain.ApprovalStatus(a.Status),
		Reason:     a.Reason,
		ApprovedAt: a.ApprovedAt,
		ApprovedBy: a.ApprovedBy,
		Settings:   a.Settings,
	}
}

type summarySchema struct {
	Total           int                         `json:"total"`
	ApprovedCount   int                         `json:"approved_count"`
	RejectedCount   int                         `json:"rejected_count"`
	PendingCount    int                         `json:"pending_count"`
	ByType          map[string]typeCountsSchema `json:"by_type,omitempty"`
	CanProceed      bool                        `json:"can_proceed"`
	MinimumRequired int                         `json:"minimum_required"`
}

type typeCountsSchema struct {
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
}

func (s summarySchema) toDomain() domain.ApprovalSummary {
	summary := domain.ApprovalSummary{
		Total:           s.Total,
		ApprovedCount:   s.ApprovedCount,
		RejectedCount:   s.RejectedCount,
		PendingCount:    s.PendingCount,
		CanProceed:      s.CanProceed,
		MinimumRequired: s.MinimumRequired,
		ByType:          map[string]domain.TypeCounts{},
	}
	for sourceType, counts := range s.ByType {
		summary.ByType[sourceType] = domain.TypeCounts{
			Approved: counts.Approved,
			Rejected: counts.Rejected,
			Pending:  counts.Pending,
		}
	}
	return summary
}

type updateApprovalSchema struct {
	Status   string         `json:"status"`
	Reason   string         `json:"reason,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

type auditEntrySchema struct {
	Timestamp      time.Time `json:"timestamp"`
	SourceID       string    `json:"source_id"`
	SourceType     string    `json:"source_type"`
	Action         string    `json:"action"`
	Reason         string    `json:"reason,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
}

func (e auditEntrySchema) toDomain() domain.AuditEntry {
	return domain.AuditEntry{
		Timestamp:      e.Timestamp,
		SourceID:       e.SourceID,
		SourceType:     e.SourceType,
		Action:         domain.ApprovalStatus(e.Action),
		Reason:         e.Reason,
		UserID:         e.UserID,
		PreviousStatus: domain.ApprovalStatus(e.PreviousStatus),
	}
}

type feedbackSchema struct {
	Feedback          string `json:"feedback"`
	RequestReanalysis bool   `json:"request_reanalysis"`
}
