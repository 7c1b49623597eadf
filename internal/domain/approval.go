package domain

import "time"

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Decided reports whether the status is one a steward may set explicitly.
// Pending is only ever assigned by initialization, never by an update.
func (s ApprovalStatus) Decided() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// SourceKey uniquely identifies a recommended source within a session.
type SourceKey struct {
	SourceType string
	SourceID   string
}

// SourceApproval is the current approval state of one recommended source.
// Rejection is a terminal status, not a removal; entries are never deleted
// within a session so the audit history keeps its denominator.
type SourceApproval struct {
	SourceID   string
	SourceType string
	Status     ApprovalStatus
	Reason     string
	ApprovedAt time.Time
	ApprovedBy string
	Settings   map[string]any
}

func (a SourceApproval) Key() SourceKey {
	return SourceKey{SourceType: a.SourceType, SourceID: a.SourceID}
}

// AuditEntry is one immutable record of an approval status transition. The
// audit log only grows; it is the source of truth for what changed, when,
// and why, independent of the current-state map.
type AuditEntry struct {
	Timestamp      time.Time
	SourceID       string
	SourceType     string
	Action         ApprovalStatus
	Reason         string
	UserID         string
	PreviousStatus ApprovalStatus
}

// TypeCounts is the per-source-type slice of an approval summary.
type TypeCounts struct {
	Approved int
	Rejected int
	Pending  int
}

// ApprovalSummary is a view over the approval map. It is recomputed from
// the full map on every read and never stored independently.
type ApprovalSummary struct {
	Total           int
	ApprovedCount   int
	RejectedCount   int
	PendingCount    int
	ByType          map[string]TypeCounts
	CanProceed      bool
	MinimumRequired int
}

// DefaultMinimumApprovals is the gate below which a session may not be
// finalized: at least one approved source.
const DefaultMinimumApprovals = 1

// ComputeSummary counts approvals by status, overall and per source type.
// A source whose status is unset (added after initialization) counts as
// pending rather than being excluded from the denominator.
func ComputeSummary(approvals map[SourceKey]SourceApproval, minimumRequired int) ApprovalSummary {
	if minimumRequired <= 0 {
		minimumRequired = DefaultMinimumApprovals
	}

	summary := ApprovalSummary{
		ByType:          map[string]TypeCounts{},
		MinimumRequired: minimumRequired,
	}

	for key, approval := range approvals {
		summary.Total++
		counts := summary.ByType[key.SourceType]
		switch approval.Status {
		case ApprovalApproved:
			summary.ApprovedCount++
			counts.Approved++
		case ApprovalRejected:
			summary.RejectedCount++
			counts.Rejected++
		default:
			summary.PendingCount++
			counts.Pending++
		}
		summary.ByType[key.SourceType] = counts
	}

	summary.CanProceed = summary.ApprovedCount >= minimumRequired
	return summary
}
