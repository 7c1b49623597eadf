// Package devserver is a self-contained mock of the workflow backend. It
// speaks the same JSON surface and SSE stream as the real service, with a
// scripted phase progression instead of live agents. `sw devserver` runs it
// for local development; the e2e tests run it in-process.
package devserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mvetter/stewardflow/internal/domain"
)

const (
	defaultStepInterval = 400 * time.Millisecond
	progressStepsPerPhase = 3
)

// Recommended sources seeded when a session reaches the recommendations
// phase.
var seedSources = []domain.SourceKey{
	{SourceType: "literature", SourceID: "pubmed-cardio-2019"},
	{SourceType: "registry", SourceID: "ctgov-nct0441"},
	{SourceType: "guidelines", SourceID: "esc-hf-2024"},
}

var agentNames = []string{"literature_agent", "registry_agent", "guidelines_agent"}

type session struct {
	id            string
	studyName     string
	phase         domain.Phase
	previousPhase domain.Phase
	progress      int
	approvals     map[domain.SourceKey]domain.SourceApproval
	audit         []domain.AuditEntry
	feedbackCount int
}

type Server struct {
	logger          *slog.Logger
	stepInterval    time.Duration
	minimumRequired int

	mu       sync.Mutex
	nextID   int
	sessions map[string]*session
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStepInterval sets the delay between scripted stream frames. Tests use
// a very small interval.
func WithStepInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.stepInterval = d
		}
	}
}

func WithMinimumRequired(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.minimumRequired = n
		}
	}
}

func New(opts ...Option) *Server {
	s := &Server{
		logger:          slog.Default(),
		stepInterval:    defaultStepInterval,
		minimumRequired: domain.DefaultMinimumApprovals,
		sessions:        map[string]*session{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/onboarding/sessions", func(r chi.Router) {
		r.Post("/", s.handleStart)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Post("/discovery", s.phaseOp(domain.PhaseDiscovery))
			r.Post("/recommendations", s.handleRecommendations)
			r.Post("/recommendations/accept", s.phaseOp(domain.PhaseDeepResearch))
			r.Post("/deep-research", s.phaseOp(domain.PhaseDeepResearch))
			r.Post("/complete", s.phaseOp(domain.PhaseComplete))
			r.Post("/cancel", s.handleCancel)
			r.Post("/resume", s.handleResume)
			r.Get("/stream", s.handleStream)
			r.Get("/approvals", s.handleListApprovals)
			r.Put("/approvals/{sourceType}/{sourceID}", s.handleUpdateApproval)
			r.Post("/approvals/finalize", s.handleFinalize)
			r.Get("/audit", s.handleAudit)
			r.Post("/feedback", s.handleFeedback)
		})
	})

	return r
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudyName string `json:"study_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.nextID++
	sess := &session{
		id:        fmt.Sprintf("sess-%04d", s.nextID),
		studyName: req.StudyName,
		phase:     domain.PhaseContextCapture,
		approvals: map[domain.SourceKey]domain.SourceApproval{},
	}
	s.sessions[sess.id] = sess
	body := sessionJSON(sess)
	s.mu.Unlock()

	s.logger.Info("session started", "session_id", sess.id, "study", req.StudyName)
	writeJSON(w, http.StatusCreated, body)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (int, any) {
		return http.StatusOK, sessionJSON(sess)
	})
}

func (s *Server) phaseOp(target domain.Phase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.withSession(w, r, func(sess *session) (int, any) {
			sess.previousPhase = sess.phase
			sess.phase = target
			sess.progress = overallFor(target, 0)
			return http.StatusOK, sessionJSON(sess)
		})
	}
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (int, any) {
		sess.previousPhase = sess.phase
		sess.phase = domain.PhaseRecommendations
		sess.progress = overallFor(domain.PhaseRecommendations, 0)
		for _, key := range seedSources {
			if _, ok := sess.approvals[key]; !ok {
				sess.approvals[key] = domain.SourceApproval{
					SourceID:   key.SourceID,
					SourceType: key.SourceType,
					Status:     domain.ApprovalPending,
				}
			}
		}
		return http.StatusOK, sessionJSON(sess)
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (int, any) {
		sess.previousPhase = sess.phase
		return http.StatusOK, sessionJSON(sess)
	})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (int, any) {
		return http.StatusOK, sessionJSON(sess)
	})
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (int, any) {
		return http.StatusOK, map[string]any{
			"approvals": approvalsJSON(sess),
			"summary":   summaryJSON(domain.ComputeSummary(sess.approvals, s.minimumRequired)),
		}
	})
}

func (s *Server) handleUpdateApproval(w http.ResponseWriter, r *http.Request) {
	sourceType := chi.URLParam(r, "sourceType")
	sourceID := chi.URLParam(r, "sourceID")

	var req struct {
		Status   string         `json:"status"`
		Reason   string         `json:"reason"`
		Settings map[string]any `json:"settings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	status := domain.ApprovalStatus(req.Status)
	if !status.Decided() {
		http.Error(w, fmt.Sprintf("status %q is not approved or rejected", req.Status), http.StatusBadRequest)
		return
	}

	s.withSession(w, r, func(sess *session) (int, any) {
		key := domain.SourceKey{SourceType: sourceType, SourceID: sourceID}
		previous := sess.approvals[key].Status

		sess.approvals[key] = domain.SourceApproval{
			SourceID:   sourceID,
			SourceType: sourceType,
			Status:     status,
			Reason:     req.Reason,
			ApprovedAt: time.Now().UTC(),
			Settings:   req.Settings,
		}
		sess.audit = append(sess.audit, domain.AuditEntry{
			Timestamp:      time.Now().UTC(),
			SourceID:       sourceID,
			SourceType:     sourceType,
			Action:         status,
			Reason:         req.Reason,
			PreviousStatus: previous,
		})

		return http.StatusOK, map[string]any{
			"summary": summaryJSON(domain.ComputeSummary(sess.approvals, s.minimumRequired)),
		}
	})
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (int, any) {
		summary := domain.ComputeSummary(sess.approvals, s.minimumRequired)
		if !summary.CanProceed {
			return http.StatusConflict, map[string]any{
				"error": fmt.Sprintf("%d approved of %d required", summary.ApprovedCount, summary.MinimumRequired),
			}
		}

		sess.previousPhase = sess.phase
		sess.phase = domain.PhaseDeepResearch
		sess.progress = overallFor(domain.PhaseDeepResearch, 0)

		return http.StatusOK, map[string]any{
			"session": sessionJSON(sess),
			"summary": summaryJSON(summary),
		}
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(sess *session) (int, any) {
		entries := make([]map[string]any, 0, len(sess.audit))
		for _, entry := range sess.audit {
			entries = append(entries, map[string]any{
				"timestamp":       entry.Timestamp,
				"source_id":       entry.SourceID,
				"source_type":     entry.SourceType,
				"action":          string(entry.Action),
				"reason":          entry.Reason,
				"user_id":         entry.UserID,
				"previous_status": string(entry.PreviousStatus),
			})
		}
		return http.StatusOK, map[string]any{"entries": entries}
	})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Feedback string `json:"feedback"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Feedback == "" {
		http.Error(w, "feedback is empty", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[chi.URLParam(r, "sessionID")]
	if ok {
		sess.feedbackCount++
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// withSession runs fn under the server lock and writes its JSON result.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(*session) (int, any)) {
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	status, body := fn(sess)
	s.mu.Unlock()

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func sessionJSON(sess *session) map[string]any {
	phaseProgress := map[string]any{}
	currentIndex := phaseIndex(sess.phase)
	for i, phase := range domain.Phases() {
		entry := map[string]any{"completed": i < currentIndex, "progress": 0}
		if i < currentIndex {
			entry["progress"] = 100
		} else if i == currentIndex {
			entry["progress"] = sess.progress
		}
		phaseProgress[string(phase)] = entry
	}

	return map[string]any{
		"session_id":       sess.id,
		"current_phase":    string(sess.phase),
		"overall_progress": sess.progress,
		"phase_progress":   phaseProgress,
		"previous_phase":   string(sess.previousPhase),
	}
}

func approvalsJSON(sess *session) []map[string]any {
	out := make([]map[string]any, 0, len(sess.approvals))
	for _, approval := range sess.approvals {
		out = append(out, map[string]any{
			"source_id":   approval.SourceID,
			"source_type": approval.SourceType,
			"status":      string(approval.Status),
			"reason":      approval.Reason,
			"settings":    approval.Settings,
		})
	}
	return out
}

func summaryJSON(summary domain.ApprovalSummary) map[string]any {
	byType := map[string]any{}
	for sourceType, counts := range summary.ByType {
		byType[sourceType] = map[string]int{
			"approved": counts.Approved,
			"rejected": counts.Rejected,
			"pending":  counts.Pending,
		}
	}
	return map[string]any{
		"total":            summary.Total,
		"approved_count":   summary.ApprovedCount,
		"rejected_count":   summary.RejectedCount,
		"pending_count":    summary.PendingCount,
		"by_type":          byType,
		"can_proceed":      summary.CanProceed,
		"minimum_required": summary.MinimumRequired,
	}
}

func phaseIndex(phase domain.Phase) int {
	for i, known := range domain.Phases() {
		if phase == known {
			return i
		}
	}
	return 0
}

// overallFor maps a phase and an in-phase step to the overall percentage the
// scripted backend reports.
func overallFor(phase domain.Phase, step int) int {
	index := phaseIndex(phase)
	span := 100 / len(domain.Phases())
	progress := index*span + step*span/progressStepsPerPhase
	if phase == domain.PhaseComplete || progress > 100 {
		return 100
	}
	return progress
}
