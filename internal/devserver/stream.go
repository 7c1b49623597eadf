package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mvetter/stewardflow/internal/domain"
)

// handleStream plays a scripted run from the session's current phase to
// completion: a phase_change per phase, progress frames with agent updates
// inside each phase, and a terminal complete event. The script advances the
// stored session state so later GETs agree with what the stream reported.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "sessionID")
	s.mu.Lock()
	sess, found := s.sessions[id]
	var startPhase domain.Phase
	if found {
		startPhase = sess.phase
	}
	s.mu.Unlock()

	if !found {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	phases := domain.Phases()

	for i := phaseIndex(startPhase); i < len(phases); i++ {
		phase := phases[i]
		if phase == domain.PhaseComplete {
			break
		}

		s.setPhase(id, phase)
		s.emit(w, flusher, domain.EventPhaseChange, map[string]any{
			"phase":   string(phase),
			"message": "Entered phase " + string(phase),
		})
		if !s.pause(ctx) {
			return
		}

		for step := 1; step <= progressStepsPerPhase; step++ {
			overall := overallFor(phase, step)
			s.setProgress(id, overall)
			s.emit(w, flusher, domain.EventProgress, map[string]any{
				"phase":            string(phase),
				"overall_progress": overall,
				"agent_updates":    scriptedAgents(phase, step),
			})
			if !s.pause(ctx) {
				return
			}
		}
	}

	s.setPhase(id, domain.PhaseComplete)
	s.setProgress(id, 100)
	s.emit(w, flusher, domain.EventComplete, map[string]any{
		"message": "Onboarding complete",
		"data":    map[string]any{"report_key": "session:" + id + ":report"},
	})
}

func (s *Server) emit(w http.ResponseWriter, flusher http.Flusher, eventType domain.EventType, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("encode stream payload", "event", string(eventType), "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	flusher.Flush()
}

// pause waits one step interval; false means the client went away.
func (s *Server) pause(ctx context.Context) bool {
	timer := time.NewTimer(s.stepInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Server) setPhase(id string, phase domain.Phase) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.previousPhase = sess.phase
		sess.phase = phase
	}
	s.mu.Unlock()
}

func (s *Server) setProgress(id string, progress int) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.progress = progress
	}
	s.mu.Unlock()
}

func scriptedAgents(phase domain.Phase, step int) map[string]any {
	updates := map[string]any{}
	for i, name := range agentNames {
		progress := step * 100 / progressStepsPerPhase
		status := "running"
		if progress >= 100 {
			status = "done"
		}
		updates[name] = map[string]any{
			"status":      status,
			"progress":    progress,
			"items_found": itemsFor(phase, step, i),
		}
	}
	return updates
}

func itemsFor(phase domain.Phase, step, agent int) int {
	if phase != domain.PhaseDiscovery && phase != domain.PhaseDeepResearch {
		return 0
	}
	return step*(agent+2) + agent
}
