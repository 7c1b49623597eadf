package progress

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mvetter/stewardflow/internal/domain"
)

const (
	barWidth        = 24
	messageTailSize = 5
)

func renderView(state domain.ProgressState, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render(viewTitle(opts)),
		s.header.Render(connectionLabel(state)),
	}

	lines = append(lines, s.section.Render(renderPhases(state, s)))

	if agents := renderAgents(state, s); agents != "" {
		lines = append(lines, s.section.Render(agents))
	}

	if messages := renderMessages(state.Messages, s); messages != "" {
		lines = append(lines, s.section.Render(messages))
	}

	if state.Error != "" {
		lines = append(lines, s.section.Render(s.warning.Render("error: "+state.Error)))
	}
	if state.IsComplete {
		lines = append(lines, s.section.Render(s.success.Render("Onboarding complete.")))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func viewTitle(opts RenderOptions) string {
	switch {
	case opts.StudyName != "" && opts.SessionID != "":
		return fmt.Sprintf("Onboarding: %s (%s)", opts.StudyName, opts.SessionID)
	case opts.SessionID != "":
		return fmt.Sprintf("Onboarding session %s", opts.SessionID)
	default:
		return "Onboarding"
	}
}

func connectionLabel(state domain.ProgressState) string {
	if state.IsConnected {
		return "stream: live"
	}
	return "stream: disconnected"
}

func renderPhases(state domain.ProgressState, s styles) string {
	currentIndex := phaseIndex(state.Phase)
	parts := make([]string, 0, len(domain.Phases())+1)

	for i, phase := range domain.Phases() {
		switch {
		case i < currentIndex || state.IsComplete:
			parts = append(parts, s.phaseDone.Render("  [x] "+phaseLabel(phase)))
		case i == currentIndex:
			parts = append(parts, s.phaseNow.Render("  [>] "+phaseLabel(phase)))
		default:
			parts = append(parts, s.phaseTodo.Render("  [ ] "+phaseLabel(phase)))
		}
	}

	bar := renderBar(state.OverallProgress, barWidth, s)
	overall := lipgloss.JoinHorizontal(lipgloss.Top,
		s.detail.Render("overall: "), bar, s.detail.Render(fmt.Sprintf(" %3d%%", clampPercent(state.OverallProgress))))
	parts = append(parts, overall)

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderAgents(state domain.ProgressState, s styles) string {
	if len(state.AgentUpdates) == 0 {
		return ""
	}

	names := make([]string, 0, len(state.AgentUpdates))
	for name := range state.AgentUpdates {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+1)
	parts = append(parts, s.header.Render(fmt.Sprintf("agents: %d", len(names))))
	for _, name := range names {
		update := state.AgentUpdates[name]
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			s.agent.Render(fmt.Sprintf("  %-18s", name)),
			renderBar(update.Progress, barWidth, s),
			s.detail.Render(fmt.Sprintf(" %3d%%  %s", clampPercent(update.Progress), update.Status)),
		)
		if update.ItemsFound > 0 {
			line += s.message.Render(fmt.Sprintf("  (%d found)", update.ItemsFound))
		}
		parts = append(parts, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderMessages(messages []string, s styles) string {
	if len(messages) == 0 {
		return ""
	}

	tail := messages
	if len(tail) > messageTailSize {
		tail = tail[len(tail)-messageTailSize:]
	}

	parts := make([]string, 0, len(tail))
	for _, message := range tail {
		parts = append(parts, s.message.Render("  • "+message))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderSummaryView(summary domain.ApprovalSummary, s styles) string {
	lines := []string{
		s.title.Render("Source Approvals"),
		s.header.Render(fmt.Sprintf("total: %d  approved: %d  rejected: %d  pending: %d",
			summary.Total, summary.ApprovedCount, summary.RejectedCount, summary.PendingCount)),
	}

	if summary.Total == 0 {
		lines = append(lines, s.empty.Render("No recommended sources yet."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	types := make([]string, 0, len(summary.ByType))
	for sourceType := range summary.ByType {
		types = append(types, sourceType)
	}
	sort.Strings(types)

	for _, sourceType := range types {
		counts := summary.ByType[sourceType]
		lines = append(lines, s.detail.Render(fmt.Sprintf("  %-14s approved %d, rejected %d, pending %d",
			sourceType, counts.Approved, counts.Rejected, counts.Pending)))
	}

	gate := fmt.Sprintf("finalize gate: %d of %d approvals", summary.ApprovedCount, summary.MinimumRequired)
	if summary.CanProceed {
		lines = append(lines, s.section.Render(s.success.Render(gate+": ready")))
	} else {
		lines = append(lines, s.section.Render(s.warning.Render(gate+": blocked")))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderAuditView(entries []domain.AuditEntry, s styles) string {
	lines := []string{
		s.title.Render("Approval Audit Trail"),
		s.header.Render(fmt.Sprintf("entries: %d", len(entries))),
	}

	if len(entries) == 0 {
		lines = append(lines, s.empty.Render("No approval decisions recorded."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, entry := range entries {
		line := fmt.Sprintf("  %s  %s/%s  %s → %s",
			entry.Timestamp.Format("2006-01-02 15:04:05"),
			entry.SourceType, entry.SourceID,
			previousLabel(entry.PreviousStatus), entry.Action)
		if entry.UserID != "" {
			line += "  by " + entry.UserID
		}
		lines = append(lines, s.detail.Render(line))
		if entry.Reason != "" {
			lines = append(lines, s.message.Render("      reason: "+entry.Reason))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func previousLabel(status domain.ApprovalStatus) string {
	if status == "" {
		return "unset"
	}
	return string(status)
}

func renderBar(percent, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	done := float64(clampPercent(percent)) / 100.0
	filled := int(math.Round(float64(width) * done))
	if filled > width {
		filled = width
	}

	fillSegment := s.barFill.Render(strings.Repeat("=", filled))
	emptySegment := s.barEmpty.Render(strings.Repeat("-", width-filled))

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		fillSegment,
		emptySegment,
		s.barBracket.Render("]"),
	)
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func phaseLabel(phase domain.Phase) string {
	return strings.ReplaceAll(string(phase), "_", " ")
}

func phaseIndex(phase domain.Phase) int {
	for i, known := range domain.Phases() {
		if phase == known {
			return i
		}
	}
	return 0
}
