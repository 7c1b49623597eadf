// Package progress renders workflow state and approval summaries for the
// terminal. Rendering runs through a headless bubbletea program so the
// output goes through the same styling pipeline as the interactive watch
// view.
package progress

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mvetter/stewardflow/internal/domain"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type renderReadyMsg struct{}

type model struct {
	render func(styles) string
	styles styles
	output string
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return renderReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case renderReadyMsg:
		m.output = m.render(m.styles)
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

type RenderOptions struct {
	SessionID domain.SessionID
	StudyName string
}

// Snapshot renders the progress view directly, for callers that already
// own a bubbletea program and re-render every frame.
func Snapshot(state domain.ProgressState, opts RenderOptions) string {
	return renderView(state, opts, newStyles())
}

// Render returns the one-shot progress view for a session.
func Render(state domain.ProgressState, opts RenderOptions) (string, error) {
	return run(func(s styles) string {
		return renderView(state, opts, s)
	})
}

// RenderSummary returns the approval summary view.
func RenderSummary(summary domain.ApprovalSummary) (string, error) {
	return run(func(s styles) string {
		return renderSummaryView(summary, s)
	})
}

// RenderAudit returns the approval audit trail view.
func RenderAudit(entries []domain.AuditEntry) (string, error) {
	return run(func(s styles) string {
		return renderAuditView(entries, s)
	})
}

func run(render func(styles) string) (string, error) {
	p := tea.NewProgram(
		model{render: render, styles: newStyles()},
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return rendered.View(), nil
}
