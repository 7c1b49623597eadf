package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	progressrender "github.com/mvetter/stewardflow/internal/adapters/render/progress"
	"github.com/mvetter/stewardflow/internal/application"
	"github.com/mvetter/stewardflow/internal/domain"
)

const watchRefreshInterval = 200 * time.Millisecond

func newWatchCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow a session's event stream live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])

			app.progress.Connect(cmd.Context(), id)
			defer app.progress.Disconnect()

			model := newWatchModel(app.progress, app.renderOptionsFor(cmd.Context(), id))
			p := tea.NewProgram(
				model,
				tea.WithOutput(cmd.OutOrStdout()),
				tea.WithContext(cmd.Context()),
			)

			finalModel, err := p.Run()
			if err != nil {
				return err
			}

			final, ok := finalModel.(watchModel)
			if !ok {
				return fmt.Errorf("unexpected final watch model type %T", finalModel)
			}

			// Print the last frame so the terminal keeps the end state after
			// the alt screen is gone.
			state := final.service.State()
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), progressrender.Snapshot(state, final.opts))
			if state.Error != "" {
				return fmt.Errorf("session stream ended with error: %s", state.Error)
			}
			return nil
		},
	}
}

type watchTickMsg struct{}

type watchModel struct {
	service *application.ProgressService
	opts    progressrender.RenderOptions
	spinner spinner.Model
	done    bool
}

func newWatchModel(service *application.ProgressService, opts progressrender.RenderOptions) watchModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return watchModel{
		service: service,
		opts:    opts,
		spinner: s,
	}
}

func watchTick() tea.Cmd {
	return tea.Tick(watchRefreshInterval, func(time.Time) tea.Msg {
		return watchTickMsg{}
	})
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, watchTick())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case watchTickMsg:
		state := m.service.State()
		if state.IsComplete || state.Error != "" {
			m.done = true
			return m, tea.Quit
		}
		return m, watchTick()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m watchModel) View() string {
	if m.done {
		return ""
	}

	view := progressrender.Snapshot(m.service.State(), m.opts)
	return view + "\n" + m.spinner.View() + " watching (q to quit)\n"
}
