package tui

import (
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type spinDoneMsg struct{}

type spinModel struct {
	spinner spinner.Model
	message string
	done    <-chan struct{}
}

func newSpinModel(message string, done <-chan struct{}) spinModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = sectionStyle
	return spinModel{spinner: s, message: message, done: done}
}

func (m spinModel) waitForDone() tea.Cmd {
	return func() tea.Msg {
		<-m.done
		return spinDoneMsg{}
	}
}

func (m spinModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForDone())
}

func (m spinModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinDoneMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		// The work keeps running; keys only dismiss the indicator.
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

func (m spinModel) View() string {
	return m.spinner.View() + " " + m.message
}

// Spin displays an animated indicator while fn runs. Without a terminal the
// indicator is skipped and fn runs inline.
func Spin(message string, fn func()) {
	if !Interactive() {
		fn()
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	program := tea.NewProgram(newSpinModel(message, done), tea.WithOutput(os.Stderr))
	if _, err := program.Run(); err != nil {
		// The indicator is cosmetic; wait for the work and move on.
		<-done
	}
}
