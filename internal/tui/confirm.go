package tui

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"
)

// Interactive reports whether the process is attached to a terminal on both
// ends of the conversation.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stderr.Fd()))
}

type confirmModel struct {
	question string
	accepted bool
	answered bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "y", "Y":
		m.accepted = true
		m.answered = true
		return m, tea.Quit
	case "n", "N", "enter", "esc", "q", "ctrl+c":
		// Anything but an explicit yes declines.
		m.answered = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		answer := "no"
		if m.accepted {
			answer = "yes"
		}
		return fmt.Sprintf("%s %s\n", promptStyle.Render(m.question), answer)
	}
	return promptStyle.Render(m.question) + " " + dimStyle.Render("[y/N]") + " "
}

// Confirm asks a yes/no question on the terminal. The default answer is no.
func Confirm(ctx context.Context, question string) (bool, error) {
	program := tea.NewProgram(
		confirmModel{question: question},
		tea.WithContext(ctx),
		tea.WithOutput(os.Stderr),
	)

	final, err := program.Run()
	if err != nil {
		return false, err
	}

	model, ok := final.(confirmModel)
	if !ok {
		return false, fmt.Errorf("unexpected prompt model %T", final)
	}
	return model.accepted, nil
}
