package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/todosafe/todosafe/internal/domain"
)

var (
	doneStyle    = lipgloss.NewStyle().Faint(true)
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dueStyle     = lipgloss.NewStyle().Faint(true)
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// renderList prints todos one per line. Completed entries are hidden unless
// all is set. Styling only applies when writing to a terminal.
func renderList(w io.Writer, todos []domain.Todo, all bool) {
	tty := isTerminal(w)
	shown := 0
	for _, t := range todos {
		if t.Done && !all {
			continue
		}
		shown++
		fmt.Fprintln(w, renderTodo(t, tty))
	}
	if shown == 0 {
		fmt.Fprintln(w, "No todos")
	}
}

func renderTodo(t domain.Todo, tty bool) string {
	box := "[ ]"
	if t.Done {
		box = "[x]"
	}
	line := fmt.Sprintf("%s %3d  %s", box, t.ID, t.Text)
	if t.DueDate != "" {
		due := fmt.Sprintf(" (due %s)", t.DueDate)
		if tty && t.IsOverdue() {
			due = overdueStyle.Render(due)
		} else if tty {
			due = dueStyle.Render(due)
		}
		line += due
	}
	if tty && t.Done {
		line = doneStyle.Render(line)
	}
	return line
}
