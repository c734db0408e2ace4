// Package wizard implements the interactive init flow that produces a
// .todosafe.yaml configuration.
package wizard

import (
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/todosafe/todosafe/internal/config"
)

type (
	wizardState int

	initWizardModel struct {
		state     wizardState
		cfg       config.Config
		cursor    int
		confirmed bool
		aborted   bool
	}
)

const (
	stateIntro wizardState = iota
	stateEdit
	stateConfirm
)

// Settings edited by the wizard, in cursor order.
const (
	fieldDB = iota
	fieldBackups
	fieldCache
	fieldTimeout
	fieldCount
)

// Run drives the init wizard. The returned bool is false when the user
// aborted or declined to confirm.
func Run(cfg config.Config, stdout io.Writer, stdin io.Reader) (config.Config, bool, error) {
	model := &initWizardModel{state: stateIntro, cfg: cfg}
	program := tea.NewProgram(model, tea.WithInput(stdin), tea.WithOutput(stdout))
	res, err := program.Run()
	if err != nil {
		return cfg, false, err
	}
	finalModel, ok := res.(*initWizardModel)
	if !ok {
		return cfg, false, fmt.Errorf("unexpected wizard state")
	}
	if finalModel.aborted || !finalModel.confirmed {
		return cfg, false, nil
	}
	return finalModel.cfg, true, nil
}

func (m *initWizardModel) Init() tea.Cmd {
	return nil
}

func (m *initWizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.aborted = true
			return m, tea.Quit
		case "q":
			if m.state != stateEdit || m.cursor != fieldDB {
				m.aborted = true
				return m, tea.Quit
			}
			m.typeRune('q')
		case "enter":
			switch m.state {
			case stateIntro:
				m.state = stateEdit
			case stateEdit:
				m.state = stateConfirm
			case stateConfirm:
				m.confirmed = true
				return m, tea.Quit
			}
		case "esc":
			if m.state == stateConfirm {
				m.state = stateEdit
			}
		case "up":
			if m.state == stateEdit {
				m.moveCursor(-1)
			}
		case "down":
			if m.state == stateEdit {
				m.moveCursor(1)
			}
		case "left", "-":
			if m.state == stateEdit {
				m.adjust(-1)
			}
		case "right", "+":
			if m.state == stateEdit {
				m.adjust(1)
			}
		case "backspace":
			if m.state == stateEdit && m.cursor == fieldDB && m.cfg.DB != "" {
				m.cfg.DB = m.cfg.DB[:len(m.cfg.DB)-1]
			}
		case " ":
			if m.state == stateEdit && m.cursor == fieldCache {
				m.cfg.CacheEnabled = !m.cfg.CacheEnabled
			}
		default:
			if m.state == stateEdit && m.cursor == fieldDB && len(msg.Runes) == 1 {
				m.typeRune(msg.Runes[0])
			}
		}
	}
	return m, nil
}

func (m *initWizardModel) View() string {
	switch m.state {
	case stateIntro:
		return m.viewIntro()
	case stateEdit:
		return m.viewEdit()
	case stateConfirm:
		return m.viewConfirm()
	default:
		return ""
	}
}

func (m *initWizardModel) moveCursor(delta int) {
	m.cursor += delta
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor > fieldCount-1 {
		m.cursor = fieldCount - 1
	}
}

func (m *initWizardModel) adjust(delta int) {
	switch m.cursor {
	case fieldBackups:
		n := m.cfg.BackupCount + delta
		if n < 0 {
			n = 0
		}
		if n > 10 {
			n = 10
		}
		m.cfg.BackupCount = n
	case fieldCache:
		m.cfg.CacheEnabled = !m.cfg.CacheEnabled
	case fieldTimeout:
		secs := int(m.cfg.LockTimeout.Seconds()) + delta*5
		if secs < 5 {
			secs = 5
		}
		if secs > 120 {
			secs = 120
		}
		m.cfg.LockTimeout = time.Duration(secs) * time.Second
	}
}

func (m *initWizardModel) typeRune(r rune) {
	if len(m.cfg.DB) < 128 {
		m.cfg.DB += string(r)
	}
}

func (m *initWizardModel) viewIntro() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\ntodosafe init wizard\n\n")
	fmt.Fprintf(&b, "This wizard writes a %s file with your storage settings.\n\n", config.DefaultPath)
	fmt.Fprintf(&b, "Press Enter to continue, or Ctrl+C to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewEdit() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReview and adjust settings\n\n")
	fmt.Fprintf(&b, "Use ↑/↓ to move, ←/→ or +/- to change values, type to edit the path.\n\n")

	rows := []struct {
		label string
		value string
	}{
		{"Todo file", m.cfg.DB},
		{"Backup retention", fmt.Sprintf("%d", m.cfg.BackupCount)},
		{"Read cache", onOff(m.cfg.CacheEnabled)},
		{"Lock timeout", fmt.Sprintf("%.0fs", m.cfg.LockTimeout.Seconds())},
	}
	for idx, row := range rows {
		indicator := "  "
		if m.cursor == idx {
			indicator = "> "
		}
		fmt.Fprintf(&b, "%s%s: %s\n", indicator, row.label, row.value)
	}
	fmt.Fprintf(&b, "\nEnter to continue, Ctrl+C to cancel.\n")
	return b.String()
}

func (m *initWizardModel) viewConfirm() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nReady to write configuration\n\n")
	fmt.Fprintf(&b, "Todo file: %s\n", m.cfg.DB)
	fmt.Fprintf(&b, "Backup retention: %d\n", m.cfg.BackupCount)
	fmt.Fprintf(&b, "Read cache: %s\n", onOff(m.cfg.CacheEnabled))
	fmt.Fprintf(&b, "Lock timeout: %.0fs\n", m.cfg.LockTimeout.Seconds())
	fmt.Fprintf(&b, "\nPress Enter to save, Esc to go back, q to cancel.\n")
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
