package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/world-wasm/config"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#98FB98"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newInteractiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "interactive",
		Aliases: []string{"i"},
		Short:   "Pick operations and files from a terminal UI",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) || !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal")
			}
			p := tea.NewProgram(newInteractiveModel(cmd.Context(), a.cfg), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
}

type operation struct {
	name   string
	desc   string
	params []string
	run    func(ctx context.Context, b backend, args []string) (string, error)
}

var operations = []operation{
	{
		name: "describe",
		desc: "engine build information",
		run: func(ctx context.Context, b backend, _ []string) (string, error) {
			return b.Describe(ctx)
		},
	},
	{
		name:   "analyze",
		desc:   "F0, spectral envelope and aperiodicity summary",
		params: []string{"input"},
		run: func(ctx context.Context, b backend, args []string) (string, error) {
			audio, a, err := analyzeFile(ctx, b, args[0])
			if err != nil {
				return "", err
			}
			var buf bytes.Buffer
			err = renderSummary(&buf, summarize(args[0], audio, a))
			return buf.String(), err
		},
	},
	{
		name:   "resynth",
		desc:   "analyze and resynthesize to a new file",
		params: []string{"input", "output"},
		run: func(ctx context.Context, b backend, args []string) (string, error) {
			sum, err := resynthFile(ctx, b, args[0], args[1])
			if err != nil {
				return "", err
			}
			var buf bytes.Buffer
			err = renderSummary(&buf, sum)
			return buf.String(), err
		},
	},
}

type modelState int

const (
	stateSelectOp modelState = iota
	stateInputArgs
	stateRunning
	stateShowResult
)

type interactiveModel struct {
	ctx      context.Context
	cfg      *config.Config
	sess     *session
	err      error
	result   string
	wavs     []string
	inputs   []textinput.Model
	spinner  spinner.Model
	selected int
	focusIdx int
	state    modelState
	loaded   bool
}

func newInteractiveModel(ctx context.Context, cfg *config.Config) *interactiveModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &interactiveModel{
		ctx:     ctx,
		cfg:     cfg,
		spinner: sp,
		state:   stateSelectOp,
	}
}

type loadedMsg struct {
	err  error
	sess *session
	wavs []string
}

type resultMsg struct {
	err    error
	result string
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.load, m.spinner.Tick)
}

func (m *interactiveModel) load() tea.Msg {
	sess, err := openSession(m.ctx, m.cfg)
	if err != nil {
		return loadedMsg{err: err}
	}
	var wavs []string
	if entries, err := os.ReadDir("."); err == nil {
		for _, e := range entries {
			if !e.IsDir() && isWAV(e.Name()) {
				wavs = append(wavs, e.Name())
			}
		}
	}
	return loadedMsg{sess: sess, wavs: wavs}
}

func (m *interactiveModel) close() {
	if m.sess != nil {
		_ = m.sess.Close(m.ctx)
		m.sess = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectOp && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectOp && m.selected < len(operations)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectOp:
				if !m.loaded {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					m.state = stateRunning
					return m, m.runOperation
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				m.state = stateRunning
				return m, m.runOperation

			case stateShowResult:
				m.reset()
				return m, nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
				return m, nil
			}

		case "esc":
			if m.state == stateInputArgs || m.state == stateShowResult {
				m.reset()
				return m, nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sess = msg.sess
		m.wavs = msg.wavs
		m.loaded = true

	case resultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectOp
	m.inputs = nil
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	op := operations[m.selected]
	m.inputs = make([]textinput.Model, len(op.params))
	for i, name := range op.params {
		ti := textinput.New()
		ti.Prompt = name + ": "
		ti.Width = 40
		switch {
		case name == "input" && len(m.wavs) > 0:
			ti.Placeholder = m.wavs[0]
		case name == "output":
			ti.Placeholder = "resynth.wav"
		default:
			ti.Placeholder = "file.wav"
		}
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) runOperation() tea.Msg {
	if m.sess == nil {
		return resultMsg{err: fmt.Errorf("engine not loaded")}
	}
	op := operations[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = strings.TrimSpace(input.Value())
		if args[i] == "" {
			args[i] = input.Placeholder
		}
	}
	out, err := op.run(m.ctx, m.sess.backend, args)
	return resultMsg{result: strings.TrimRight(out, "\n"), err: err}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if !m.loaded {
		return m.spinner.View() + " Loading engine..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("WORLD"))
	b.WriteString(" ")
	b.WriteString(m.cfg.Engine.Wasm)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectOp:
		b.WriteString("Select an operation:\n\n")
		for i, op := range operations {
			line := opStyle.Render(op.name) + "  " + hintStyle.Render(op.desc)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + op.name))
				b.WriteString("  " + hintStyle.Render(op.desc))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		if len(m.wavs) > 0 {
			b.WriteString("\n")
			b.WriteString(hintStyle.Render(fmt.Sprintf("%d WAV file(s) in the current directory", len(m.wavs))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • q quit"))

	case stateInputArgs:
		op := operations[m.selected]
		b.WriteString(fmt.Sprintf("Running %s\n\n", opStyle.Render(op.name)))
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter run • esc back"))

	case stateRunning:
		b.WriteString(m.spinner.View())
		b.WriteString(" Running ")
		b.WriteString(opStyle.Render(operations[m.selected].name))
		b.WriteString("...")

	case stateShowResult:
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", opStyle.Render(operations[m.selected].name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}
	return b.String()
}
