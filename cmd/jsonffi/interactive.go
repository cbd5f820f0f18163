package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/jsonffi/config"
	"github.com/wippyai/jsonffi/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	opStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#98FB98"))

	infoStyle = lipgloss.NewStyle().
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

// operation is one exchange offered in the menu.
type operation struct {
	name      string
	desc      string
	needsJSON bool
	run       func(ctx context.Context, rt *runtime.Runtime, v any) (string, error)
}

type interactiveModel struct {
	err      error
	rt       *runtime.Runtime
	log      *zap.Logger
	cfg      config.Config
	result   string
	document string
	ops      []operation
	input    textinput.Model
	selected int
	state    modelState
}

type modelState int

const (
	stateSelectOp modelState = iota
	stateInputJSON
	stateShowResult
)

type loadedMsg struct {
	err error
	rt  *runtime.Runtime
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(cfg config.Config, log *zap.Logger, document string) *interactiveModel {
	indent := cfg.Indent
	return &interactiveModel{
		cfg:      cfg,
		log:      log,
		document: document,
		state:    stateSelectOp,
		ops: []operation{
			{
				name:      "round-trip",
				desc:      "box into a container and decode it back",
				needsJSON: true,
				run: func(ctx context.Context, rt *runtime.Runtime, v any) (string, error) {
					out, err := rt.RoundTrip(ctx, v)
					return renderIndent(out, indent), err
				},
			},
			{
				name:      "send-string",
				desc:      "hand a NUL-terminated string to the foreign side",
				needsJSON: true,
				run: func(ctx context.Context, rt *runtime.Runtime, v any) (string, error) {
					n, err := rt.Send(ctx, v)
					return fmt.Sprintf("foreign side received %d bytes", n), err
				},
			},
			{
				name:      "send-container",
				desc:      "let the foreign side rewrite a container",
				needsJSON: true,
				run: func(ctx context.Context, rt *runtime.Runtime, v any) (string, error) {
					out, err := rt.Transform(ctx, v)
					return renderIndent(out, indent), err
				},
			},
			{
				name: "produce",
				desc: "decode a container created by the foreign side",
				run: func(ctx context.Context, rt *runtime.Runtime, _ any) (string, error) {
					out, err := rt.Produce(ctx)
					return renderIndent(out, indent), err
				},
			},
			{
				name: "live",
				desc: "count containers not yet released",
				run: func(_ context.Context, rt *runtime.Runtime, _ any) (string, error) {
					return fmt.Sprintf("%d live containers", rt.Live()), nil
				},
			},
		},
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.openRuntime
}

func (m *interactiveModel) openRuntime() tea.Msg {
	rt, err := runtime.New(context.Background(), m.cfg, runtime.WithLogger(m.log))
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{rt: rt}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputJSON {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectOp && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectOp && m.selected < len(m.ops)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectOp:
				if m.rt == nil {
					return m, nil
				}
				if !m.ops[m.selected].needsJSON {
					return m, m.callOperation
				}
				m.prepareInput()
				m.state = stateInputJSON
				return m, textinput.Blink

			case stateInputJSON:
				m.document = m.input.Value()
				return m, m.callOperation

			case stateShowResult:
				m.state = stateSelectOp
				m.result = ""
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateInputJSON:
				m.state = stateSelectOp
			case stateShowResult:
				m.state = stateSelectOp
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt = msg.rt

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputJSON {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) close() {
	if m.rt != nil {
		m.rt.Close(context.Background())
		m.rt = nil
	}
}

func (m *interactiveModel) prepareInput() {
	ti := textinput.New()
	ti.Prompt = "json: "
	ti.Placeholder = defaultDocument
	ti.SetValue(m.document)
	ti.Width = 72
	ti.Focus()
	m.input = ti
}

func (m *interactiveModel) callOperation() tea.Msg {
	op := m.ops[m.selected]

	var v any
	if op.needsJSON {
		parsed, err := parseDocument(m.document)
		if err != nil {
			return callResultMsg{err: err}
		}
		v = parsed
	}

	result, err := op.run(context.Background(), m.rt, v)
	return callResultMsg{result: result, err: err}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.rt == nil {
		return "Opening library..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("JSON FFI"))
	b.WriteString(" ")
	b.WriteString(infoStyle.Render(fmt.Sprintf("backend %s, %d live", m.cfg.Backend, m.rt.Live())))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectOp:
		b.WriteString("Select an exchange:\n\n")
		for i, op := range m.ops {
			line := opStyle.Render(op.name) + "  " + helpStyle.Render(op.desc)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + op.name))
				b.WriteString("  " + helpStyle.Render(op.desc))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter run • q quit"))

	case stateInputJSON:
		op := m.ops[m.selected]
		b.WriteString(fmt.Sprintf("Running %s\n\n", opStyle.Render(op.name)))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter run • esc back"))

	case stateShowResult:
		op := m.ops[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", opStyle.Render(op.name)))
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

func renderIndent(v any, indent string) string {
	data, err := json.MarshalIndent(v, "", indent)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// runInteractive drives the exchanges from a terminal menu. Logging is
// discarded because zap output would tear the alternate screen.
func runInteractive(cfg config.Config, document string) error {
	p := tea.NewProgram(newInteractiveModel(cfg, zap.NewNop(), document), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
