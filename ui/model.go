package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"duochat/models"
	"duochat/network"
	"duochat/session"
)

// Actions is the part of the session controller the UI drives.
type Actions interface {
	SendText(text string) error
	SendFileFromPath(path string) (bool, error)
	Download(fileRef int) (string, error)
	State() session.State
	Role() network.Role
}

type lineKind int

const (
	lineSent lineKind = iota
	lineReceived
	lineSystem
	lineError
)

type transcriptLine struct {
	At      time.Time
	Kind    lineKind
	Text    string
	FileRef *int
	IsFile  bool
}

// actionDoneMsg reports the outcome of a command run off the update loop.
type actionDoneMsg struct {
	Info string
	Err  error
}

// Model is the terminal chat window.
type Model struct {
	actions     Actions
	displayName string

	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int

	lines   []transcriptLine
	prompts []PromptMsg

	showHelp bool
	ended    bool
}

// NewModel creates the chat window for one session.
func NewModel(actions Actions, displayName string) *Model {
	ti := textinput.New()
	ti.Placeholder = "Send a message, or /help"
	ti.Prompt = PromptStyle.Render(displayName + ": ")
	ti.CharLimit = 0
	ti.Focus()

	m := &Model{
		actions:     actions,
		displayName: displayName,
		viewport:    viewport.New(80, 18),
		input:       ti,
		width:       80,
		height:      22,
	}
	if actions.Role() == network.RoleServer {
		m.appendLine(lineSystem, "Waiting for a client to connect...")
	} else {
		m.appendLine(lineSystem, "Connecting to server...")
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.declinePrompts()
			return m, tea.Quit
		}
		if len(m.prompts) > 0 {
			m.answerPrompt(msg)
			return m, nil
		}
		if m.showHelp {
			if msg.Type == tea.KeyEsc || msg.Type == tea.KeyEnter {
				m.showHelp = false
			}
			return m, nil
		}
		switch msg.Type {
		case tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := m.input.Value()
			m.input.Reset()
			if cmd := m.submit(text); cmd != nil {
				cmds = append(cmds, cmd)
			}
			if m.ended {
				return m, tea.Quit
			}
			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)

	case ChatMsg:
		m.appendMessage(msg.Message)

	case ConnectionClosedMsg:
		if msg.Role == network.RoleServer {
			m.appendLine(lineSystem, "Client has left the chat.")
		} else {
			m.appendLine(lineSystem, "Connection to the server was lost.")
		}

	case ErrorMsg:
		m.appendLine(lineError, msg.Err.Error())

	case InfoMsg:
		m.appendLine(lineSystem, msg.Info)

	case ShutdownMsg:
		m.ended = true
		m.appendLine(lineSystem, "Session ended. Press Enter or Esc to exit.")

	case PromptMsg:
		m.prompts = append(m.prompts, msg)
		m.appendLine(lineSystem, msg.Question+" (y/n)")

	case actionDoneMsg:
		if msg.Err != nil {
			m.appendLine(lineError, msg.Err.Error())
		} else if msg.Info != "" {
			m.appendLine(lineSystem, msg.Info)
		}
	}

	var inputCmd, viewportCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, viewportCmd = m.viewport.Update(msg)
	cmds = append(cmds, inputCmd, viewportCmd)

	return m, tea.Batch(cmds...)
}

func (m *Model) View() string {
	if m.showHelp {
		return helpView()
	}

	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()

	footer := InputStyle.Width(m.width - InputStyle.GetHorizontalBorderSize()).Render(m.input.View())
	if len(m.prompts) > 0 {
		footer = PromptStyle.Render(m.prompts[0].Question + " (y/n)")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		TranscriptBox.Width(m.width-TranscriptBox.GetHorizontalBorderSize()).Render(m.viewport.View()),
		footer,
	)
}

// submit handles one line of input. Network work runs as a command so the
// update loop stays free to show the prompts it may raise.
func (m *Model) submit(raw string) tea.Cmd {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil
	}

	switch {
	case text == "/help":
		m.showHelp = true
		return nil
	case text == "/quit":
		m.ended = true
		return nil
	case strings.HasPrefix(text, "/send "):
		path := strings.TrimSpace(strings.TrimPrefix(text, "/send "))
		actions := m.actions
		return func() tea.Msg {
			sent, err := actions.SendFileFromPath(path)
			if err != nil {
				return actionDoneMsg{Err: fmt.Errorf("send file: %w", err)}
			}
			if !sent {
				return actionDoneMsg{Info: "File not sent."}
			}
			return nil
		}
	case strings.HasPrefix(text, "/get "):
		ref, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(text, "/get ")))
		if err != nil {
			m.appendLine(lineError, "usage: /get <file number>")
			return nil
		}
		actions := m.actions
		return func() tea.Msg {
			path, err := actions.Download(ref)
			if err != nil {
				return actionDoneMsg{Err: err}
			}
			if path == "" {
				return actionDoneMsg{Info: "Download cancelled."}
			}
			return actionDoneMsg{Info: "Saved to " + path}
		}
	case strings.HasPrefix(text, "/"):
		m.appendLine(lineError, "unknown command "+strings.Fields(text)[0]+", try /help")
		return nil
	}

	actions := m.actions
	return func() tea.Msg {
		if err := actions.SendText(text); err != nil {
			if errors.Is(err, network.ErrSend) {
				return actionDoneMsg{Err: fmt.Errorf("message not delivered: %w", err)}
			}
			return actionDoneMsg{Err: err}
		}
		return nil
	}
}

func (m *Model) answerPrompt(msg tea.KeyMsg) {
	var answer bool
	switch {
	case msg.Type == tea.KeyEnter:
		answer = true
	case msg.Type == tea.KeyEsc:
		answer = false
	case msg.Type == tea.KeyRunes && len(msg.Runes) > 0:
		switch msg.Runes[0] {
		case 'y', 'Y':
			answer = true
		case 'n', 'N':
			answer = false
		default:
			return
		}
	default:
		return
	}

	prompt := m.prompts[0]
	m.prompts = m.prompts[1:]
	prompt.Reply <- answer
	if answer {
		m.appendLine(lineSystem, "> yes")
	} else {
		m.appendLine(lineSystem, "> no")
	}
}

func (m *Model) declinePrompts() {
	for _, prompt := range m.prompts {
		select {
		case prompt.Reply <- false:
		default:
		}
	}
	m.prompts = nil
}

func (m *Model) appendMessage(msg models.Message) {
	kind := lineSent
	if msg.IsReceived {
		kind = lineReceived
	}
	at := time.Now()
	if msg.Timestamp > 0 {
		at = time.UnixMilli(msg.Timestamp)
	}
	m.lines = append(m.lines, transcriptLine{
		At:      at,
		Kind:    kind,
		Text:    msg.Text,
		FileRef: msg.FileRef,
		IsFile:  msg.IsFile,
	})
}

func (m *Model) appendLine(kind lineKind, text string) {
	m.lines = append(m.lines, transcriptLine{At: time.Now(), Kind: kind, Text: text})
}

func (m *Model) setSize(width, height int) {
	m.width = width
	m.height = height

	headerHeight := lipgloss.Height(m.headerView())
	inputHeight := 3
	transcriptHeight := height - headerHeight - inputHeight - 1
	if transcriptHeight < 1 {
		transcriptHeight = 1
	}

	m.viewport.Width = width - TranscriptBox.GetHorizontalFrameSize()
	m.viewport.Height = transcriptHeight
	m.input.Width = width - InputStyle.GetHorizontalFrameSize() - lipgloss.Width(m.input.Prompt) - 1
}

func (m *Model) headerView() string {
	return HeaderStyle.Width(m.width).Render(fmt.Sprintf("duochat | %s | %s", m.actions.Role(), m.actions.State()))
}

func (m *Model) renderTranscript() string {
	contentWidth := m.viewport.Width
	if contentWidth < 1 {
		contentWidth = 1
	}

	rendered := make([]string, 0, len(m.lines))
	for _, line := range m.lines {
		prefix := TimestampStyle.Render(line.At.Format("15:04")) + " "
		var body string
		switch line.Kind {
		case lineSent:
			prefix += SentStyle.Render("<"+m.displayName+">") + " "
			body = line.Text
			if line.IsFile {
				body = FileStyle.Render(line.Text) + " (file sent)"
			}
		case lineReceived:
			prefix += ReceivedStyle.Render("<peer>") + " "
			body = line.Text
			if line.IsFile && line.FileRef != nil {
				body = FileStyle.Render(line.Text) + fmt.Sprintf(" (file #%d, /get %d to save)", *line.FileRef, *line.FileRef)
			}
		case lineError:
			prefix += "--- "
			body = ErrorStyle.Render(line.Text)
		default:
			prefix += "--- "
			body = SystemStyle.Render(line.Text)
		}

		prefixWidth := lipgloss.Width(prefix)
		bodyWidth := contentWidth - prefixWidth
		if bodyWidth < 1 {
			bodyWidth = 1
		}
		wrapped := strings.Split(lipgloss.NewStyle().Width(bodyWidth).Render(body), "\n")

		rendered = append(rendered, prefix+wrapped[0])
		indent := strings.Repeat(" ", prefixWidth)
		for _, rest := range wrapped[1:] {
			rendered = append(rendered, indent+rest)
		}
	}
	return strings.Join(rendered, "\n")
}

func helpView() string {
	return HelpStyle.Render(
		"Commands:\n" +
			"  /send <path>   - Send a file\n" +
			"  /get <number>  - Save a received file\n" +
			"  /help          - Show this help\n" +
			"  /quit          - Leave the chat\n" +
			"\nKeybindings:\n" +
			"  Enter          - Send message\n" +
			"  y / n          - Answer a question\n" +
			"  Ctrl+C / Esc   - Exit\n" +
			"\n(Press Esc to close this help)",
	)
}
