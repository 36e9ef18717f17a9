// Package tui is the full-screen terminal front end for the SME chat widget.
package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/casedesk/smechat/internal/widget"
	"github.com/casedesk/smechat/pkg/logger"
)

const (
	maxQuestionRunes = 2000
	noteHeight       = 3
)

type focus int

const (
	focusInput focus = iota
	focusNote
)

// changeMsg tells the model the widget state moved on.
type changeMsg struct{}

type askDoneMsg struct {
	question string
	err      error
}

type referralDoneMsg struct {
	promptID int
	err      error
}

type configLoadedMsg struct{ err error }

// Run opens the chat in the alternate screen and blocks until the user quits or
// ctx is cancelled.
func Run(ctx context.Context, backend widget.Backend, opts ...widget.Option) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Widget callbacks may fire from timer goroutines and from inside Update, so
	// they only flag a pending change; the model drains the flag on its own loop.
	changes := make(chan struct{}, 1)
	all := append([]widget.Option{}, opts...)
	all = append(all, widget.WithOnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	}))
	w := widget.New(backend, all...)

	m := newModel(ctx, w, changes)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

type model struct {
	ctx     context.Context
	widget  *widget.Widget
	changes <-chan struct{}

	snap     widget.Snapshot
	input    textinput.Model
	note     textarea.Model
	viewport viewport.Model
	focus    focus
	noteFor  int
	status   string
	styles   styles
	// asking is set from enter until the matching askDoneMsg.
	asking bool

	width  int
	height int
}

func newModel(ctx context.Context, w *widget.Widget, changes <-chan struct{}) *model {
	ti := textinput.New()
	ti.Placeholder = "Ask a question..."
	ti.CharLimit = maxQuestionRunes
	ti.Prompt = "> "
	ti.Focus()

	ta := textarea.New()
	ta.Placeholder = "Tell the expert what was wrong or missing (optional)"
	ta.ShowLineNumbers = false
	ta.SetHeight(noteHeight)
	ta.CharLimit = maxQuestionRunes

	m := &model{
		ctx:      ctx,
		widget:   w,
		changes:  changes,
		input:    ti,
		note:     ta,
		viewport: viewport.New(80, 20),
		styles:   newStyles(),
		width:    80,
		height:   24,
	}
	m.snap = w.Snapshot()
	m.layout()
	return m
}

// Init implements tea.Model
func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadConfig(), m.waitForChange())
}

func (m *model) waitForChange() tea.Cmd {
	ctx, changes := m.ctx, m.changes
	return func() tea.Msg {
		select {
		case <-changes:
			return changeMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *model) loadConfig() tea.Cmd {
	ctx, w := m.ctx, m.widget
	return func() tea.Msg {
		return configLoadedMsg{err: w.LoadConfig(ctx)}
	}
}

func (m *model) ask(question string) tea.Cmd {
	ctx, w := m.ctx, m.widget
	return func() tea.Msg {
		_, err := w.Ask(ctx, question)
		return askDoneMsg{question: question, err: err}
	}
}

func (m *model) submitReferral(promptID int, note string) tea.Cmd {
	ctx, w := m.ctx, m.widget
	return func() tea.Msg {
		return referralDoneMsg{promptID: promptID, err: w.SubmitReferral(ctx, promptID, note)}
	}
}

// Update implements tea.Model
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case changeMsg:
		m.refresh()
		return m, m.waitForChange()

	case configLoadedMsg:
		if msg.err != nil {
			logger.Warn().Err(msg.err).Msg("health check failed")
		}
		m.refresh()
		return m, nil

	case askDoneMsg:
		m.asking = false
		if errors.Is(msg.err, widget.ErrBusy) && m.input.Value() == "" {
			m.input.SetValue(msg.question)
			m.input.CursorEnd()
		}
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		m.refresh()
		return m, nil

	case referralDoneMsg:
		if msg.err != nil {
			m.status = "Referral not sent: " + msg.err.Error()
		} else {
			m.status = ""
			if m.focus == focusNote && m.noteFor == msg.promptID {
				m.focusInput()
			}
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.forward(msg)
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "ctrl+s":
		id, ok := m.referralTarget()
		if !ok {
			m.status = "No referral to submit."
			return m, nil
		}
		note := m.currentNote(id)
		m.status = ""
		return m, m.submitReferral(id, note)

	case "esc":
		id, ok := m.referralTarget()
		if !ok {
			m.focusInput()
			return m, nil
		}
		if err := m.widget.CancelReferral(id); err != nil {
			m.status = err.Error()
		}
		m.focusInput()
		m.refresh()
		return m, nil
	}

	if m.focus == focusNote {
		if msg.String() == "tab" {
			m.focusInput()
			return m, nil
		}
		return m.forward(msg)
	}

	switch msg.String() {
	case "enter":
		if m.asking || m.snap.Submitting {
			m.status = "Still waiting for the previous answer."
			return m, nil
		}
		q := strings.TrimSpace(m.input.Value())
		if q == "" {
			return m, nil
		}
		m.input.Reset()
		m.status = ""
		m.asking = true
		return m, m.ask(q)

	case "ctrl+y", "ctrl+n":
		id, ok := m.snap.PendingPromptID()
		if !ok {
			m.status = "No answer is waiting for feedback."
			return m, nil
		}
		helpful := msg.String() == "ctrl+y"
		if err := m.widget.Respond(id, helpful); err != nil {
			m.status = err.Error()
			m.refresh()
			return m, nil
		}
		m.status = ""
		m.refresh()
		if !helpful {
			return m, m.focusNote(id)
		}
		return m, nil

	case "ctrl+r":
		id, ok := m.snap.OpenReferralID()
		if !ok {
			m.status = "No referral is open."
			return m, nil
		}
		return m, m.focusNote(id)
	}

	return m.forward(msg)
}

// forward hands msg to the focused editor and mirrors note edits into the widget.
func (m *model) forward(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.focus == focusNote {
		before := m.note.Value()
		m.note, cmd = m.note.Update(msg)
		if after := m.note.Value(); after != before {
			if err := m.widget.SetReferralNote(m.noteFor, after); err != nil {
				m.status = err.Error()
			}
		}
		return m, cmd
	}
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// referralTarget is the editor the referral keys act on: the one being edited,
// else the most recent open one.
func (m *model) referralTarget() (int, bool) {
	if m.focus == focusNote {
		if r := referralFor(m.snap, m.noteFor); r != nil && r.State == widget.EditorOpen {
			return m.noteFor, true
		}
	}
	return m.snap.OpenReferralID()
}

func (m *model) currentNote(id int) string {
	if m.focus == focusNote && m.noteFor == id {
		return m.note.Value()
	}
	if r := referralFor(m.snap, id); r != nil {
		return r.Note
	}
	return ""
}

func (m *model) focusNote(id int) tea.Cmd {
	m.focus = focusNote
	m.noteFor = id
	m.note.Reset()
	if r := referralFor(m.snap, id); r != nil && r.Note != "" {
		m.note.SetValue(r.Note)
	}
	m.input.Blur()
	m.layout()
	return m.note.Focus()
}

func (m *model) focusInput() {
	m.focus = focusInput
	m.note.Blur()
	m.input.Focus()
	m.layout()
}

// refresh pulls a new snapshot and redraws the transcript.
func (m *model) refresh() {
	m.snap = m.widget.Snapshot()
	if m.focus == focusNote {
		if r := referralFor(m.snap, m.noteFor); r == nil || r.State != widget.EditorOpen {
			m.focusInput()
		}
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(renderTranscript(m.snap, m.styles, m.viewport.Width))
	if atBottom || m.snap.Submitting {
		m.viewport.GotoBottom()
	}
}

func (m *model) layout() {
	editor := 1
	if m.focus == focusNote {
		editor = noteHeight
	}
	// header, blank, editor, status, help
	h := m.height - editor - 4
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = h
	m.input.Width = m.width - 4
	m.note.SetWidth(m.width)
	m.viewport.SetContent(renderTranscript(m.snap, m.styles, m.width))
	m.viewport.GotoBottom()
}

// View implements tea.Model
func (m *model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.header(m.snap) + "\n")
	b.WriteString(m.viewport.View() + "\n")

	if m.snap.Hint != "" {
		b.WriteString(m.styles.hint.Render(Sanitize(m.snap.Hint)) + "\n")
	}
	if m.focus == focusNote {
		b.WriteString(m.note.View() + "\n")
	} else {
		b.WriteString(m.input.View() + "\n")
	}

	status := m.status
	if status == "" && m.snap.Submitting {
		status = "Waiting for " + m.snap.Config.BotName + "..."
	}
	b.WriteString(m.styles.status.Render(Sanitize(status)) + "\n")
	b.WriteString(lipgloss.NewStyle().MaxWidth(m.width).Render(m.styles.helpLine(m.focus == focusNote)))
	return b.String()
}

func referralFor(snap widget.Snapshot, promptID int) *widget.ReferralView {
	for _, msg := range snap.Messages {
		if msg.Feedback != nil && msg.Feedback.ID == promptID {
			return msg.Feedback.Referral
		}
	}
	return nil
}
