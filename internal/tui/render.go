package tui

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/casedesk/smechat/internal/widget"
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title     lipgloss.Style
	ready     lipgloss.Style
	down      lipgloss.Style
	checking  lipgloss.Style
	user      lipgloss.Style
	bot       lipgloss.Style
	errorText lipgloss.Style
	note      lipgloss.Style
	prompt    lipgloss.Style
	countdown lipgloss.Style
	referral  lipgloss.Style
	hint      lipgloss.Style
	help      lipgloss.Style
	helpKey   lipgloss.Style
	status    lipgloss.Style
}

func newStyles() styles {
	white := lipgloss.Color("#FFFFFF")
	gray500 := lipgloss.Color("#9CA3AF")
	gray700 := lipgloss.Color("#6B7280")
	purple := lipgloss.Color("#A855F7")
	green := lipgloss.Color("#22C55E")
	red := lipgloss.Color("#EF4444")
	amber := lipgloss.Color("#F59E0B")
	blue := lipgloss.Color("#3B82F6")

	return styles{
		title:     lipgloss.NewStyle().Bold(true).Foreground(white),
		ready:     lipgloss.NewStyle().Foreground(green),
		down:      lipgloss.NewStyle().Foreground(red),
		checking:  lipgloss.NewStyle().Foreground(gray500),
		user:      lipgloss.NewStyle().Bold(true).Foreground(blue),
		bot:       lipgloss.NewStyle().Bold(true).Foreground(purple),
		errorText: lipgloss.NewStyle().Foreground(red),
		note:      lipgloss.NewStyle().Foreground(gray500).Italic(true),
		prompt:    lipgloss.NewStyle().Foreground(white),
		countdown: lipgloss.NewStyle().Foreground(amber),
		referral:  lipgloss.NewStyle().Foreground(amber),
		hint:      lipgloss.NewStyle().Foreground(gray700),
		help:      lipgloss.NewStyle().Foreground(gray700),
		helpKey:   lipgloss.NewStyle().Foreground(gray500).Bold(true),
		status:    lipgloss.NewStyle().Foreground(amber),
	}
}

// Sanitize drops terminal control characters from text received from the
// backend. Newlines and tabs are kept.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
}

func (s styles) header(snap widget.Snapshot) string {
	var indicator string
	switch snap.Health {
	case widget.HealthReady:
		indicator = s.ready.Render("● ready")
	case widget.HealthUnreachable:
		indicator = s.down.Render("● unreachable")
	default:
		indicator = s.checking.Render("○ connecting")
	}
	return s.title.Render(Sanitize(snap.Config.BotName)) + "  " + indicator
}

// renderTranscript draws every message in order. width <= 0 disables wrapping.
func renderTranscript(snap widget.Snapshot, s styles, width int) string {
	wrap := func(st lipgloss.Style) lipgloss.Style {
		if width > 0 {
			return st.Width(width)
		}
		return st
	}

	bot := Sanitize(snap.Config.BotName)
	var b strings.Builder
	for i, m := range snap.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		switch {
		case m.Role == widget.RoleUser:
			b.WriteString(s.user.Render("You") + "\n")
			b.WriteString(wrap(lipgloss.NewStyle()).Render(Sanitize(m.Text)))
		case m.Thinking:
			b.WriteString(s.bot.Render(bot) + "\n")
			b.WriteString(s.note.Render("Thinking" + strings.Repeat(".", m.Dots)))
		default:
			b.WriteString(s.bot.Render(bot) + "\n")
			text := wrap(lipgloss.NewStyle()).Render(Sanitize(m.Text))
			if m.Error {
				text = s.errorText.Render(Sanitize(m.Text))
			}
			b.WriteString(text)
		}
		b.WriteString("\n")

		for _, n := range m.Notes {
			b.WriteString(wrap(s.note).Render("  "+Sanitize(n)) + "\n")
		}
		if m.Feedback != nil {
			b.WriteString(renderFeedback(m.Feedback, s))
		}
	}
	return b.String()
}

func renderFeedback(fb *widget.FeedbackView, s styles) string {
	var b strings.Builder
	if fb.ControlsEnabled {
		line := s.prompt.Render("  Was this helpful? ") +
			s.helpKey.Render("ctrl+y") + s.help.Render(" yes  ") +
			s.helpKey.Render("ctrl+n") + s.help.Render(" no")
		if fb.ShowCountdown {
			line += s.countdown.Render(fmt.Sprintf("  (auto-Yes in %ds)", fb.RemainingSeconds))
		}
		b.WriteString(line + "\n")
	}

	if r := fb.Referral; r != nil {
		if r.State == widget.EditorOpen {
			b.WriteString(s.referral.Render("  Refer to an expert: ") +
				s.helpKey.Render("ctrl+r") + s.help.Render(" write a note  ") +
				s.helpKey.Render("ctrl+s") + s.help.Render(" submit  ") +
				s.helpKey.Render("esc") + s.help.Render(" dismiss") + "\n")
		}
		if r.Note != "" && r.State != widget.EditorSubmitted {
			b.WriteString(s.note.Render("  Note: "+Sanitize(r.Note)) + "\n")
		}
		if r.Status != "" {
			st := s.referral
			if r.State == widget.EditorSubmitted {
				st = s.ready
			}
			b.WriteString(st.Render("  "+Sanitize(r.Status)) + "\n")
		}
	}
	return b.String()
}

func (s styles) helpLine(editing bool) string {
	pairs := [][2]string{{"enter", "ask"}, {"ctrl+y/n", "yes/no"}, {"ctrl+r", "referral note"}, {"pgup/pgdn", "scroll"}, {"ctrl+c", "quit"}}
	if editing {
		pairs = [][2]string{{"ctrl+s", "submit referral"}, {"esc", "dismiss"}, {"tab", "back to question"}, {"ctrl+c", "quit"}}
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, s.helpKey.Render(p[0])+" "+s.help.Render(p[1]))
	}
	return strings.Join(parts, s.help.Render(" • "))
}
