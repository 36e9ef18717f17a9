package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/casedesk/smechat/internal/tui"
	"github.com/casedesk/smechat/internal/widget"
	"github.com/casedesk/smechat/pkg/logger"
)

const cancelReferralInput = "/cancel"

func newAskCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and rate the answer",
		Long: `Ask one question in line mode.

The answer is followed by a y/n prompt. Without a reply the answer is
recorded as helpful when the countdown ends. Answering "n" lets you write
a note and refer the question to a subject-matter expert.

Examples:
  smechat ask "How many days of annual leave carry over?"
  echo n | smechat ask "Who signs off travel?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAsk(cmd, strings.Join(args, " "))
		},
	}
}

func (a *app) runAsk(cmd *cobra.Command, question string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	changes := make(chan struct{}, 1)
	var inflight sync.WaitGroup
	w := a.newWidget(
		widget.WithOnChange(func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		}),
		widget.WithDispatch(func(fn func()) {
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				fn()
			}()
		}),
	)
	// Feedback is sent in the background; let it finish before the process exits.
	defer inflight.Wait()

	if err := w.LoadConfig(ctx); err != nil {
		logger.Warn().Err(err).Msg("using default runtime config")
	}
	bot := tui.Sanitize(w.Config().BotName)

	outcome, err := w.Ask(ctx, question)
	if err != nil {
		return err
	}

	msg, _ := findMessage(w.Snapshot(), outcome.MessageID)
	fmt.Fprintf(out, "%s: %s\n", bot, tui.Sanitize(msg.Text))

	switch outcome.Kind {
	case widget.OutcomeAnswerFailed:
		return fmt.Errorf("query failed: %w", outcome.Err)
	case widget.OutcomeAutoReferred, widget.OutcomeAutoReferralFailed:
		printNotes(out, msg.Notes)
		if outcome.Err != nil {
			return fmt.Errorf("auto-referral failed: %w", outcome.Err)
		}
		return nil
	}

	p := &linePrompt{
		ctx:     ctx,
		out:     out,
		widget:  w,
		id:      outcome.PromptID,
		changes: changes,
		lines:   readLines(cmd.InOrStdin()),
		seen:    len(msg.Notes),
	}
	return p.collectFeedback()
}

// linePrompt drives one feedback prompt over plain stdin and stdout.
type linePrompt struct {
	ctx     context.Context
	out     io.Writer
	widget  *widget.Widget
	id      int
	changes <-chan struct{}
	lines   <-chan string
	// seen counts the message notes already printed.
	seen int
}

func (p *linePrompt) collectFeedback() error {
	countdown := p.widget.Config().CountdownSeconds()
	prompt := "Was this helpful? [y/n]"
	if countdown > 0 {
		prompt += fmt.Sprintf(" (auto-Yes in %ds)", countdown)
	}
	fmt.Fprint(p.out, prompt+" ")

	lines := p.lines
	for {
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()

		case <-p.changes:
			if fb := p.feedback(); fb != nil && fb.Decision == widget.DecisionAutoYes {
				fmt.Fprintln(p.out)
				p.printNewNotes()
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				if countdown == 0 {
					fmt.Fprintln(p.out, "\nNo feedback recorded.")
					return nil
				}
				// Nothing more to read; the countdown decides.
				lines = nil
				continue
			}

			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return p.respond(true)
			case "n", "no":
				return p.respond(false)
			default:
				fmt.Fprint(p.out, "Please answer y or n: ")
			}
		}
	}
}

func (p *linePrompt) respond(helpful bool) error {
	err := p.widget.Respond(p.id, helpful)
	if errors.Is(err, widget.ErrAlreadyDecided) {
		// The countdown won the race.
		p.printNewNotes()
		return nil
	}
	if err != nil {
		return err
	}
	p.printNewNotes()
	if helpful {
		return nil
	}
	return p.referral()
}

func (p *linePrompt) referral() error {
	fmt.Fprintln(p.out, "Refer this question to a subject-matter expert.")
	fmt.Fprintf(p.out, "Describe what was wrong, leave blank for the default reason, or type %s: ", cancelReferralInput)

	var note string
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case line, ok := <-p.lines:
		if !ok || strings.TrimSpace(line) == cancelReferralInput {
			if err := p.widget.CancelReferral(p.id); err != nil {
				return err
			}
			fmt.Fprintln(p.out, "\nReferral dismissed.")
			return nil
		}
		note = line
	}

	err := p.widget.SubmitReferral(p.ctx, p.id, note)
	if fb := p.feedback(); fb != nil && fb.Referral != nil && fb.Referral.Status != "" {
		fmt.Fprintln(p.out, tui.Sanitize(fb.Referral.Status))
	}
	return err
}

func (p *linePrompt) feedback() *widget.FeedbackView {
	msg, ok := findMessage(p.widget.Snapshot(), p.id)
	if !ok {
		return nil
	}
	return msg.Feedback
}

func (p *linePrompt) printNewNotes() {
	msg, ok := findMessage(p.widget.Snapshot(), p.id)
	if !ok || len(msg.Notes) <= p.seen {
		return
	}
	printNotes(p.out, msg.Notes[p.seen:])
	p.seen = len(msg.Notes)
}

func printNotes(out io.Writer, notes []string) {
	for _, n := range notes {
		fmt.Fprintln(out, tui.Sanitize(n))
	}
}

func findMessage(snap widget.Snapshot, id int) (widget.Message, bool) {
	for _, m := range snap.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return widget.Message{}, false
}

// readLines streams r line by line; the channel closes at EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
