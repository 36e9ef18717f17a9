package widget

import (
	"context"

	"github.com/casedesk/smechat/internal/smeclient"
	"github.com/casedesk/smechat/pkg/logger"
)

const (
	noteHelpful     = "Thanks! Recorded as helpful."
	noteAutoHelpful = "No response received, so this answer was recorded as helpful."
	noteNotHelpful  = "Thanks for letting us know. You can refer this question to a subject-matter expert below."
)

func (w *Widget) startPromptLocked(m *message, question, answer string) *feedbackPrompt {
	p := &feedbackPrompt{
		id:       m.id,
		question: question,
		answer:   answer,
		state:    PromptPending,
	}
	if secs := w.cfg.CountdownSeconds(); secs > 0 {
		p.remaining = secs
		p.countdown = true
		p.timer = w.scheduler.Every(CountdownInterval, func() { w.tick(p) })
	}
	m.prompt = p
	w.prompts[p.id] = p
	return p
}

// tick decrements first and then checks, so "0s" is never displayed before the
// automatic Yes fires.
func (w *Widget) tick(p *feedbackPrompt) {
	w.mu.Lock()
	if p.state != PromptPending {
		w.mu.Unlock()
		return
	}
	p.remaining--
	var fb *smeclient.Feedback
	if p.remaining <= 0 {
		p.remaining = 0
		fb = w.decideLocked(p, DecisionAutoYes)
	}
	w.mu.Unlock()

	w.sendFeedback(fb)
	w.notify()
}

// Respond records an explicit Yes (helpful) or No for the prompt attached to the
// answer message promptID. Only the first decision counts.
func (w *Widget) Respond(promptID int, helpful bool) error {
	w.mu.Lock()
	p, ok := w.prompts[promptID]
	if !ok {
		w.mu.Unlock()
		return ErrUnknownPrompt
	}
	if p.state != PromptPending {
		w.mu.Unlock()
		return ErrAlreadyDecided
	}

	decision := DecisionNo
	if helpful {
		decision = DecisionYes
	}
	fb := w.decideLocked(p, decision)
	w.mu.Unlock()

	w.sendFeedback(fb)
	w.notify()
	return nil
}

// decideLocked moves p to Decided and returns the feedback to send once the lock
// is released.
func (w *Widget) decideLocked(p *feedbackPrompt, d Decision) *smeclient.Feedback {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.state = PromptDecided
	p.decision = d

	m := w.messageLocked(p.id)
	switch d {
	case DecisionYes:
		m.notes = append(m.notes, noteHelpful)
	case DecisionAutoYes:
		m.notes = append(m.notes, noteAutoHelpful)
	case DecisionNo:
		m.notes = append(m.notes, noteNotHelpful)
		p.editor = &referralEditor{state: EditorOpen}
	}

	return &smeclient.Feedback{
		Question:  p.question,
		Answer:    p.answer,
		Helpful:   d.Helpful(),
		SessionID: w.sessionID,
	}
}

// sendFeedback is best effort: failures are logged and dropped.
func (w *Widget) sendFeedback(fb *smeclient.Feedback) {
	if fb == nil {
		return
	}
	payload := *fb
	w.dispatch(func() {
		if err := w.backend.SendFeedback(context.Background(), payload); err != nil {
			logger.Debug().Err(err).Bool("helpful", payload.Helpful).Msg("feedback dropped")
		}
	})
}

func (w *Widget) messageLocked(id int) *message {
	for i := len(w.messages) - 1; i >= 0; i-- {
		if w.messages[i].id == id {
			return w.messages[i]
		}
	}
	return nil
}
