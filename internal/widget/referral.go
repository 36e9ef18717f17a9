package widget

import (
	"context"
	"fmt"
	"strings"

	"github.com/casedesk/smechat/internal/smeclient"
	"github.com/casedesk/smechat/pkg/logger"
)

const (
	DefaultReferralReason = "User indicated the answer was not helpful."

	defaultAutoReferralMessage = "This question has been referred to a subject-matter expert."
	myReferralsPointer         = `Track it under "My referrals".`
	autoReferralFailedNote     = "Automatic referral to a subject-matter expert failed."
	defaultReferralStatus      = "Referral submitted."
	submittingReferralStatus   = "Submitting referral..."
)

func (w *Widget) autoRefer(ctx context.Context, m *message, question, answer string) Outcome {
	receipt, err := w.backend.SubmitReferral(ctx, smeclient.Referral{
		Reason:   AutoReferralReason,
		Question: question,
		Answer:   answer,
	})

	out := Outcome{MessageID: m.id, Answer: answer}

	w.mu.Lock()
	if err != nil {
		m.autoReferral = AutoReferralFailed
		m.notes = append(m.notes, autoReferralFailedNote)
		out.Kind = OutcomeAutoReferralFailed
		out.Err = err
	} else {
		msg := strings.TrimSpace(receipt.Message)
		if msg == "" {
			msg = defaultAutoReferralMessage
		}
		m.autoReferral = AutoReferralDone
		m.notes = append(m.notes, msg+" "+myReferralsPointer)
		out.Kind = OutcomeAutoReferred
	}
	w.mu.Unlock()
	w.notify()

	if err != nil {
		logger.Warn().Err(err).Str("session_id", w.sessionID).Msg("auto-referral failed")
	}
	return out
}

// SubmitReferral files the manual referral opened by a "No" decision. An empty note
// falls back to a default reason. On failure the editor stays open for another try.
func (w *Widget) SubmitReferral(ctx context.Context, promptID int, note string) error {
	w.mu.Lock()
	ed, p, err := w.editorLocked(promptID)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	switch ed.state {
	case EditorSubmitting:
		w.mu.Unlock()
		return ErrBusy
	case EditorSubmitted, EditorCancelled:
		w.mu.Unlock()
		return ErrReferralClosed
	}
	ed.state = EditorSubmitting
	ed.note = note
	ed.status = submittingReferralStatus
	question, answer := p.question, p.answer
	w.mu.Unlock()
	w.notify()

	reason := strings.TrimSpace(note)
	if reason == "" {
		reason = DefaultReferralReason
	}
	receipt, err := w.backend.SubmitReferral(ctx, smeclient.Referral{
		Reason:   reason,
		Question: question,
		Answer:   answer,
	})

	w.mu.Lock()
	if err != nil {
		ed.state = EditorOpen
		ed.status = fmt.Sprintf("Could not submit referral: %v", err)
	} else {
		ed.state = EditorSubmitted
		ed.status = strings.TrimSpace(receipt.Message)
		if ed.status == "" {
			ed.status = defaultReferralStatus
		}
	}
	w.mu.Unlock()
	w.notify()

	if err != nil {
		return fmt.Errorf("submit referral: %w", err)
	}
	return nil
}

// SetReferralNote keeps the editor's draft in sync with what the user typed.
func (w *Widget) SetReferralNote(promptID int, note string) error {
	w.mu.Lock()
	ed, _, err := w.editorLocked(promptID)
	if err == nil && ed.state != EditorOpen {
		err = ErrReferralClosed
	}
	if err == nil {
		ed.note = note
	}
	w.mu.Unlock()
	if err == nil {
		w.notify()
	}
	return err
}

// CancelReferral removes the editor without submitting anything.
func (w *Widget) CancelReferral(promptID int) error {
	w.mu.Lock()
	ed, _, err := w.editorLocked(promptID)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	switch ed.state {
	case EditorSubmitting:
		w.mu.Unlock()
		return ErrBusy
	case EditorSubmitted, EditorCancelled:
		w.mu.Unlock()
		return ErrReferralClosed
	}
	ed.state = EditorCancelled
	w.mu.Unlock()
	w.notify()
	return nil
}

func (w *Widget) editorLocked(promptID int) (*referralEditor, *feedbackPrompt, error) {
	p, ok := w.prompts[promptID]
	if !ok {
		return nil, nil, ErrUnknownPrompt
	}
	if p.editor == nil {
		return nil, nil, ErrNoReferralEditor
	}
	return p.editor, p, nil
}
