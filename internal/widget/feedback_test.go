package widget

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/casedesk/smechat/internal/smeclient"
)

// blockingFeedbackBackend holds SendFeedback until block is closed.
type blockingFeedbackBackend struct {
	*fakeBackend
	block chan struct{}
	done  chan struct{}
}

func (b *blockingFeedbackBackend) SendFeedback(ctx context.Context, fb smeclient.Feedback) error {
	<-b.block
	defer close(b.done)
	return b.fakeBackend.SendFeedback(ctx, fb)
}

func TestCountdownSeconds(t *testing.T) {
	tests := []struct {
		ms   int64
		want int
	}{
		{10000, 10},
		{2000, 2},
		{2999, 2},
		{500, 1},
		{0, 0},
		{-100, 0},
	}
	for _, tt := range tests {
		cfg := RuntimeConfig{AutoYesMs: tt.ms}
		if got := cfg.CountdownSeconds(); got != tt.want {
			t.Errorf("CountdownSeconds(%d) = %d, expected %d", tt.ms, got, tt.want)
		}
	}
}

func TestFeedback_AutoYesAfterTimeout(t *testing.T) {
	b := &fakeBackend{}
	w, sched := newTestWidget(b, WithConfig(RuntimeConfig{BotName: "A", AutoYesMs: 2000}))
	out := mustAsk(t, w, "What is the policy on X?")

	fb := lastMessage(t, w).Feedback
	if fb.RemainingSeconds != 2 {
		t.Fatalf("countdown should start at 2, got %d", fb.RemainingSeconds)
	}

	sched.Advance(time.Second)
	fb = lastMessage(t, w).Feedback
	if fb.State != PromptPending || fb.RemainingSeconds != 1 {
		t.Fatalf("after 1s: state=%v remaining=%d", fb.State, fb.RemainingSeconds)
	}
	if len(b.Feedbacks()) != 0 {
		t.Fatal("feedback sent before the timeout")
	}

	sched.Advance(time.Second)
	bot := lastMessage(t, w)
	if bot.Feedback.State != PromptDecided || bot.Feedback.Decision != DecisionAutoYes {
		t.Fatalf("after 2s: state=%v decision=%v", bot.Feedback.State, bot.Feedback.Decision)
	}
	if bot.Feedback.ControlsEnabled || bot.Feedback.ShowCountdown {
		t.Error("controls and countdown should be off after auto-Yes")
	}
	if len(bot.Notes) != 1 || bot.Notes[0] != noteAutoHelpful {
		t.Errorf("notes = %v", bot.Notes)
	}

	sent := b.Feedbacks()
	if len(sent) != 1 {
		t.Fatalf("expected one feedback, got %d", len(sent))
	}
	if !sent[0].Helpful || sent[0].Question != "What is the policy on X?" || sent[0].SessionID != w.SessionID() {
		t.Errorf("feedback = %+v", sent[0])
	}

	// timer safety: nothing changes afterwards
	sched.Advance(10 * time.Second)
	if len(b.Feedbacks()) != 1 {
		t.Errorf("auto-Yes fired more than once: %d", len(b.Feedbacks()))
	}
	if sched.Active() != 0 {
		t.Errorf("countdown timer still active")
	}
	if err := w.Respond(out.PromptID, false); !errors.Is(err, ErrAlreadyDecided) {
		t.Errorf("Respond after auto-Yes: err = %v", err)
	}
}

func TestFeedback_CountdownNeverShowsZeroWhilePending(t *testing.T) {
	b := &fakeBackend{}
	w, sched := newTestWidget(b, WithConfig(RuntimeConfig{AutoYesMs: 3000}))
	mustAsk(t, w, "q")

	for i := 0; i < 3; i++ {
		sched.Advance(time.Second)
		fb := lastMessage(t, w).Feedback
		if fb.State == PromptPending && fb.RemainingSeconds <= 0 {
			t.Fatalf("pending prompt displayed %ds", fb.RemainingSeconds)
		}
	}
	if lastMessage(t, w).Feedback.Decision != DecisionAutoYes {
		t.Error("expected auto-Yes after 3s")
	}
}

func TestFeedback_ManualYes(t *testing.T) {
	b := &fakeBackend{}
	w, sched := newTestWidget(b)
	out := mustAsk(t, w, "q")

	if err := w.Respond(out.PromptID, true); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	bot := lastMessage(t, w)
	if bot.Feedback.Decision != DecisionYes || bot.Feedback.ControlsEnabled {
		t.Errorf("feedback = %+v", bot.Feedback)
	}
	if len(bot.Notes) != 1 || bot.Notes[0] != noteHelpful {
		t.Errorf("notes = %v", bot.Notes)
	}
	if bot.Feedback.Referral != nil {
		t.Error("Yes must not open a referral editor")
	}
	if sent := b.Feedbacks(); len(sent) != 1 || !sent[0].Helpful {
		t.Errorf("feedbacks = %+v", sent)
	}
	if sched.Active() != 0 {
		t.Error("countdown should be stopped")
	}

	remaining := bot.Feedback.RemainingSeconds
	sched.Advance(30 * time.Second)
	if got := lastMessage(t, w).Feedback.RemainingSeconds; got != remaining {
		t.Errorf("remaining changed after decision: %d -> %d", remaining, got)
	}
}

func TestFeedback_NoOpensSingleEditor(t *testing.T) {
	b := &fakeBackend{}
	w, _ := newTestWidget(b)
	out := mustAsk(t, w, "q")

	if err := w.Respond(out.PromptID, false); err != nil {
		t.Fatalf("first No: %v", err)
	}
	if err := w.Respond(out.PromptID, false); !errors.Is(err, ErrAlreadyDecided) {
		t.Errorf("second No: err = %v, expected ErrAlreadyDecided", err)
	}
	if err := w.Respond(out.PromptID, true); !errors.Is(err, ErrAlreadyDecided) {
		t.Errorf("Yes after No: err = %v, expected ErrAlreadyDecided", err)
	}

	sent := b.Feedbacks()
	if len(sent) != 1 || sent[0].Helpful {
		t.Fatalf("expected exactly one helpful=false feedback, got %+v", sent)
	}

	bot := lastMessage(t, w)
	if bot.Feedback.ControlsEnabled {
		t.Error("Yes/No should be disabled")
	}
	if bot.Feedback.Referral == nil || bot.Feedback.Referral.State != EditorOpen {
		t.Fatalf("expected an open referral editor, got %+v", bot.Feedback.Referral)
	}
	if len(bot.Notes) != 1 || bot.Notes[0] != noteNotHelpful {
		t.Errorf("notes = %v", bot.Notes)
	}
}

func TestFeedback_ConcurrentNoClicks(t *testing.T) {
	b := &fakeBackend{}
	w, _ := newTestWidget(b)
	out := mustAsk(t, w, "q")

	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() { errs <- w.Respond(out.PromptID, false) }()
	}
	ok := 0
	for i := 0; i < 8; i++ {
		if err := <-errs; err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("%d clicks succeeded, expected 1", ok)
	}
	if n := len(b.Feedbacks()); n != 1 {
		t.Errorf("feedback sent %d times, expected 1", n)
	}
}

func TestFeedback_ZeroTimeoutIsManualOnly(t *testing.T) {
	for _, ms := range []int64{0, -5} {
		b := &fakeBackend{}
		w, sched := newTestWidget(b, WithConfig(RuntimeConfig{AutoYesMs: ms}))
		out := mustAsk(t, w, "q")

		fb := lastMessage(t, w).Feedback
		if fb.ShowCountdown {
			t.Errorf("ms=%d: countdown should be hidden", ms)
		}
		if sched.Active() != 0 {
			t.Errorf("ms=%d: no timer should run", ms)
		}

		sched.Advance(time.Hour)
		if len(b.Feedbacks()) != 0 {
			t.Errorf("ms=%d: auto-Yes fired without a timeout", ms)
		}
		if err := w.Respond(out.PromptID, true); err != nil {
			t.Errorf("ms=%d: manual Yes failed: %v", ms, err)
		}
	}
}

func TestFeedback_IndependentPrompts(t *testing.T) {
	b := &fakeBackend{}
	w, sched := newTestWidget(b, WithConfig(RuntimeConfig{AutoYesMs: 3000}))

	first := mustAsk(t, w, "one")
	sched.Advance(2 * time.Second)
	second := mustAsk(t, w, "two")

	if err := w.Respond(second.PromptID, false); err != nil {
		t.Fatal(err)
	}
	sched.Advance(time.Second)

	snap := w.Snapshot()
	var firstFB, secondFB *FeedbackView
	for _, m := range snap.Messages {
		if m.Feedback == nil {
			continue
		}
		switch m.Feedback.ID {
		case first.PromptID:
			firstFB = m.Feedback
		case second.PromptID:
			secondFB = m.Feedback
		}
	}
	if firstFB.Decision != DecisionAutoYes {
		t.Errorf("first prompt decision = %v, expected auto-Yes", firstFB.Decision)
	}
	if secondFB.Decision != DecisionNo {
		t.Errorf("second prompt decision = %v, expected No", secondFB.Decision)
	}

	sent := b.Feedbacks()
	if len(sent) != 2 {
		t.Fatalf("expected 2 feedbacks, got %d", len(sent))
	}
	if sent[0].Helpful || sent[0].Question != "two" {
		t.Errorf("first sent = %+v", sent[0])
	}
	if !sent[1].Helpful || sent[1].Question != "one" {
		t.Errorf("second sent = %+v", sent[1])
	}
}

func TestFeedback_FailuresAreSwallowed(t *testing.T) {
	b := &fakeBackend{feedbackErr: errBackendDown}
	w, _ := newTestWidget(b)
	out := mustAsk(t, w, "q")

	if err := w.Respond(out.PromptID, true); err != nil {
		t.Fatalf("feedback failure leaked to the caller: %v", err)
	}
	bot := lastMessage(t, w)
	for _, n := range bot.Notes {
		if strings.Contains(strings.ToLower(n), "fail") {
			t.Errorf("feedback failure surfaced in the transcript: %q", n)
		}
	}
	if len(b.Feedbacks()) != 1 {
		t.Errorf("feedback should be attempted once and not retried, got %d", len(b.Feedbacks()))
	}
}

func TestFeedback_DispatchedAsynchronouslyByDefault(t *testing.T) {
	block := make(chan struct{})
	done := make(chan struct{})
	b := &blockingFeedbackBackend{fakeBackend: &fakeBackend{}, block: block, done: done}
	w := New(b, WithScheduler(&fakeScheduler{}))

	out, err := w.Ask(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Respond(out.PromptID, true); err != nil {
		t.Fatalf("Respond should not wait for the feedback request: %v", err)
	}
	close(block)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feedback request never ran")
	}
}

func TestRespond_UnknownPrompt(t *testing.T) {
	w, _ := newTestWidget(&fakeBackend{})
	if err := w.Respond(42, true); !errors.Is(err, ErrUnknownPrompt) {
		t.Errorf("err = %v, expected ErrUnknownPrompt", err)
	}
}
