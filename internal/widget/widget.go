// Package widget implements the fallback-aware SME chat widget: it submits
// questions, classifies answers, and runs the feedback and referral state
// machine for each answered question.
package widget

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/casedesk/smechat/internal/fallback"
	"github.com/casedesk/smechat/internal/smeclient"
	"github.com/casedesk/smechat/pkg/logger"
)

const (
	EllipsisInterval  = 450 * time.Millisecond
	CountdownInterval = time.Second

	AnswerErrorText    = "Error contacting the API."
	AutoReferralReason = "Auto-referral: bot could not confirm based on current guidance."
)

var (
	ErrEmptyQuestion    = errors.New("question is empty")
	ErrBusy             = errors.New("a request is already in progress")
	ErrUnknownPrompt    = errors.New("unknown feedback prompt")
	ErrAlreadyDecided   = errors.New("feedback already recorded")
	ErrNoReferralEditor = errors.New("no referral editor for this prompt")
	ErrReferralClosed   = errors.New("referral editor is closed")
)

// Backend is the subset of the SME API the widget depends on.
type Backend interface {
	Health(ctx context.Context) (*smeclient.Health, error)
	Query(ctx context.Context, question string) (*smeclient.Answer, error)
	SendFeedback(ctx context.Context, fb smeclient.Feedback) error
	SubmitReferral(ctx context.Context, r smeclient.Referral) (*smeclient.ReferralReceipt, error)
}

// OutcomeKind says which branch an answered question took.
type OutcomeKind int

const (
	OutcomeAnswerFailed OutcomeKind = iota
	OutcomeFeedback
	OutcomeAutoReferred
	OutcomeAutoReferralFailed
)

// Outcome describes how one Ask call ended.
type Outcome struct {
	Kind      OutcomeKind
	MessageID int
	// PromptID is set for OutcomeFeedback.
	PromptID int
	Answer   string
	// Err is the underlying request error for the failure kinds. It has already
	// been rendered into the transcript.
	Err error
}

// Widget is safe for concurrent use. Every mutation happens under one lock, and
// the change callback runs after the lock is released.
type Widget struct {
	mu sync.Mutex

	backend   Backend
	matcher   fallback.Matcher
	scheduler Scheduler
	dispatch  func(func())
	onChange  func()

	sessionID  string
	cfg        RuntimeConfig
	health     HealthState
	submitting bool
	hint       string
	messages   []*message
	prompts    map[int]*feedbackPrompt
	nextID     int
}

// Option configures a Widget.
type Option func(*Widget)

// WithMatcher replaces the English fallback matcher.
func WithMatcher(m fallback.Matcher) Option {
	return func(w *Widget) { w.matcher = m }
}

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(w *Widget) { w.scheduler = s }
}

// WithDispatch sets how best-effort requests are run. The default starts a goroutine.
func WithDispatch(d func(func())) Option {
	return func(w *Widget) { w.dispatch = d }
}

// WithOnChange registers a callback invoked after every state change.
func WithOnChange(fn func()) Option {
	return func(w *Widget) { w.onChange = fn }
}

// WithConfig sets the initial runtime configuration.
func WithConfig(cfg RuntimeConfig) Option {
	return func(w *Widget) { w.cfg = cfg }
}

// New creates a widget with a fresh session ID.
func New(backend Backend, opts ...Option) *Widget {
	w := &Widget{
		backend:   backend,
		matcher:   fallback.English,
		scheduler: SystemScheduler{},
		dispatch:  func(fn func()) { go fn() },
		sessionID: uuid.NewString(),
		cfg:       DefaultRuntimeConfig(),
		health:    HealthChecking,
		prompts:   make(map[int]*feedbackPrompt),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SessionID identifies this widget instance to the feedback endpoint.
func (w *Widget) SessionID() string {
	return w.sessionID
}

// Snapshot returns a deep copy of the widget state.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		SessionID:  w.sessionID,
		Config:     w.cfg,
		Health:     w.health,
		Submitting: w.submitting,
		Hint:       w.hint,
		Messages:   make([]Message, 0, len(w.messages)),
	}
	for _, m := range w.messages {
		s.Messages = append(s.Messages, m.view())
	}
	return s
}

// Ask submits a question and drives it to the end of its Submitting phase and, for
// fallback answers, through the automatic referral. Request failures are rendered
// into the transcript and reported in Outcome.Err; the returned error is only set
// when the question was not submitted at all.
func (w *Widget) Ask(ctx context.Context, question string) (Outcome, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Outcome{}, ErrEmptyQuestion
	}

	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return Outcome{}, ErrBusy
	}
	w.submitting = true
	w.hint = ""
	w.appendLocked(&message{role: RoleUser, text: question})
	placeholder := w.appendLocked(&message{role: RoleAssistant, thinking: true})
	placeholder.ellipsis = w.scheduler.Every(EllipsisInterval, func() { w.animate(placeholder) })
	w.mu.Unlock()
	w.notify()

	answer, err := w.backend.Query(ctx, question)

	w.mu.Lock()
	w.stopThinkingLocked(placeholder)
	w.submitting = false

	if err != nil {
		placeholder.text = AnswerErrorText
		placeholder.isError = true
		w.mu.Unlock()
		w.notify()
		logger.Warn().Err(err).Str("session_id", w.sessionID).Msg("question request failed")
		return Outcome{Kind: OutcomeAnswerFailed, MessageID: placeholder.id, Err: err}, nil
	}

	placeholder.text = answer.Text

	if w.matcher.IsFallback(answer.Text, answer.IsFallback) {
		placeholder.autoReferral = AutoReferralPending
		w.mu.Unlock()
		w.notify()
		return w.autoRefer(ctx, placeholder, question, answer.Text), nil
	}

	w.hint = sourcesHint(answer.Sources)
	prompt := w.startPromptLocked(placeholder, question, answer.Text)
	w.mu.Unlock()
	w.notify()

	return Outcome{
		Kind:      OutcomeFeedback,
		MessageID: placeholder.id,
		PromptID:  prompt.id,
		Answer:    answer.Text,
	}, nil
}

// sourcesHint names the guidance an answer was drawn from; the next question
// clears it.
func sourcesHint(sources []string) string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		if s = strings.TrimSpace(s); s != "" {
			names = append(names, s)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return "Sources: " + strings.Join(names, ", ")
}

func (w *Widget) appendLocked(m *message) *message {
	w.nextID++
	m.id = w.nextID
	w.messages = append(w.messages, m)
	return m
}

func (w *Widget) animate(m *message) {
	w.mu.Lock()
	if !m.thinking {
		w.mu.Unlock()
		return
	}
	m.dots = (m.dots + 1) % 4
	w.mu.Unlock()
	w.notify()
}

func (w *Widget) stopThinkingLocked(m *message) {
	if m.ellipsis != nil {
		m.ellipsis.Stop()
		m.ellipsis = nil
	}
	m.thinking = false
	m.dots = 0
}

func (w *Widget) notify() {
	if w.onChange != nil {
		w.onChange()
	}
}
