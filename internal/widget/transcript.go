package widget

// Role identifies who wrote a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptState is the lifecycle of a Yes/No feedback prompt.
type PromptState int

const (
	PromptPending PromptState = iota
	PromptDecided
)

// Decision records how a feedback prompt was resolved.
type Decision int

const (
	DecisionNone Decision = iota
	DecisionYes
	DecisionAutoYes
	DecisionNo
)

func (d Decision) Helpful() bool {
	return d == DecisionYes || d == DecisionAutoYes
}

// AutoReferralState tracks the automatic escalation of a fallback answer.
type AutoReferralState int

const (
	AutoReferralNone AutoReferralState = iota
	AutoReferralPending
	AutoReferralDone
	AutoReferralFailed
)

// EditorState is the lifecycle of the manual referral editor shown after "No".
type EditorState int

const (
	EditorOpen EditorState = iota
	EditorSubmitting
	EditorSubmitted
	EditorCancelled
)

// Message is a read-only copy of one transcript entry.
type Message struct {
	ID           int
	Role         Role
	Text         string
	Thinking     bool
	Dots         int
	Error        bool
	Notes        []string
	AutoReferral AutoReferralState
	Feedback     *FeedbackView
}

// FeedbackView is a read-only copy of a feedback prompt.
type FeedbackView struct {
	ID               int
	Question         string
	Answer           string
	State            PromptState
	Decision         Decision
	RemainingSeconds int
	ShowCountdown    bool
	ControlsEnabled  bool
	Referral         *ReferralView
}

// ReferralView is a read-only copy of the manual referral editor. It is nil once
// the editor has been cancelled.
type ReferralView struct {
	State  EditorState
	Note   string
	Status string
}

// Snapshot is a consistent copy of the whole widget state.
type Snapshot struct {
	SessionID  string
	Config     RuntimeConfig
	Health     HealthState
	Submitting bool
	Hint       string
	Messages   []Message
}

// PendingPromptID returns the most recent prompt still awaiting a decision.
func (s Snapshot) PendingPromptID() (int, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		fb := s.Messages[i].Feedback
		if fb != nil && fb.State == PromptPending {
			return fb.ID, true
		}
	}
	return 0, false
}

// OpenReferralID returns the most recent prompt whose referral editor can be
// submitted or cancelled.
func (s Snapshot) OpenReferralID() (int, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		fb := s.Messages[i].Feedback
		if fb != nil && fb.Referral != nil && fb.Referral.State == EditorOpen {
			return fb.ID, true
		}
	}
	return 0, false
}

type message struct {
	id           int
	role         Role
	text         string
	thinking     bool
	dots         int
	isError      bool
	notes        []string
	autoReferral AutoReferralState
	prompt       *feedbackPrompt
	ellipsis     Timer
}

type feedbackPrompt struct {
	id        int
	question  string
	answer    string
	state     PromptState
	decision  Decision
	remaining int
	countdown bool
	timer     Timer
	editor    *referralEditor
}

type referralEditor struct {
	state  EditorState
	note   string
	status string
}

func (m *message) view() Message {
	v := Message{
		ID:           m.id,
		Role:         m.role,
		Text:         m.text,
		Thinking:     m.thinking,
		Dots:         m.dots,
		Error:        m.isError,
		AutoReferral: m.autoReferral,
	}
	if len(m.notes) > 0 {
		v.Notes = append([]string(nil), m.notes...)
	}
	if m.prompt != nil {
		v.Feedback = m.prompt.view()
	}
	return v
}

func (p *feedbackPrompt) view() *FeedbackView {
	v := &FeedbackView{
		ID:               p.id,
		Question:         p.question,
		Answer:           p.answer,
		State:            p.state,
		Decision:         p.decision,
		RemainingSeconds: p.remaining,
		ShowCountdown:    p.countdown && p.state == PromptPending,
		ControlsEnabled:  p.state == PromptPending,
	}
	if p.editor != nil && p.editor.state != EditorCancelled {
		v.Referral = &ReferralView{
			State:  p.editor.state,
			Note:   p.editor.note,
			Status: p.editor.status,
		}
	}
	return v
}
