package widget

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/casedesk/smechat/internal/smeclient"
)

// fakeScheduler is a manual clock. Callbacks run on the goroutine calling Advance.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Duration
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (s *fakeScheduler) Every(d time.Duration, fn func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{interval: d, next: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward, firing every due callback in time order.
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var due *fakeTimer
		for _, t := range s.timers {
			if t.isStopped() || t.next > target {
				continue
			}
			if due == nil || t.next < due.next {
				due = t
			}
		}
		if due == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		s.now = due.next
		due.next += due.interval
		s.mu.Unlock()

		due.fn()
	}
}

// Active counts timers that have not been stopped.
func (s *fakeScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

var errBackendDown = errors.New("backend down")

// fakeBackend records every call. Hooks left nil produce canned successes.
type fakeBackend struct {
	mu sync.Mutex

	health    *smeclient.Health
	healthErr error

	queryFn     func(ctx context.Context, q string) (*smeclient.Answer, error)
	feedbackErr error
	referralFn  func(r smeclient.Referral) (*smeclient.ReferralReceipt, error)

	queries   []string
	feedbacks []smeclient.Feedback
	referrals []smeclient.Referral
}

func (b *fakeBackend) Health(ctx context.Context) (*smeclient.Health, error) {
	if b.healthErr != nil {
		return nil, b.healthErr
	}
	if b.health == nil {
		return &smeclient.Health{}, nil
	}
	return b.health, nil
}

func (b *fakeBackend) Query(ctx context.Context, q string) (*smeclient.Answer, error) {
	b.mu.Lock()
	b.queries = append(b.queries, q)
	fn := b.queryFn
	b.mu.Unlock()

	if fn != nil {
		return fn(ctx, q)
	}
	return &smeclient.Answer{Text: "Policy X requires two approvals."}, nil
}

func (b *fakeBackend) SendFeedback(ctx context.Context, fb smeclient.Feedback) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedbacks = append(b.feedbacks, fb)
	return b.feedbackErr
}

func (b *fakeBackend) SubmitReferral(ctx context.Context, r smeclient.Referral) (*smeclient.ReferralReceipt, error) {
	b.mu.Lock()
	b.referrals = append(b.referrals, r)
	fn := b.referralFn
	b.mu.Unlock()

	if fn != nil {
		return fn(r)
	}
	return &smeclient.ReferralReceipt{Message: "Referral REF-1 submitted."}, nil
}

func (b *fakeBackend) Feedbacks() []smeclient.Feedback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]smeclient.Feedback(nil), b.feedbacks...)
}

func (b *fakeBackend) Referrals() []smeclient.Referral {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]smeclient.Referral(nil), b.referrals...)
}

func answerWith(text string) func(context.Context, string) (*smeclient.Answer, error) {
	return func(context.Context, string) (*smeclient.Answer, error) {
		return &smeclient.Answer{Text: text}, nil
	}
}

// newTestWidget wires a widget to fakes with synchronous dispatch.
func newTestWidget(b *fakeBackend, opts ...Option) (*Widget, *fakeScheduler) {
	sched := &fakeScheduler{}
	base := []Option{
		WithScheduler(sched),
		WithDispatch(func(fn func()) { fn() }),
	}
	return New(b, append(base, opts...)...), sched
}
