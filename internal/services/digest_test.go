package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/models"
)

func TestHolidayService_IsWorkday(t *testing.T) {
	h := NewHolidayService()
	tests := []struct {
		name    string
		day     time.Time
		country string
		want    bool
	}{
		{"weekday without calendar", time.Date(2025, 7, 2, 12, 0, 0, 0, time.UTC), "NONE", true},
		{"saturday without calendar", time.Date(2025, 7, 5, 12, 0, 0, 0, time.UTC), "NONE", false},
		{"US independence day", time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC), "us", false},
		{"independence day elsewhere", time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC), "GB", true},
		{"unknown country", time.Date(2025, 7, 4, 12, 0, 0, 0, time.UTC), "ZZ", true},
		{"christmas in germany", time.Date(2025, 12, 25, 12, 0, 0, 0, time.UTC), "DE", false},
		{"china national day", time.Date(2024, 10, 1, 12, 0, 0, 0, time.Local), "CN", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.IsWorkday(tt.day, tt.country); got != tt.want {
				t.Errorf("IsWorkday(%s, %s) = %v, expected %v", tt.day.Format("2006-01-02"), tt.country, got, tt.want)
			}
		})
	}
}

func TestHolidayService_Supports(t *testing.T) {
	h := NewHolidayService()
	for _, code := range []string{"US", "jp", "CN", "NONE"} {
		if !h.Supports(code) {
			t.Errorf("Supports(%q) = false", code)
		}
	}
	if h.Supports("ZZ") {
		t.Error("Supports(ZZ) = true")
	}
}

func TestCronExpr(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "0 9 * * *", false},
		{"09:00", "0 9 * * *", false},
		{"17:45", "45 17 * * *", false},
		{"25:00", "", true},
		{"noon", "", true},
	}
	for _, tt := range tests {
		got, err := cronExpr(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("cronExpr(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("cronExpr(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}

func newDigestFixture(t *testing.T, country string, day time.Time) (*DigestService, *webhookRecorder) {
	t.Helper()
	db := openTestDB(t)
	rec := newWebhookRecorder(t)
	cfg := &config.NotificationConfig{Type: "generic", Webhook: rec.server.URL, DigestTime: "09:00", HolidayCountry: country}
	s := NewDigestService(db, NewNotificationService(cfg, rec.server.Client()), NewHolidayService(), cfg)
	s.now = func() time.Time { return day }
	return s, rec
}

func TestDigestService_RunSkipsNonWorkday(t *testing.T) {
	s, rec := newDigestFixture(t, "US", time.Date(2025, 7, 4, 9, 0, 0, 0, time.UTC))

	d, err := s.Run(context.Background())
	if err != nil || d != nil {
		t.Fatalf("Run = %v, %v; expected nil, nil", d, err)
	}
	if len(rec.Payloads()) != 0 {
		t.Error("nothing should be sent on a holiday")
	}
}

func TestDigestService_Run(t *testing.T) {
	day := time.Now()
	for !NewHolidayService().IsWorkday(day, "NONE") {
		day = day.Add(-24 * time.Hour)
	}
	s, rec := newDigestFixture(t, "NONE", day)
	ctx := context.Background()

	referrals := NewReferralService(s.db, nil, nil)
	referrals.Create(ctx, CreateReferralInput{Reason: "manual", Question: "Taxi after midnight?"})
	referrals.Create(ctx, CreateReferralInput{Reason: AutoReferralPrefix + " assistant could not answer.", Question: "Mars leave?"})
	closed, _ := referrals.Create(ctx, CreateReferralInput{Reason: "manual", Question: "closed one"})
	referrals.Resolve(ctx, closed.ID, "done")

	feedback := NewFeedbackService(s.db)
	feedback.Record(ctx, FeedbackInput{Helpful: true})
	feedback.Record(ctx, FeedbackInput{Helpful: false})

	d, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.OpenCount != 2 || d.CreatedCount != 3 || d.AutoCount != 1 {
		t.Errorf("counts = open %d, created %d, auto %d", d.OpenCount, d.CreatedCount, d.AutoCount)
	}
	if d.HelpfulRate != 0.5 {
		t.Errorf("HelpfulRate = %v", d.HelpfulRate)
	}
	for _, want := range []string{"Open referrals: 2", "(1 automatic)", "50% of 2", "Taxi after midnight?"} {
		if !strings.Contains(d.Content, want) {
			t.Errorf("content missing %q:\n%s", want, d.Content)
		}
	}
	if strings.Contains(d.Content, "closed one") {
		t.Error("resolved referrals should not be listed")
	}
	if d.NotifiedAt == nil {
		t.Error("NotifiedAt not set")
	}

	payloads := rec.Payloads()
	if len(payloads) != 1 || payloads[0]["type"] != "digest" {
		t.Fatalf("payloads = %v", payloads)
	}

	var stored int64
	s.db.Model(&models.ReferralDigest{}).Count(&stored)
	if stored != 1 {
		t.Errorf("stored %d digests, expected 1", stored)
	}
}

func TestDigestService_LockHeldByOtherInstance(t *testing.T) {
	day := time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)
	s, rec := newDigestFixture(t, "NONE", day)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	other := *s
	other.owner = "another-host-1"
	d, err := other.Run(context.Background())
	if err != nil || d != nil {
		t.Errorf("second instance Run = %v, %v; expected nil, nil", d, err)
	}
	if n := len(rec.Payloads()); n != 1 {
		t.Errorf("sent %d digests, expected 1", n)
	}
}

func TestDigestService_SendFailureIsRecorded(t *testing.T) {
	s, rec := newDigestFixture(t, "NONE", time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC))
	rec.setStatus(500)

	d, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected send error")
	}
	if d == nil || d.NotifyError == "" || d.NotifiedAt != nil {
		t.Errorf("digest = %+v", d)
	}
}

func TestFeedbackService_HelpfulRateEmpty(t *testing.T) {
	s := NewFeedbackService(openTestDB(t))
	rate, total, err := s.HelpfulRate(context.Background(), time.Now().Add(-time.Hour))
	if err != nil || rate != 0 || total != 0 {
		t.Errorf("HelpfulRate = %v, %d, %v", rate, total, err)
	}
}

func TestFeedbackService_Record(t *testing.T) {
	s := NewFeedbackService(openTestDB(t))
	ev, err := s.Record(context.Background(), FeedbackInput{SessionID: " abc ", Question: " q ", Answer: "a", Helpful: true})
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID == 0 || ev.SessionID != "abc" || ev.Question != "q" {
		t.Errorf("event = %+v", ev)
	}
}
