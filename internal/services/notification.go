package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/internal/models"
	"github.com/casedesk/smechat/pkg/logger"
)

// NotificationAdapter formats and posts a message for one IM platform.
type NotificationAdapter interface {
	SendReferral(ctx context.Context, n *ReferralNotification) error
	SendText(ctx context.Context, title, message string) error
}

// ReferralNotification is what an expert sees when a question is escalated.
type ReferralNotification struct {
	Reference string
	Question  string
	Answer    string
	Reason    string
	Automatic bool
	CreatedAt time.Time
}

func newReferralNotification(r *models.Referral) *ReferralNotification {
	return &ReferralNotification{
		Reference: r.Reference,
		Question:  r.Question,
		Answer:    r.Answer,
		Reason:    r.Reason,
		Automatic: r.Automatic,
		CreatedAt: r.CreatedAt,
	}
}

type NotificationService struct {
	adapter NotificationAdapter
}

// NewNotificationService returns a service that drops messages when no webhook
// is configured.
func NewNotificationService(cfg *config.NotificationConfig, client *http.Client) *NotificationService {
	if cfg.Webhook == "" {
		return &NotificationService{}
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &NotificationService{adapter: newAdapter(cfg, client)}
}

func (s *NotificationService) Enabled() bool {
	return s.adapter != nil
}

func (s *NotificationService) NotifyReferral(ctx context.Context, r *models.Referral) error {
	if s.adapter == nil {
		logger.Debug().Str("reference", r.Reference).Msg("[Notification] No webhook configured, skipping")
		return nil
	}
	return s.adapter.SendReferral(ctx, newReferralNotification(r))
}

func (s *NotificationService) SendText(ctx context.Context, title, message string) error {
	if s.adapter == nil {
		return nil
	}
	return s.adapter.SendText(ctx, title, message)
}

func newAdapter(cfg *config.NotificationConfig, client *http.Client) NotificationAdapter {
	base := webhookPoster{client: client, webhook: cfg.Webhook, secret: cfg.Secret}
	switch cfg.Type {
	case "slack":
		return &slackAdapter{base}
	case "wechat_work":
		return &wecomAdapter{base}
	case "dingtalk":
		return &dingtalkAdapter{base}
	case "feishu":
		return &feishuAdapter{base}
	case "discord":
		return &discordAdapter{base}
	case "teams":
		return &teamsAdapter{base}
	default:
		return &genericAdapter{base}
	}
}

func buildReferralMessage(n *ReferralNotification) string {
	kind := "Manual referral"
	if n.Automatic {
		kind = "Automatic referral"
	}

	msg := fmt.Sprintf("**%s %s**\n\n**Question**: %s\n**Reason**: %s",
		kind, n.Reference, n.Question, n.Reason)
	if answer := strings.TrimSpace(n.Answer); answer != "" {
		msg += "\n**Assistant answer**: " + truncate(answer, 500)
	}
	return msg
}

type webhookPoster struct {
	client  *http.Client
	webhook string
	secret  string
}

func (p webhookPoster) post(ctx context.Context, target string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	logger.Debug().Int("status", resp.StatusCode).Int("bytes", len(body)).Msg("[Notification] Delivered")
	return nil
}

func hmacSign(key, message string) string {
	h := hmac.New(sha256.New, []byte(key))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

type slackAdapter struct{ webhookPoster }

func (a *slackAdapter) SendReferral(ctx context.Context, n *ReferralNotification) error {
	// Slack mrkdwn uses single asterisks for bold.
	text := strings.ReplaceAll(buildReferralMessage(n), "**", "*")
	return a.post(ctx, a.webhook, map[string]interface{}{
		"text": text,
		"blocks": []map[string]interface{}{
			{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": text},
			},
		},
	})
}

func (a *slackAdapter) SendText(ctx context.Context, title, message string) error {
	return a.post(ctx, a.webhook, map[string]interface{}{"text": "*" + title + "*\n" + message})
}

type wecomAdapter struct{ webhookPoster }

func (a *wecomAdapter) markdown(ctx context.Context, content string) error {
	return a.post(ctx, a.webhook, map[string]interface{}{
		"msgtype":     "markdown_v2",
		"markdown_v2": map[string]string{"content": content},
	})
}

func (a *wecomAdapter) SendReferral(ctx context.Context, n *ReferralNotification) error {
	return a.markdown(ctx, buildReferralMessage(n))
}

func (a *wecomAdapter) SendText(ctx context.Context, title, message string) error {
	return a.markdown(ctx, "**"+title+"**\n\n"+message)
}

type dingtalkAdapter struct{ webhookPoster }

func (a *dingtalkAdapter) signedURL() string {
	if a.secret == "" {
		return a.webhook
	}
	timestamp := time.Now().UnixMilli()
	sign := hmacSign(a.secret, fmt.Sprintf("%d\n%s", timestamp, a.secret))
	return fmt.Sprintf("%s&timestamp=%d&sign=%s", a.webhook, timestamp, url.QueryEscape(sign))
}

func (a *dingtalkAdapter) markdown(ctx context.Context, title, text string) error {
	return a.post(ctx, a.signedURL(), map[string]interface{}{
		"msgtype":  "markdown",
		"markdown": map[string]string{"title": title, "text": text},
	})
}

func (a *dingtalkAdapter) SendReferral(ctx context.Context, n *ReferralNotification) error {
	return a.markdown(ctx, "Referral "+n.Reference, buildReferralMessage(n))
}

func (a *dingtalkAdapter) SendText(ctx context.Context, title, message string) error {
	return a.markdown(ctx, title, message)
}

type feishuAdapter struct{ webhookPoster }

func (a *feishuAdapter) send(ctx context.Context, content string) error {
	payload := map[string]interface{}{
		"msg_type": "text",
		"content":  map[string]string{"text": content},
	}
	if a.secret != "" {
		timestamp := time.Now().Unix()
		// Feishu signs with the string-to-sign as the key and an empty message.
		payload["timestamp"] = fmt.Sprintf("%d", timestamp)
		payload["sign"] = hmacSign(fmt.Sprintf("%d\n%s", timestamp, a.secret), "")
	}
	return a.post(ctx, a.webhook, payload)
}

func (a *feishuAdapter) SendReferral(ctx context.Context, n *ReferralNotification) error {
	return a.send(ctx, buildReferralMessage(n))
}

func (a *feishuAdapter) SendText(ctx context.Context, title, message string) error {
	return a.send(ctx, title+"\n"+message)
}

type discordAdapter struct{ webhookPoster }

func (a *discordAdapter) SendReferral(ctx context.Context, n *ReferralNotification) error {
	return a.post(ctx, a.webhook, map[string]interface{}{"content": buildReferralMessage(n)})
}

func (a *discordAdapter) SendText(ctx context.Context, title, message string) error {
	return a.post(ctx, a.webhook, map[string]interface{}{"content": "**" + title + "**\n" + message})
}

type teamsAdapter struct{ webhookPoster }

func adaptiveCard(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "message",
		"attachments": []map[string]interface{}{
			{
				"contentType": "application/vnd.microsoft.card.adaptive",
				"content": map[string]interface{}{
					"type":    "AdaptiveCard",
					"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
					"version": "1.5",
					"body": []map[string]interface{}{
						{"type": "TextBlock", "text": text, "wrap": true},
					},
				},
			},
		},
	}
}

func (a *teamsAdapter) SendReferral(ctx context.Context, n *ReferralNotification) error {
	return a.post(ctx, a.webhook, adaptiveCard(buildReferralMessage(n)))
}

func (a *teamsAdapter) SendText(ctx context.Context, title, message string) error {
	return a.post(ctx, a.webhook, adaptiveCard("**"+title+"**\n\n"+message))
}

type genericAdapter struct{ webhookPoster }

func (a *genericAdapter) SendReferral(ctx context.Context, n *ReferralNotification) error {
	return a.post(ctx, a.webhook, map[string]interface{}{
		"type":       "referral",
		"reference":  n.Reference,
		"question":   n.Question,
		"answer":     n.Answer,
		"reason":     n.Reason,
		"automatic":  n.Automatic,
		"created_at": n.CreatedAt,
	})
}

func (a *genericAdapter) SendText(ctx context.Context, title, message string) error {
	return a.post(ctx, a.webhook, map[string]interface{}{
		"type":    "digest",
		"title":   title,
		"message": message,
	})
}
