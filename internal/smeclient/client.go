// Package smeclient talks to the SME backend over its form-encoded HTTP contract.
package smeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	PathHealth      = "/health"
	PathQuery       = "/query"
	PathFeedback    = "/feedback"
	PathReferral    = "/referral"
	PathMyReferrals = "/referrals/mine"

	// maxResponseBytes caps how much of any response body is read.
	maxResponseBytes = 1 << 20

	// ClientCookieName is the cookie the backend uses to group referrals by client.
	ClientCookieName = "sme_client"
)

// ErrInvalidResponse is returned when a response body that must be JSON is not.
var ErrInvalidResponse = errors.New("invalid response body")

// StatusError reports a non-2xx response.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Path, e.StatusCode)
}

// Health is the runtime configuration published by the backend.
type Health struct {
	Status     string
	BotName    string
	LLMBackend string
	// AutoYesMs is nil when the backend sent no finite number.
	AutoYesMs *int64
}

// Answer is the backend reply to a question.
type Answer struct {
	Text       string
	IsFallback bool
	Sources    []string
}

// Feedback is one Yes/No rating of an answer.
type Feedback struct {
	Question  string
	Answer    string
	Helpful   bool
	SessionID string
}

// Referral escalates a question to a subject-matter expert.
type Referral struct {
	Reason   string
	Question string
	Answer   string
}

// ReferralReceipt is what the backend returns for an accepted referral.
type ReferralReceipt struct {
	Message   string
	ID        uint
	Reference string
}

// ReferralSummary is one row of the "My referrals" view.
type ReferralSummary struct {
	ID         uint       `json:"id"`
	Reference  string     `json:"reference"`
	Question   string     `json:"question"`
	Reason     string     `json:"reason"`
	Status     string     `json:"status"`
	Response   string     `json:"response"`
	Automatic  bool       `json:"automatic"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	clientKey  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its cookie jar, if any, is kept.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets a per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithClientKey presents an identity issued in an earlier run, so referrals filed
// then are listed by MyReferrals.
func WithClientKey(key string) Option {
	return func(c *Client) {
		c.clientKey = strings.TrimSpace(key)
	}
}

// New creates a client for the backend at baseURL. Cookies set by the backend are
// sent back on later requests.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme must be http or https", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clientKey != "" && c.httpClient.Jar != nil {
		c.httpClient.Jar.SetCookies(u, []*http.Cookie{{Name: ClientCookieName, Value: c.clientKey, Path: "/"}})
	}
	return c, nil
}

// ClientKey returns the identity cookie currently held for the backend, or "".
func (c *Client) ClientKey() string {
	if c.httpClient.Jar == nil {
		return ""
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.httpClient.Jar.Cookies(u) {
		if ck.Name == ClientCookieName {
			return ck.Value
		}
	}
	return ""
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches the backend runtime configuration.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	body, err := c.do(ctx, http.MethodGet, PathHealth, nil)
	if err != nil {
		return nil, err
	}

	obj := decodeObject(body)
	return &Health{
		Status:     stringField(obj, "status"),
		BotName:    stringField(obj, "bot_name"),
		LLMBackend: stringField(obj, "llm_backend"),
		AutoYesMs:  finiteIntField(obj, "auto_yes_ms"),
	}, nil
}

// Query asks a question. An unparsable body is an error here because the answer
// is the whole point of the call.
func (c *Client) Query(ctx context.Context, question string) (*Answer, error) {
	form := url.Values{}
	form.Set("q", question)

	body, err := c.do(ctx, http.MethodPost, PathQuery, form)
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("%s: %w", PathQuery, ErrInvalidResponse)
	}

	return &Answer{
		Text:       stringField(obj, "answer"),
		IsFallback: boolField(obj, "is_fallback"),
		Sources:    stringSliceField(obj, "sources"),
	}, nil
}

// SendFeedback records a Yes/No rating. The response body is ignored.
func (c *Client) SendFeedback(ctx context.Context, fb Feedback) error {
	form := url.Values{}
	form.Set("q", fb.Question)
	form.Set("answer", fb.Answer)
	form.Set("helpful", strconv.FormatBool(fb.Helpful))
	form.Set("session_id", fb.SessionID)

	_, err := c.do(ctx, http.MethodPost, PathFeedback, form)
	return err
}

// SubmitReferral files a referral.
func (c *Client) SubmitReferral(ctx context.Context, r Referral) (*ReferralReceipt, error) {
	form := url.Values{}
	form.Set("reason", r.Reason)
	form.Set("question", r.Question)
	form.Set("answer", r.Answer)

	body, err := c.do(ctx, http.MethodPost, PathReferral, form)
	if err != nil {
		return nil, err
	}

	obj := decodeObject(body)
	receipt := &ReferralReceipt{Message: stringField(obj, "message")}
	if data, ok := obj["data"].(map[string]any); ok {
		if id, ok := data["id"].(float64); ok && id > 0 {
			receipt.ID = uint(id)
		}
		receipt.Reference = stringField(data, "reference")
	}
	return receipt, nil
}

// MyReferrals lists referrals filed from this client's cookie identity.
func (c *Client) MyReferrals(ctx context.Context) ([]ReferralSummary, error) {
	body, err := c.do(ctx, http.MethodGet, PathMyReferrals, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []ReferralSummary `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%s: %w", PathMyReferrals, ErrInvalidResponse)
	}
	return envelope.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	var reqBody io.Reader
	if form != nil {
		reqBody = bytes.NewBufferString(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Path: path, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// decodeObject never fails: anything that is not a JSON object becomes empty.
func decodeObject(body []byte) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func stringField(obj map[string]any, key string) string {
	if s, ok := obj[key].(string); ok {
		return s
	}
	return ""
}

func boolField(obj map[string]any, key string) bool {
	switch v := obj[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	}
	return false
}

func stringSliceField(obj map[string]any, key string) []string {
	raw, ok := obj[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// finiteIntField accepts JSON numbers and numeric strings, rejecting NaN and Inf.
func finiteIntField(obj map[string]any, key string) *int64 {
	var f float64
	switch v := obj[key].(type) {
	case float64:
		f = v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	n := int64(f)
	return &n
}
