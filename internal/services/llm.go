package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/casedesk/smechat/internal/config"
	"github.com/casedesk/smechat/pkg/logger"
	"github.com/ollama/ollama/api"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

const defaultTemperature = 0.1

// Completer sends one prompt to one model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, provider *config.LLMProviderConfig, system, prompt string) (string, error)
}

// LLMClient talks to the provider SDKs directly.
type LLMClient struct{}

func NewLLMClient() *LLMClient {
	return &LLMClient{}
}

// Complete dispatches on provider.Provider; anything unknown is treated as
// OpenAI-compatible.
func (c *LLMClient) Complete(ctx context.Context, p *config.LLMProviderConfig, system, prompt string) (string, error) {
	logger.Debug().Str("provider", p.Provider).Str("model", p.Model).Msg("calling LLM")

	switch p.Provider {
	case "anthropic":
		return c.callAnthropic(ctx, p, system, prompt)
	case "ollama":
		return c.callOllama(ctx, p, system, prompt)
	case "gemini":
		return c.callGemini(ctx, p, system, prompt)
	case "azure":
		return c.callOpenAI(ctx, openai.DefaultAzureConfig(p.APIKey, p.BaseURL), p, system, prompt)
	default:
		cfg := openai.DefaultConfig(p.APIKey)
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
		return c.callOpenAI(ctx, cfg, p, system, prompt)
	}
}

func temperature(p *config.LLMProviderConfig) float64 {
	if p.Temperature > 0 {
		return p.Temperature
	}
	return defaultTemperature
}

// callOpenAI serves OpenAI, Azure OpenAI (model is the deployment name) and
// compatible endpoints.
func (c *LLMClient) callOpenAI(ctx context.Context, cfg openai.ClientConfig, p *config.LLMProviderConfig, system, prompt string) (string, error) {
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature(p)),
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%s API error: %w", p.Provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from %s", p.Provider)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *LLMClient) callAnthropic(ctx context.Context, p *config.LLMProviderConfig, system, prompt string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(p.APIKey)}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := int64(p.MaxTokens)
	if maxTokens == 0 {
		maxTokens = 1024
	}
	model := p.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		Temperature: anthropic.Float(temperature(p)),
	})
	if err != nil {
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return content.String(), nil
}

func (c *LLMClient) callOllama(ctx context.Context, p *config.LLMProviderConfig, system, prompt string) (string, error) {
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid Ollama base URL: %w", err)
	}
	client := api.NewClient(u, http.DefaultClient)

	model := p.Model
	if model == "" {
		model = "llama3"
	}

	stream := false
	var content strings.Builder
	err = client.Chat(ctx, &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream:  &stream,
		Options: map[string]interface{}{"temperature": temperature(p)},
	}, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("Ollama API error: %w", err)
	}
	return content.String(), nil
}

func (c *LLMClient) callGemini(ctx context.Context, p *config.LLMProviderConfig, system, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("Gemini client error: %w", err)
	}

	model := p.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	temp := float32(temperature(p))
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temp,
	})
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return resp.Text(), nil
}
