package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/civicmind/civicmind/pkg/config"
	"github.com/civicmind/civicmind/pkg/httpclient"
)

// OpenAIProvider speaks the OpenAI chat completions API (and compatible
// servers via a custom host).
type OpenAIProvider struct {
	cfg    *config.LLMConfig
	client *httpclient.Client
	host   string
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewOpenAIProvider builds a provider from config.
func NewOpenAIProvider(cfg *config.LLMConfig) *OpenAIProvider {
	host := cfg.Host
	if host == "" {
		host = "https://api.openai.com/v1"
	}
	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Second),
	)
	return &OpenAIProvider{cfg: cfg, client: client, host: host}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete sends a single-turn chat completion and returns the text content.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	maxTokens := p.cfg.MaxTokens
	body, err := json.Marshal(openAIRequest{
		Model:          p.cfg.Model,
		Messages:       []openAIMessage{{Role: "user", Content: prompt}},
		MaxTokens:      &maxTokens,
		Temperature:    p.cfg.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", err
	}

	resp, err := p.client.PostJSON(ctx, p.host+"/chat/completions", body, map[string]string{
		"Authorization": "Bearer " + p.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openai: HTTP %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("openai: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
