package providers

import (
	"context"
	"net/http"
	"time"

	"llm_router/internal/apierr"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicMaxTokens      = 1024
)

// AnthropicAdapter talks to the Anthropic messages API
type AnthropicAdapter struct {
	auth    Authenticator
	client  *http.Client
	baseURL string
}

// NewAnthropicAdapter creates a new Anthropic adapter
func NewAnthropicAdapter(apiKey, baseURL string, timeout time.Duration) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &AnthropicAdapter{
		auth:    NewSimpleAPIKeyAuth(apiKey, "x-api-key", ""),
		client:  newHTTPClient(timeout),
		baseURL: baseURL,
	}
}

func (a *AnthropicAdapter) Name() string { return NameAnthropic }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  *int64 `json:"input_tokens"`
		OutputTokens *int64 `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends a messages request to Anthropic. max_tokens is required by the
// API and fixed at 1024.
func (a *AnthropicAdapter) Chat(ctx context.Context, slug string, messages []Message) (*Result, error) {
	req := anthropicRequest{
		Model:     slug,
		MaxTokens: anthropicMaxTokens,
		Messages:  make([]anthropicMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}

	headers := map[string]string{"anthropic-version": anthropicVersion}

	var resp anthropicResponse
	if err := postJSON(ctx, a.client, a.auth, NameAnthropic, a.baseURL+"/v1/messages", headers, req, &resp); err != nil {
		return nil, err
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, apierr.New(apierr.KindEmptyResponse, "anthropic: empty response")
	}

	in, out, err := requireUsage(NameAnthropic, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if err != nil {
		return nil, err
	}

	return &Result{Content: text, InputTokens: in, OutputTokens: out}, nil
}

// Close cleans up resources
func (a *AnthropicAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
