package providers

import (
	"context"
	"net/http"
	"time"

	"llm_router/internal/apierr"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter talks to the OpenAI chat completions API
type OpenAIAdapter struct {
	auth    Authenticator
	client  *http.Client
	baseURL string
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(apiKey, baseURL string, timeout time.Duration) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	return &OpenAIAdapter{
		auth:    NewSimpleAPIKeyAuth(apiKey, "Authorization", "Bearer "),
		client:  newHTTPClient(timeout),
		baseURL: baseURL,
	}
}

func (a *OpenAIAdapter) Name() string { return NameOpenAI }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     *int64 `json:"prompt_tokens"`
		CompletionTokens *int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request to OpenAI
func (a *OpenAIAdapter) Chat(ctx context.Context, slug string, messages []Message) (*Result, error) {
	req := openAIRequest{Model: slug, Messages: make([]openAIMessage, 0, len(messages))}
	for _, m := range messages {
		req.Messages = append(req.Messages, openAIMessage{Role: string(m.Role), Content: m.Content})
	}

	var resp openAIResponse
	if err := postJSON(ctx, a.client, a.auth, NameOpenAI, a.baseURL+"/chat/completions", nil, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, apierr.New(apierr.KindEmptyResponse, "openai: empty response")
	}

	if resp.Usage == nil {
		return nil, apierr.New(apierr.KindMeteringDataMissing, "openai: response has no token usage")
	}
	in, out, err := requireUsage(NameOpenAI, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if err != nil {
		return nil, err
	}

	return &Result{Content: resp.Choices[0].Message.Content, InputTokens: in, OutputTokens: out}, nil
}

// Close cleans up resources
func (a *OpenAIAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
