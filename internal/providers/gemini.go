package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"llm_router/internal/apierr"
)

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiAdapter talks to the Google Gemini generateContent API
type GeminiAdapter struct {
	auth    Authenticator
	client  *http.Client
	baseURL string
}

// NewGeminiAdapter creates a new Gemini adapter
func NewGeminiAdapter(apiKey, baseURL string, timeout time.Duration) *GeminiAdapter {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	return &GeminiAdapter{
		auth:    NewSimpleAPIKeyAuth(apiKey, "x-goog-api-key", ""),
		client:  newHTTPClient(timeout),
		baseURL: baseURL,
	}
}

func (a *GeminiAdapter) Name() string { return NameGoogle }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     *int64 `json:"promptTokenCount"`
		CandidatesTokenCount *int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// geminiRole maps a domain role to Gemini's label; the assistant is "model".
func geminiRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

// Chat sends a generateContent request to Gemini
func (a *GeminiAdapter) Chat(ctx context.Context, slug string, messages []Message) (*Result, error) {
	req := geminiRequest{Contents: make([]geminiContent, 0, len(messages))}
	for _, m := range messages {
		req.Contents = append(req.Contents, geminiContent{
			Role:  geminiRole(m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	endpoint := a.baseURL + "/v1beta/models/" + url.PathEscape(slug) + ":generateContent"

	var resp geminiResponse
	if err := postJSON(ctx, a.client, a.auth, NameGoogle, endpoint, nil, req, &resp); err != nil {
		return nil, err
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, apierr.New(apierr.KindEmptyResponse, "google: empty response")
	}

	if resp.UsageMetadata == nil {
		return nil, apierr.New(apierr.KindMeteringDataMissing, "google: response has no token usage")
	}
	in, out, err := requireUsage(NameGoogle, resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount)
	if err != nil {
		return nil, err
	}

	return &Result{Content: sb.String(), InputTokens: in, OutputTokens: out}, nil
}

// Close cleans up resources
func (a *GeminiAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
