package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"llm_router/internal/apierr"
)

// maxErrorBody bounds how much of a failed response is kept for diagnostics
const maxErrorBody = 4 << 10

// newHTTPClient returns a client with a tuned transport. timeout bounds the
// whole exchange, in addition to any context deadline.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends payload to url and decodes a 2xx response into out.
// Every transport failure and non-2xx status becomes an UpstreamError that
// carries the backend's own message.
func postJSON(ctx context.Context, client *http.Client, auth Authenticator, provider, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, provider+": failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, provider+": failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	authCtx, err := auth.Authenticate(ctx)
	if err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, provider+": authentication failed", err)
	}
	if err := authCtx.ApplyToRequest(ctx, httpReq); err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, provider+": failed to apply auth", err)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, provider+": request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apierr.Wrap(apierr.KindUpstreamError,
			fmt.Sprintf("%s: status %d", provider, resp.StatusCode),
			fmt.Errorf("%s", extractErrorMessage(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, provider+": failed to decode response", err)
	}
	return nil
}

// extractErrorMessage pulls error.message out of a vendor error body.
// OpenAI, Anthropic and Gemini all use that shape.
func extractErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	if len(body) == 0 {
		return "empty error body"
	}
	return string(body)
}

// requireUsage converts reported token counts, failing when either is absent
// or negative.
func requireUsage(provider string, input, output *int64) (int64, int64, error) {
	if input == nil || output == nil {
		return 0, 0, apierr.New(apierr.KindMeteringDataMissing, provider+": response has no token usage")
	}
	if *input < 0 || *output < 0 {
		return 0, 0, apierr.New(apierr.KindMeteringDataMissing,
			fmt.Sprintf("%s: response has negative token usage (input=%d output=%d)", provider, *input, *output))
	}
	return *input, *output, nil
}
