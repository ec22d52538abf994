package providers

import (
	"context"
	"strings"
)

// Known provider names. Catalog provider names are matched against these
// case-insensitively.
const (
	NameOpenAI    = "openai"
	NameAnthropic = "anthropic"
	NameGoogle    = "google"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole accepts "user" and "assistant". "model" is accepted as an
// alias of assistant.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(s) {
	case "user":
		return RoleUser, true
	case "assistant", "model":
		return RoleAssistant, true
	}
	return "", false
}

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Result is a normalized provider response. Token counts are exactly what
// the backend reported.
type Result struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
}

// Adapter is implemented by each concrete backend (OpenAI, Anthropic, Gemini).
type Adapter interface {
	// Name returns the provider name this adapter serves
	Name() string

	// Chat sends the conversation to the backend model identified by slug.
	// Failures are *apierr.Error values of kind UpstreamError,
	// EmptyResponse or MeteringDataMissing.
	Chat(ctx context.Context, slug string, messages []Message) (*Result, error)

	// Close performs cleanup when the adapter is no longer needed
	Close() error
}
