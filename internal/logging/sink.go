package logging

import "time"

// LogRecord is the audit entry written for every completion request,
// successful or not.
type LogRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
	AccountID    int64     `json:"account_id,omitempty"`
	APIKeyID     int64     `json:"api_key_id,omitempty"`
	APIKeyName   string    `json:"api_key_name,omitempty"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider,omitempty"`
	MappingID    int64     `json:"mapping_id,omitempty"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         int64     `json:"cost"`
	State        string    `json:"state"`
	ProviderMs   int64     `json:"provider_ms"`
	GatewayMs    int64     `json:"gateway_ms"`
	Error        string    `json:"error,omitempty"`
}

// Sink receives log records from the gateway. Implementations must not
// block the request path for long; callers ignore their errors.
type Sink interface {
	Enqueue(rec *LogRecord) error
}

// NoopSink discards records
type NoopSink struct{}

func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (s *NoopSink) Enqueue(rec *LogRecord) error {
	return nil
}
