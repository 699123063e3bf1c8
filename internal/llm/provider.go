// Package llm provides a chat-completion backend abstraction used by the
// provider engine to fulfill inference jobs.
package llm

import "context"

// Role names used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a chat-completion request. Model overrides the
// provider's default model for this call only, so concurrent jobs on a
// shared Provider instance never race over a process-wide model setting.
type CompletionRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// StreamChunk is one incremental piece of a streamed completion.
type StreamChunk struct {
	Delta string
	Done  bool
}

// Usage is the token count a backend reports for a completion. A zero value
// means the backend didn't report usage at all; callers pricing a job on
// token count should fall back to their own heuristic in that case.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is a chat-completion backend. Implementations must wire their
// HTTP client to strip outgoing tracing headers (traceparent) at
// construction time, not per call.
type Provider interface {
	// Complete runs a non-streaming completion, returning the backend's
	// reported token usage alongside the output. Usage is the zero value
	// when the backend doesn't report it.
	Complete(ctx context.Context, req CompletionRequest) (string, Usage, error)
	// CompleteStream runs a streaming completion, invoking onChunk for each
	// incremental piece of output.
	CompleteStream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) error
	// CheckStatus probes whether the backend is reachable and responsive.
	CheckStatus(ctx context.Context) error
	// Name identifies the provider for logging.
	Name() string
}
