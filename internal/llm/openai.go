package llm

import (
	"context"
	"errors"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/keanuklestil/ichiba/internal/kinderr"
)

// tracingStrippingTransport removes outgoing distributed-tracing headers
// before forwarding a request. Suppressing traceparent here, at client
// construction, is a hard contract: every request this client makes is
// affected, not just the ones a caller remembers to scrub.
type tracingStrippingTransport struct {
	base http.RoundTripper
}

func (t *tracingStrippingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("traceparent") != "" {
		req = req.Clone(req.Context())
		req.Header.Del("traceparent")
		req.Header.Del("tracestate")
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func newHTTPClient() *http.Client {
	return &http.Client{Transport: &tracingStrippingTransport{}}
}

// OpenAIProvider implements Provider over OpenAI's chat completion API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// DefaultModel is used when a caller doesn't pick one explicitly.
const DefaultModel = openai.GPT4o

// NewOpenAIProvider creates a provider for apiKey using the default model
// and a traceparent-suppressing HTTP client.
func NewOpenAIProvider(apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, kinderr.New(kinderr.Config, "OpenAI API key is empty")
	}
	config := openai.DefaultConfig(apiKey)
	config.HTTPClient = newHTTPClient()
	return &OpenAIProvider{client: openai.NewClientWithConfig(config), model: DefaultModel}, nil
}

// SetModel overrides the chat completion model.
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func (p *OpenAIProvider) modelFor(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.model
}

// Complete runs a non-streaming chat completion. The returned Usage mirrors
// whatever the backend reported in resp.Usage (OpenAI and Ollama's
// OpenAI-compatible endpoint both populate it); it is the zero value if the
// backend omitted it.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, Usage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.modelFor(req),
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", Usage{}, kinderr.Wrap(kinderr.Inference, "chat completion request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, kinderr.New(kinderr.Inference, "no completion choices returned")
	}
	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// CompleteStream runs a streaming chat completion.
func (p *OpenAIProvider) CompleteStream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) error {
	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       p.modelFor(req),
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Stream:      true,
	})
	if err != nil {
		return kinderr.Wrap(kinderr.Inference, "open completion stream", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			onChunk(StreamChunk{Done: true})
			return nil
		}
		if err != nil {
			return kinderr.Wrap(kinderr.Inference, "read completion stream", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		onChunk(StreamChunk{Delta: resp.Choices[0].Delta.Content})
	}
}

// CheckStatus probes liveness with a minimal, cheap completion request.
func (p *OpenAIProvider) CheckStatus(ctx context.Context) error {
	_, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  []openai.ChatCompletionMessage{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return kinderr.Wrap(kinderr.ServiceUnavailable, "liveness probe failed", err)
	}
	return nil
}

// Name identifies the provider for logging.
func (p *OpenAIProvider) Name() string {
	return "openai:" + p.model
}
