package llm

import (
	"context"
	"strings"
)

// MockProvider is a canned Provider for tests that don't need a real
// inference backend.
type MockProvider struct {
	Response    string
	Usage       Usage
	StatusError error
}

// NewMockProvider creates a mock provider that always returns response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

func (p *MockProvider) Complete(ctx context.Context, req CompletionRequest) (string, Usage, error) {
	return p.Response, p.Usage, nil
}

func (p *MockProvider) CompleteStream(ctx context.Context, req CompletionRequest, onChunk func(StreamChunk)) error {
	for _, word := range strings.Fields(p.Response) {
		onChunk(StreamChunk{Delta: word + " "})
	}
	onChunk(StreamChunk{Done: true})
	return nil
}

func (p *MockProvider) CheckStatus(ctx context.Context) error {
	return p.StatusError
}

func (p *MockProvider) Name() string {
	return "mock"
}
