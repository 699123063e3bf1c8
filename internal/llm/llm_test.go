package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keanuklestil/ichiba/internal/kinderr"
)

func TestMockProviderComplete(t *testing.T) {
	p := NewMockProvider("hello world")
	out, usage, err := p.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
	if usage != (Usage{}) {
		t.Fatalf("expected zero-value usage when not configured, got %+v", usage)
	}
}

func TestMockProviderCompleteReportsConfiguredUsage(t *testing.T) {
	p := NewMockProvider("hi")
	p.Usage = Usage{PromptTokens: 2, CompletionTokens: 1, TotalTokens: 3}
	_, usage, err := p.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if usage.TotalTokens != 3 {
		t.Fatalf("expected usage to be passed through, got %+v", usage)
	}
}

func TestMockProviderStream(t *testing.T) {
	p := NewMockProvider("a b c")
	var chunks []StreamChunk
	err := p.CompleteStream(context.Background(), CompletionRequest{}, func(c StreamChunk) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}
	if len(chunks) != 4 { // 3 words + done marker
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	if !chunks[len(chunks)-1].Done {
		t.Fatalf("expected last chunk to be marked Done")
	}
}

func TestNewOpenAIProviderRejectsEmptyKey(t *testing.T) {
	_, err := NewOpenAIProvider("")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
	if !kinderr.Is(err, kinderr.Config) {
		t.Fatalf("expected Config kind, got %v", err)
	}
}

func TestTracingStrippingTransportRemovesTraceparent(t *testing.T) {
	var sawTraceparent bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawTraceparent = r.Header.Get("traceparent") != ""
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	client := newHTTPClient()
	req, err := http.NewRequest(http.MethodGet, upstream.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("traceparent", "00-aaaa-bbbb-01")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if sawTraceparent {
		t.Fatal("expected traceparent header to be stripped before reaching the server")
	}
}
