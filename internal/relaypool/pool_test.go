package relaypool

import (
	"context"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/ichiba/internal/kinderr"
	"github.com/keanuklestil/ichiba/internal/types"
)

func TestPublishEventNoRelaysFails(t *testing.T) {
	p := NewPool(nil)
	defer p.Close()

	_, err := p.PublishEvent(context.Background(), &nostr.Event{}, nil)
	if err == nil {
		t.Fatal("expected error when no relays are available")
	}
	if !kinderr.Is(err, kinderr.Transport) {
		t.Fatalf("expected Transport kind, got %v", err)
	}
}

func TestSubscribeNoRelaysFails(t *testing.T) {
	p := NewPool(nil)
	defer p.Close()

	_, err := p.Subscribe(context.Background(), nostr.Filter{}, nil, func(types.Event) {})
	if err == nil {
		t.Fatal("expected error when no relays are available")
	}
	if !kinderr.Is(err, kinderr.Transport) {
		t.Fatalf("expected Transport kind, got %v", err)
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	p := NewPool([]string{"wss://relay.example.invalid"})
	defer p.Close()

	sub, err := p.Subscribe(context.Background(), nostr.Filter{Kinds: []int{1}}, []string{"wss://relay.example.invalid"}, func(types.Event) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sub.Close()
	sub.Close() // must not panic
}

func TestCountAndAddIsIdempotent(t *testing.T) {
	p := NewPool(nil)
	defer p.Close()

	p.Add("wss://relay.example.invalid")
	p.Add("wss://relay.example.invalid")

	if got := p.Count(); got != 1 {
		t.Fatalf("expected Add to be idempotent, got count %d", got)
	}
}

func TestRemoveUnknownRelayIsNoop(t *testing.T) {
	p := NewPool(nil)
	defer p.Close()

	p.Remove("wss://not-in-pool.invalid")
	if got := p.Count(); got != 0 {
		t.Fatalf("expected no relays, got %d", got)
	}
}
