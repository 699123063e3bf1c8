package provider

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/keanuklestil/ichiba/internal/dvmproto"
	"github.com/keanuklestil/ichiba/internal/kinderr"
	"github.com/keanuklestil/ichiba/internal/settings"
)

func TestPriceForTokensFloorsAtMinimum(t *testing.T) {
	if got := priceForTokens(0, 10, 2); got != 10 {
		t.Fatalf("priceForTokens(0) = %d, want 10 (min price exactly)", got)
	}
	if got := priceForTokens(3000, 10, 2); got != 10 {
		// 3000/1000 * 2 = 6, below the minimum of 10, so the minimum applies.
		t.Fatalf("unexpected price: %d", got)
	}
	if got := priceForTokens(10000, 10, 2); got != 20 {
		t.Fatalf("priceForTokens(10000) = %d, want 20", got)
	}
}

func TestFirstTextInputRequiresNonEmptyText(t *testing.T) {
	req := &dvmproto.JobRequest{Inputs: []dvmproto.Input{{Type: "url", Data: "http://x"}}}
	if _, ok := firstTextInput(req); ok {
		t.Fatal("expected no text input to be found")
	}

	req.Inputs = append(req.Inputs, dvmproto.Input{Type: "text", Data: "hello"})
	got, ok := firstTextInput(req)
	if !ok || got != "hello" {
		t.Fatalf("firstTextInput = %q, %v", got, ok)
	}
}

func TestStartFailsConfigWhenPrivateKeyMissing(t *testing.T) {
	store, err := settings.Open(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("settings.Open: %v", err)
	}

	e := &Engine{Settings: store}
	err = e.Start(context.Background())
	if err == nil {
		t.Fatal("expected Start to fail without a configured private key")
	}
	if !kinderr.Is(err, kinderr.Config) {
		t.Fatalf("expected Config kind error, got %v", err)
	}
	if e.Active() {
		t.Fatal("engine should not be active after a failed start")
	}
}

func TestStopOnInactiveEngineIsNoop(t *testing.T) {
	e := &Engine{}
	e.Stop() // must not panic
	if e.Active() {
		t.Fatal("expected inactive engine to remain inactive")
	}
}
