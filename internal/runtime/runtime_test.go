package runtime

import (
	"testing"

	"github.com/keanuklestil/ichiba/internal/kinderr"
	"github.com/keanuklestil/ichiba/internal/telemetry"
)

func TestMissingServiceReturnsServiceUnavailable(t *testing.T) {
	rt := &Runtime{tier: TierEmpty}

	if _, err := rt.Pool(); !kinderr.Is(err, kinderr.ServiceUnavailable) {
		t.Fatalf("Pool() = %v, want ServiceUnavailable", err)
	}
	if _, err := rt.LLM(); !kinderr.Is(err, kinderr.ServiceUnavailable) {
		t.Fatalf("LLM() = %v, want ServiceUnavailable", err)
	}
	if _, err := rt.Wallet(); !kinderr.Is(err, kinderr.ServiceUnavailable) {
		t.Fatalf("Wallet() = %v, want ServiceUnavailable", err)
	}
	if _, err := rt.Store(); !kinderr.Is(err, kinderr.ServiceUnavailable) {
		t.Fatalf("Store() = %v, want ServiceUnavailable", err)
	}
	if _, err := rt.Settings(); !kinderr.Is(err, kinderr.ServiceUnavailable) {
		t.Fatalf("Settings() = %v, want ServiceUnavailable", err)
	}
	if _, err := rt.Provider(); !kinderr.Is(err, kinderr.ServiceUnavailable) {
		t.Fatalf("Provider() = %v, want ServiceUnavailable", err)
	}
	if _, err := rt.NewConsumer(); !kinderr.Is(err, kinderr.ServiceUnavailable) {
		t.Fatalf("NewConsumer() = %v, want ServiceUnavailable", err)
	}
}

func TestEmptyRuntimeSinkIsUsableNoop(t *testing.T) {
	rt := &Runtime{tier: TierEmpty}
	// Must not panic even though no real sink was ever installed.
	rt.Sink().Emit(telemetry.Event{Category: "test", Action: "noop"})
}

func TestEmergencyTierHasOnlyTelemetry(t *testing.T) {
	rt := buildEmergency()
	if rt.Tier() != TierEmergency {
		t.Fatalf("Tier() = %v, want %v", rt.Tier(), TierEmergency)
	}
	if _, err := rt.Pool(); err == nil {
		t.Fatal("expected emergency tier to have no relay pool")
	}
}

func TestGetBeforeBootstrapFails(t *testing.T) {
	singletonMu.Lock()
	singleton = nil
	ready = false
	singletonMu.Unlock()

	if _, err := Get(); !kinderr.Is(err, kinderr.ServiceUnavailable) {
		t.Fatalf("Get() before Bootstrap = %v, want ServiceUnavailable", err)
	}
}

func TestTierString(t *testing.T) {
	cases := map[Tier]string{TierFull: "full", TierMinimal: "minimal", TierEmergency: "emergency", TierEmpty: "empty"}
	for tier, want := range cases {
		if got := tier.String(); got != want {
			t.Fatalf("Tier(%d).String() = %q, want %q", tier, got, want)
		}
	}
}
