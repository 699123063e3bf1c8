package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nbd-wtf/go-nostr"
)

func TestReadAppliesDefaultsWhenNoOverrides(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	eff, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if eff.Active {
		t.Fatal("expected Active=false by default")
	}
	if len(eff.Relays) == 0 {
		t.Fatal("expected default relays")
	}
	if eff.TextJobDefaults.MinPriceSats != 10 {
		t.Fatalf("MinPriceSats = %d, want 10", eff.TextJobDefaults.MinPriceSats)
	}
}

func TestUpdateAndReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sk := nostr.GeneratePrivateKey()
	pub, _ := nostr.GetPublicKey(sk)

	err = s.Update(func(ov *overrides) {
		active := true
		ov.Active = &active
		ov.DVMPrivateKeyHex = &sk
		ov.Relays = []string{"wss://one.example"}
		ov.SupportedKinds = []int{5050, 5100}
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	eff, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !eff.Active {
		t.Fatal("expected Active=true after update")
	}
	if eff.DVMPublicKeyHex != pub {
		t.Fatalf("DVMPublicKeyHex = %q, want %q (derived from private key)", eff.DVMPublicKeyHex, pub)
	}
	if len(eff.Relays) != 1 || eff.Relays[0] != "wss://one.example" {
		t.Fatalf("Relays = %v", eff.Relays)
	}

	// Re-open from disk and confirm persistence.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	eff2, err := reopened.Read()
	if err != nil {
		t.Fatalf("Read after reopen: %v", err)
	}
	if !eff2.Active || len(eff2.SupportedKinds) != 2 {
		t.Fatalf("unexpected reloaded effective config: %+v", eff2)
	}
}

func TestUnknownKeysPreservedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	initial := map[string]any{
		"active":              false,
		"some_future_feature": map[string]any{"flag": true},
	}
	data, _ := json.Marshal(initial)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Update(func(ov *overrides) {
		active := true
		ov.Active = &active
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var round map[string]json.RawMessage
	if err := json.Unmarshal(raw, &round); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := round["some_future_feature"]; !ok {
		t.Fatal("expected unknown key 'some_future_feature' to survive round trip")
	}
}

func TestReadPanicsOnPublicKeyMismatch(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sk := nostr.GeneratePrivateKey()
	wrongPub := "0000000000000000000000000000000000000000000000000000000000000001"
	if err := s.Update(func(ov *overrides) {
		ov.DVMPrivateKeyHex = &sk
		ov.DVMPublicKeyHex = &wrongPub
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected Read to panic on a public-key mismatch")
		}
	}()
	_, _ = s.Read()
}

func TestProcessWideSingletonFailsBeforeInit(t *testing.T) {
	singletonMu.Lock()
	prev := singleton
	singleton = nil
	singletonMu.Unlock()
	defer func() {
		singletonMu.Lock()
		singleton = prev
		singletonMu.Unlock()
	}()

	if _, err := Get(); err == nil {
		t.Fatal("expected Get() to fail before Init")
	}
}

func TestProcessWideSingletonAfterInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if _, err := Init(path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := Get(); err != nil {
		t.Fatalf("Get after Init: %v", err)
	}
}
