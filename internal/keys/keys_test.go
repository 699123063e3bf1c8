package keys

import (
	"testing"

	"github.com/nbd-wtf/go-nostr/nip19"
)

func TestNewMnemonicIsValid(t *testing.T) {
	mnemonic, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic: %v", err)
	}
	if err := ValidateMnemonic(mnemonic); err != nil {
		t.Fatalf("expected generated mnemonic to validate, got %v", err)
	}
}

func TestValidateMnemonicRejectsGarbage(t *testing.T) {
	if err := ValidateMnemonic("not a real mnemonic phrase at all"); err == nil {
		t.Fatal("expected invalid mnemonic to be rejected")
	}
}

func TestDeriveAccountIsDeterministic(t *testing.T) {
	mnemonic, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic: %v", err)
	}

	a, err := DeriveFromMnemonic(mnemonic, "", 0)
	if err != nil {
		t.Fatalf("DeriveFromMnemonic: %v", err)
	}
	b, err := DeriveFromMnemonic(mnemonic, "", 0)
	if err != nil {
		t.Fatalf("DeriveFromMnemonic: %v", err)
	}

	if a.PrivateKeyHex != b.PrivateKeyHex || a.PublicKeyHex != b.PublicKeyHex {
		t.Fatalf("expected deterministic derivation, got %+v vs %+v", a, b)
	}
}

func TestDeriveAccountDiffersByIndex(t *testing.T) {
	mnemonic, err := NewMnemonic()
	if err != nil {
		t.Fatalf("NewMnemonic: %v", err)
	}

	a, err := DeriveFromMnemonic(mnemonic, "", 0)
	if err != nil {
		t.Fatalf("DeriveFromMnemonic account 0: %v", err)
	}
	b, err := DeriveFromMnemonic(mnemonic, "", 1)
	if err != nil {
		t.Fatalf("DeriveFromMnemonic account 1: %v", err)
	}

	if a.PrivateKeyHex == b.PrivateKeyHex {
		t.Fatalf("expected distinct accounts to derive distinct keys")
	}
}

func TestNpubRoundTrip(t *testing.T) {
	kp := GenerateKeyPair()

	npub, err := EncodeNpub(kp.PublicKeyHex)
	if err != nil {
		t.Fatalf("EncodeNpub: %v", err)
	}

	decoded, err := Decode(npub)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Prefix != "npub" {
		t.Fatalf("expected prefix npub, got %s", decoded.Prefix)
	}
	if decoded.Value.(string) != kp.PublicKeyHex {
		t.Fatalf("round trip mismatch: got %v want %s", decoded.Value, kp.PublicKeyHex)
	}
}

func TestNsecRoundTrip(t *testing.T) {
	kp := GenerateKeyPair()

	nsec, err := EncodeNsec(kp.PrivateKeyHex)
	if err != nil {
		t.Fatalf("EncodeNsec: %v", err)
	}

	decoded, err := Decode(nsec)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Prefix != "nsec" {
		t.Fatalf("expected prefix nsec, got %s", decoded.Prefix)
	}
	if decoded.Value.(string) != kp.PrivateKeyHex {
		t.Fatalf("round trip mismatch: got %v want %s", decoded.Value, kp.PrivateKeyHex)
	}
}

func TestNeventRoundTrip(t *testing.T) {
	kp := GenerateKeyPair()
	eventID := "0000000000000000000000000000000000000000000000000000000000000a"[:64]
	relays := []string{"wss://relay.example.com"}

	nevent, err := EncodeNevent(eventID, relays, kp.PublicKeyHex)
	if err != nil {
		t.Fatalf("EncodeNevent: %v", err)
	}

	decoded, err := Decode(nevent)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Prefix != "nevent" {
		t.Fatalf("expected prefix nevent, got %s", decoded.Prefix)
	}
	pointer, ok := decoded.Value.(nip19.EventPointer)
	if !ok {
		t.Fatalf("expected EventPointer, got %T", decoded.Value)
	}
	if pointer.ID != eventID || pointer.Author != kp.PublicKeyHex {
		t.Fatalf("event pointer mismatch: %+v", pointer)
	}
}
