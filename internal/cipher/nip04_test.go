package cipher

import (
	"strings"
	"testing"

	"github.com/keanuklestil/ichiba/internal/keys"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice := keys.GenerateKeyPair()
	bob := keys.GenerateKeyPair()

	const message = "job request payload"

	token, err := EncryptFor(message, alice.PrivateKeyHex, bob.PublicKeyHex)
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}
	if !strings.Contains(token, "?iv=") {
		t.Fatalf("expected NIP-04 token format, got %q", token)
	}

	plaintext, err := DecryptFrom(token, bob.PrivateKeyHex, alice.PublicKeyHex)
	if err != nil {
		t.Fatalf("DecryptFrom: %v", err)
	}
	if plaintext != message {
		t.Fatalf("round trip mismatch: got %q want %q", plaintext, message)
	}
}

func TestSharedSecretIsSymmetric(t *testing.T) {
	alice := keys.GenerateKeyPair()
	bob := keys.GenerateKeyPair()

	s1, err := SharedSecret(alice.PrivateKeyHex, bob.PublicKeyHex)
	if err != nil {
		t.Fatalf("SharedSecret (alice view): %v", err)
	}
	s2, err := SharedSecret(bob.PrivateKeyHex, alice.PublicKeyHex)
	if err != nil {
		t.Fatalf("SharedSecret (bob view): %v", err)
	}

	if string(s1) != string(s2) {
		t.Fatalf("expected ECDH shared secret to be symmetric")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	alice := keys.GenerateKeyPair()
	bob := keys.GenerateKeyPair()
	eve := keys.GenerateKeyPair()

	token, err := EncryptFor("secret", alice.PrivateKeyHex, bob.PublicKeyHex)
	if err != nil {
		t.Fatalf("EncryptFor: %v", err)
	}

	plaintext, err := DecryptFrom(token, eve.PrivateKeyHex, alice.PublicKeyHex)
	if err == nil && plaintext == "secret" {
		t.Fatalf("expected decryption under the wrong key to fail or produce garbage")
	}
}
