package consumer

import (
	"testing"

	"github.com/keanuklestil/ichiba/internal/keys"
)

func TestResolveTargetEmptyBroadcasts(t *testing.T) {
	hex, broadcast, err := resolveTarget("")
	if err != nil {
		t.Fatalf("resolveTarget(\"\"): %v", err)
	}
	if !broadcast || hex != "" {
		t.Fatalf("expected broadcast with no hex, got hex=%q broadcast=%v", hex, broadcast)
	}
}

func TestResolveTargetNpub(t *testing.T) {
	kp := keys.GenerateKeyPair()
	npub, err := keys.EncodeNpub(kp.PublicKeyHex)
	if err != nil {
		t.Fatalf("EncodeNpub: %v", err)
	}

	hex, broadcast, err := resolveTarget(npub)
	if err != nil {
		t.Fatalf("resolveTarget(npub): %v", err)
	}
	if broadcast {
		t.Fatal("expected a targeted send, not a broadcast")
	}
	if hex != kp.PublicKeyHex {
		t.Fatalf("resolved hex = %q, want %q", hex, kp.PublicKeyHex)
	}
}

func TestResolveTargetRawHex(t *testing.T) {
	kp := keys.GenerateKeyPair()

	hex, broadcast, err := resolveTarget(kp.PublicKeyHex)
	if err != nil {
		t.Fatalf("resolveTarget(hex): %v", err)
	}
	if broadcast {
		t.Fatal("expected a targeted send, not a broadcast")
	}
	if hex != kp.PublicKeyHex {
		t.Fatalf("resolved hex = %q, want %q", hex, kp.PublicKeyHex)
	}
}

func TestResolveTargetInvalidRejected(t *testing.T) {
	cases := []string{"not-a-target", "npub1garbage", "abc123"}
	for _, c := range cases {
		if _, _, err := resolveTarget(c); err == nil {
			t.Fatalf("resolveTarget(%q): expected error", c)
		}
	}
}

func TestReserveAccountIndexNeverReturnsZeroAndNeverRepeats(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 50; i++ {
		idx := reserveAccountIndex()
		if idx == 0 {
			t.Fatal("reserveAccountIndex returned 0, which is reserved for the provider engine")
		}
		if seen[idx] {
			t.Fatalf("reserveAccountIndex returned duplicate index %d", idx)
		}
		seen[idx] = true
	}
}

func TestHasTag(t *testing.T) {
	tags := [][]string{{"encrypted"}, {"e", "abc"}}
	if !hasTag(tags, "encrypted") {
		t.Fatal("expected encrypted tag to be found")
	}
	if hasTag(tags, "missing") {
		t.Fatal("did not expect missing tag to be found")
	}
}
