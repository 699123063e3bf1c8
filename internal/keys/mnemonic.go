// Package keys implements NIP-06 key derivation: BIP-39 mnemonic
// generation/validation, BIP-32 hierarchical derivation over secp256k1 along
// the m/44'/1237'/account'/0/0 path, and NIP-19 bech32 encoding of the
// resulting keys.
package keys

import (
	"github.com/keanuklestil/ichiba/internal/kinderr"
	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size used for NewMnemonic, yielding a
// 24-word mnemonic.
const MnemonicEntropyBits = 256

// NewMnemonic generates a fresh BIP-39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", kinderr.Wrap(kinderr.Internal, "generate entropy", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", kinderr.Wrap(kinderr.Internal, "build mnemonic", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic reports whether mnemonic is a well-formed BIP-39 phrase
// (correct word count, wordlist membership, and checksum).
func ValidateMnemonic(mnemonic string) error {
	if !bip39.IsMnemonicValid(mnemonic) {
		return kinderr.New(kinderr.Validation, "invalid mnemonic")
	}
	return nil
}

// SeedFromMnemonic derives the BIP-39 seed from a mnemonic and optional
// passphrase. It does not validate the mnemonic's checksum; callers that need
// that should call ValidateMnemonic first.
func SeedFromMnemonic(mnemonic, passphrase string) []byte {
	return bip39.NewSeed(mnemonic, passphrase)
}
