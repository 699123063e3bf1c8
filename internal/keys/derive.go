package keys

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil/hdkeychain"
	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/ichiba/internal/kinderr"
)

// nip06Purpose and nip06CoinType are the fixed path components from NIP-06:
// m/44'/1237'/account'/0/0.
const (
	nip06Purpose  = 44
	nip06CoinType = 1237
)

// KeyPair is a derived Nostr identity: hex-encoded secp256k1 private key and
// its x-only public key.
type KeyPair struct {
	PrivateKeyHex string
	PublicKeyHex  string
}

// DeriveAccount derives the Nostr keypair for the given account index from a
// BIP-39 seed, following NIP-06's m/44'/1237'/account'/0/0 path.
func DeriveAccount(seed []byte, account uint32) (KeyPair, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return KeyPair{}, kinderr.Wrap(kinderr.Internal, "derive master key", err)
	}

	path := []uint32{
		hdkeychain.HardenedKeyStart + nip06Purpose,
		hdkeychain.HardenedKeyStart + nip06CoinType,
		hdkeychain.HardenedKeyStart + account,
		0, // change
		0, // address_index
	}

	node := master
	for _, index := range path {
		node, err = node.Derive(index)
		if err != nil {
			return KeyPair{}, kinderr.Wrap(kinderr.Internal, "derive child key", err)
		}
	}

	privKey, err := node.ECPrivKey()
	if err != nil {
		return KeyPair{}, kinderr.Wrap(kinderr.Internal, "extract private key", err)
	}

	skHex := hex.EncodeToString(privKey.Serialize())
	pubHex, err := nostr.GetPublicKey(skHex)
	if err != nil {
		return KeyPair{}, kinderr.Wrap(kinderr.Internal, "derive public key", err)
	}

	return KeyPair{PrivateKeyHex: skHex, PublicKeyHex: pubHex}, nil
}

// DeriveFromMnemonic is a convenience wrapper combining SeedFromMnemonic and
// DeriveAccount.
func DeriveFromMnemonic(mnemonic, passphrase string, account uint32) (KeyPair, error) {
	seed := SeedFromMnemonic(mnemonic, passphrase)
	return DeriveAccount(seed, account)
}

// GenerateKeyPair creates a random Nostr keypair without going through
// mnemonic derivation, for callers that don't need a recoverable identity.
func GenerateKeyPair() KeyPair {
	sk := nostr.GeneratePrivateKey()
	pub, _ := nostr.GetPublicKey(sk)
	return KeyPair{PrivateKeyHex: sk, PublicKeyHex: pub}
}
