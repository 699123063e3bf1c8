// Package cipher implements NIP-04 encrypted direct messages: an ECDH shared
// secret between sender and recipient, then AES-256-CBC with a random IV.
package cipher

import (
	"github.com/nbd-wtf/go-nostr/nip04"

	"github.com/keanuklestil/ichiba/internal/kinderr"
)

// SharedSecret computes the ECDH shared secret between a private key and a
// counterparty's public key, the X coordinate of privkey*pubkey on
// secp256k1.
func SharedSecret(privkeyHex, counterpartyPubkeyHex string) ([]byte, error) {
	secret, err := nip04.ComputeSharedSecret(counterpartyPubkeyHex, privkeyHex)
	if err != nil {
		return nil, kinderr.Wrap(kinderr.Cipher, "compute shared secret", err)
	}
	return secret, nil
}

// Encrypt encrypts plaintext under the given shared secret, returning the
// NIP-04 token format: base64(ciphertext)+"?iv="+base64(iv).
func Encrypt(plaintext string, sharedSecret []byte) (string, error) {
	token, err := nip04.Encrypt(plaintext, sharedSecret)
	if err != nil {
		return "", kinderr.Wrap(kinderr.Cipher, "encrypt content", err)
	}
	return token, nil
}

// Decrypt decrypts a NIP-04 token under the given shared secret.
func Decrypt(token string, sharedSecret []byte) (string, error) {
	plaintext, err := nip04.Decrypt(token, sharedSecret)
	if err != nil {
		return "", kinderr.Wrap(kinderr.Cipher, "decrypt content", err)
	}
	return plaintext, nil
}

// EncryptFor computes the shared secret between privkeyHex and
// recipientPubkeyHex and encrypts plaintext in one call.
func EncryptFor(plaintext, privkeyHex, recipientPubkeyHex string) (string, error) {
	secret, err := SharedSecret(privkeyHex, recipientPubkeyHex)
	if err != nil {
		return "", err
	}
	return Encrypt(plaintext, secret)
}

// DecryptFrom computes the shared secret between privkeyHex and
// senderPubkeyHex and decrypts token in one call.
func DecryptFrom(token, privkeyHex, senderPubkeyHex string) (string, error) {
	secret, err := SharedSecret(privkeyHex, senderPubkeyHex)
	if err != nil {
		return "", err
	}
	return Decrypt(token, secret)
}
