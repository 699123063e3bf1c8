package keys

import (
	"github.com/nbd-wtf/go-nostr/nip19"

	"github.com/keanuklestil/ichiba/internal/kinderr"
)

// EncodeNpub encodes a hex public key as an npub bech32 string.
func EncodeNpub(pubkeyHex string) (string, error) {
	npub, err := nip19.EncodePublicKey(pubkeyHex)
	if err != nil {
		return "", kinderr.Wrap(kinderr.Validation, "encode npub", err)
	}
	return npub, nil
}

// EncodeNsec encodes a hex private key as an nsec bech32 string.
func EncodeNsec(privkeyHex string) (string, error) {
	nsec, err := nip19.EncodePrivateKey(privkeyHex)
	if err != nil {
		return "", kinderr.Wrap(kinderr.Validation, "encode nsec", err)
	}
	return nsec, nil
}

// EncodeNote encodes a hex event ID as a note bech32 string.
func EncodeNote(eventIDHex string) (string, error) {
	note, err := nip19.EncodeNote(eventIDHex)
	if err != nil {
		return "", kinderr.Wrap(kinderr.Validation, "encode note", err)
	}
	return note, nil
}

// EncodeNprofile encodes a pubkey and its relay hints as an nprofile string.
func EncodeNprofile(pubkeyHex string, relays []string) (string, error) {
	nprofile, err := nip19.EncodeProfile(pubkeyHex, relays)
	if err != nil {
		return "", kinderr.Wrap(kinderr.Validation, "encode nprofile", err)
	}
	return nprofile, nil
}

// EncodeNevent encodes an event ID, its relay hints, and its author as an
// nevent string.
func EncodeNevent(eventIDHex string, relays []string, authorHex string) (string, error) {
	nevent, err := nip19.EncodeEvent(eventIDHex, relays, authorHex)
	if err != nil {
		return "", kinderr.Wrap(kinderr.Validation, "encode nevent", err)
	}
	return nevent, nil
}

// Decoded is the normalized result of decoding any NIP-19 bech32 entity.
type Decoded struct {
	Prefix string
	Value  any
}

// Decode decodes any NIP-19 bech32 string (npub/nsec/note/nprofile/nevent/
// naddr) into its prefix and typed value.
func Decode(bech32Str string) (Decoded, error) {
	prefix, value, err := nip19.Decode(bech32Str)
	if err != nil {
		return Decoded{}, kinderr.Wrap(kinderr.Validation, "decode bech32 entity", err)
	}
	return Decoded{Prefix: prefix, Value: value}, nil
}
