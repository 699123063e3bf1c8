// Package settings implements the DVM's "effective configuration" snapshot
// (spec §3/§4.10): persisted user overrides merged with defaults on every
// read, so a change to relays, pricing, or supported kinds takes effect on
// the next job without a process restart.
//
// This is distinct from internal/config, which holds process-level
// configuration (LLM/wallet endpoints) loaded once at startup.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/ichiba/internal/kinderr"
)

// TextJobDefaults are the defaults applied to a text-generation job when the
// request doesn't override a param (spec §3's text_job_defaults).
type TextJobDefaults struct {
	Model             string  `json:"model"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	TopK              int     `json:"top_k"`
	TopP              float64 `json:"top_p"`
	FrequencyPenalty  float64 `json:"frequency_penalty"`
	MinPriceSats      int64   `json:"min_price_sats"`
	PricePer1kTokens  float64 `json:"price_per_1k_tokens"`
}

// Effective is the merged DVM configuration a component should act on. It is
// produced fresh by Read, never cached beyond the scope of one call.
type Effective struct {
	Active            bool
	DVMPrivateKeyHex  string
	DVMPublicKeyHex   string // always recomputed from DVMPrivateKeyHex, never trusted from disk
	Relays            []string
	SupportedKinds    []int
	TextJobDefaults   TextJobDefaults
}

// overrides is the on-disk shape: exactly the fields spec §3 names as
// persistable. DVMPublicKeyHex is accepted on read purely as a sanity check
// against the derived key (spec §4.10) and is never itself authoritative.
type overrides struct {
	Active           *bool            `json:"active,omitempty"`
	DVMPrivateKeyHex *string          `json:"dvm_private_key_hex,omitempty"`
	DVMPublicKeyHex  *string          `json:"dvm_public_key_hex,omitempty"`
	Relays           []string         `json:"relays,omitempty"`
	SupportedKinds   []int            `json:"supported_kinds,omitempty"`
	TextJobDefaults  *TextJobDefaults `json:"text_job_defaults,omitempty"`
}

func defaultEffective() Effective {
	return Effective{
		Active:         false,
		Relays:         []string{"wss://relay.damus.io", "wss://nos.lol"},
		SupportedKinds: []int{5050},
		TextJobDefaults: TextJobDefaults{
			Model:            "llama3",
			MaxTokens:        512,
			Temperature:      0.7,
			TopK:             40,
			TopP:             0.9,
			FrequencyPenalty: 0,
			MinPriceSats:     10,
			PricePer1kTokens: 2,
		},
	}
}

// knownOverrideKeys lists every top-level JSON key the overrides type owns, so
// Store can tell a "known" key apart from an "unknown" one that must be
// preserved round-trip per spec §6.
var knownOverrideKeys = map[string]bool{
	"active":              true,
	"dvm_private_key_hex": true,
	"dvm_public_key_hex":  true,
	"relays":              true,
	"supported_kinds":     true,
	"text_job_defaults":   true,
}

// Store is the DVM effective-configuration snapshot, backed by a JSON file.
// Reads merge the in-memory overrides with defaults; writes go through
// Update, which persists the merged document (known fields plus any
// unrecognized top-level keys, preserved verbatim).
type Store struct {
	mu        sync.RWMutex
	path      string
	overrides overrides
	unknown   map[string]json.RawMessage
}

// Open loads path if it exists, or starts from an empty override set
// otherwise (the file is created on the first Update, not on Open).
func Open(path string) (*Store, error) {
	s := &Store{path: path, unknown: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, kinderr.Wrap(kinderr.Config, "read settings file", err)
	}

	if err := s.decode(data); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) decode(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return kinderr.Wrap(kinderr.Config, "parse settings JSON", err)
	}

	unknown := map[string]json.RawMessage{}
	for key, value := range raw {
		if !knownOverrideKeys[key] {
			unknown[key] = value
		}
	}

	var ov overrides
	if err := json.Unmarshal(data, &ov); err != nil {
		return kinderr.Wrap(kinderr.Config, "parse settings overrides", err)
	}

	s.overrides = ov
	s.unknown = unknown
	return nil
}

// Read produces the effective configuration: defaults merged with the
// current overrides, with the DVM public key always recomputed from the
// private key rather than trusted from disk.
func (s *Store) Read() (Effective, error) {
	s.mu.RLock()
	ov := s.overrides
	s.mu.RUnlock()

	eff := defaultEffective()

	if ov.Active != nil {
		eff.Active = *ov.Active
	}
	if ov.DVMPrivateKeyHex != nil {
		eff.DVMPrivateKeyHex = *ov.DVMPrivateKeyHex
	}
	if len(ov.Relays) > 0 {
		eff.Relays = ov.Relays
	}
	if len(ov.SupportedKinds) > 0 {
		eff.SupportedKinds = ov.SupportedKinds
	}
	if ov.TextJobDefaults != nil {
		eff.TextJobDefaults = *ov.TextJobDefaults
	}

	if eff.DVMPrivateKeyHex != "" {
		pub, err := nostr.GetPublicKey(eff.DVMPrivateKeyHex)
		if err != nil {
			return Effective{}, kinderr.Wrap(kinderr.Config, "derive DVM public key from configured private key", err)
		}
		eff.DVMPublicKeyHex = pub

		if ov.DVMPublicKeyHex != nil && *ov.DVMPublicKeyHex != "" && *ov.DVMPublicKeyHex != pub {
			panic(fmt.Sprintf("settings: persisted dvm_public_key_hex %q does not match key derived from dvm_private_key_hex (%q)", *ov.DVMPublicKeyHex, pub))
		}
	}

	return eff, nil
}

// Update applies fn to a copy of the current overrides, persists the
// result (known fields plus every preserved unknown key), and swaps it in
// atomically. fn should set fields via pointers/slices it owns; a field fn
// does not touch keeps its prior override, since fn starts from a copy of
// the current overrides.
func (s *Store) Update(fn func(*overrides)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.overrides
	fn(&next)

	data, err := mergeForWrite(next, s.unknown)
	if err != nil {
		return err
	}

	if s.path != "" {
		if err := os.WriteFile(s.path, data, 0o600); err != nil {
			return kinderr.Wrap(kinderr.Config, "write settings file", err)
		}
	}

	s.overrides = next
	return nil
}

func mergeForWrite(ov overrides, unknown map[string]json.RawMessage) ([]byte, error) {
	knownJSON, err := json.Marshal(ov)
	if err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "marshal settings overrides", err)
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(knownJSON, &merged); err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "re-decode settings overrides", err)
	}
	for k, v := range unknown {
		merged[k] = v
	}

	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "marshal merged settings document", err)
	}
	return out, nil
}

// process-wide singleton, per spec §9: explicit construction plus a Get()
// that fails when uninitialized, rather than implicit lazy init.
var (
	singletonMu sync.RWMutex
	singleton   *Store
)

// Init opens path and installs the result as the process-wide settings
// store. Call once at startup, before any component calls Get.
func Init(path string) (*Store, error) {
	store, err := Open(path)
	if err != nil {
		return nil, err
	}
	singletonMu.Lock()
	singleton = store
	singletonMu.Unlock()
	return store, nil
}

// Get returns the process-wide settings store, or a ServiceUnavailable
// error if Init hasn't completed yet - surfacing ordering bugs instead of
// silently lazy-initializing.
func Get() (*Store, error) {
	singletonMu.RLock()
	defer singletonMu.RUnlock()
	if singleton == nil {
		return nil, kinderr.New(kinderr.ServiceUnavailable, "settings store accessed before Init")
	}
	return singleton, nil
}
