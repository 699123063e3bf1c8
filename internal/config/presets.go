package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/keanuklestil/ichiba/internal/kinderr"
)

// defaultRelayPresets mirrors the teacher's hardcoded RelayPresets map (all
// free public relays), used whenever no presets YAML file is configured, the
// file does not exist, or it holds no presets. Other read errors are returned.
var defaultRelayPresets = map[string][]string{
	"popular": {"wss://relay.damus.io", "wss://nos.lol", "wss://relay.nostr.band"},
	"fast":    {"wss://relay.primal.net", "wss://nostr.mom"},
	"dvms":    {"wss://relay.damus.io", "wss://relay.nostr.band"},
	"privacy": {"wss://nostr.oxtr.dev"},
}

// RelayPresets is a named group of relay URLs, e.g. "popular" -> a handful
// of well-known public relays. Loaded from an optional YAML file.
type RelayPresets map[string][]string

// LoadRelayPresets loads named relay-group presets from the YAML file at
// path. An empty path, or a missing file, yields the built-in defaults
// rather than an error - presets are a convenience, not a requirement.
func LoadRelayPresets(path string) (RelayPresets, error) {
	if path == "" {
		return cloneDefaultPresets(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cloneDefaultPresets(), nil
		}
		return nil, kinderr.Wrap(kinderr.Config, "read relay presets file", err)
	}

	var presets RelayPresets
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, kinderr.Wrap(kinderr.Config, "parse relay presets YAML", err)
	}
	if len(presets) == 0 {
		return cloneDefaultPresets(), nil
	}
	return presets, nil
}

func cloneDefaultPresets() RelayPresets {
	out := make(RelayPresets, len(defaultRelayPresets))
	for k, v := range defaultRelayPresets {
		relays := make([]string, len(v))
		copy(relays, v)
		out[k] = relays
	}
	return out
}

// Resolve returns the relay URLs for a named preset, or nil if unknown.
func (p RelayPresets) Resolve(name string) []string {
	return p[name]
}
