// Package config tests for configuration loading.
package config

import (
	"os"
	"testing"
)

func clearConfigEnv() {
	for _, k := range []string{
		envProduction, envDefaultRelays, envLLMBaseURL, envLLMAPIKey, envLLMModel,
		envWalletHost, envWalletMacaroon, envWalletTLSCert, envTelemetrySink,
		envSettingsPath, envPresetsPath, envJobStorePath,
	} {
		os.Unsetenv(k)
	}
}

func TestConfig_ProductionMode(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		wantProd bool
	}{
		{name: "production mode enabled with true", envValue: "true", wantProd: true},
		{name: "production mode enabled with 1", envValue: "1", wantProd: true},
		{name: "production mode disabled with false", envValue: "false", wantProd: false},
		{name: "production mode disabled with empty", envValue: "", wantProd: false},
		{name: "production mode disabled with 0", envValue: "0", wantProd: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv()
			if tt.envValue != "" {
				os.Setenv(envProduction, tt.envValue)
			}
			defer clearConfigEnv()

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if cfg.Production != tt.wantProd {
				t.Errorf("Production = %v, want %v", cfg.Production, tt.wantProd)
			}
		})
	}
}

func TestConfig_DefaultValues(t *testing.T) {
	clearConfigEnv()
	defer clearConfigEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Production != false {
		t.Errorf("Production = %v, want false", cfg.Production)
	}
	if len(cfg.DefaultRelays) != 2 {
		t.Errorf("DefaultRelays length = %v, want 2", len(cfg.DefaultRelays))
	}
	if cfg.LLMBaseURL == "" {
		t.Errorf("LLMBaseURL should have a default")
	}
	if cfg.TelemetrySink != "log" {
		t.Errorf("TelemetrySink = %v, want log", cfg.TelemetrySink)
	}
	if cfg.SettingsPath == "" {
		t.Errorf("SettingsPath should have a default")
	}
}

func TestConfig_OverridesFromEnv(t *testing.T) {
	clearConfigEnv()
	os.Setenv(envDefaultRelays, "wss://a.example,wss://b.example")
	os.Setenv(envLLMModel, "custom-model")
	os.Setenv(envTelemetrySink, "channel")
	defer clearConfigEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DefaultRelays) != 2 || cfg.DefaultRelays[0] != "wss://a.example" {
		t.Errorf("DefaultRelays = %v, want overridden", cfg.DefaultRelays)
	}
	if cfg.LLMModel != "custom-model" {
		t.Errorf("LLMModel = %v, want custom-model", cfg.LLMModel)
	}
	if cfg.TelemetrySink != "channel" {
		t.Errorf("TelemetrySink = %v, want channel", cfg.TelemetrySink)
	}
}
