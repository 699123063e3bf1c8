// Package runtime composes every other component into one service graph
// (spec §4.9, C10) and exposes it through a process-wide accessor.
//
// Initialization is asynchronous and staged: build the full graph; on
// failure, fall back to a minimal graph of telemetry plus whatever else
// constructs without an async dial; on further failure, fall back to a
// telemetry-only graph; on total failure, an empty graph where every lookup
// fails. A missing service is never a nil-pointer panic waiting to happen -
// every accessor returns a ServiceUnavailable error instead.
package runtime

import (
	"context"
	"log"
	"sync"

	"github.com/keanuklestil/ichiba/internal/config"
	"github.com/keanuklestil/ichiba/internal/consumer"
	"github.com/keanuklestil/ichiba/internal/jobstore"
	"github.com/keanuklestil/ichiba/internal/kinderr"
	"github.com/keanuklestil/ichiba/internal/llm"
	"github.com/keanuklestil/ichiba/internal/provider"
	"github.com/keanuklestil/ichiba/internal/relaypool"
	"github.com/keanuklestil/ichiba/internal/settings"
	"github.com/keanuklestil/ichiba/internal/telemetry"
	"github.com/keanuklestil/ichiba/internal/wallet"
)

// Tier identifies which fallback level a Runtime was built at.
type Tier int

const (
	TierFull Tier = iota
	TierMinimal
	TierEmergency
	TierEmpty
)

func (t Tier) String() string {
	switch t {
	case TierFull:
		return "full"
	case TierMinimal:
		return "minimal"
	case TierEmergency:
		return "emergency"
	default:
		return "empty"
	}
}

// noopSink discards every event; it backstops a Runtime built at TierEmpty,
// which carries no real telemetry sink.
type noopSink struct{}

func (noopSink) Emit(telemetry.Event) {}

// Runtime is the live service graph for one process. Every field is a
// shared, non-owning handle except Provider, which this package constructs
// but does not start - the caller decides when to call Provider.Start.
type Runtime struct {
	tier Tier

	pool     *relaypool.Pool
	llmP     llm.Provider
	wallet   *wallet.Wallet
	store    *jobstore.Store
	settings *settings.Store
	sink     telemetry.Sink
	provider *provider.Engine

	defaultRelays []string
	walletTmpl    consumer.WalletTemplate
}

// Tier reports which fallback level this Runtime was built at.
func (r *Runtime) Tier() Tier { return r.tier }

func unavailable(service string) error {
	return kinderr.New(kinderr.ServiceUnavailable, service+" is unavailable in the current runtime service graph")
}

// Pool returns the shared relay pool, or ServiceUnavailable if this
// Runtime's graph doesn't include one.
func (r *Runtime) Pool() (*relaypool.Pool, error) {
	if r.pool == nil {
		return nil, unavailable("relay pool")
	}
	return r.pool, nil
}

// LLM returns the shared completion provider, or ServiceUnavailable.
func (r *Runtime) LLM() (llm.Provider, error) {
	if r.llmP == nil {
		return nil, unavailable("LLM provider")
	}
	return r.llmP, nil
}

// Wallet returns the provider engine's Lightning wallet, or
// ServiceUnavailable. Consumer identities never use this handle; they get
// their own wallet via NewConsumer.
func (r *Runtime) Wallet() (*wallet.Wallet, error) {
	if r.wallet == nil {
		return nil, unavailable("provider wallet")
	}
	return r.wallet, nil
}

// Store returns the shared job store, or ServiceUnavailable.
func (r *Runtime) Store() (*jobstore.Store, error) {
	if r.store == nil {
		return nil, unavailable("job store")
	}
	return r.store, nil
}

// Settings returns the shared settings store, or ServiceUnavailable.
func (r *Runtime) Settings() (*settings.Store, error) {
	if r.settings == nil {
		return nil, unavailable("settings store")
	}
	return r.settings, nil
}

// Provider returns the provider engine, or ServiceUnavailable.
func (r *Runtime) Provider() (*provider.Engine, error) {
	if r.provider == nil {
		return nil, unavailable("provider engine")
	}
	return r.provider, nil
}

// Sink always returns a usable telemetry sink, defaulting to a silent
// no-op rather than forcing every caller to nil-check it.
func (r *Runtime) Sink() telemetry.Sink {
	if r.sink == nil {
		return noopSink{}
	}
	return r.sink
}

// NewConsumer builds a fresh consumer engine bound to this runtime's relay
// pool and wallet connection template. Each call's engine gets its own
// account index (see internal/consumer), so concurrently held consumer
// engines never share wallet state with each other or with the provider's
// wallet.
func (r *Runtime) NewConsumer() (*consumer.Engine, error) {
	pool, err := r.Pool()
	if err != nil {
		return nil, err
	}
	return consumer.New(pool, r.walletTmpl, r.defaultRelays, r.Sink()), nil
}

// process-wide singleton, per spec §9: an explicit async Bootstrap plus a
// Get that fails rather than lazily constructing anything.
var (
	singletonMu sync.RWMutex
	singleton   *Runtime
	ready       bool
)

// Get returns the process-wide runtime, or ServiceUnavailable if Bootstrap
// hasn't finished yet.
func Get() (*Runtime, error) {
	singletonMu.RLock()
	defer singletonMu.RUnlock()
	if !ready {
		return nil, kinderr.New(kinderr.ServiceUnavailable, "runtime accessed before initialization completed")
	}
	return singleton, nil
}

func publish(rt *Runtime) {
	singletonMu.Lock()
	singleton = rt
	ready = true
	singletonMu.Unlock()
}

// Bootstrap builds the service graph and installs it as the process-wide
// runtime, following the four-tier fallback ladder. It never returns nil
// and never blocks past the slowest tier it actually has to attempt.
func Bootstrap(ctx context.Context, cfg config.Config) *Runtime {
	if rt, err := safeBuild(func() (*Runtime, error) { return buildFull(ctx, cfg) }); err == nil {
		log.Printf("[Runtime] full service graph ready")
		publish(rt)
		return rt
	} else {
		log.Printf("[Runtime] full service graph failed, falling back to minimal: %v", err)
	}

	if rt, err := safeBuild(func() (*Runtime, error) { return buildMinimal(cfg) }); err == nil {
		sink := rt.Sink()
		sink.Emit(telemetry.Event{Category: "runtime", Action: "degraded", Label: "minimal", Fields: map[string]any{"tier": "minimal"}})
		log.Printf("[Runtime] CRITICAL: running on minimal service graph")
		publish(rt)
		return rt
	} else {
		log.Printf("[Runtime] minimal service graph failed, falling back to emergency: %v", err)
	}

	if rt, err := safeBuild(func() (*Runtime, error) { return buildEmergency(), nil }); err == nil {
		log.Printf("[Runtime] CRITICAL: running on emergency (telemetry-only) service graph")
		publish(rt)
		return rt
	} else {
		log.Printf("[Runtime] emergency service graph failed, falling back to empty: %v", err)
	}

	rt := &Runtime{tier: TierEmpty}
	log.Printf("[Runtime] CRITICAL: running on empty service graph, every lookup will fail")
	publish(rt)
	return rt
}

// BootstrapAsync launches Bootstrap in the background and returns a channel
// that receives the resulting Runtime once ready. UI collaborators that must
// await initialization read from this channel instead of polling Get.
func BootstrapAsync(ctx context.Context, cfg config.Config) <-chan *Runtime {
	out := make(chan *Runtime, 1)
	go func() {
		out <- Bootstrap(ctx, cfg)
	}()
	return out
}

func safeBuild(fn func() (*Runtime, error)) (rt *Runtime, err error) {
	defer func() {
		if p := recover(); p != nil {
			rt = nil
			err = kinderr.New(kinderr.Internal, "service graph construction panicked")
		}
	}()
	return fn()
}

func walletTemplateFrom(cfg config.Config) consumer.WalletTemplate {
	return consumer.WalletTemplate{
		Host:        cfg.WalletHost,
		MacaroonHex: cfg.WalletMacaroonHex,
		TLSCertPath: cfg.WalletTLSCertPath,
	}
}

// buildFull constructs every component, including the provider's own
// Lightning wallet - the one step that is asynchronous and fallible, per
// spec §4.5/§4.9. Any failure here aborts the whole attempt.
func buildFull(ctx context.Context, cfg config.Config) (*Runtime, error) {
	sink := telemetry.NewLogSink("[Telemetry]")

	settingsStore, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}

	pool := relaypool.NewPool(cfg.DefaultRelays)

	llmProvider, err := llm.NewOpenAIProvider(cfg.LLMAPIKey)
	if err != nil {
		return nil, err
	}
	llmProvider.SetModel(cfg.LLMModel)

	store, err := jobstore.Open(cfg.JobStorePath)
	if err != nil {
		return nil, err
	}

	w := wallet.New(wallet.Config{
		Host:        cfg.WalletHost,
		MacaroonHex: cfg.WalletMacaroonHex,
		TLSCertPath: cfg.WalletTLSCertPath,
	})
	if err := w.Init(ctx); err != nil {
		return nil, err
	}

	providerEngine := &provider.Engine{
		Pool:     pool,
		LLM:      llmProvider,
		Wallet:   w,
		Store:    store,
		Settings: settingsStore,
		Sink:     sink,
	}

	return &Runtime{
		tier:          TierFull,
		pool:          pool,
		llmP:          llmProvider,
		wallet:        w,
		store:         store,
		settings:      settingsStore,
		sink:          sink,
		provider:      providerEngine,
		defaultRelays: cfg.DefaultRelays,
		walletTmpl:    walletTemplateFrom(cfg),
	}, nil
}

// buildMinimal constructs telemetry plus every service that initializes
// synchronously and without a network dial: the relay pool (connects in the
// background, never errors at construction), the settings store, the job
// store, and the LLM provider (construction only validates its API key).
// The provider wallet and engine are deliberately omitted, since bringing
// up a wallet is exactly the asynchronous, fallible step that may have
// failed the full graph. A missing LLM provider (e.g. no API key
// configured) degrades that one lookup to ServiceUnavailable rather than
// failing the whole minimal graph, since a DVM operator who hasn't
// configured inference yet should still get relays/settings/history.
func buildMinimal(cfg config.Config) (*Runtime, error) {
	sink := telemetry.NewLogSink("[Telemetry]")

	settingsStore, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}

	store, err := jobstore.Open(cfg.JobStorePath)
	if err != nil {
		return nil, err
	}

	pool := relaypool.NewPool(cfg.DefaultRelays)

	var llmProvider llm.Provider
	if p, err := llm.NewOpenAIProvider(cfg.LLMAPIKey); err == nil {
		p.SetModel(cfg.LLMModel)
		llmProvider = p
	} else {
		log.Printf("[Runtime] minimal graph: LLM provider unavailable: %v", err)
	}

	return &Runtime{
		tier:          TierMinimal,
		pool:          pool,
		llmP:          llmProvider,
		store:         store,
		settings:      settingsStore,
		sink:          sink,
		defaultRelays: cfg.DefaultRelays,
		walletTmpl:    walletTemplateFrom(cfg),
	}, nil
}

// buildEmergency constructs telemetry only. It cannot fail: log.Printf-based
// telemetry requires no I/O setup.
func buildEmergency() *Runtime {
	return &Runtime{tier: TierEmergency, sink: telemetry.NewLogSink("[Telemetry]")}
}
