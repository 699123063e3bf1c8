// Package consumer implements the consumer engine (spec §4.8, C9): identity
// bootstrap, job submission, and a reply subscription that turns NIP-90
// feedback/result events into a chat-shaped message stream.
package consumer

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/ichiba/internal/cipher"
	"github.com/keanuklestil/ichiba/internal/dvmproto"
	"github.com/keanuklestil/ichiba/internal/keys"
	"github.com/keanuklestil/ichiba/internal/kinderr"
	"github.com/keanuklestil/ichiba/internal/relaypool"
	"github.com/keanuklestil/ichiba/internal/telemetry"
	"github.com/keanuklestil/ichiba/internal/types"
	"github.com/keanuklestil/ichiba/internal/wallet"
)

const consumerRequestKind = 5050

var hexPubkeyRE = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// nextAccountIndex hands out wallet account indices starting at 1, so no
// consumer instance ever aliases account 0 (reserved for the provider
// engine's own wallet) or another consumer's account, per spec §9's
// per-identity wallet isolation requirement.
var nextAccountIndex uint64 = 0

func reserveAccountIndex() uint32 {
	return uint32(atomic.AddUint64(&nextAccountIndex, 1))
}

// Message is one entry in the chat-shaped stream SendMessage delivers:
// a system message for feedback, or an assistant message for the final
// result.
type Message struct {
	Role        string // "system" or "assistant"
	Content     string
	IsEncrypted bool
	Payment     *PaymentInfo
}

// PaymentInfo surfaces the amount/invoice carried on a result or
// payment-required feedback. The consumer engine never pays it itself -
// that's left to a higher layer, per spec §9's explicit deferral.
type PaymentInfo struct {
	AmountMillisat int64
	Bolt11         string
}

// WalletTemplate carries the Lightning node connection details shared by
// every identity the runtime creates; Mnemonic and AccountIndex are filled
// in per instance, never shared.
type WalletTemplate struct {
	Host        string
	MacaroonHex string
	TLSCertPath string
}

// Engine is one consumer identity: its own derived Nostr keypair and a
// Lightning wallet scoped to a distinct account index. Lifetime is owned by
// whatever UI collaborator constructs it.
type Engine struct {
	pool          *relaypool.Pool
	walletTmpl    WalletTemplate
	defaultRelays []string
	sink          telemetry.Sink

	mu        sync.Mutex
	mnemonic  string
	keypair   keys.KeyPair
	wallet    *wallet.Wallet
	accountNo uint32
	subs      []*relaypool.Subscription
}

// New constructs a consumer engine bound to pool, using defaultRelays when a
// call doesn't override the relay set. Call Init before using it.
func New(pool *relaypool.Pool, walletTmpl WalletTemplate, defaultRelays []string, sink telemetry.Sink) *Engine {
	return &Engine{pool: pool, walletTmpl: walletTmpl, defaultRelays: defaultRelays, sink: sink}
}

func (e *Engine) emit(action, label string, fields map[string]any) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(telemetry.Event{Category: "consumer", Action: action, Label: label, Fields: fields})
}

// reportPartialPublishFailure emits a warning-class telemetry event listing
// the relays that rejected a publish and their reasons, per spec §4.3: a
// partial failure (at least one relay accepted, but not all did) is a
// warning, never an error.
func (e *Engine) reportPartialPublishFailure(report relaypool.PublishReport) {
	if report.Succeeded >= len(report.Results) {
		return
	}
	failures := make(map[string]any, len(report.Results)-report.Succeeded)
	for _, r := range report.Results {
		if !r.Success {
			failures[r.URL] = r.Error
		}
	}
	e.emit("publish_partial_failure", report.EventID, map[string]any{"failures": failures})
}

// Init generates a fresh mnemonic, derives a Nostr identity from it, and
// asynchronously brings up a Lightning wallet scoped to a fresh account
// index. It is safe to call again later (Reinit is an alias) - doing so
// discards all prior state, including open subscriptions.
func (e *Engine) Init(ctx context.Context) error {
	e.CloseSubscriptions()
	mnemonic, err := keys.NewMnemonic()
	if err != nil {
		return err
	}
	return e.initFromMnemonic(ctx, mnemonic)
}

// Reinit discards all prior identity/wallet/subscription state and
// bootstraps a brand new identity, exactly like constructing a fresh Engine.
func (e *Engine) Reinit(ctx context.Context) error {
	e.CloseSubscriptions()
	return e.Init(ctx)
}

// RestoreFromMnemonic rebuilds this engine's identity from an existing
// mnemonic instead of generating a new one (e.g. a returning user).
func (e *Engine) RestoreFromMnemonic(ctx context.Context, mnemonic string) error {
	if err := keys.ValidateMnemonic(mnemonic); err != nil {
		return err
	}
	e.CloseSubscriptions()
	return e.initFromMnemonic(ctx, mnemonic)
}

func (e *Engine) initFromMnemonic(ctx context.Context, mnemonic string) error {
	kp, err := keys.DeriveFromMnemonic(mnemonic, "", 0)
	if err != nil {
		return err
	}

	accountNo := reserveAccountIndex()
	w := wallet.New(wallet.Config{
		Host:         e.walletTmpl.Host,
		MacaroonHex:  e.walletTmpl.MacaroonHex,
		TLSCertPath:  e.walletTmpl.TLSCertPath,
		Mnemonic:     mnemonic,
		AccountIndex: accountNo,
	})
	if err := w.Init(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	e.mnemonic = mnemonic
	e.keypair = kp
	e.wallet = w
	e.accountNo = accountNo
	e.mu.Unlock()

	e.emit("init", "identity_bootstrapped", map[string]any{"account_index": accountNo})
	log.Printf("[Consumer] identity bootstrapped, npub account index %d", accountNo)
	return nil
}

// Mnemonic returns the BIP-39 mnemonic backing this identity.
func (e *Engine) Mnemonic() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mnemonic
}

// Npub returns the bech32-encoded public key.
func (e *Engine) Npub() (string, error) {
	e.mu.Lock()
	pub := e.keypair.PublicKeyHex
	e.mu.Unlock()
	return keys.EncodeNpub(pub)
}

// Nsec returns the bech32-encoded private key.
func (e *Engine) Nsec() (string, error) {
	e.mu.Lock()
	sk := e.keypair.PrivateKeyHex
	e.mu.Unlock()
	return keys.EncodeNsec(sk)
}

// PublicKeyHex returns the raw hex public key.
func (e *Engine) PublicKeyHex() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keypair.PublicKeyHex
}

// DepositAddress returns a fresh single-use on-chain deposit address for
// this identity's wallet.
func (e *Engine) DepositAddress(ctx context.Context) (string, error) {
	w, err := e.requireWallet()
	if err != nil {
		return "", err
	}
	return w.SingleUseDepositAddress(ctx)
}

// Balance returns this identity's wallet balance.
func (e *Engine) Balance(ctx context.Context) (*wallet.Balance, error) {
	w, err := e.requireWallet()
	if err != nil {
		return nil, err
	}
	return w.Balance(ctx)
}

func (e *Engine) requireWallet() (*wallet.Wallet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wallet == nil {
		return nil, kinderr.New(kinderr.ServiceUnavailable, "consumer wallet has not been initialized")
	}
	return e.wallet, nil
}

// resolveTarget normalizes a target provider reference: a bech32 npub, a
// raw hex pubkey, or empty (broadcast, unencrypted).
func resolveTarget(target string) (hexPubkey string, broadcast bool, err error) {
	if target == "" {
		return "", true, nil
	}
	if strings.HasPrefix(target, "npub1") {
		decoded, derr := keys.Decode(target)
		if derr != nil {
			return "", false, derr
		}
		pub, ok := decoded.Value.(string)
		if !ok || decoded.Prefix != "npub" {
			return "", false, kinderr.New(kinderr.Validation, "target is not a valid npub")
		}
		return pub, false, nil
	}
	if hexPubkeyRE.MatchString(target) {
		return strings.ToLower(target), false, nil
	}
	return "", false, kinderr.New(kinderr.Validation, "target provider must be an npub or a 64-hex-char pubkey")
}

// SendMessage builds and publishes a kind-5050 job request for text,
// targeting provider (an npub, hex pubkey, or empty for an unencrypted
// broadcast), then opens a subscription for the matching feedback/result
// events. Each reply is delivered to onMessage; the subscription closes
// itself automatically once a result event arrives. The returned
// Subscription lets the caller cancel early.
func (e *Engine) SendMessage(ctx context.Context, text, provider string, relays []string, onMessage func(Message)) (*relaypool.Subscription, error) {
	if text == "" {
		return nil, kinderr.New(kinderr.Validation, "message text must not be empty")
	}

	e.mu.Lock()
	sk := e.keypair.PrivateKeyHex
	e.mu.Unlock()
	if sk == "" {
		return nil, kinderr.New(kinderr.ServiceUnavailable, "consumer identity has not been initialized")
	}

	targetHex, broadcast, err := resolveTarget(provider)
	if err != nil {
		return nil, err
	}

	req := &dvmproto.JobRequest{
		Kind:   consumerRequestKind,
		Inputs: []dvmproto.Input{{Data: text, Type: "text"}},
	}

	event, err := dvmproto.BuildJobRequestEvent(req, sk, targetHex, !broadcast)
	if err != nil {
		return nil, err
	}

	effectiveRelays := relays
	if len(effectiveRelays) == 0 {
		effectiveRelays = e.defaultRelays
	}

	report, err := e.pool.PublishEvent(ctx, event, effectiveRelays)
	if err != nil {
		return nil, err
	}
	e.reportPartialPublishFailure(report)
	e.emit("send_message", event.ID, map[string]any{"target": provider, "encrypted": !broadcast})

	resultKind, _ := dvmproto.ResultKindFor(consumerRequestKind)

	filter := nostr.Filter{
		Kinds: []int{resultKind, dvmproto.KindJobFeedback},
		Tags:  nostr.TagMap{"e": []string{event.ID}},
	}
	if !broadcast {
		filter.Authors = []string{targetHex}
	}

	var closeOnce sync.Once
	var subRef *relaypool.Subscription

	sub, err := e.pool.Subscribe(ctx, filter, effectiveRelays, func(ev types.Event) {
		e.handleReply(ev, sk, resultKind, onMessage, func() {
			closeOnce.Do(func() {
				if subRef != nil {
					subRef.Close()
				}
			})
		})
	})
	if err != nil {
		return nil, err
	}
	subRef = sub

	e.mu.Lock()
	e.subs = append(e.subs, sub)
	e.mu.Unlock()

	return sub, nil
}

func (e *Engine) handleReply(ev types.Event, mySk string, resultKind int, onMessage func(Message), closeSub func()) {
	content := ev.Content
	isEncrypted := hasTag(ev.Tags, "encrypted")
	if isEncrypted {
		plaintext, err := cipher.DecryptFrom(ev.Content, mySk, ev.PubKey)
		if err != nil {
			onMessage(Message{Role: "system", Content: "received an encrypted reply that could not be decrypted", IsEncrypted: true})
			return
		}
		content = plaintext
	}

	if ev.Kind == dvmproto.KindJobFeedback {
		event := eventFromTypes(ev)
		fb, err := dvmproto.ParseJobFeedback(event)
		if err != nil {
			return
		}
		msg := Message{Role: "system", Content: "status: " + string(fb.Status), IsEncrypted: isEncrypted}
		if fb.ExtraInfo != "" {
			msg.Content += " (" + fb.ExtraInfo + ")"
		}
		if fb.AmountMillisat > 0 {
			msg.Payment = &PaymentInfo{AmountMillisat: fb.AmountMillisat, Bolt11: fb.Bolt11}
		}
		onMessage(msg)
		return
	}

	if ev.Kind == resultKind {
		event := eventFromTypes(ev)
		result, err := dvmproto.ParseJobResult(event)
		if err != nil {
			return
		}
		msg := Message{Role: "assistant", Content: content, IsEncrypted: isEncrypted}
		if result.AmountMillisat > 0 {
			msg.Payment = &PaymentInfo{AmountMillisat: result.AmountMillisat, Bolt11: result.Bolt11}
		}
		onMessage(msg)
		closeSub()
	}
}

func hasTag(tags [][]string, name string) bool {
	for _, t := range tags {
		if len(t) > 0 && t[0] == name {
			return true
		}
	}
	return false
}

func eventFromTypes(ev types.Event) *nostr.Event {
	tags := make(nostr.Tags, len(ev.Tags))
	for i, t := range ev.Tags {
		tags[i] = nostr.Tag(t)
	}
	return &nostr.Event{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		CreatedAt: nostr.Timestamp(ev.CreatedAt),
		Kind:      ev.Kind,
		Tags:      tags,
		Content:   ev.Content,
	}
}

// CloseSubscriptions closes every subscription this engine has opened.
// Idempotent, since each underlying Subscription.Close is.
func (e *Engine) CloseSubscriptions() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

// Close releases every resource this engine owns: its subscriptions.
// The underlying wallet connection has no explicit teardown (it's a plain
// HTTP client); closing it is a no-op beyond dropping the reference.
func (e *Engine) Close() {
	e.CloseSubscriptions()
}
