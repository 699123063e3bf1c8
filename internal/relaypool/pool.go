// Package relaypool manages connections to a set of Nostr relays: connect,
// publish, subscribe, and NIP-11 info lookup, with partial-success publish
// semantics and health monitoring.
package relaypool

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip11"

	"github.com/keanuklestil/ichiba/internal/kinderr"
	"github.com/keanuklestil/ichiba/internal/types"
)

// StatusChangeCallback is invoked when a relay's connection state changes.
type StatusChangeCallback func(url string, connected bool, errMsg string)

// RelayInfoCallback is invoked when NIP-11 info is fetched for a relay.
type RelayInfoCallback func(url string, info *types.RelayInfo)

// relayConn tracks one relay's connection state within the pool.
type relayConn struct {
	URL           string
	Relay         *nostr.Relay
	Connected     bool
	Error         string
	AddedAt       time.Time
	Info          *types.RelayInfo
	SupportedNIPs []int
}

// Pool manages connections to multiple Nostr relays.
type Pool struct {
	relays         map[string]*relayConn
	mu             sync.RWMutex
	pool           *nostr.SimplePool
	monitor        *Monitor
	infoCache      *RelayInfoCache
	ctx            context.Context
	cancel         context.CancelFunc
	onStatusChange StatusChangeCallback
	onRelayInfo    RelayInfoCallback
}

// NewPool creates a relay pool seeded with defaultRelays and starts its
// background health monitor.
func NewPool(defaultRelays []string) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		relays:    make(map[string]*relayConn),
		pool:      nostr.NewSimplePool(ctx),
		infoCache: NewRelayInfoCache(DefaultCacheTTL),
		ctx:       ctx,
		cancel:    cancel,
	}
	p.monitor = NewMonitor(p)

	for _, url := range defaultRelays {
		p.Add(url)
	}

	go p.monitor.Start(ctx)

	return p
}

// Add adds a relay to the pool and connects to it in the background.
func (p *Pool) Add(url string) error {
	p.mu.Lock()
	if _, exists := p.relays[url]; exists {
		p.mu.Unlock()
		return nil
	}
	p.relays[url] = &relayConn{URL: url, AddedAt: time.Now()}
	p.mu.Unlock()

	go p.connect(url)
	return nil
}

// SetOnStatusChange sets the callback invoked when a relay's connection
// state changes.
func (p *Pool) SetOnStatusChange(cb StatusChangeCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStatusChange = cb
}

// SetOnRelayInfo sets the callback invoked when NIP-11 info is fetched.
func (p *Pool) SetOnRelayInfo(cb RelayInfoCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRelayInfo = cb
}

func (p *Pool) notifyStatusChange(url string, connected bool, errMsg string) {
	p.mu.RLock()
	cb := p.onStatusChange
	p.mu.RUnlock()
	if cb != nil {
		cb(url, connected, errMsg)
	}
}

func (p *Pool) notifyRelayInfo(url string, info *types.RelayInfo) {
	p.mu.RLock()
	cb := p.onRelayInfo
	p.mu.RUnlock()
	if cb != nil {
		cb(url, info)
	}
}

func (p *Pool) connect(url string) {
	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	relay, err := nostr.RelayConnect(ctx, url)

	p.mu.Lock()
	conn, exists := p.relays[url]
	if !exists {
		p.mu.Unlock()
		return
	}
	if err != nil {
		conn.Connected = false
		conn.Error = err.Error()
		p.mu.Unlock()
		log.Printf("[RelayPool] connect to %s failed: %v", url, err)
		p.notifyStatusChange(url, false, err.Error())
		return
	}
	conn.Relay = relay
	conn.Connected = true
	conn.Error = ""
	p.mu.Unlock()

	log.Printf("[RelayPool] connected to %s", url)
	p.notifyStatusChange(url, true, "")

	go p.fetchRelayInfo(url)
}

func (p *Pool) fetchRelayInfo(url string) {
	ctx, cancel := context.WithTimeout(p.ctx, 7*time.Second)
	defer cancel()

	info, err := nip11.Fetch(ctx, url)
	if err != nil {
		log.Printf("[RelayPool] NIP-11 fetch for %s failed: %v", url, err)
		return
	}

	relayInfo := convertNIP11Info(&info)
	p.infoCache.Set(url, relayInfo)

	p.mu.Lock()
	if conn, exists := p.relays[url]; exists {
		conn.Info = relayInfo
		conn.SupportedNIPs = info.SupportedNIPs
	}
	p.mu.Unlock()

	p.notifyRelayInfo(url, relayInfo)
}

func convertNIP11Info(info *nip11.RelayInformationDocument) *types.RelayInfo {
	relayInfo := &types.RelayInfo{
		Name:          info.Name,
		Description:   info.Description,
		PubKey:        info.PubKey,
		Contact:       info.Contact,
		SupportedNIPs: info.SupportedNIPs,
		Software:      info.Software,
		Version:       info.Version,
		Icon:          info.Icon,
		PaymentsURL:   info.PaymentsURL,
	}

	if info.Limitation != nil {
		relayInfo.Limitation = &types.RelayLimitation{
			MaxMessageLength: info.Limitation.MaxMessageLength,
			MaxSubscriptions: info.Limitation.MaxSubscriptions,
			MaxLimit:         info.Limitation.MaxLimit,
			MaxEventTags:     info.Limitation.MaxEventTags,
			MaxContentLength: info.Limitation.MaxContentLength,
			MinPOWDifficulty: info.Limitation.MinPowDifficulty,
			AuthRequired:     info.Limitation.AuthRequired,
			PaymentRequired:  info.Limitation.PaymentRequired,
			RestrictedWrites: info.Limitation.RestrictedWrites,
		}
	}

	if info.Fees != nil {
		relayInfo.Fees = &types.RelayFees{}
		for _, a := range info.Fees.Admission {
			relayInfo.Fees.Admission = append(relayInfo.Fees.Admission, types.RelayFeeEntry{Amount: a.Amount, Unit: a.Unit})
		}
		for _, s := range info.Fees.Subscription {
			relayInfo.Fees.Subscription = append(relayInfo.Fees.Subscription, types.RelayFeeEntry{Amount: s.Amount, Unit: s.Unit, Period: s.Period})
		}
		for _, pub := range info.Fees.Publication {
			relayInfo.Fees.Publication = append(relayInfo.Fees.Publication, types.RelayFeeEntry{Amount: pub.Amount, Unit: pub.Unit, Kinds: pub.Kinds})
		}
	}

	return relayInfo
}

// Remove disconnects and removes a relay from the pool.
func (p *Pool) Remove(url string) {
	p.mu.Lock()
	conn, exists := p.relays[url]
	if !exists {
		p.mu.Unlock()
		return
	}
	wasConnected := conn.Connected
	if conn.Relay != nil {
		conn.Relay.Close()
	}
	delete(p.relays, url)
	p.mu.Unlock()

	log.Printf("[RelayPool] removed %s", url)
	if wasConnected {
		p.notifyStatusChange(url, false, "removed")
	}
}

// List returns the status of every relay in the pool.
func (p *Pool) List() []types.RelayStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := p.monitor.GetStats()
	list := make([]types.RelayStatus, 0, len(p.relays))
	for url, conn := range p.relays {
		status := types.RelayStatus{
			URL:           url,
			Connected:     conn.Connected,
			Error:         conn.Error,
			SupportedNIPs: conn.SupportedNIPs,
			RelayInfo:     conn.Info,
		}
		if s, ok := stats[url]; ok {
			status.Latency = s.Latency
			status.EventsPS = s.EventsPerSec
		}
		list = append(list, status)
	}
	return list
}

// Stats returns rolling statistics for all relays.
func (p *Pool) Stats() map[string]types.RelayStats {
	return p.monitor.GetStats()
}

// RelayHealth returns a health snapshot for one relay, or nil if unknown.
func (p *Pool) RelayHealth(url string) *types.RelayHealth {
	return p.monitor.GetRelayHealth(url)
}

// Count returns the number of relays in the pool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.relays)
}

// GetConnected returns all currently connected relay URLs.
func (p *Pool) GetConnected() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	urls := make([]string, 0, len(p.relays))
	for url, conn := range p.relays {
		if conn.Connected {
			urls = append(urls, url)
		}
	}
	return urls
}

func (p *Pool) snapshotURLs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	urls := make([]string, 0, len(p.relays))
	for url := range p.relays {
		urls = append(urls, url)
	}
	return urls
}

func (p *Pool) setConnected(url string, connected bool, errMsg string) {
	p.mu.Lock()
	conn, exists := p.relays[url]
	if exists {
		conn.Connected = connected
		conn.Error = errMsg
	}
	p.mu.Unlock()
}

func (p *Pool) isConnected(url string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if conn, exists := p.relays[url]; exists {
		return conn.Connected
	}
	return false
}

// effectiveRelays resolves the relay set a call should use: the explicit
// override if non-empty, otherwise every currently connected relay.
func (p *Pool) effectiveRelays(override []string) []string {
	if len(override) > 0 {
		return override
	}
	return p.GetConnected()
}

// PublishReport is the outcome of publishing one event to a relay set.
type PublishReport struct {
	EventID   string
	Results   []types.PublishResult
	Succeeded int
}

// PublishEvent publishes event to relayURLs, or to every connected relay if
// relayURLs is empty. Publishing succeeds as a whole if at least one relay
// accepts the event; per-relay failures are recorded in Results. The call
// returns a kinderr.Transport error when the effective relay set is empty or
// when every relay rejects the event (the report is still returned then).
func (p *Pool) PublishEvent(ctx context.Context, event *nostr.Event, relayURLs []string) (PublishReport, error) {
	relays := p.effectiveRelays(relayURLs)
	if len(relays) == 0 {
		return PublishReport{}, kinderr.New(kinderr.Transport, "no relays available to publish to")
	}

	results := make([]types.PublishResult, len(relays))
	var wg sync.WaitGroup
	for i, url := range relays {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = p.publishOne(ctx, url, event)
		}(i, url)
	}
	wg.Wait()

	report := PublishReport{EventID: event.ID, Results: results}
	for _, r := range results {
		if r.Success {
			report.Succeeded++
		}
	}
	if report.Succeeded == 0 {
		return report, kinderr.New(kinderr.Transport, "every relay rejected the event")
	}
	return report, nil
}

func (p *Pool) publishOne(ctx context.Context, url string, event *nostr.Event) types.PublishResult {
	p.mu.RLock()
	conn, exists := p.relays[url]
	p.mu.RUnlock()

	if !exists || !conn.Connected || conn.Relay == nil {
		return types.PublishResult{URL: url, Success: false, Error: "relay not connected"}
	}

	pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := conn.Relay.Publish(pubCtx, *event); err != nil {
		return types.PublishResult{URL: url, Success: false, Error: err.Error()}
	}
	return types.PublishResult{URL: url, Success: true}
}

// PublishEventJSON parses eventJSON and publishes it, a convenience wrapper
// over PublishEvent for callers holding a signed event as raw bytes.
func (p *Pool) PublishEventJSON(ctx context.Context, eventJSON []byte, relayURLs []string) (PublishReport, error) {
	var event nostr.Event
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return PublishReport{}, kinderr.Wrap(kinderr.Protocol, "invalid event JSON", err)
	}
	return p.PublishEvent(ctx, &event, relayURLs)
}

// Subscription is a live subscription to a relay-pool filter. Close is safe
// to call more than once; once it returns, no further callback invocation
// starts (a callback already running when Close is called may still finish).
type Subscription struct {
	cancel context.CancelFunc
	once   sync.Once
	closed atomic.Bool
}

// Close cancels the subscription. Idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.cancel()
	})
}

// Subscribe opens a subscription for kinds/authors matching filter across
// relayURLs (or every connected relay if relayURLs is empty), invoking
// callback for each event received. It returns a kinderr.Transport error if
// the effective relay set is empty.
func (p *Pool) Subscribe(ctx context.Context, filter nostr.Filter, relayURLs []string, callback func(types.Event)) (*Subscription, error) {
	relays := p.effectiveRelays(relayURLs)
	if len(relays) == 0 {
		return nil, kinderr.New(kinderr.Transport, "no relays available to subscribe on")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel}

	go func() {
		ch := p.pool.SubMany(subCtx, relays, nostr.Filters{filter})
		for ev := range ch {
			p.monitor.RecordEvent(ev.Relay.URL)
			if sub.closed.Load() {
				continue
			}
			callback(types.Event{
				ID:        ev.Event.ID,
				Kind:      ev.Event.Kind,
				PubKey:    ev.Event.PubKey,
				Content:   ev.Event.Content,
				CreatedAt: int64(ev.Event.CreatedAt),
				Tags:      convertTags(ev.Event.Tags),
				Relay:     ev.Relay.URL,
			})
		}
	}()

	return sub, nil
}

// QueryEvents runs a one-shot EOSE-bounded query against the effective
// relay set and returns the deduplicated union of results.
func (p *Pool) QueryEvents(ctx context.Context, filter nostr.Filter, relayURLs []string) ([]types.Event, error) {
	relays := p.effectiveRelays(relayURLs)
	if len(relays) == 0 {
		return nil, kinderr.New(kinderr.Transport, "no relays available to query")
	}

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	seen := make(map[string]bool)
	var events []types.Event
	for ev := range p.pool.SubManyEose(queryCtx, relays, nostr.Filters{filter}) {
		if seen[ev.Event.ID] {
			continue
		}
		seen[ev.Event.ID] = true
		events = append(events, types.Event{
			ID:        ev.Event.ID,
			Kind:      ev.Event.Kind,
			PubKey:    ev.Event.PubKey,
			Content:   ev.Event.Content,
			CreatedAt: int64(ev.Event.CreatedAt),
			Tags:      convertTags(ev.Event.Tags),
			Relay:     ev.Relay.URL,
		})
	}
	return events, nil
}

func convertTags(tags nostr.Tags) [][]string {
	result := make([][]string, len(tags))
	for i, tag := range tags {
		result[i] = tag
	}
	return result
}

// GetRelayInfo returns cached or live NIP-11 info for url, preferring the
// active connection's copy over the cache.
func (p *Pool) GetRelayInfo(url string) *types.RelayInfo {
	p.mu.RLock()
	conn, exists := p.relays[url]
	p.mu.RUnlock()

	if exists && conn.Info != nil {
		return conn.Info
	}
	return p.infoCache.Get(url)
}

// FetchRelayInfoCached fetches NIP-11 info for url, using the cache unless
// forceRefresh is set.
func (p *Pool) FetchRelayInfoCached(ctx context.Context, url string, forceRefresh bool) (*types.RelayInfo, error) {
	if !forceRefresh {
		if info := p.infoCache.Get(url); info != nil {
			return info, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 7*time.Second)
	defer cancel()

	info, err := nip11.Fetch(fetchCtx, url)
	if err != nil {
		return nil, kinderr.Wrap(kinderr.Transport, "fetch NIP-11 info", err)
	}

	relayInfo := convertNIP11Info(&info)
	p.infoCache.Set(url, relayInfo)
	return relayInfo, nil
}

// InfoCache returns the relay info cache for direct access.
func (p *Pool) InfoCache() *RelayInfoCache {
	return p.infoCache
}

// Close shuts down the pool: stops the monitor and closes every relay
// connection.
func (p *Pool) Close() {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.relays {
		if conn.Relay != nil {
			conn.Relay.Close()
		}
	}
}
