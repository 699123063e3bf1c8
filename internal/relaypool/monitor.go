package relaypool

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/ichiba/internal/types"
)

// DefaultRingBufferSize is the default capacity for time-series ring buffers.
const DefaultRingBufferSize = 100

// TimeSeriesRingBuffer is a fixed-size circular buffer for time-series data.
type TimeSeriesRingBuffer struct {
	data  []types.TimeSeriesPoint
	size  int
	head  int
	count int
}

// NewTimeSeriesRingBuffer creates a new ring buffer with the given capacity.
func NewTimeSeriesRingBuffer(size int) *TimeSeriesRingBuffer {
	if size <= 0 {
		size = DefaultRingBufferSize
	}
	return &TimeSeriesRingBuffer{data: make([]types.TimeSeriesPoint, size), size: size}
}

// Add adds a new data point to the ring buffer.
func (rb *TimeSeriesRingBuffer) Add(timestamp int64, value float64) {
	rb.data[rb.head] = types.TimeSeriesPoint{Timestamp: timestamp, Value: value}
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

// GetAll returns all data points in chronological order.
func (rb *TimeSeriesRingBuffer) GetAll() []types.TimeSeriesPoint {
	if rb.count == 0 {
		return nil
	}
	result := make([]types.TimeSeriesPoint, rb.count)
	if rb.count < rb.size {
		copy(result, rb.data[:rb.count])
	} else {
		copy(result, rb.data[rb.head:])
		copy(result[rb.size-rb.head:], rb.data[:rb.head])
	}
	return result
}

// Len returns the number of elements in the buffer.
func (rb *TimeSeriesRingBuffer) Len() int { return rb.count }

// Monitor tracks relay health and statistics by periodically probing each
// relay in the pool with a cheap query and recording latency/error history.
type Monitor struct {
	pool           *Pool
	stats          map[string]*relayMetrics
	mu             sync.RWMutex
	interval       time.Duration
	ringBufferSize int
}

type relayMetrics struct {
	URL            string
	Latency        int64
	LatencyHistory *TimeSeriesRingBuffer
	EventCount     int64
	EventsPerSec   float64
	EventHistory   *TimeSeriesRingBuffer
	LastCheck      time.Time
	LastEvent      time.Time
	ErrorCount     int
	LastError      string
	CheckCount     int64
	SuccessCount   int64
}

// NewMonitor creates a new relay monitor bound to pool, checking each relay
// every 30 seconds.
func NewMonitor(pool *Pool) *Monitor {
	return &Monitor{
		pool:           pool,
		stats:          make(map[string]*relayMetrics),
		interval:       30 * time.Second,
		ringBufferSize: DefaultRingBufferSize,
	}
}

func (m *Monitor) newRelayMetrics(url string) *relayMetrics {
	return &relayMetrics{
		URL:            url,
		LatencyHistory: NewTimeSeriesRingBuffer(m.ringBufferSize),
		EventHistory:   NewTimeSeriesRingBuffer(m.ringBufferSize),
	}
}

// Start runs the monitor loop until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *Monitor) checkAll(ctx context.Context) {
	for _, url := range m.pool.snapshotURLs() {
		m.checkRelay(ctx, url)
	}
	m.calculateRates()
}

func (m *Monitor) checkRelay(ctx context.Context, url string) {
	m.mu.Lock()
	if _, exists := m.stats[url]; !exists {
		m.stats[url] = m.newRelayMetrics(url)
	}
	metrics := m.stats[url]
	m.mu.Unlock()

	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	relay, err := nostr.RelayConnect(checkCtx, url)
	if err != nil {
		log.Printf("[Monitor] failed to connect to %s: %v", url, err)
		m.mu.Lock()
		metrics.CheckCount++
		metrics.ErrorCount++
		metrics.LastError = err.Error()
		m.mu.Unlock()
		m.pool.setConnected(url, false, err.Error())
		return
	}
	defer relay.Close()

	_, err = relay.QuerySync(checkCtx, nostr.Filter{Kinds: []int{1}, Limit: 1})
	latency := time.Since(start).Milliseconds()
	now := time.Now()

	m.mu.Lock()
	metrics.Latency = latency
	metrics.LastCheck = now
	metrics.CheckCount++
	metrics.LatencyHistory.Add(now.Unix(), float64(latency))
	if err != nil {
		metrics.ErrorCount++
		metrics.LastError = err.Error()
	} else {
		metrics.SuccessCount++
		metrics.LastError = ""
	}
	m.mu.Unlock()

	m.pool.setConnected(url, err == nil, errString(err))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// RecordEvent records that an event was received from url.
func (m *Monitor) RecordEvent(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	metrics, exists := m.stats[url]
	if !exists {
		metrics = m.newRelayMetrics(url)
		m.stats[url] = metrics
	}
	metrics.EventCount++
	metrics.LastEvent = now
}

func (m *Monitor) calculateRates() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, metrics := range m.stats {
		if metrics.LastEvent.IsZero() {
			continue
		}
		elapsed := time.Since(metrics.LastCheck).Seconds()
		if elapsed > 0 {
			metrics.EventsPerSec = float64(metrics.EventCount) / elapsed
			metrics.EventHistory.Add(now.Unix(), metrics.EventsPerSec)
		}
	}
}

// GetStats returns current statistics for all relays.
func (m *Monitor) GetStats() map[string]types.RelayStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]types.RelayStats, len(m.stats))
	for url, metrics := range m.stats {
		result[url] = types.RelayStats{
			URL:          url,
			Latency:      metrics.Latency,
			EventsPerSec: metrics.EventsPerSec,
			TotalEvents:  metrics.EventCount,
		}
	}
	return result
}

// GetRelayHealth returns a detailed health snapshot for a single relay, or
// nil if it has no recorded metrics yet.
func (m *Monitor) GetRelayHealth(url string) *types.RelayHealth {
	m.mu.RLock()
	metrics, exists := m.stats[url]
	m.mu.RUnlock()
	if !exists {
		return nil
	}

	connected := m.pool.isConnected(url)

	var uptime float64
	if metrics.CheckCount > 0 {
		uptime = float64(metrics.SuccessCount) / float64(metrics.CheckCount) * 100
	}

	return &types.RelayHealth{
		URL:              url,
		Connected:        connected,
		Latency:          metrics.Latency,
		LatencyHistory:   metrics.LatencyHistory.GetAll(),
		EventsPerSec:     metrics.EventsPerSec,
		EventRateHistory: metrics.EventHistory.GetAll(),
		Uptime:           uptime,
		HealthScore:      m.CalculateHealthScore(metrics, connected),
		LastSeen:         metrics.LastCheck.Unix(),
		ErrorCount:       metrics.ErrorCount,
		LastError:        metrics.LastError,
	}
}

// CalculateHealthScore computes a 0-100 health score for a relay as a
// weighted average of connection status (30%), latency (25%), uptime (25%),
// and error rate (20%).
func (m *Monitor) CalculateHealthScore(metrics *relayMetrics, connected bool) float64 {
	var connectionScore float64
	if connected {
		connectionScore = 100.0
	}

	latencyScore := calculateLatencyScore(metrics.Latency)

	var uptimeScore float64
	if metrics.CheckCount > 0 {
		uptimeScore = float64(metrics.SuccessCount) / float64(metrics.CheckCount) * 100
	}

	errorScore := calculateErrorScore(metrics.ErrorCount)

	score := (connectionScore * 0.30) + (latencyScore * 0.25) + (uptimeScore * 0.25) + (errorScore * 0.20)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func calculateLatencyScore(latencyMs int64) float64 {
	if latencyMs <= 0 {
		return 0
	}
	if latencyMs < 100 {
		return 100.0
	}
	if latencyMs <= 500 {
		return 100.0 - (float64(latencyMs-100)/400.0)*50.0
	}
	if latencyMs <= 2000 {
		return 50.0 - (float64(latencyMs-500)/1500.0)*50.0
	}
	return 0
}

func calculateErrorScore(errorCount int) float64 {
	if errorCount <= 0 {
		return 100.0
	}
	if errorCount <= 5 {
		return 100.0 - (float64(errorCount)/5.0)*50.0
	}
	if errorCount <= 20 {
		return 50.0 - (float64(errorCount-5)/15.0)*50.0
	}
	return 0
}
