// Package types provides shared types used across packages: the wire-facing
// Event shape, NIP-11 relay metadata, and publish results. UI-only types the
// original dashboard carried (test runner results, NIP catalog entries) are
// not part of this tree.
package types

// Event represents a Nostr event for logging and telemetry purposes.
type Event struct {
	ID        string     `json:"id"`
	Kind      int        `json:"kind"`
	PubKey    string     `json:"pubkey"`
	Content   string     `json:"content"`
	CreatedAt int64      `json:"created_at"`
	Tags      [][]string `json:"tags"`
	Relay     string     `json:"relay,omitempty"`
}

// RelayStatus represents the connection status of a relay.
type RelayStatus struct {
	URL           string     `json:"url"`
	Connected     bool       `json:"connected"`
	Latency       int64      `json:"latency_ms"`
	EventsPS      float64    `json:"events_per_sec"`
	Error         string     `json:"error,omitempty"`
	SupportedNIPs []int      `json:"supported_nips,omitempty"`
	RelayInfo     *RelayInfo `json:"relay_info,omitempty"`
}

// RelayStats represents rolling statistics for a relay.
type RelayStats struct {
	URL          string  `json:"url"`
	Latency      int64   `json:"latency_ms"`
	EventsPerSec float64 `json:"events_per_sec"`
	TotalEvents  int64   `json:"total_events"`
}

// RelayInfo is the normalized form of a NIP-11 relay information document.
type RelayInfo struct {
	Name          string            `json:"name,omitempty"`
	Description   string            `json:"description,omitempty"`
	PubKey        string            `json:"pubkey,omitempty"`
	Contact       string            `json:"contact,omitempty"`
	SupportedNIPs []int             `json:"supported_nips,omitempty"`
	Software      string            `json:"software,omitempty"`
	Version       string            `json:"version,omitempty"`
	Icon          string            `json:"icon,omitempty"`
	PaymentsURL   string            `json:"payments_url,omitempty"`
	Limitation    *RelayLimitation  `json:"limitation,omitempty"`
	Fees          *RelayFees        `json:"fees,omitempty"`
}

// RelayLimitation describes the operational limits a relay advertises.
type RelayLimitation struct {
	MaxMessageLength int  `json:"max_message_length,omitempty"`
	MaxSubscriptions int  `json:"max_subscriptions,omitempty"`
	MaxLimit         int  `json:"max_limit,omitempty"`
	MaxEventTags     int  `json:"max_event_tags,omitempty"`
	MaxContentLength int  `json:"max_content_length,omitempty"`
	MinPOWDifficulty int  `json:"min_pow_difficulty,omitempty"`
	AuthRequired     bool `json:"auth_required,omitempty"`
	PaymentRequired  bool `json:"payment_required,omitempty"`
	RestrictedWrites bool `json:"restricted_writes,omitempty"`
}

// RelayFeeEntry is a single fee schedule entry.
type RelayFeeEntry struct {
	Amount int64  `json:"amount,omitempty"`
	Unit   string `json:"unit,omitempty"`
	Period int64  `json:"period,omitempty"`
	Kinds  []int  `json:"kinds,omitempty"`
}

// RelayFees groups a relay's fee schedules by purpose.
type RelayFees struct {
	Admission    []RelayFeeEntry `json:"admission,omitempty"`
	Subscription []RelayFeeEntry `json:"subscription,omitempty"`
	Publication  []RelayFeeEntry `json:"publication,omitempty"`
}

// PublishResult reports the outcome of publishing an event to one relay.
type PublishResult struct {
	URL     string `json:"url"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TimeSeriesPoint is a single sample in a rolling metrics history.
type TimeSeriesPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// RelayHealth is a computed health snapshot for a single relay.
type RelayHealth struct {
	URL              string            `json:"url"`
	Connected        bool              `json:"connected"`
	Latency          int64             `json:"latency_ms"`
	LatencyHistory   []TimeSeriesPoint `json:"latency_history,omitempty"`
	EventsPerSec     float64           `json:"events_per_sec"`
	EventRateHistory []TimeSeriesPoint `json:"event_rate_history,omitempty"`
	Uptime           float64           `json:"uptime_pct"`
	HealthScore      float64           `json:"health_score"`
	LastSeen         int64             `json:"last_seen"`
	ErrorCount       int               `json:"error_count"`
	LastError        string            `json:"last_error,omitempty"`
}
