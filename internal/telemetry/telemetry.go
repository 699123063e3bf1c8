// Package telemetry provides structured event logging shared by every other
// component. A telemetry call never returns an error to its caller: failures
// inside a Sink are swallowed (MultiSink recovers a panicking Sink), matching the rest of the
// system's policy of never letting an observability side-channel affect the
// job pipeline.
package telemetry

import (
	"log"
	"sync"
	"time"
)

// Event is the category/action/label/value shape named in the spec, with an
// optional Fields bag for anything richer a sink wants to carry (the
// teacher's VizEvent carried From/To/Kind/EventID/Content/Status/Percentage;
// those become Fields entries here instead of dedicated struct members).
type Event struct {
	Category  string
	Action    string
	Label     string
	Value     float64
	Fields    map[string]any
	Timestamp time.Time
}

// Sink receives telemetry events. Implementations must not block the caller
// for long and must never panic.
type Sink interface {
	Emit(Event)
}

// LogSink writes events through the standard logger using the same
// "[Component] message" convention as the rest of the codebase.
type LogSink struct {
	prefix string
}

// NewLogSink creates a Sink that writes to log.Printf with the given prefix,
// e.g. "[Telemetry]".
func NewLogSink(prefix string) *LogSink {
	if prefix == "" {
		prefix = "[Telemetry]"
	}
	return &LogSink{prefix: prefix}
}

func (s *LogSink) Emit(ev Event) {
	log.Printf("%s %s.%s label=%q value=%v fields=%v", s.prefix, ev.Category, ev.Action, ev.Label, ev.Value, ev.Fields)
}

// ChannelSink fans events out to subscribers over bounded channels, modeled
// on the teacher's web.Hub broadcast/registration idiom. A slow or absent
// subscriber never blocks Emit: a full channel drops the event for that
// subscriber rather than stalling the producer.
type ChannelSink struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	bufferSize  int
}

// NewChannelSink creates a ChannelSink whose per-subscriber channels have the
// given buffer size.
func NewChannelSink(bufferSize int) *ChannelSink {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &ChannelSink{
		subscribers: make(map[chan Event]struct{}),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new channel that receives a copy of every event
// emitted after this call. The returned unsubscribe function is idempotent.
func (c *ChannelSink) Subscribe() (events <-chan Event, unsubscribe func()) {
	ch := make(chan Event, c.bufferSize)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			c.mu.Lock()
			if _, ok := c.subscribers[ch]; ok {
				delete(c.subscribers, ch)
				close(ch)
			}
			c.mu.Unlock()
		})
	}

	return ch, unsub
}

func (c *ChannelSink) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop rather than block the emitter.
		}
	}
}

// MultiSink fans out to several sinks, swallowing per-sink issues exactly
// like a single sink would.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines multiple sinks into one.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Emit(ev Event) {
	for _, s := range m.sinks {
		safeEmit(s, ev)
	}
}

func safeEmit(s Sink, ev Event) {
	defer func() {
		_ = recover() // a misbehaving sink must never take down its caller
	}()
	s.Emit(ev)
}
