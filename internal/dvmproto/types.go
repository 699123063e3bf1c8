package dvmproto

import "time"

// Input is one "i" tag on a job request: ["i", data, type, relay?, marker?].
type Input struct {
	Data   string
	Type   string // "text", "url", "event", "job"
	Relay  string
	Marker string
}

// Param is one "param" tag: ["param", key, value]. NIP-90 allows repeated
// param tags with the same key, so this is a slice rather than a map.
type Param struct {
	Key   string
	Value string
}

// JobRequest is a parsed NIP-90 job request (kind 5000-5999).
type JobRequest struct {
	EventID      string
	Kind         int
	Inputs       []Input
	Params       []Param
	OutputType   string   // from the "output" tag
	BidMillisats int64    // from the "bid" tag, 0 if absent
	Relays       []string // from the "relays" tag
	Customer     string   // requester pubkey
	Encrypted    bool
	CreatedAt    time.Time
}

// Param looks up the first value for key, returning ok=false if absent.
func (j *JobRequest) Param(key string) (string, bool) {
	for _, p := range j.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// JobResult is a parsed NIP-90 job result (kind 6000-6999).
type JobResult struct {
	EventID        string
	Kind           int
	JobRequestID   string // the "e" / "request" tag
	Output         string
	OutputType     string
	Provider       string
	AmountMillisat int64
	Bolt11         string
	Encrypted      bool
	CreatedAt      time.Time
}

// JobFeedback is a parsed NIP-90 kind 7000 status update.
type JobFeedback struct {
	EventID        string
	JobRequestID   string
	Status         Status
	ExtraInfo      string
	Provider       string
	AmountMillisat int64
	Bolt11         string
	Percentage     int
	Encrypted      bool
	CreatedAt      time.Time
}
