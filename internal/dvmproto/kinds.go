// Package dvmproto implements the NIP-90 Data Vending Machine wire protocol:
// building and parsing job request/result/feedback events, including
// NIP-04 encrypted payloads.
package dvmproto

// Kind ranges defined by NIP-90: requests are 5000-5999, results are the
// matching request kind + 1000 (6000-6999), feedback is always 7000.
const (
	KindJobRequestMin = 5000
	KindJobRequestMax = 5999
	KindJobResultMin  = 6000
	KindJobResultMax  = 6999
	KindJobFeedback   = 7000
)

// Status is the lifecycle state carried by a kind 7000 feedback event.
type Status string

const (
	StatusPaymentRequired Status = "payment-required"
	StatusProcessing      Status = "processing"
	StatusError           Status = "error"
	StatusSuccess         Status = "success"
	StatusPartial         Status = "partial"
)

// IsJobRequest reports whether kind falls in the request range.
func IsJobRequest(kind int) bool {
	return kind >= KindJobRequestMin && kind <= KindJobRequestMax
}

// IsJobResult reports whether kind falls in the result range.
func IsJobResult(kind int) bool {
	return kind >= KindJobResultMin && kind <= KindJobResultMax
}

// IsJobFeedback reports whether kind is the feedback kind.
func IsJobFeedback(kind int) bool {
	return kind == KindJobFeedback
}

// ResultKindFor returns the result kind matching requestKind. A malformed
// request kind (outside 5000-5999, or one whose +1000 mapping still falls
// outside 6000-6999) is clamped into the valid range rather than rejected -
// callers that care should emit an error-class telemetry event using the
// returned clamped flag, per spec: malformed kinds are clamped, not refused.
func ResultKindFor(requestKind int) (kind int, clamped bool) {
	resultKind := requestKind + 1000
	switch {
	case resultKind < KindJobResultMin:
		return KindJobResultMin, true
	case resultKind > KindJobResultMax:
		return KindJobResultMax, true
	default:
		return resultKind, false
	}
}
