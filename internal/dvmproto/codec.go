package dvmproto

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/ichiba/internal/cipher"
	"github.com/keanuklestil/ichiba/internal/kinderr"
)

// sensitiveTags builds the i/param/output/bid/relays tags that carry a job
// request's actual payload, the part that gets moved into encrypted content
// when the request targets a specific provider privately.
func sensitiveTags(req *JobRequest) nostr.Tags {
	var tags nostr.Tags
	for _, in := range req.Inputs {
		tag := nostr.Tag{"i", in.Data, in.Type}
		if in.Relay != "" || in.Marker != "" {
			tag = append(tag, in.Relay, in.Marker)
		}
		tags = append(tags, tag)
	}
	for _, p := range req.Params {
		tags = append(tags, nostr.Tag{"param", p.Key, p.Value})
	}
	if req.OutputType != "" {
		tags = append(tags, nostr.Tag{"output", req.OutputType})
	}
	if req.BidMillisats > 0 {
		tags = append(tags, nostr.Tag{"bid", strconv.FormatInt(req.BidMillisats, 10)})
	}
	if len(req.Relays) > 0 {
		tags = append(tags, append(nostr.Tag{"relays"}, req.Relays...))
	}
	return tags
}

// BuildJobRequestEvent builds and signs a kind 5000-5999 event for req. When
// recipientPubkeyHex is non-empty and encrypt is true, the sensitive tags
// are moved into NIP-04 encrypted content and the event carries only an
// "encrypted" marker and a "p" tag naming the recipient.
func BuildJobRequestEvent(req *JobRequest, skHex string, recipientPubkeyHex string, encrypt bool) (*nostr.Event, error) {
	if !IsJobRequest(req.Kind) {
		return nil, kinderr.New(kinderr.Validation, "job request kind out of range")
	}

	pub, err := nostr.GetPublicKey(skHex)
	if err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "derive public key", err)
	}

	event := &nostr.Event{
		Kind:      req.Kind,
		PubKey:    pub,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
	}

	plain := sensitiveTags(req)

	if encrypt && recipientPubkeyHex != "" {
		payload, err := json.Marshal(plain)
		if err != nil {
			return nil, kinderr.Wrap(kinderr.Internal, "marshal encrypted tag payload", err)
		}
		content, err := cipher.EncryptFor(string(payload), skHex, recipientPubkeyHex)
		if err != nil {
			return nil, err
		}
		event.Content = content
		event.Tags = nostr.Tags{{"encrypted"}, {"p", recipientPubkeyHex}}
	} else {
		event.Tags = plain
		if recipientPubkeyHex != "" {
			event.Tags = append(event.Tags, nostr.Tag{"p", recipientPubkeyHex})
		}
	}

	if err := event.Sign(skHex); err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "sign job request event", err)
	}
	return event, nil
}

// ParseJobRequest parses event into a JobRequest. If the event carries an
// "encrypted" tag, decryptSkHex is used to recover the sensitive tags via
// NIP-04 against the event author's pubkey.
func ParseJobRequest(event *nostr.Event, decryptSkHex string) (*JobRequest, error) {
	if !IsJobRequest(event.Kind) {
		return nil, kinderr.New(kinderr.Protocol, "event kind is not a job request")
	}

	req := &JobRequest{
		EventID:   event.ID,
		Kind:      event.Kind,
		Customer:  event.PubKey,
		CreatedAt: time.Unix(int64(event.CreatedAt), 0),
	}

	tags := event.Tags
	for _, tag := range tags {
		if len(tag) > 0 && tag[0] == "encrypted" {
			req.Encrypted = true
		}
	}

	if req.Encrypted {
		if decryptSkHex == "" {
			return nil, kinderr.New(kinderr.Cipher, "encrypted job request requires a private key to decrypt")
		}
		plaintext, err := cipher.DecryptFrom(event.Content, decryptSkHex, event.PubKey)
		if err != nil {
			return nil, err
		}
		var decoded nostr.Tags
		if err := json.Unmarshal([]byte(plaintext), &decoded); err != nil {
			return nil, kinderr.Wrap(kinderr.Protocol, "decode decrypted tag payload", err)
		}
		tags = decoded
	}

	applyRequestTags(req, tags)
	return req, nil
}

func applyRequestTags(req *JobRequest, tags nostr.Tags) {
	for _, tag := range tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "i":
			in := Input{Data: tag[1]}
			if len(tag) > 2 {
				in.Type = tag[2]
			} else {
				in.Type = "text"
			}
			if len(tag) > 3 {
				in.Relay = tag[3]
			}
			if len(tag) > 4 {
				in.Marker = tag[4]
			}
			req.Inputs = append(req.Inputs, in)
		case "param":
			if len(tag) >= 3 {
				req.Params = append(req.Params, Param{Key: tag[1], Value: tag[2]})
			}
		case "output":
			req.OutputType = tag[1]
		case "bid":
			if bid, err := strconv.ParseInt(tag[1], 10, 64); err == nil {
				req.BidMillisats = bid
			}
		case "relays":
			req.Relays = append(req.Relays, tag[1:]...)
		}
	}
	if len(req.Inputs) == 0 {
		req.Inputs = []Input{{Type: "text"}}
	}
}

// BuildJobResultEvent builds and signs a kind 6000-6999 result event for a
// job identified by jobRequestEvent. output is expected to already be
// ciphertext when encrypted is true - this function only adds the marker
// tag, it does not perform encryption itself.
//
// A malformed jobRequestEvent.Kind (one whose +1000 mapping falls outside
// 6000-6999) is clamped into range rather than rejected; clamped reports
// whether that happened so the caller can emit an error-class telemetry
// event instead of aborting the job.
func BuildJobResultEvent(jobRequestEvent *nostr.Event, output, outputType string, amountMillisat int64, bolt11, skHex string, encrypted bool) (event *nostr.Event, clamped bool, err error) {
	resultKind, clamped := ResultKindFor(jobRequestEvent.Kind)

	pub, err := nostr.GetPublicKey(skHex)
	if err != nil {
		return nil, clamped, kinderr.Wrap(kinderr.Internal, "derive public key", err)
	}

	tags := nostr.Tags{
		{"e", jobRequestEvent.ID},
		{"p", jobRequestEvent.PubKey},
		{"request", jobRequestEvent.ID},
	}
	if outputType != "" {
		tags = append(tags, nostr.Tag{"i", output, outputType})
	}
	if amountMillisat > 0 {
		amountTag := nostr.Tag{"amount", strconv.FormatInt(amountMillisat, 10)}
		if bolt11 != "" {
			amountTag = append(amountTag, bolt11)
		}
		tags = append(tags, amountTag)
	}
	if encrypted {
		tags = append(tags, nostr.Tag{"encrypted"})
	}

	event = &nostr.Event{
		Kind:      resultKind,
		PubKey:    pub,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Tags:      tags,
		Content:   output,
	}

	if err := event.Sign(skHex); err != nil {
		return nil, clamped, kinderr.Wrap(kinderr.Internal, "sign job result event", err)
	}
	return event, clamped, nil
}

// ParseJobResult parses event into a JobResult.
func ParseJobResult(event *nostr.Event) (*JobResult, error) {
	if !IsJobResult(event.Kind) {
		return nil, kinderr.New(kinderr.Protocol, "event kind is not a job result")
	}

	result := &JobResult{
		EventID:    event.ID,
		Kind:       event.Kind,
		Output:     event.Content,
		OutputType: "text",
		Provider:   event.PubKey,
		CreatedAt:  time.Unix(int64(event.CreatedAt), 0),
	}

	for _, tag := range event.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "e":
			if result.JobRequestID == "" {
				result.JobRequestID = tag[1]
			}
		case "request":
			result.JobRequestID = tag[1]
		case "i":
			if result.Output == "" {
				result.Output = tag[1]
			}
			if len(tag) > 2 {
				result.OutputType = tag[2]
			}
		case "amount":
			if amt, err := strconv.ParseInt(tag[1], 10, 64); err == nil {
				result.AmountMillisat = amt
			}
			if len(tag) > 2 {
				result.Bolt11 = tag[2]
			}
		case "encrypted":
			result.Encrypted = true
		}
	}

	return result, nil
}

// BuildJobFeedbackEvent builds and signs a kind 7000 feedback event.
func BuildJobFeedbackEvent(jobRequestEvent *nostr.Event, status Status, extraInfo string, percentage int, amountMillisat int64, bolt11, skHex string) (*nostr.Event, error) {
	pub, err := nostr.GetPublicKey(skHex)
	if err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "derive public key", err)
	}

	statusTag := nostr.Tag{"status", string(status)}
	if extraInfo != "" {
		statusTag = append(statusTag, extraInfo)
	}
	tags := nostr.Tags{
		{"e", jobRequestEvent.ID},
		{"p", jobRequestEvent.PubKey},
		statusTag,
	}
	if amountMillisat > 0 {
		amountTag := nostr.Tag{"amount", strconv.FormatInt(amountMillisat, 10)}
		if bolt11 != "" {
			amountTag = append(amountTag, bolt11)
		}
		tags = append(tags, amountTag)
	}

	content := ""
	if percentage > 0 {
		data, err := json.Marshal(map[string]int{"percentage": percentage})
		if err != nil {
			return nil, kinderr.Wrap(kinderr.Internal, "marshal feedback content", err)
		}
		content = string(data)
	}

	event := &nostr.Event{
		Kind:      KindJobFeedback,
		PubKey:    pub,
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Tags:      tags,
		Content:   content,
	}

	if err := event.Sign(skHex); err != nil {
		return nil, kinderr.Wrap(kinderr.Internal, "sign job feedback event", err)
	}
	return event, nil
}

// ParseJobFeedback parses event into a JobFeedback.
func ParseJobFeedback(event *nostr.Event) (*JobFeedback, error) {
	if !IsJobFeedback(event.Kind) {
		return nil, kinderr.New(kinderr.Protocol, "event kind is not job feedback")
	}

	feedback := &JobFeedback{
		EventID:   event.ID,
		Provider:  event.PubKey,
		CreatedAt: time.Unix(int64(event.CreatedAt), 0),
	}

	for _, tag := range event.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case "e":
			feedback.JobRequestID = tag[1]
		case "status":
			feedback.Status = Status(tag[1])
			if len(tag) > 2 {
				feedback.ExtraInfo = tag[2]
			}
		case "amount":
			if amt, err := strconv.ParseInt(tag[1], 10, 64); err == nil {
				feedback.AmountMillisat = amt
			}
			if len(tag) > 2 {
				feedback.Bolt11 = tag[2]
			}
		}
	}

	if event.Content != "" {
		var data map[string]any
		if err := json.Unmarshal([]byte(event.Content), &data); err == nil {
			if pct, ok := data["percentage"].(float64); ok {
				feedback.Percentage = int(pct)
			}
		}
	}

	return feedback, nil
}

// LatestFeedback reduces a slice of feedback events for the same job down
// to the most recent one by CreatedAt, implementing "last status wins" when
// feedback is received out of order.
func LatestFeedback(feedbacks []*JobFeedback) *JobFeedback {
	var latest *JobFeedback
	for _, f := range feedbacks {
		if latest == nil || f.CreatedAt.After(latest.CreatedAt) {
			latest = f
		}
	}
	return latest
}
