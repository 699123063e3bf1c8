package dvmproto

import (
	"testing"

	"github.com/keanuklestil/ichiba/internal/keys"
)

func TestBuildParseJobRequestRoundTrip(t *testing.T) {
	customer := keys.GenerateKeyPair()

	req := &JobRequest{
		Kind:       5050,
		Inputs:     []Input{{Data: "write a summary", Type: "text"}},
		Params:     []Param{{Key: "model", Value: "gpt-4o"}},
		OutputType: "text",
	}

	event, err := BuildJobRequestEvent(req, customer.PrivateKeyHex, "", false)
	if err != nil {
		t.Fatalf("BuildJobRequestEvent: %v", err)
	}

	parsed, err := ParseJobRequest(event, "")
	if err != nil {
		t.Fatalf("ParseJobRequest: %v", err)
	}

	if parsed.Inputs[0].Data != req.Inputs[0].Data {
		t.Fatalf("input mismatch: %+v", parsed.Inputs)
	}
	if v, ok := parsed.Param("model"); !ok || v != "gpt-4o" {
		t.Fatalf("param mismatch: %+v", parsed.Params)
	}
	if parsed.Customer != event.PubKey {
		t.Fatalf("customer mismatch")
	}
}

func TestBuildParseEncryptedJobRequestRoundTrip(t *testing.T) {
	customer := keys.GenerateKeyPair()
	provider := keys.GenerateKeyPair()

	req := &JobRequest{
		Kind:   5050,
		Inputs: []Input{{Data: "secret instructions", Type: "text"}},
	}

	event, err := BuildJobRequestEvent(req, customer.PrivateKeyHex, provider.PublicKeyHex, true)
	if err != nil {
		t.Fatalf("BuildJobRequestEvent: %v", err)
	}
	if event.Content == "" {
		t.Fatal("expected encrypted content to be non-empty")
	}

	if _, err := ParseJobRequest(event, ""); err == nil {
		t.Fatal("expected parse without a key to fail for an encrypted request")
	}

	parsed, err := ParseJobRequest(event, provider.PrivateKeyHex)
	if err != nil {
		t.Fatalf("ParseJobRequest: %v", err)
	}
	if !parsed.Encrypted {
		t.Fatal("expected parsed request to report Encrypted")
	}
	if parsed.Inputs[0].Data != "secret instructions" {
		t.Fatalf("unexpected decrypted input: %+v", parsed.Inputs)
	}
}

func TestResultKindForClampsRange(t *testing.T) {
	kind, clamped := ResultKindFor(5050)
	if clamped {
		t.Fatal("expected 5050 to map into range without clamping")
	}
	if kind != 6050 {
		t.Fatalf("expected 6050, got %d", kind)
	}

	kind, clamped = ResultKindFor(1)
	if !clamped {
		t.Fatal("expected a malformed request kind to be reported as clamped")
	}
	if kind != KindJobResultMin {
		t.Fatalf("expected clamp to %d, got %d", KindJobResultMin, kind)
	}

	kind, clamped = ResultKindFor(999999)
	if !clamped {
		t.Fatal("expected an overflowing request kind to be reported as clamped")
	}
	if kind != KindJobResultMax {
		t.Fatalf("expected clamp to %d, got %d", KindJobResultMax, kind)
	}
}

func TestBuildParseJobResultRoundTrip(t *testing.T) {
	customer := keys.GenerateKeyPair()
	provider := keys.GenerateKeyPair()

	req := &JobRequest{Kind: 5050, Inputs: []Input{{Data: "hi", Type: "text"}}}
	reqEvent, err := BuildJobRequestEvent(req, customer.PrivateKeyHex, "", false)
	if err != nil {
		t.Fatalf("BuildJobRequestEvent: %v", err)
	}

	resultEvent, clamped, err := BuildJobResultEvent(reqEvent, "the output", "text", 1000, "lnbc1...", provider.PrivateKeyHex, false)
	if err != nil {
		t.Fatalf("BuildJobResultEvent: %v", err)
	}
	if clamped {
		t.Fatal("expected a well-formed request kind to not be clamped")
	}
	if resultEvent.Kind != 6050 {
		t.Fatalf("expected kind 6050, got %d", resultEvent.Kind)
	}

	parsed, err := ParseJobResult(resultEvent)
	if err != nil {
		t.Fatalf("ParseJobResult: %v", err)
	}
	if parsed.JobRequestID != reqEvent.ID {
		t.Fatalf("job request id mismatch")
	}
	if parsed.AmountMillisat != 1000 || parsed.Bolt11 != "lnbc1..." {
		t.Fatalf("amount/bolt11 mismatch: %+v", parsed)
	}
}

func TestLatestFeedbackPicksMostRecent(t *testing.T) {
	a := &JobFeedback{Status: StatusProcessing}
	b := &JobFeedback{Status: StatusSuccess}
	a.CreatedAt = a.CreatedAt.Add(0)
	b.CreatedAt = b.CreatedAt.Add(1)

	latest := LatestFeedback([]*JobFeedback{a, b})
	if latest.Status != StatusSuccess {
		t.Fatalf("expected last-status-wins to pick %v, got %v", StatusSuccess, latest.Status)
	}
}
