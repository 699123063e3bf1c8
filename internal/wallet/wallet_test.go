package wallet

import (
	"context"
	"testing"
	"time"
)

func TestConfigValidateRejectsMissingHost(t *testing.T) {
	err := Config{MacaroonHex: "ab"}.validate()
	if !Is(err, Config) {
		t.Fatalf("expected Config kind, got %v", err)
	}
}

func TestCreateInvoiceRejectsNonPositiveAmount(t *testing.T) {
	w := New(Config{Host: "node.local:8080", MacaroonHex: "ab"})

	_, err := w.CreateInvoice(context.Background(), CreateInvoiceRequest{AmountSats: 0})
	if !Is(err, Validation) {
		t.Fatalf("expected Validation kind, got %v", err)
	}
}

func TestCreateInvoiceFailsBeforeInit(t *testing.T) {
	w := New(Config{Host: "node.local:8080", MacaroonHex: "ab"})

	_, err := w.CreateInvoice(context.Background(), CreateInvoiceRequest{AmountSats: 1000})
	if !Is(err, Connection) {
		t.Fatalf("expected Connection kind before Init, got %v", err)
	}
}

func TestPayInvoiceRejectsEmptyTarget(t *testing.T) {
	w := New(Config{Host: "node.local:8080", MacaroonHex: "ab"})
	w.ready.Store(true)

	_, err := w.PayInvoice(context.Background(), PayInvoiceRequest{})
	if !Is(err, Validation) {
		t.Fatalf("expected Validation kind, got %v", err)
	}
}

func TestPayInvoiceRejectsNegativeFeeLimit(t *testing.T) {
	w := New(Config{Host: "node.local:8080", MacaroonHex: "ab"})
	w.ready.Store(true)

	_, err := w.PayInvoice(context.Background(), PayInvoiceRequest{Bolt11: "lnbc1...", MaxFeeSats: -1})
	if !Is(err, Validation) {
		t.Fatalf("expected Validation kind, got %v", err)
	}
}

func TestCheckInvoiceStatusRejectsEmptyBolt11(t *testing.T) {
	w := New(Config{Host: "node.local:8080", MacaroonHex: "ab"})
	w.ready.Store(true)

	_, err := w.CheckInvoiceStatus(context.Background(), "")
	if !Is(err, Validation) {
		t.Fatalf("expected Validation kind, got %v", err)
	}
}

func TestCheckInvoiceStatusRejectsMalformedBolt11(t *testing.T) {
	w := New(Config{Host: "node.local:8080", MacaroonHex: "ab"})
	w.ready.Store(true)

	_, err := w.CheckInvoiceStatus(context.Background(), "not-an-invoice")
	if !Is(err, Validation) {
		t.Fatalf("expected Validation kind for malformed bolt11, got %v", err)
	}
}

func TestClassifyInvoiceStatusSettledWins(t *testing.T) {
	now := time.Unix(1000, 0)
	past := now.Add(-time.Hour)
	if got := classifyInvoiceStatus(true, "SETTLED", past, now); got != InvoiceStatusPaid {
		t.Fatalf("expected paid, got %v", got)
	}
}

func TestClassifyInvoiceStatusCanceledState(t *testing.T) {
	now := time.Unix(1000, 0)
	future := now.Add(time.Hour)
	if got := classifyInvoiceStatus(false, "CANCELED", future, now); got != InvoiceStatusExpired {
		t.Fatalf("expected expired for CANCELED state even before its nominal expiry, got %v", got)
	}
}

func TestClassifyInvoiceStatusExpiresByTime(t *testing.T) {
	now := time.Unix(1000, 0)
	past := now.Add(-time.Second)
	if got := classifyInvoiceStatus(false, "OPEN", past, now); got != InvoiceStatusExpired {
		t.Fatalf("expected expired once past expiresAt, got %v", got)
	}
}

func TestClassifyInvoiceStatusPendingWithinWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	future := now.Add(time.Minute)
	if got := classifyInvoiceStatus(false, "OPEN", future, now); got != InvoiceStatusPending {
		t.Fatalf("expected pending before expiry, got %v", got)
	}
}

func TestCheckWalletStatusFalseBeforeInit(t *testing.T) {
	w := New(Config{Host: "node.local:8080", MacaroonHex: "ab"})
	if w.CheckWalletStatus(context.Background()) {
		t.Fatal("expected false before Init completes")
	}
}

func TestLooksLikeLnurlTarget(t *testing.T) {
	cases := map[string]bool{
		"lnbc1p0abc":            false,
		"lnurl1dp68gurn8ghj7":   true,
		"satoshi@getalby.com":   true,
		"LIGHTNING:LNURL1DP68G": true,
	}
	for target, want := range cases {
		if got := looksLikeLnurlTarget(target); got != want {
			t.Errorf("looksLikeLnurlTarget(%q) = %v, want %v", target, got, want)
		}
	}
}
