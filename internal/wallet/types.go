package wallet

import "time"

// InvoiceStatus is the lifecycle state of a Lightning invoice.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusExpired InvoiceStatus = "expired"
	InvoiceStatusError   InvoiceStatus = "error"
)

// CreateInvoiceRequest is the input to CreateInvoice.
type CreateInvoiceRequest struct {
	AmountSats int64
	Memo       string
	ExpirySecs int64 // 0 means the adapter's default
}

// Invoice is a Lightning invoice returned by CreateInvoice or CheckInvoiceStatus.
type Invoice struct {
	PaymentRequest string // BOLT11
	PaymentHash    string // hex
	AmountSats     int64
	ExpiresAt      time.Time
	Memo           string
	Status         InvoiceStatus
	AmountPaidSats int64
	SettledAt      *time.Time
}

// PayInvoiceRequest is the input to PayInvoice.
type PayInvoiceRequest struct {
	Bolt11      string
	MaxFeeSats  int64 // 0 means the adapter's default
	TimeoutSecs int64 // 0 means the adapter's default
}

// PaymentResult is the outcome of PayInvoice.
type PaymentResult struct {
	PaymentHash     string
	PaymentPreimage string
	FeeSats         int64
	Succeeded       bool
	FailureReason   string
}

// TokenBalance is a non-sats asset balance, carried for parity with wallets
// that track more than one unit; LND-backed wallets always report it empty.
type TokenBalance struct {
	Asset  string
	Amount int64
}

// Balance is the wallet's current funds.
type Balance struct {
	Sats         int64
	TokenBalance []TokenBalance
}
