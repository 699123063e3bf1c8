// Package jobstore persists provider-side job records and serves the
// history/statistics read models backing get_history and get_statistics.
package jobstore

import "time"

// Status is a job record's lifecycle state. pending_payment, paid,
// processing, completed, error, and cancelled are the only values; paid,
// completed, error, and cancelled are terminal.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusProcessing     Status = "processing"
	StatusCompleted      Status = "completed"
	StatusError          Status = "error"
	StatusCancelled      Status = "cancelled"
)

// IsTerminal reports whether s is one of the record's terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusCompleted, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

// Record is one provider-side job record, created on request acceptance and
// updated as the reconciler and pipeline move it through its lifecycle.
type Record struct {
	ID                string `gorm:"primaryKey;size:64"`
	RequestEventID    string `gorm:"size:64;index"`
	RequesterPubkey   string `gorm:"size:64;index"`
	Kind              int
	InputPreview      string `gorm:"size:256"`
	Status            Status `gorm:"size:32;index"`
	InvoiceBolt11     string `gorm:"type:text"`
	InvoiceAmountSats int64
	PaymentHash       string `gorm:"size:64;index"`
	ModelUsed         string `gorm:"size:128"`
	TokensPrompt      int
	TokensCompletion  int
	CreatedAt         time.Time `gorm:"index"`
	UpdatedAt         time.Time
	ResultContentHash string `gorm:"size:64"`
	ErrorMessage      string `gorm:"type:text"`
}
