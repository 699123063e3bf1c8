package wallet

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/lightningnetwork/lnd/zpay32"
)

const defaultInvoiceExpirySecs = 900

// Wallet is a Lightning wallet adapter backed by an LND node's REST API.
// Construction is synchronous and cheap; Init performs the actual dial and
// must be awaited before any other method is called. Calling a method
// before Init completes returns a ServiceUnavailable-flavored Connection
// error rather than blocking or racing the dial.
type Wallet struct {
	client *client
	ready  atomic.Bool
}

// New constructs a Wallet for cfg without performing any I/O. Call Init to
// bring it up; New itself never fails synchronously because synchronous
// initialization of the wallet SDK is the bug class this adapter avoids.
func New(cfg Config) *Wallet {
	return &Wallet{client: newClient(cfg)}
}

// Init asynchronously validates cfg and dials the node once to confirm it
// answers. The caller (the runtime's async bootstrap) must await this
// before treating the wallet as usable.
func (w *Wallet) Init(ctx context.Context) error {
	if err := w.client.config().validate(); err != nil {
		return err
	}
	if _, err := w.getInfo(ctx); err != nil {
		return err
	}
	w.ready.Store(true)
	return nil
}

func (w *Wallet) requireReady() error {
	if !w.ready.Load() {
		return newErr(Connection, "wallet has not completed initialization")
	}
	return nil
}

type nodeInfo struct {
	IdentityPubkey string `json:"identity_pubkey"`
	SyncedToChain  bool   `json:"synced_to_chain"`
	SyncedToGraph  bool   `json:"synced_to_graph"`
}

func (w *Wallet) getInfo(ctx context.Context) (*nodeInfo, error) {
	resp, err := w.client.doRequest(ctx, http.MethodGet, "/v1/getinfo", nil)
	if err != nil {
		return nil, err
	}
	var info nodeInfo
	if err := decodeJSON(resp, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CreateInvoice creates a new Lightning invoice for req.AmountSats.
func (w *Wallet) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	if req.AmountSats <= 0 {
		return nil, newErr(Validation, "amount_sats must be positive")
	}
	if err := w.requireReady(); err != nil {
		return nil, err
	}

	expiry := req.ExpirySecs
	if expiry <= 0 {
		expiry = defaultInvoiceExpirySecs
	}

	body := map[string]any{
		"value":  req.AmountSats,
		"memo":   req.Memo,
		"expiry": expiry,
	}
	resp, err := w.client.doRequest(ctx, http.MethodPost, "/v1/invoices", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		RHash          string `json:"r_hash"`
		PaymentRequest string `json:"payment_request"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}

	rHashBytes, err := base64.StdEncoding.DecodeString(result.RHash)
	if err != nil {
		return nil, wrapErr(Internal, "decode payment hash", err)
	}

	return &Invoice{
		PaymentRequest: result.PaymentRequest,
		PaymentHash:    hex.EncodeToString(rHashBytes),
		AmountSats:     req.AmountSats,
		ExpiresAt:      time.Now().Add(time.Duration(expiry) * time.Second),
		Memo:           req.Memo,
		Status:         InvoiceStatusPending,
	}, nil
}

// PayInvoice pays target, which may be a bolt11 invoice, a bech32 LNURL, or
// a lightning address (LUD-16). LNURL/address targets are resolved to a
// bolt11 invoice first via the LUD-06/LUD-16 pay flow.
func (w *Wallet) PayInvoice(ctx context.Context, req PayInvoiceRequest) (*PaymentResult, error) {
	if req.Bolt11 == "" {
		return nil, newErr(Validation, "bolt11 (or lnurl/lightning address) is required")
	}
	if req.MaxFeeSats < 0 {
		return nil, newErr(Validation, "max_fee_sats must not be negative")
	}
	if err := w.requireReady(); err != nil {
		return nil, err
	}

	bolt11 := req.Bolt11
	if looksLikeLnurlTarget(bolt11) {
		resolved, err := resolveLnurlPay(ctx, bolt11, req.MaxFeeSats)
		if err != nil {
			return nil, err
		}
		bolt11 = resolved
	}

	body := map[string]any{
		"payment_request": bolt11,
	}
	if req.MaxFeeSats > 0 {
		body["fee_limit_sat"] = req.MaxFeeSats
	}
	if req.TimeoutSecs > 0 {
		body["timeout_seconds"] = req.TimeoutSecs
	}

	resp, err := w.client.doRequest(ctx, http.MethodPost, "/v2/router/send", body)
	if err != nil {
		return nil, err
	}

	var result struct {
		PaymentError    string `json:"payment_error"`
		PaymentHash     string `json:"payment_hash"`
		PaymentPreimage string `json:"payment_preimage"`
		FeeSat          string `json:"fee_sat"`
		Status          string `json:"status"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}

	if result.PaymentError != "" || result.Status == "FAILED" {
		reason := result.PaymentError
		if reason == "" {
			reason = "payment failed"
		}
		return nil, wrapErr(Transaction, "payment failed", fmt.Errorf("%s", reason))
	}

	var feeSats int64
	fmt.Sscanf(result.FeeSat, "%d", &feeSats)

	return &PaymentResult{
		PaymentHash:     result.PaymentHash,
		PaymentPreimage: result.PaymentPreimage,
		FeeSats:         feeSats,
		Succeeded:       true,
	}, nil
}

// Balance returns the wallet's current channel balance.
func (w *Wallet) Balance(ctx context.Context) (*Balance, error) {
	if err := w.requireReady(); err != nil {
		return nil, err
	}

	resp, err := w.client.doRequest(ctx, http.MethodGet, "/v1/balance/channels", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		LocalBalance string `json:"local_balance"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}

	var sats int64
	fmt.Sscanf(result.LocalBalance, "%d", &sats)

	return &Balance{Sats: sats}, nil
}

// SingleUseDepositAddress returns a fresh on-chain address scoped to this
// wallet's AccountIndex, meant to be used once.
func (w *Wallet) SingleUseDepositAddress(ctx context.Context) (string, error) {
	if err := w.requireReady(); err != nil {
		return "", err
	}

	cfg := w.client.config()
	path := fmt.Sprintf("/v1/newaddress?type=0&account=account-%d", cfg.AccountIndex)
	resp, err := w.client.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}

	var result struct {
		Address string `json:"address"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return "", err
	}
	if result.Address == "" {
		return "", newErr(Internal, "node returned an empty address")
	}
	return result.Address, nil
}

// CheckInvoiceStatus looks up an invoice by its bolt11 payment request.
func (w *Wallet) CheckInvoiceStatus(ctx context.Context, bolt11 string) (*Invoice, error) {
	if bolt11 == "" {
		return nil, newErr(Validation, "bolt11 is required")
	}
	if err := w.requireReady(); err != nil {
		return nil, err
	}

	hashBytes, err := paymentHashFromBolt11(bolt11)
	if err != nil {
		return nil, err
	}
	hashB64 := base64.URLEncoding.EncodeToString(hashBytes)

	resp, err := w.client.doRequest(ctx, http.MethodGet, "/v1/invoice/"+hashB64, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return &Invoice{PaymentRequest: bolt11, Status: InvoiceStatusError}, nil
	}

	var result struct {
		Memo         string `json:"memo"`
		Value        string `json:"value"`
		Settled      bool   `json:"settled"`
		SettleDate   string `json:"settle_date"`
		CreationDate string `json:"creation_date"`
		Expiry       string `json:"expiry"`
		AmtPaidSat   string `json:"amt_paid_sat"`
		State        string `json:"state"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return nil, err
	}

	var amountSats, amountPaid, creationTs, expirySecs int64
	fmt.Sscanf(result.Value, "%d", &amountSats)
	fmt.Sscanf(result.AmtPaidSat, "%d", &amountPaid)
	fmt.Sscanf(result.CreationDate, "%d", &creationTs)
	fmt.Sscanf(result.Expiry, "%d", &expirySecs)

	var expiresAt time.Time
	if creationTs > 0 {
		expiresAt = time.Unix(creationTs, 0).Add(time.Duration(expirySecs) * time.Second)
	}

	var settledAt *time.Time
	if result.Settled {
		var settleTs int64
		fmt.Sscanf(result.SettleDate, "%d", &settleTs)
		if settleTs > 0 {
			t := time.Unix(settleTs, 0)
			settledAt = &t
		}
	}
	status := classifyInvoiceStatus(result.Settled, result.State, expiresAt, time.Now())

	return &Invoice{
		PaymentRequest: bolt11,
		Memo:           result.Memo,
		AmountSats:     amountSats,
		AmountPaidSats: amountPaid,
		ExpiresAt:      expiresAt,
		Status:         status,
		SettledAt:      settledAt,
	}, nil
}

// classifyInvoiceStatus derives the InvoiceStatus from LND's lookup-invoice
// response: settled wins outright, a CANCELED state (LND's own terminal
// marker for an invoice that timed out unpaid) is expired, and otherwise an
// invoice past its creation_date+expiry without being settled is expired
// too - older lnd releases don't always set state to CANCELED for an
// invoice that simply aged out, so the time-based check is the fallback,
// not a replacement.
func classifyInvoiceStatus(settled bool, state string, expiresAt, now time.Time) InvoiceStatus {
	switch {
	case settled:
		return InvoiceStatusPaid
	case state == "CANCELED":
		return InvoiceStatusExpired
	case !expiresAt.IsZero() && now.After(expiresAt):
		return InvoiceStatusExpired
	default:
		return InvoiceStatusPending
	}
}

// CheckWalletStatus reports whether the node is reachable and synced.
func (w *Wallet) CheckWalletStatus(ctx context.Context) bool {
	if err := w.requireReady(); err != nil {
		return false
	}
	info, err := w.getInfo(ctx)
	if err != nil {
		return false
	}
	return info.SyncedToChain
}

// paymentHashFromBolt11 decodes bolt11 to recover its payment hash, since
// LND's invoice-lookup endpoint is keyed by hash, not by the invoice string
// itself.
func paymentHashFromBolt11(bolt11 string) ([]byte, error) {
	invoice, err := zpay32.Decode(bolt11, &chaincfg.MainNetParams)
	if err != nil {
		return nil, wrapErr(Validation, "malformed bolt11 invoice", err)
	}
	if invoice.PaymentHash == nil {
		return nil, newErr(Validation, "bolt11 invoice carries no payment hash")
	}
	return invoice.PaymentHash[:], nil
}
