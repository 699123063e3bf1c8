// Package provider implements the DVM provider engine (spec §4.7, C8): the
// per-job pipeline that turns an incoming NIP-90 job request into feedback,
// inference, an invoice, and a published result, plus the reconciler that
// advances paid jobs forward.
//
// The run-loop shape - subscribe once, fan each event out to an independent
// goroutine, never let one job's failure stop the subscription - is the
// direct descendant of the teacher's internal/agent.Agent run loop.
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/keanuklestil/ichiba/internal/cipher"
	"github.com/keanuklestil/ichiba/internal/dvmproto"
	"github.com/keanuklestil/ichiba/internal/jobstore"
	"github.com/keanuklestil/ichiba/internal/kinderr"
	"github.com/keanuklestil/ichiba/internal/llm"
	"github.com/keanuklestil/ichiba/internal/relaypool"
	"github.com/keanuklestil/ichiba/internal/settings"
	"github.com/keanuklestil/ichiba/internal/telemetry"
	"github.com/keanuklestil/ichiba/internal/types"
	"github.com/keanuklestil/ichiba/internal/wallet"
)

const reconcilerPeriod = 120 * time.Second

// Engine is the DVM provider engine. It owns the Active/subscription
// lifecycle exclusively; everything else (pool, LLM, wallet, store) is a
// shared, non-owning handle.
type Engine struct {
	Pool     *relaypool.Pool
	LLM      llm.Provider
	Wallet   *wallet.Wallet
	Store    *jobstore.Store
	Settings *settings.Store
	Sink     telemetry.Sink

	mu               sync.Mutex
	active           bool
	sub              *relaypool.Subscription
	cancelReconciler context.CancelFunc
}

func (e *Engine) emit(category, action, label string, value float64, fields map[string]any) {
	if e.Sink == nil {
		return
	}
	e.Sink.Emit(telemetry.Event{Category: category, Action: action, Label: label, Value: value, Fields: fields})
}

// reportPartialPublishFailure emits a warning-class telemetry event listing
// the relays that rejected a publish and their reasons, per spec §4.3: a
// partial failure (at least one relay accepted, but not all did) is a
// warning, never an error.
func (e *Engine) reportPartialPublishFailure(report relaypool.PublishReport) {
	if report.Succeeded >= len(report.Results) {
		return
	}
	failures := make(map[string]any, len(report.Results)-report.Succeeded)
	for _, r := range report.Results {
		if !r.Success {
			failures[r.URL] = r.Error
		}
	}
	e.emit("relaypool", "publish_partial_failure", report.EventID, float64(len(failures)), map[string]any{"failures": failures})
}

// Active reports whether the engine currently has a live subscription.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Start subscribes to the effective configuration's supported kinds and
// begins the reconciler. Calling Start while already active is a no-op that
// logs and returns success, per spec §4.7's idempotence requirement.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.active {
		e.mu.Unlock()
		e.emit("provider", "start", "already_active", 0, nil)
		log.Printf("[Provider] start called while already active; ignoring")
		return nil
	}
	e.mu.Unlock()

	eff, err := e.Settings.Read()
	if err != nil {
		return err
	}
	if eff.DVMPrivateKeyHex == "" {
		return kinderr.New(kinderr.Config, "DVM private key is not configured")
	}
	if len(eff.Relays) == 0 {
		return kinderr.New(kinderr.Config, "DVM relay set is empty")
	}
	if len(eff.SupportedKinds) == 0 {
		return kinderr.New(kinderr.Config, "DVM supported_kinds is empty")
	}

	filter := nostr.Filter{
		Kinds: eff.SupportedKinds,
		Since: timestampPtr(time.Now().Add(-300 * time.Second)),
	}

	sub, err := e.Pool.Subscribe(ctx, filter, eff.Relays, func(ev types.Event) {
		go e.handleEvent(ev, eff.DVMPublicKeyHex)
	})
	if err != nil {
		return err
	}

	reconcilerCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.active = true
	e.sub = sub
	e.cancelReconciler = cancel
	e.mu.Unlock()

	go e.runReconciler(reconcilerCtx)

	e.emit("provider", "start", "started", 0, map[string]any{"kinds": eff.SupportedKinds})
	log.Printf("[Provider] started, subscribed to kinds %v on %d relays", eff.SupportedKinds, len(eff.Relays))
	return nil
}

// Stop cancels the subscription and reconciler. Calling Stop while already
// inactive is a no-op that logs and returns success. In-flight job
// pipelines are allowed to run to completion; their publishes may fail
// silently once the subscription is torn down, per spec §5.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		e.emit("provider", "stop", "already_inactive", 0, nil)
		log.Printf("[Provider] stop called while already inactive; ignoring")
		return
	}
	sub := e.sub
	cancel := e.cancelReconciler
	e.active = false
	e.sub = nil
	e.cancelReconciler = nil
	e.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if cancel != nil {
		cancel()
	}
	e.emit("provider", "stop", "stopped", 0, nil)
	log.Printf("[Provider] stopped")
}

func timestampPtr(t time.Time) *nostr.Timestamp {
	ts := nostr.Timestamp(t.Unix())
	return &ts
}

// handleEvent is the per-job pipeline (spec §4.7). It runs as an
// independent goroutine per event so one job's failure never blocks
// another, and so the subscription callback never blocks on it.
func (e *Engine) handleEvent(ev types.Event, dvmPubHex string) {
	ctx := context.Background()

	// Step 1: drop self-authored events and any reply-kind events.
	if ev.PubKey == dvmPubHex {
		return
	}
	if dvmproto.IsJobResult(ev.Kind) || dvmproto.IsJobFeedback(ev.Kind) {
		return
	}
	if !dvmproto.IsJobRequest(ev.Kind) {
		return
	}

	// Step 2: resolve effective config fresh for this job.
	eff, err := e.Settings.Read()
	if err != nil {
		log.Printf("[Provider] settings unavailable, dropping job for event %s: %v", ev.ID, err)
		return
	}

	event := toNostrEvent(ev)

	// Step 3: parse (and decrypt, if marked) the request.
	req, err := dvmproto.ParseJobRequest(event, eff.DVMPrivateKeyHex)
	if err != nil {
		e.recordError(ctx, ev, "", "", eff.DVMPrivateKeyHex, "error", "failed to parse job request: "+err.Error())
		log.Printf("[Provider] parse job request %s failed: %v", ev.ID, err)
		return
	}

	// Step 4: require a non-empty text input.
	prompt, ok := firstTextInput(req)
	if !ok {
		e.publishFeedback(ctx, event, eff.DVMPrivateKeyHex, dvmproto.StatusError, "no text input", 0, 0, "")
		e.recordJob(ctx, req, jobstore.StatusError, "no text input")
		return
	}

	// Step 5: processing feedback.
	e.publishFeedback(ctx, event, eff.DVMPrivateKeyHex, dvmproto.StatusProcessing, "", 0, 0, "")

	// Step 6: inference.
	model, hasModel := req.Param("model")
	if !hasModel || model == "" {
		model = eff.TextJobDefaults.Model
	}
	llmCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	output, usage, err := e.LLM.Complete(llmCtx, llm.CompletionRequest{
		Model:       model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   eff.TextJobDefaults.MaxTokens,
		Temperature: eff.TextJobDefaults.Temperature,
	})
	cancel()
	if err != nil {
		e.publishFeedback(ctx, event, eff.DVMPrivateKeyHex, dvmproto.StatusError, "inference failed", 0, 0, "")
		e.recordJob(ctx, req, jobstore.StatusError, "inference failed: "+err.Error())
		log.Printf("[Provider] inference failed for job %s: %v", ev.ID, err)
		return
	}

	// Token usage: use the backend's reported usage when it provides one;
	// fall back to the length/4 heuristic (spec §4.7 step 6) only when it
	// omits usage entirely.
	tokensPrompt, tokensCompletion := usage.PromptTokens, usage.CompletionTokens
	totalTokens := usage.TotalTokens
	if totalTokens == 0 {
		tokensPrompt = heuristicTokens(prompt)
		tokensCompletion = heuristicTokens(output)
		totalTokens = tokensPrompt + tokensCompletion
	}

	// Step 7: pricing.
	priceSats := priceForTokens(totalTokens, eff.TextJobDefaults.MinPriceSats, eff.TextJobDefaults.PricePer1kTokens)

	// Step 8: invoice.
	invCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	invoice, err := e.Wallet.CreateInvoice(invCtx, wallet.CreateInvoiceRequest{
		AmountSats: priceSats,
		Memo:       fmt.Sprintf("ichiba job %s", ev.ID),
	})
	cancel()
	if err != nil {
		e.publishFeedback(ctx, event, eff.DVMPrivateKeyHex, dvmproto.StatusError, "invoice creation failed", 0, 0, "")
		e.recordJob(ctx, req, jobstore.StatusError, "invoice creation failed: "+err.Error())
		log.Printf("[Provider] invoice creation failed for job %s: %v", ev.ID, err)
		return
	}

	// Step 9: encrypt the output back to the requester if the request was.
	wireOutput := output
	if req.Encrypted {
		wireOutput, err = cipher.EncryptFor(output, eff.DVMPrivateKeyHex, req.Customer)
		if err != nil {
			e.publishFeedback(ctx, event, eff.DVMPrivateKeyHex, dvmproto.StatusError, "encrypting result failed", 0, 0, "")
			e.recordJob(ctx, req, jobstore.StatusError, "encrypting result failed: "+err.Error())
			return
		}
	}

	// Step 10: publish the result event. A malformed request kind is
	// clamped into the valid result range rather than rejecting the job;
	// record that as an error-class telemetry event instead.
	amountMillisat := priceSats * 1000
	resultEvent, clamped, err := dvmproto.BuildJobResultEvent(event, wireOutput, "text", amountMillisat, invoice.PaymentRequest, eff.DVMPrivateKeyHex, req.Encrypted)
	if err != nil {
		e.publishFeedback(ctx, event, eff.DVMPrivateKeyHex, dvmproto.StatusError, "building result event failed", 0, 0, "")
		e.recordJob(ctx, req, jobstore.StatusError, "building result event failed: "+err.Error())
		return
	}
	if clamped {
		e.emit("dvmproto", "error", ev.ID, float64(req.Kind), map[string]any{"reason": "result kind clamped to valid range", "request_kind": req.Kind})
	}
	report, err := e.Pool.PublishEvent(ctx, resultEvent, eff.Relays)
	if err != nil {
		log.Printf("[Provider] publishing result for job %s failed: %v", ev.ID, err)
	} else {
		e.reportPartialPublishFailure(report)
	}

	// Step 11: success feedback and job record.
	e.publishFeedback(ctx, event, eff.DVMPrivateKeyHex, dvmproto.StatusSuccess, "", 0, amountMillisat, invoice.PaymentRequest)

	rec := &jobstore.Record{
		ID:                ev.ID,
		RequestEventID:    ev.ID,
		RequesterPubkey:   req.Customer,
		Kind:              req.Kind,
		InputPreview:      preview(prompt),
		Status:            jobstore.StatusPendingPayment,
		InvoiceBolt11:     invoice.PaymentRequest,
		InvoiceAmountSats: priceSats,
		PaymentHash:       invoice.PaymentHash,
		ModelUsed:         model,
		TokensPrompt:      tokensPrompt,
		TokensCompletion:  tokensCompletion,
		ResultContentHash: contentHash(output),
	}
	if err := e.Store.Create(ctx, rec); err != nil {
		log.Printf("[Provider] recording job record for %s failed: %v", ev.ID, err)
	}
	e.emit("provider", "job_completed", ev.ID, float64(priceSats), map[string]any{"model": model, "tokens": totalTokens})
}

func (e *Engine) publishFeedback(ctx context.Context, reqEvent *nostr.Event, skHex string, status dvmproto.Status, extra string, percentage int, amountMillisat int64, bolt11 string) {
	fb, err := dvmproto.BuildJobFeedbackEvent(reqEvent, status, extra, percentage, amountMillisat, bolt11, skHex)
	if err != nil {
		log.Printf("[Provider] building feedback event failed: %v", err)
		return
	}
	report, err := e.Pool.PublishEvent(ctx, fb, nil)
	if err != nil {
		log.Printf("[Provider] publishing feedback event failed: %v", err)
		return
	}
	e.reportPartialPublishFailure(report)
}

// recordError publishes an error feedback for a request that failed before
// it could even be parsed into a JobRequest, and records a best-effort job
// record from only the raw event.
func (e *Engine) recordError(ctx context.Context, ev types.Event, requesterPubkey, kindStr, skHex string, status dvmproto.Status, message string) {
	event := toNostrEvent(ev)
	e.publishFeedback(ctx, event, skHex, dvmproto.StatusError, message, 0, 0, "")

	rec := &jobstore.Record{
		ID:              ev.ID,
		RequestEventID:  ev.ID,
		RequesterPubkey: ev.PubKey,
		Kind:            ev.Kind,
		Status:          jobstore.StatusError,
		ErrorMessage:    message,
	}
	if err := e.Store.Create(ctx, rec); err != nil {
		log.Printf("[Provider] recording error job record for %s failed: %v", ev.ID, err)
	}
}

func (e *Engine) recordJob(ctx context.Context, req *dvmproto.JobRequest, status jobstore.Status, errMsg string) {
	rec := &jobstore.Record{
		ID:              req.EventID,
		RequestEventID:  req.EventID,
		RequesterPubkey: req.Customer,
		Kind:            req.Kind,
		Status:          status,
		ErrorMessage:    errMsg,
	}
	if err := e.Store.Create(ctx, rec); err != nil {
		log.Printf("[Provider] recording job record for %s failed: %v", req.EventID, err)
	}
}

// runReconciler advances pending-payment jobs toward paid/error every
// reconcilerPeriod, checking the cancellation token between iterations, not
// during one (spec §9). It is serialized against itself but never against
// job processing.
func (e *Engine) runReconciler(ctx context.Context) {
	ticker := time.NewTicker(reconcilerPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reconcileOnce(ctx)
		}
	}
}

func (e *Engine) reconcileOnce(ctx context.Context) {
	pending, err := e.Store.ListPendingPayment(ctx)
	if err != nil {
		log.Printf("[Provider] reconciler: listing pending-payment jobs failed: %v", err)
		return
	}

	for _, rec := range pending {
		if rec.InvoiceBolt11 == "" {
			continue
		}
		inv, err := e.Wallet.CheckInvoiceStatus(ctx, rec.InvoiceBolt11)
		if err != nil {
			log.Printf("[Provider] reconciler: checking invoice for job %s failed: %v", rec.ID, err)
			continue
		}
		switch inv.Status {
		case wallet.InvoiceStatusPaid:
			if err := e.Store.UpdateStatus(ctx, rec.ID, jobstore.StatusPaid, map[string]any{
				"invoice_amount_sats": inv.AmountPaidSats,
			}); err != nil {
				log.Printf("[Provider] reconciler: marking job %s paid failed: %v", rec.ID, err)
			}
		case wallet.InvoiceStatusExpired:
			if err := e.Store.UpdateStatus(ctx, rec.ID, jobstore.StatusError, map[string]any{
				"error_message": "invoice expired before payment",
			}); err != nil {
				log.Printf("[Provider] reconciler: marking job %s expired failed: %v", rec.ID, err)
			}
		}
	}
}

func toNostrEvent(ev types.Event) *nostr.Event {
	tags := make(nostr.Tags, len(ev.Tags))
	for i, t := range ev.Tags {
		tags[i] = nostr.Tag(t)
	}
	return &nostr.Event{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		CreatedAt: nostr.Timestamp(ev.CreatedAt),
		Kind:      ev.Kind,
		Tags:      tags,
		Content:   ev.Content,
	}
}

func firstTextInput(req *dvmproto.JobRequest) (string, bool) {
	for _, in := range req.Inputs {
		if in.Type == "text" && in.Data != "" {
			return in.Data, true
		}
	}
	return "", false
}

// heuristicTokens approximates a token count as len/4 when the backend
// doesn't report real usage (spec §4.7 step 6).
func heuristicTokens(s string) int {
	return len(s) / 4
}

// priceForTokens computes ceil(totalTokens/1000 * pricePer1kTokens), floored
// at minPriceSats (spec §4.7 step 7 and §8's "token count 0 -> price =
// min_price_sats exactly" boundary).
func priceForTokens(totalTokens int, minPriceSats int64, pricePer1kTokens float64) int64 {
	computed := int64(math.Ceil(float64(totalTokens) / 1000 * pricePer1kTokens))
	if computed < minPriceSats {
		return minPriceSats
	}
	return computed
}

func preview(s string) string {
	if len(s) > 256 {
		return s[:256]
	}
	return s
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
