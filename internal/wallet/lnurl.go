package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fiatjaf/go-lnurl"
)

// looksLikeLnurlTarget reports whether target is an LNURL string or a
// lightning address (user@domain, LUD-16) rather than a bare bolt11 invoice.
func looksLikeLnurlTarget(target string) bool {
	lower := strings.ToLower(strings.TrimSpace(target))
	if strings.HasPrefix(lower, "lnurl1") || strings.HasPrefix(lower, "lightning:lnurl1") {
		return true
	}
	return strings.Contains(target, "@") && !strings.HasPrefix(lower, "lnbc")
}

// resolveLnurlPay turns an LNURL or lightning-address target plus an amount
// into a bolt11 invoice by running the LUD-06/LUD-16 pay flow: decode the
// target to a callback URL, request an invoice for amountSats, and return
// the bolt11 string. Any failure in this flow is a LnurlError, distinct
// from a Network failure talking to the wallet's own node.
func resolveLnurlPay(ctx context.Context, target string, amountSats int64) (string, error) {
	callbackURL, err := lnurlPayCallback(target)
	if err != nil {
		return "", err
	}

	query := callbackURL.Query()
	query.Set("amount", fmt.Sprintf("%d", amountSats*1000))
	callbackURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, callbackURL.String(), nil)
	if err != nil {
		return "", wrapErr(Internal, "build lnurl-pay request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", wrapErr(Network, "fetch lnurl-pay callback", err)
	}
	defer resp.Body.Close()

	var invoiceResp lnurl.LNURLPayResponse2
	if err := json.NewDecoder(resp.Body).Decode(&invoiceResp); err != nil {
		return "", wrapErr(LnurlError, "decode lnurl-pay invoice response", err)
	}
	if invoiceResp.Status == "ERROR" {
		return "", newErr(LnurlError, invoiceResp.Reason)
	}
	if invoiceResp.PR == "" {
		return "", newErr(LnurlError, "lnurl-pay response carried no invoice")
	}
	return invoiceResp.PR, nil
}

// lnurlPayCallback resolves target (a bech32 LNURL or a LUD-16 lightning
// address) down to the callback URL a pay request is issued against.
func lnurlPayCallback(target string) (*url.URL, error) {
	if strings.Contains(target, "@") {
		parts := strings.SplitN(target, "@", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, newErr(LnurlError, "malformed lightning address")
		}
		resp, err := fetchLnurlPayResponse(fmt.Sprintf("https://%s/.well-known/lnurlp/%s", parts[1], parts[0]))
		if err != nil {
			return nil, err
		}
		return url.Parse(resp.Callback)
	}

	rawurl, params, err := lnurl.HandleLNURL(target)
	if err != nil {
		return nil, wrapErr(LnurlError, "decode lnurl", err)
	}
	payParams, ok := params.(lnurl.LNURLPayResponse1)
	if !ok {
		return nil, newErr(LnurlError, fmt.Sprintf("lnurl %s is not a pay request", rawurl))
	}
	return url.Parse(payParams.Callback)
}

func fetchLnurlPayResponse(metadataURL string) (*lnurl.LNURLPayResponse1, error) {
	resp, err := http.Get(metadataURL)
	if err != nil {
		return nil, wrapErr(Network, "fetch lnurlp metadata", err)
	}
	defer resp.Body.Close()

	var out lnurl.LNURLPayResponse1
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, wrapErr(LnurlError, "decode lnurlp metadata", err)
	}
	if out.Status == "ERROR" {
		return nil, newErr(LnurlError, out.Reason)
	}
	return &out, nil
}
