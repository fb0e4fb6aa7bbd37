package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stayhub/internal/app/policies"
	"stayhub/internal/domain/payment"
	"stayhub/internal/infra/config"
)

// Paypal creates a CAPTURE order in the PayPal currency, converting the
// booking amount with the configured rate.
type Paypal struct {
	http   httpClient
	cfg    config.PaypalConfig
	rate   string
	tokens tokenCache
	now    func() time.Time
}

func NewPaypal(cfg config.PaypalConfig, rate string, client *http.Client, deps Deps) *Paypal {
	return &Paypal{http: newHTTPClient("paypal", client, deps.Logger), cfg: cfg, rate: rate, now: deps.now()}
}

func (p *Paypal) Method() payment.Method { return payment.MethodPaypal }

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrderRequest struct {
	Intent             string `json:"intent"`
	ApplicationContext struct {
		ReturnURL string `json:"return_url,omitempty"`
		CancelURL string `json:"cancel_url,omitempty"`
	} `json:"application_context"`
	PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id"`
	CustomID    string       `json:"custom_id,omitempty"`
	Amount      paypalAmount `json:"amount"`
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

func (p *Paypal) Initiate(ctx context.Context, req policies.GatewayRequest) (policies.GatewayResult, error) {
	target := p.cfg.Currency
	if target == "" {
		target = "USD"
	}
	amount := req.Amount
	if amount.Currency != target {
		converted, err := amount.ConvertWithRate(p.rate, target)
		if err != nil {
			return policies.GatewayResult{}, p.http.failf("convert %s to %s: %v", amount.Currency, target, err)
		}
		amount = converted
	}
	token, err := p.tokens.get(ctx, p.now(), p.fetchToken)
	if err != nil {
		return policies.GatewayResult{}, err
	}

	var body paypalOrderRequest
	body.Intent = "CAPTURE"
	body.ApplicationContext.ReturnURL = req.ReturnURL
	body.ApplicationContext.CancelURL = req.CancelURL
	body.PurchaseUnits = append(body.PurchaseUnits, paypalPurchaseUnit{
		ReferenceID: req.MerchantReference,
		CustomID:    string(req.BookingID),
		Amount:      paypalAmount{CurrencyCode: amount.Currency, Value: amount.Decimal()},
	})

	var resp paypalOrderResponse
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v2/checkout/orders"
	headers := map[string]string{
		"Authorization":     "Bearer " + token,
		"PayPal-Request-Id": req.AttemptKey(),
	}
	if err := p.http.postJSON(ctx, endpoint, headers, body, &resp); err != nil {
		return policies.GatewayResult{}, err
	}
	if resp.ID == "" {
		return policies.GatewayResult{}, p.http.failf("order response missing id")
	}
	approval := ""
	for _, l := range resp.Links {
		if strings.EqualFold(l.Rel, "approve") || strings.EqualFold(l.Rel, "payer-action") {
			approval = l.Href
			break
		}
	}
	return policies.GatewayResult{
		ExternalID:  resp.ID,
		RedirectURL: approval,
		Message:     "PayPal order created. Redirect user to approval URL.",
		Raw: map[string]string{
			"order_status":     resp.Status,
			"charged_amount":   amount.Decimal(),
			"charged_currency": amount.Currency,
		},
	}, nil
}

type paypalVerifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

// VerifyCallback asks PayPal to check the transmission signature of the
// notification against the configured webhook id.
func (p *Paypal) VerifyCallback(ctx context.Context, in Inbound) (Callback, error) {
	if p.cfg.WebhookID == "" {
		return Callback{}, fmt.Errorf("%w: paypal webhook id not configured", ErrUnverifiedNotice)
	}
	cb, err := parsePaypal(in.Body)
	if err != nil {
		return Callback{}, err
	}
	sig := in.Header.Get("Paypal-Transmission-Sig")
	if sig == "" {
		return Callback{}, fmt.Errorf("%w: paypal transmission signature missing", ErrUnverifiedNotice)
	}
	token, err := p.tokens.get(ctx, p.now(), p.fetchToken)
	if err != nil {
		return Callback{}, err
	}
	body := paypalVerifyRequest{
		AuthAlgo:         in.Header.Get("Paypal-Auth-Algo"),
		CertURL:          in.Header.Get("Paypal-Cert-Url"),
		TransmissionID:   in.Header.Get("Paypal-Transmission-Id"),
		TransmissionSig:  sig,
		TransmissionTime: in.Header.Get("Paypal-Transmission-Time"),
		WebhookID:        p.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(in.Body),
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/notifications/verify-webhook-signature"
	if err := p.http.postJSON(ctx, endpoint, map[string]string{"Authorization": "Bearer " + token}, body, &out); err != nil {
		return Callback{}, err
	}
	if out.VerificationStatus != "SUCCESS" {
		return Callback{}, fmt.Errorf("%w: paypal verification status %q", ErrUnverifiedNotice, out.VerificationStatus)
	}
	return cb, nil
}

func (p *Paypal) fetchToken(ctx context.Context) (string, time.Duration, error) {
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/oauth2/token"
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := p.http.do(req, &out); err != nil {
		return "", 0, err
	}
	if out.AccessToken == "" {
		return "", 0, p.http.failf("oauth response missing access_token")
	}
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}
