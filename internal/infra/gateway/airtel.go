package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"stayhub/internal/app/policies"
	"stayhub/internal/domain/payment"
	"stayhub/internal/infra/config"
)

// Airtel requests a collection from an Airtel Money wallet. The attempt key
// is sent as the transaction id, so callbacks echo it back.
type Airtel struct {
	http   httpClient
	cfg    config.AirtelConfig
	tokens tokenCache
	now    func() time.Time
}

func NewAirtel(cfg config.AirtelConfig, client *http.Client, deps Deps) *Airtel {
	return &Airtel{http: newHTTPClient("airtel", client, deps.Logger), cfg: cfg, now: deps.now()}
}

func (a *Airtel) Method() payment.Method { return payment.MethodAirtel }

type airtelCollectionRequest struct {
	Reference  string `json:"reference"`
	Subscriber struct {
		Country  string `json:"country"`
		Currency string `json:"currency"`
		MSISDN   string `json:"msisdn"`
	} `json:"subscriber"`
	Transaction struct {
		Amount   string `json:"amount"`
		Country  string `json:"country"`
		Currency string `json:"currency"`
		ID       string `json:"id"`
	} `json:"transaction"`
}

type airtelCollectionResponse struct {
	Data struct {
		Transaction struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"transaction"`
	} `json:"data"`
	Status struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		Success    bool   `json:"success"`
		ResultCode string `json:"result_code"`
	} `json:"status"`
}

func (a *Airtel) Initiate(ctx context.Context, req policies.GatewayRequest) (policies.GatewayResult, error) {
	msisdn := normalizeMSISDN(req.PayerContact)
	if msisdn == "" {
		return policies.GatewayResult{}, a.http.failf("payer phone number is required")
	}
	token, err := a.tokens.get(ctx, a.now(), a.fetchToken)
	if err != nil {
		return policies.GatewayResult{}, err
	}
	var body airtelCollectionRequest
	body.Reference = "Payment for booking " + string(req.BookingID)
	body.Subscriber.Country = a.cfg.Country
	body.Subscriber.Currency = req.Amount.Currency
	// Airtel expects the number without the country code.
	body.Subscriber.MSISDN = strings.TrimPrefix(msisdn, "254")
	body.Transaction.Amount = req.Amount.Decimal()
	body.Transaction.Country = a.cfg.Country
	body.Transaction.Currency = req.Amount.Currency
	body.Transaction.ID = req.AttemptKey()

	headers := map[string]string{
		"Authorization": "Bearer " + token,
		"X-Country":     a.cfg.Country,
		"X-Currency":    req.Amount.Currency,
	}
	var resp airtelCollectionResponse
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/merchant/v1/payments/"
	if err := a.http.postJSON(ctx, endpoint, headers, body, &resp); err != nil {
		return policies.GatewayResult{}, err
	}
	if !resp.Status.Success && resp.Status.Code != "" && resp.Status.Code != "200" {
		return policies.GatewayResult{}, a.http.failf("collection rejected: %s", resp.Status.Message)
	}
	externalID := resp.Data.Transaction.ID
	if externalID == "" {
		externalID = body.Transaction.ID
	}
	return policies.GatewayResult{
		ExternalID: externalID,
		Message:    "Airtel Money payment requested. Check transaction progress.",
		Raw: map[string]string{
			"transaction_status": resp.Data.Transaction.Status,
			"result_code":        resp.Status.ResultCode,
		},
	}, nil
}

// VerifyCallback accepts notifications that carry the callback token
// registered with Airtel.
func (a *Airtel) VerifyCallback(_ context.Context, in Inbound) (Callback, error) {
	if err := checkToken("airtel", a.cfg.CallbackToken, in.Token); err != nil {
		return Callback{}, err
	}
	return parseAirtel(in.Body)
}

func (a *Airtel) fetchToken(ctx context.Context) (string, time.Duration, error) {
	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/auth/oauth2/token"
	body := map[string]string{
		"client_id":     a.cfg.ClientID,
		"client_secret": a.cfg.ClientSecret,
		"grant_type":    "client_credentials",
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := a.http.postJSON(ctx, endpoint, nil, body, &out); err != nil {
		return "", 0, err
	}
	if out.AccessToken == "" {
		return "", 0, a.http.failf("oauth response missing access_token")
	}
	return out.AccessToken, time.Duration(out.ExpiresIn) * time.Second, nil
}
