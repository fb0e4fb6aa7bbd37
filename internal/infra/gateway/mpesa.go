package gateway

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stayhub/internal/app/policies"
	"stayhub/internal/domain/payment"
	"stayhub/internal/infra/config"
)

var nairobi = time.FixedZone("EAT", 3*60*60)

// Mpesa starts a Daraja STK push. The CheckoutRequestID becomes the external id
// and the verdict arrives on the M-Pesa callback.
type Mpesa struct {
	http   httpClient
	cfg    config.MpesaConfig
	tokens tokenCache
	Now    func() time.Time
}

func NewMpesa(cfg config.MpesaConfig, client *http.Client, deps Deps) *Mpesa {
	return &Mpesa{http: newHTTPClient("mpesa", client, deps.Logger), cfg: cfg, Now: deps.now()}
}

func (m *Mpesa) Method() payment.Method { return payment.MethodMpesa }

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

func (m *Mpesa) Initiate(ctx context.Context, req policies.GatewayRequest) (policies.GatewayResult, error) {
	phone := normalizeMSISDN(req.PayerContact)
	if phone == "" {
		return policies.GatewayResult{}, m.http.failf("payer phone number is required")
	}
	token, err := m.tokens.get(ctx, m.Now(), m.fetchToken)
	if err != nil {
		return policies.GatewayResult{}, err
	}
	timestamp := m.Now().In(nairobi).Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(m.cfg.ShortCode + m.cfg.Passkey + timestamp))
	body := stkPushRequest{
		BusinessShortCode: m.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            strconv.FormatInt(wholeUnits(req.Amount.Amount), 10),
		PartyA:            phone,
		PartyB:            m.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       m.callbackURL(),
		AccountReference:  "Booking-" + string(req.BookingID),
		TransactionDesc:   "Payment for booking " + string(req.BookingID),
	}
	var resp stkPushResponse
	endpoint := strings.TrimRight(m.cfg.BaseURL, "/") + "/mpesa/stkpush/v1/processrequest"
	if err := m.http.postJSON(ctx, endpoint, map[string]string{"Authorization": "Bearer " + token}, body, &resp); err != nil {
		return policies.GatewayResult{}, err
	}
	if resp.ResponseCode != "" && resp.ResponseCode != "0" {
		return policies.GatewayResult{}, m.http.failf("stk push rejected: %s", resp.ResponseDescription)
	}
	if resp.CheckoutRequestID == "" {
		return policies.GatewayResult{}, m.http.failf("stk push returned no checkout request id")
	}
	return policies.GatewayResult{
		ExternalID: resp.CheckoutRequestID,
		Message:    "M-Pesa STK Push initiated. Awaiting callback.",
		Raw: map[string]string{
			"merchant_request_id": resp.MerchantRequestID,
			"customer_message":    resp.CustomerMessage,
		},
	}, nil
}

// callbackURL appends the callback token so Daraja echoes it back.
func (m *Mpesa) callbackURL() string {
	if m.cfg.CallbackToken == "" || m.cfg.CallbackURL == "" {
		return m.cfg.CallbackURL
	}
	u, err := url.Parse(m.cfg.CallbackURL)
	if err != nil {
		return m.cfg.CallbackURL
	}
	q := u.Query()
	q.Set("token", m.cfg.CallbackToken)
	u.RawQuery = q.Encode()
	return u.String()
}

// VerifyCallback accepts STK results that carry the callback token. Daraja
// does not sign its callbacks.
func (m *Mpesa) VerifyCallback(_ context.Context, in Inbound) (Callback, error) {
	if err := checkToken("mpesa", m.cfg.CallbackToken, in.Token); err != nil {
		return Callback{}, err
	}
	return parseMpesa(in.Body)
}

func (m *Mpesa) fetchToken(ctx context.Context) (string, time.Duration, error) {
	endpoint := strings.TrimRight(m.cfg.BaseURL, "/") + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret)
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := m.http.do(req, &out); err != nil {
		return "", 0, err
	}
	if out.AccessToken == "" {
		return "", 0, m.http.failf("oauth response missing access_token")
	}
	secs, _ := strconv.Atoi(out.ExpiresIn)
	return out.AccessToken, time.Duration(secs) * time.Second, nil
}

// wholeUnits rounds minor units up to whole currency units; Daraja rejects fractions.
func wholeUnits(minor int64) int64 {
	return (minor + 99) / 100
}

// normalizeMSISDN turns 07XXXXXXXX and +2547XXXXXXXX into 2547XXXXXXXX.
func normalizeMSISDN(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") && len(digits) == 10 {
		return "254" + digits[1:]
	}
	return digits
}
