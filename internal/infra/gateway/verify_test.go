package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"stayhub/internal/domain/shared/money"
	"stayhub/internal/infra/config"
)

func TestRegistryCallbackRejectsDisabledSources(t *testing.T) {
	reg := NewRegistry(&Airtel{cfg: config.AirtelConfig{CallbackToken: "tok"}})
	ctx := context.Background()

	_, err := reg.Callback(ctx, Inbound{Source: "sandbox", Body: []byte(`{"external_id":"pi_1","success":true}`)})
	assert.ErrorIs(t, err, ErrUnknownGateway)

	_, err = reg.Callback(ctx, Inbound{Source: "venmo", Body: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrUnknownGateway)

	airtel := []byte(`{"transaction":{"id":"pay-1","message":"ok","status_code":"TS"}}`)
	_, err = reg.Callback(ctx, Inbound{Source: "airtel", Body: airtel})
	assert.ErrorIs(t, err, ErrUnverifiedNotice)

	cb, err := reg.Callback(ctx, Inbound{Source: "airtel", Body: airtel, Token: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", cb.ExternalID)
	assert.True(t, cb.Success)
}

func TestSandboxCallbackToken(t *testing.T) {
	body := []byte(`{"external_id":"sbx_1","success":false}`)

	cb, err := Sandbox{}.VerifyCallback(context.Background(), Inbound{Body: body})
	require.NoError(t, err)
	assert.Equal(t, "sbx_1", cb.ExternalID)

	_, err = Sandbox{Token: "dev"}.VerifyCallback(context.Background(), Inbound{Body: body, Token: "nope"})
	assert.ErrorIs(t, err, ErrUnverifiedNotice)
}

func TestStripeCallbackSignature(t *testing.T) {
	gw := NewStripe(config.StripeConfig{SecretKey: "sk", WebhookSecret: "whsec_1"}, nil, Deps{})
	body := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_7","object":"payment_intent","last_payment_error":{"message":"Your card was declined."}}}}`)

	_, err := gw.VerifyCallback(context.Background(), Inbound{Body: body, Header: http.Header{}})
	assert.ErrorIs(t, err, ErrUnverifiedNotice)

	stale := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: body, Secret: "whsec_1", Timestamp: time.Now().Add(-time.Hour)})
	_, err = gw.VerifyCallback(context.Background(), Inbound{Body: body, Header: http.Header{"Stripe-Signature": {stale.Header}}})
	assert.ErrorIs(t, err, ErrUnverifiedNotice)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: body, Secret: "whsec_1", Timestamp: time.Now()})
	cb, err := gw.VerifyCallback(context.Background(), Inbound{Body: body, Header: http.Header{"Stripe-Signature": {signed.Header}}})
	require.NoError(t, err)
	assert.Equal(t, Callback{ExternalID: "pi_7", Success: false, Reference: "pi_7", Note: "Your card was declined."}, cb)

	unset := NewStripe(config.StripeConfig{SecretKey: "sk"}, nil, Deps{})
	_, err = unset.VerifyCallback(context.Background(), Inbound{Body: body, Header: http.Header{"Stripe-Signature": {signed.Header}}})
	assert.ErrorIs(t, err, ErrUnverifiedNotice)
}

func TestPaypalCallbackAsksPaypalToVerify(t *testing.T) {
	var verifyCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/oauth2/token":
			_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":32400}`)
		case "/v1/notifications/verify-webhook-signature":
			verifyCalls++
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			var body paypalVerifyRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "WH-1", body.WebhookID)
			assert.Equal(t, "tx-1", body.TransmissionID)
			assert.Contains(t, string(body.WebhookEvent), "ORDER-1")
			status := "FAILURE"
			if body.TransmissionSig == "good" {
				status = "SUCCESS"
			}
			_, _ = io.WriteString(w, `{"verification_status":"`+status+`"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	gw := NewPaypal(config.PaypalConfig{BaseURL: srv.URL, WebhookID: "WH-1"}, "0.0077", srv.Client(), Deps{Now: fixedNow})
	body := []byte(`{"event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","supplementary_data":{"related_ids":{"order_id":"ORDER-1"}}}}`)
	header := func(sig string) http.Header {
		return http.Header{
			"Paypal-Transmission-Id":   {"tx-1"},
			"Paypal-Transmission-Sig":  {sig},
			"Paypal-Transmission-Time": {"2024-05-01T09:30:00Z"},
			"Paypal-Auth-Algo":         {"SHA256withRSA"},
			"Paypal-Cert-Url":          {"https://api.paypal.com/cert"},
		}
	}

	_, err := gw.VerifyCallback(context.Background(), Inbound{Body: body, Header: header("forged")})
	assert.ErrorIs(t, err, ErrUnverifiedNotice)

	_, err = gw.VerifyCallback(context.Background(), Inbound{Body: body, Header: http.Header{}})
	assert.ErrorIs(t, err, ErrUnverifiedNotice)
	assert.Equal(t, 1, verifyCalls)

	cb, err := gw.VerifyCallback(context.Background(), Inbound{Body: body, Header: header("good")})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", cb.ExternalID)
	assert.True(t, cb.Success)

	unset := NewPaypal(config.PaypalConfig{BaseURL: srv.URL}, "0.0077", srv.Client(), Deps{Now: fixedNow})
	_, err = unset.VerifyCallback(context.Background(), Inbound{Body: body, Header: header("good")})
	assert.ErrorIs(t, err, ErrUnverifiedNotice)
}

func TestMpesaCallbackURLCarriesToken(t *testing.T) {
	var callback string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/v1/generate":
			_, _ = io.WriteString(w, `{"access_token":"tok","expires_in":"3599"}`)
		case "/mpesa/stkpush/v1/processrequest":
			var body stkPushRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			callback = body.CallBackURL
			_, _ = io.WriteString(w, `{"CheckoutRequestID":"ws_CO_1","ResponseCode":"0"}`)
		}
	}))
	defer srv.Close()

	gw := NewMpesa(config.MpesaConfig{
		BaseURL:       srv.URL,
		CallbackURL:   "https://stayhub.example/api/v1/payments/webhook/mpesa?src=stk",
		CallbackToken: "cb-secret",
	}, srv.Client(), Deps{Now: fixedNow})
	_, err := gw.Initiate(context.Background(), request(money.Must(5000, "KES"), "0712345678"))
	require.NoError(t, err)

	u, err := url.Parse(callback)
	require.NoError(t, err)
	assert.Equal(t, "cb-secret", u.Query().Get("token"))
	assert.Equal(t, "stk", u.Query().Get("src"))

	body := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok"}}}`)
	_, err = gw.VerifyCallback(context.Background(), Inbound{Body: body, Token: "cb-secre"})
	assert.ErrorIs(t, err, ErrUnverifiedNotice)
	cb, err := gw.VerifyCallback(context.Background(), Inbound{Body: body, Token: u.Query().Get("token")})
	require.NoError(t, err)
	assert.True(t, cb.Success)
}
