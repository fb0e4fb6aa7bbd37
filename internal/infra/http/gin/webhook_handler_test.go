package ginserver

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"

	"stayhub/internal/app/dto"
	paymentsapp "stayhub/internal/app/handlers/payments"
	"stayhub/internal/infra/config"
	"stayhub/internal/infra/gateway"
	"stayhub/internal/infra/obs"
)

const stripeSucceeded = `{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_3Nabc","object":"payment_intent"}}}`

func newWebhookRouter(cmds *fakeCommands, reg *gateway.Registry) *gin.Engine {
	h := Handlers{Webhook: WebhookHandler{Commands: cmds, Callbacks: reg}}
	return NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, h)
}

func postWebhook(r http.Handler, path, body string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func productionGateways() *gateway.Registry {
	cfg := config.Fallback()
	cfg.Env = "prod"
	cfg.Gateways.Sandbox = false
	cfg.Gateways.Stripe = config.StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"}
	cfg.Gateways.Mpesa = config.MpesaConfig{BaseURL: "https://mpesa.invalid", CallbackToken: "cb-secret"}
	return gateway.Build(cfg, nil, gateway.Deps{})
}

func TestWebhookDropsSandboxVerdictWhenSandboxDisabled(t *testing.T) {
	cmds := &fakeCommands{result: &dto.ReconcileResult{Matched: true}}
	r := newWebhookRouter(cmds, productionGateways())

	rec := postWebhook(r, "/api/v1/payments/webhook/sandbox", `{"external_id":"pi_3Nabc","success":true}`, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"received"}`, rec.Body.String())
	assert.Empty(t, cmds.got)
}

func TestWebhookRequiresStripeSignature(t *testing.T) {
	cmds := &fakeCommands{result: &dto.ReconcileResult{Matched: true}}
	r := newWebhookRouter(cmds, productionGateways())

	rec := postWebhook(r, "/api/v1/payments/webhook/stripe", stripeSucceeded, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(stripeSucceeded),
		Secret:    "whsec_other",
		Timestamp: time.Now(),
	})
	rec = postWebhook(r, "/api/v1/payments/webhook/stripe", stripeSucceeded, http.Header{"Stripe-Signature": {forged.Header}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, cmds.got)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(stripeSucceeded),
		Secret:    "whsec_test",
		Timestamp: time.Now(),
	})
	rec = postWebhook(r, "/api/v1/payments/webhook/stripe", stripeSucceeded, http.Header{"Stripe-Signature": {signed.Header}})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, cmds.got, 1)
	cmd := cmds.got[0].(paymentsapp.ReconcilePaymentCommand)
	assert.Equal(t, "pi_3Nabc", cmd.ExternalID)
	assert.True(t, cmd.Success)
	assert.Equal(t, "stripe", cmd.Method)
}

func TestWebhookRequiresMpesaCallbackToken(t *testing.T) {
	cmds := &fakeCommands{result: &dto.ReconcileResult{Matched: true}}
	r := newWebhookRouter(cmds, productionGateways())
	body := `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0,"ResultDesc":"ok"}}}`

	for _, path := range []string{
		"/api/v1/payments/webhook/mpesa",
		"/api/v1/payments/webhook/mpesa?token=guess",
	} {
		rec := postWebhook(r, path, body, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, cmds.got)

	rec := postWebhook(r, "/api/v1/payments/webhook/mpesa?token=cb-secret", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, cmds.got, 1)
	assert.Equal(t, "ws_CO_1", cmds.got[0].(paymentsapp.ReconcilePaymentCommand).ExternalID)
}
