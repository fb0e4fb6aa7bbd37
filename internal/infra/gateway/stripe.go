package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v76"
	stripeclient "github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"stayhub/internal/app/policies"
	"stayhub/internal/domain/payment"
	"stayhub/internal/infra/config"
)

// Stripe creates a PaymentIntent; the client confirms it with the returned secret.
type Stripe struct {
	api    *stripeclient.API
	cfg    config.StripeConfig
	logger *slog.Logger
}

func NewStripe(cfg config.StripeConfig, client *http.Client, deps Deps) *Stripe {
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        client,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.BaseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Stripe{
		api:    stripeclient.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}),
		cfg:    cfg,
		logger: logger.With("gateway", "stripe"),
	}
}

func (s *Stripe) Method() payment.Method { return payment.MethodStripe }

func (s *Stripe) Initiate(ctx context.Context, req policies.GatewayRequest) (policies.GatewayResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount.Amount),
		Currency: stripe.String(strings.ToLower(req.Amount.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("booking_id", string(req.BookingID))
	params.AddMetadata("payment_id", req.MerchantReference)
	params.SetIdempotencyKey(req.AttemptKey())

	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			s.logger.Error("payment intent rejected", "status", stripeErr.HTTPStatusCode, "code", stripeErr.Code, "message", stripeErr.Msg)
			return policies.GatewayResult{}, gatewayErr("stripe", "status %d: %s", stripeErr.HTTPStatusCode, stripeErr.Msg)
		}
		s.logger.Error("payment intent request failed", "error", err)
		return policies.GatewayResult{}, gatewayErr("stripe", "request failed: %v", err)
	}
	if intent.ID == "" {
		return policies.GatewayResult{}, gatewayErr("stripe", "payment intent response missing id")
	}
	return policies.GatewayResult{
		ExternalID:   intent.ID,
		ClientSecret: intent.ClientSecret,
		Message:      "Stripe PaymentIntent created. Confirm on client.",
		Raw:          map[string]string{"intent_status": string(intent.Status)},
	}, nil
}

// VerifyCallback checks the Stripe-Signature header against the endpoint secret.
func (s *Stripe) VerifyCallback(_ context.Context, in Inbound) (Callback, error) {
	if s.cfg.WebhookSecret == "" {
		return Callback{}, fmt.Errorf("%w: stripe webhook secret not configured", ErrUnverifiedNotice)
	}
	event, err := webhook.ConstructEventWithOptions(in.Body, in.Header.Get("Stripe-Signature"), s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return Callback{}, fmt.Errorf("%w: stripe: %v", ErrUnverifiedNotice, err)
	}
	return stripeVerdict(event)
}
