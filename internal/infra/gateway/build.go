package gateway

import (
	"net/http"

	"stayhub/internal/infra/config"
)

// Build enables every adapter whose credentials are configured.
func Build(cfg config.Config, client *http.Client, deps Deps) *Registry {
	if client == nil {
		client = &http.Client{Timeout: cfg.GatewayTimeout}
	}
	reg := NewRegistry()
	gw := cfg.Gateways
	if gw.Mpesa.BaseURL != "" {
		reg.Register(NewMpesa(gw.Mpesa, client, deps))
	}
	if gw.Paypal.BaseURL != "" {
		reg.Register(NewPaypal(gw.Paypal, cfg.PaypalRate, client, deps))
	}
	if gw.Airtel.BaseURL != "" {
		reg.Register(NewAirtel(gw.Airtel, client, deps))
	}
	if gw.Stripe.SecretKey != "" {
		reg.Register(NewStripe(gw.Stripe, client, deps))
	}
	if gw.Sandbox {
		reg.Register(Sandbox{Token: gw.SandboxToken})
	}
	return reg
}

var (
	_ CallbackVerifier = (*Mpesa)(nil)
	_ CallbackVerifier = (*Paypal)(nil)
	_ CallbackVerifier = (*Airtel)(nil)
	_ CallbackVerifier = (*Stripe)(nil)
	_ CallbackVerifier = Sandbox{}
)
