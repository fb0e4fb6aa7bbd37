package gateway

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"stayhub/internal/domain/payment"
)

// ErrUnverifiedNotice marks callbacks whose origin could not be proven.
var ErrUnverifiedNotice = errors.New("gateway: callback failed verification")

// Inbound is a gateway notification as it arrived over HTTP. Token is the
// shared secret carried in the callback URL by providers that do not sign.
type Inbound struct {
	Source string
	Body   []byte
	Header http.Header
	Token  string
}

// CallbackVerifier is implemented by adapters that accept callbacks. It proves
// the notification came from the provider and extracts the verdict.
type CallbackVerifier interface {
	VerifyCallback(ctx context.Context, in Inbound) (Callback, error)
}

// Callback routes an inbound notification to the enabled adapter for its
// source. Sources without an enabled adapter are rejected.
func (r *Registry) Callback(ctx context.Context, in Inbound) (Callback, error) {
	method, err := payment.ParseMethod(in.Source)
	if err != nil {
		return Callback{}, fmt.Errorf("%w: %q", ErrUnknownGateway, in.Source)
	}
	g, err := r.Resolve(method)
	if err != nil {
		return Callback{}, fmt.Errorf("%w: %s is not enabled", ErrUnknownGateway, method)
	}
	v, ok := g.(CallbackVerifier)
	if !ok {
		return Callback{}, fmt.Errorf("%w: %s accepts no callbacks", ErrUnverifiedNotice, method)
	}
	return v.VerifyCallback(ctx, in)
}

// checkToken compares the URL token in constant time. An unset secret
// rejects everything.
func checkToken(name, want, got string) error {
	if want == "" {
		return fmt.Errorf("%w: %s callback token not configured", ErrUnverifiedNotice, name)
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return fmt.Errorf("%w: %s callback token mismatch", ErrUnverifiedNotice, name)
	}
	return nil
}
