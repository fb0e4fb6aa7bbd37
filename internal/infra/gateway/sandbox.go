package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"stayhub/internal/app/policies"
	"stayhub/internal/domain/payment"
)

// Sandbox accepts every request without calling out. A payer contact of
// "decline" makes it fail, which exercises the failure path locally.
// Token, when set, is required on verdicts posted to the sandbox webhook.
type Sandbox struct {
	NewID func() string
	Token string
}

func (s Sandbox) Method() payment.Method { return payment.MethodSandbox }

func (s Sandbox) Initiate(ctx context.Context, req policies.GatewayRequest) (policies.GatewayResult, error) {
	if err := ctx.Err(); err != nil {
		return policies.GatewayResult{}, gatewayErr("sandbox", "%v", err)
	}
	if strings.EqualFold(strings.TrimSpace(req.PayerContact), "decline") {
		return policies.GatewayResult{}, gatewayErr("sandbox", "payment declined")
	}
	newID := s.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return policies.GatewayResult{
		ExternalID: "sbx_" + newID(),
		Message:    "Sandbox payment created. Post the verdict to the sandbox webhook.",
	}, nil
}

// VerifyCallback only runs while the sandbox is registered, which Build
// limits to SANDBOX_GATEWAY.
func (s Sandbox) VerifyCallback(_ context.Context, in Inbound) (Callback, error) {
	if s.Token != "" {
		if err := checkToken("sandbox", s.Token, in.Token); err != nil {
			return Callback{}, err
		}
	}
	return parseSandbox(in.Body)
}
