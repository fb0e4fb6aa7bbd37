package policies

import (
	"context"
	"strconv"
	"time"

	"stayhub/internal/domain/booking"
	"stayhub/internal/domain/payment"
	"stayhub/internal/domain/shared/money"
)

// GatewayRequest carries what an adapter needs to start a money movement.
// MerchantReference is the payment id, which a reused payment keeps.
// InitiatedAt is reset on every attempt.
type GatewayRequest struct {
	Amount            money.Money
	PayerContact      string
	MerchantReference string
	InitiatedAt       time.Time
	BookingID         booking.BookingID
	ReturnURL         string
	CancelURL         string
}

// AttemptKey identifies one attempt of a payment. Adapters send it as the
// provider idempotency key so a retried attempt is never replayed.
func (r GatewayRequest) AttemptKey() string {
	if r.InitiatedAt.IsZero() {
		return r.MerchantReference
	}
	return r.MerchantReference + ":" + strconv.FormatInt(r.InitiatedAt.UnixNano(), 10)
}

// GatewayResult is the synchronous answer of an adapter. ExternalID is empty
// for redirect flows that only learn their id on callback.
type GatewayResult struct {
	ExternalID   string
	RedirectURL  string
	ClientSecret string
	Message      string
	Raw          map[string]string
}

// Gateway starts a payment on an external provider. Errors wrap apperr.ErrGateway.
type Gateway interface {
	Method() payment.Method
	Initiate(ctx context.Context, req GatewayRequest) (GatewayResult, error)
}

type GatewayResolver interface {
	Resolve(method payment.Method) (Gateway, error)
}
