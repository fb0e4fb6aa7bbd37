package ginserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/dto"
	paymentsapp "stayhub/internal/app/handlers/payments"
	"stayhub/internal/app/queries"
	"stayhub/internal/domain/shared/apperr"
)

type PaymentHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

// processPaymentRequest takes the amount as a decimal string or a JSON number;
// both are compared exactly against the booking total.
type processPaymentRequest struct {
	BookingID string      `json:"booking_id" binding:"required"`
	Amount    json.Number `json:"amount" binding:"required"`
	Method    string      `json:"method" binding:"required"`
	Contact   string      `json:"contact"`
	ReturnURL string      `json:"return_url"`
	CancelURL string      `json:"cancel_url"`
}

func (h PaymentHandler) Process(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	var req processPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.Logger, "payments.process", apperr.Validation(err.Error()))
		return
	}
	cmd := paymentsapp.ProcessPaymentCommand{
		Caller:          user,
		BookingID:       strings.TrimSpace(req.BookingID),
		Amount:          req.Amount.String(),
		Method:          req.Method,
		Contact:         strings.TrimSpace(req.Contact),
		ReturnURL:       strings.TrimSpace(req.ReturnURL),
		CancelURL:       strings.TrimSpace(req.CancelURL),
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[paymentsapp.ProcessPaymentCommand, *dto.PaymentHandle](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, "payments.process", err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h PaymentHandler) Get(c *gin.Context) {
	user, ok := requireAuth(c)
	if !ok {
		return
	}
	query := paymentsapp.GetPaymentQuery{Caller: user, PaymentID: strings.TrimSpace(c.Param("id"))}
	result, err := queries.Ask[paymentsapp.GetPaymentQuery, dto.PaymentView](c.Request.Context(), h.Queries, query)
	if err != nil {
		respondError(c, h.Logger, "payments.get", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var _ PaymentHTTP = PaymentHandler{}
