package ginserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/dto"
	paymentsapp "stayhub/internal/app/handlers/payments"
	"stayhub/internal/infra/gateway"
)

const maxWebhookBody = 1 << 20

// CallbackSource authenticates a raw gateway callback and extracts its verdict.
type CallbackSource interface {
	Callback(ctx context.Context, in gateway.Inbound) (gateway.Callback, error)
}

// WebhookHandler acknowledges every gateway callback with 200 so gateways stop
// redelivering. Payloads that fail verification or cannot be applied are only
// logged.
type WebhookHandler struct {
	Commands  commands.Bus
	Callbacks CallbackSource
	Logger    *slog.Logger
}

func (h WebhookHandler) Receive(c *gin.Context) {
	source := strings.ToLower(strings.TrimSpace(c.Param("gateway")))
	defer c.JSON(http.StatusOK, gin.H{"status": "received"})

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger().Warn("webhook body unreadable", "gateway", source, "error", err)
		return
	}
	if h.Callbacks == nil {
		h.logger().Error("webhook received but no callback source is configured", "gateway", source)
		return
	}
	cb, err := h.Callbacks.Callback(c.Request.Context(), gateway.Inbound{
		Source: source,
		Body:   body,
		Header: c.Request.Header,
		Token:  c.Query("token"),
	})
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrIgnoredEvent):
			h.logger().Info("webhook event ignored", "gateway", source)
		case errors.Is(err, gateway.ErrUnverifiedNotice), errors.Is(err, gateway.ErrUnknownGateway):
			h.logger().Warn("webhook rejected", "gateway", source, "client_ip", c.ClientIP(), "error", err)
		default:
			h.logger().Warn("webhook payload rejected", "gateway", source, "error", err)
		}
		return
	}
	cmd := paymentsapp.ReconcilePaymentCommand{
		ExternalID:       cb.ExternalID,
		Success:          cb.Success,
		GatewayReference: cb.Reference,
		Note:             cb.Note,
		Method:           source,
		Source:           "webhook:" + source,
	}
	result, err := commands.Dispatch[paymentsapp.ReconcilePaymentCommand, *dto.ReconcileResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.logger().Error("webhook reconcile failed", "gateway", source, "external_id", cb.ExternalID, "error", err)
		return
	}
	if result != nil && !result.Matched {
		h.logger().Warn("webhook for unknown payment", "gateway", source, "external_id", cb.ExternalID)
	}
}

func (h WebhookHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ WebhookHTTP = WebhookHandler{}
