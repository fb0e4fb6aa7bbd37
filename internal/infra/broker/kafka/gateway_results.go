package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/handlers/payments"
	"stayhub/internal/infra/gateway"
)

// Inbox records consumed message ids. Seen reports true for a repeat.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// gatewayResultMessage is the envelope relayed by the payment gateway bridge:
// the raw provider callback plus the provider family it came from.
type gatewayResultMessage struct {
	ID      string          `json:"id"`
	Gateway string          `json:"gateway"`
	Payload json.RawMessage `json:"payload"`
}

// GatewayResultHandler turns gateway results from the broker into reconcile
// commands. The bridge verifies provider signatures before producing, so
// payloads are only parsed here.
type GatewayResultHandler struct {
	Bus    commands.Bus
	Inbox  Inbox
	Logger *slog.Logger
}

func (h *GatewayResultHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var env gatewayResultMessage
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		h.logger().Warn("gateway result dropped: malformed envelope", "offset", msg.Offset, "error", err)
		return nil
	}
	id := env.ID
	if id == "" {
		id = headerValue(msg, "ce-id")
	}
	if id == "" {
		id = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}

	cb, err := gateway.ParseCallback(env.Gateway, env.Payload)
	if err != nil {
		if errors.Is(err, gateway.ErrIgnoredEvent) {
			h.logger().Debug("gateway result ignored", "id", id, "gateway", env.Gateway, "reason", err)
		} else {
			h.logger().Warn("gateway result dropped", "id", id, "gateway", env.Gateway, "error", err)
		}
		return nil
	}

	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, id)
		if err != nil {
			return err
		}
		if seen {
			h.logger().Debug("gateway result already consumed", "id", id)
			return nil
		}
	}

	_, err = h.Bus.Dispatch(ctx, payments.ReconcilePaymentCommand{
		ExternalID:       cb.ExternalID,
		Success:          cb.Success,
		GatewayReference: cb.Reference,
		Note:             cb.Note,
		Method:           env.Gateway,
		Source:           "kafka:" + env.Gateway,
	})
	if err != nil {
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(ctx, id); ferr != nil {
				h.logger().Error("inbox forget failed", "id", id, "error", ferr)
			}
		}
		return err
	}
	return nil
}

func (h *GatewayResultHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, hdr := range msg.Headers {
		if hdr != nil && string(hdr.Key) == key {
			return string(hdr.Value)
		}
	}
	return ""
}
