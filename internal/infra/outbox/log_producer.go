package outbox

import (
	"context"
	"log/slog"
)

// LogProducer stands in for the broker when none is configured, so stored
// events are still drained and visible in the logs.
type LogProducer struct {
	Logger *slog.Logger
}

func (p LogProducer) Publish(ctx context.Context, topic string, key string, payload []byte, headers map[string]string) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "event published",
		slog.String("topic", topic),
		slog.String("key", key),
		slog.String("type", headers["ce-type"]),
		slog.Int("bytes", len(payload)),
	)
	return nil
}

var _ Producer = LogProducer{}
