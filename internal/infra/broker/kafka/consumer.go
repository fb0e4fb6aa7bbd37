package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// ConsumerOptions configures a group consumer. Attempts bounds how often one
// message is handed to the handler before it is skipped; zero means 3.
type ConsumerOptions struct {
	Brokers  []string
	Group    string
	Topics   []string
	Attempts int
	Pause    time.Duration
	Config   *sarama.Config
	Logger   *slog.Logger
}

type Consumer struct {
	group  sarama.ConsumerGroup
	topics []string
	claims claimLoop
}

func NewConsumer(opts ConsumerOptions, handler MessageHandler) (*Consumer, error) {
	if handler == nil || len(opts.Topics) == 0 {
		return nil, errors.New("kafka: consumer needs a handler and topics")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	cfg.Consumer.Return.Errors = true
	group, err := sarama.NewConsumerGroup(opts.Brokers, opts.Group, cfg)
	if err != nil {
		return nil, err
	}
	return &Consumer{group: group, topics: opts.Topics, claims: newClaimLoop(handler, opts)}, nil
}

// Run consumes until ctx ends or the group is closed. Consume returns on every
// rebalance, so it is called in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.claims.logger.Warn("kafka consumer error", "error", err)
		}
	}()
	for {
		err := c.group.Consume(ctx, c.topics, c.claims)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case err != nil:
			return err
		case ctx.Err() != nil:
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

// claimLoop is the sarama.ConsumerGroupHandler. A message is marked once the
// handler accepts it or the attempts run out.
type claimLoop struct {
	handler  MessageHandler
	attempts int
	pause    time.Duration
	logger   *slog.Logger
}

func newClaimLoop(handler MessageHandler, opts ConsumerOptions) claimLoop {
	loop := claimLoop{handler: handler, attempts: opts.Attempts, pause: opts.Pause, logger: opts.Logger}
	if loop.attempts <= 0 {
		loop.attempts = 3
	}
	if loop.pause <= 0 {
		loop.pause = 200 * time.Millisecond
	}
	if loop.logger == nil {
		loop.logger = slog.Default()
	}
	return loop
}

func (claimLoop) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (claimLoop) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (l claimLoop) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if !l.deliver(sess.Context(), msg) {
			return nil
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

// deliver reports false only when ctx ended before the message was settled.
func (l claimLoop) deliver(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	for attempt := 1; ; attempt++ {
		err := l.handler.Handle(ctx, msg)
		if err == nil {
			return true
		}
		if attempt >= l.attempts {
			l.logger.Error("kafka message skipped", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "attempts", attempt, "error", err)
			return true
		}
		l.logger.Warn("kafka message handling failed", "topic", msg.Topic, "offset", msg.Offset, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(l.pause):
		}
	}
}
