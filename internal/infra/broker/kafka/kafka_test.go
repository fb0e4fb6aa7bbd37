package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayhub/internal/app/commands"
	"stayhub/internal/app/handlers/payments"
)

type recordingBus struct {
	mu   sync.Mutex
	cmds []commands.Command
	err  error
}

func (b *recordingBus) Dispatch(ctx context.Context, cmd commands.Command) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cmds = append(b.cmds, cmd)
	return nil, b.err
}

type mapInbox struct {
	seen map[string]bool
}

func (i *mapInbox) Seen(ctx context.Context, id string) (bool, error) {
	if i.seen[id] {
		return true, nil
	}
	i.seen[id] = true
	return false, nil
}

func (i *mapInbox) Forget(ctx context.Context, id string) error {
	delete(i.seen, id)
	return nil
}

func TestProducerPublishesWithHeaders(t *testing.T) {
	cfg := mocks.NewTestConfig()
	cfg.Producer.Return.Successes = true
	mock := mocks.NewSyncProducer(t, cfg)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"ok":true}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	p := NewProducerFrom(mock)
	require.NoError(t, p.Publish(context.Background(), "booking.events.v1", "b-1", []byte(`{"ok":true}`), map[string]string{"content-type": "application/json"}))
	require.NoError(t, p.Close())
}

func TestGatewayResultDispatchesReconcileOnce(t *testing.T) {
	bus := &recordingBus{}
	h := &GatewayResultHandler{Bus: bus, Inbox: &mapInbox{seen: map[string]bool{}}}
	msg := &sarama.ConsumerMessage{
		Topic: "payment.gateway-results.v1",
		Value: []byte(`{"id":"evt-1","gateway":"sandbox","payload":{"external_id":"sbx_1","success":true,"reference":"R-1","note":"ok"}}`),
	}

	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	require.Len(t, bus.cmds, 1)
	cmd, ok := bus.cmds[0].(payments.ReconcilePaymentCommand)
	require.True(t, ok)
	assert.Equal(t, "sbx_1", cmd.ExternalID)
	assert.True(t, cmd.Success)
	assert.Equal(t, "R-1", cmd.GatewayReference)
	assert.Equal(t, "kafka:sandbox", cmd.Source)
	assert.Equal(t, "sandbox", cmd.Method)
}

func TestGatewayResultFailureAllowsRedelivery(t *testing.T) {
	bus := &recordingBus{err: errors.New("db down")}
	inbox := &mapInbox{seen: map[string]bool{}}
	h := &GatewayResultHandler{Bus: bus, Inbox: inbox}
	msg := &sarama.ConsumerMessage{
		Value:   []byte(`{"gateway":"stripe","payload":{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}}`),
		Headers: []*sarama.RecordHeader{{Key: []byte("ce-id"), Value: []byte("evt-9")}},
	}

	assert.Error(t, h.Handle(context.Background(), msg))
	assert.False(t, inbox.seen["evt-9"])

	bus.err = nil
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Len(t, bus.cmds, 2)
	assert.True(t, inbox.seen["evt-9"])
}

func TestGatewayResultDropsUnusableMessages(t *testing.T) {
	bus := &recordingBus{}
	h := &GatewayResultHandler{Bus: bus}
	for _, raw := range []string{
		`not json`,
		`{"gateway":"paypal","payload":{"event_type":"BILLING.PLAN.CREATED","resource":{"id":"P"}}}`,
		`{"gateway":"venmo","payload":{}}`,
	} {
		require.NoError(t, h.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte(raw)}))
	}
	assert.Empty(t, bus.cmds)
}

type flakyHandler struct {
	failures int
	calls    int
}

func (h *flakyHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func TestClaimLoopRetriesThenSettles(t *testing.T) {
	msg := &sarama.ConsumerMessage{Topic: "t", Offset: 4}

	h := &flakyHandler{failures: 2}
	loop := newClaimLoop(h, ConsumerOptions{Attempts: 3, Pause: time.Millisecond})
	assert.True(t, loop.deliver(context.Background(), msg))
	assert.Equal(t, 3, h.calls)

	h = &flakyHandler{failures: 10}
	loop = newClaimLoop(h, ConsumerOptions{Attempts: 2, Pause: time.Millisecond})
	assert.True(t, loop.deliver(context.Background(), msg))
	assert.Equal(t, 2, h.calls)
}

func TestClaimLoopStopsWhenSessionEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := &flakyHandler{failures: 10}
	loop := newClaimLoop(h, ConsumerOptions{Attempts: 5, Pause: time.Hour})
	assert.False(t, loop.deliver(ctx, &sarama.ConsumerMessage{}))
	assert.Equal(t, 1, h.calls)
}

func TestRecordHeadersAreSorted(t *testing.T) {
	hs := recordHeaders(map[string]string{"z": "1", "a": "2", "m": "3"})
	require.Len(t, hs, 3)
	assert.Equal(t, "a", string(hs[0].Key))
	assert.Equal(t, "2", string(hs[0].Value))
	assert.Equal(t, "z", string(hs[2].Key))
	assert.Empty(t, recordHeaders(nil))
}
