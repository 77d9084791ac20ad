package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shenikar/alerto360/internal/models"
	"github.com/shenikar/alerto360/internal/webhook"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu       sync.Mutex
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeChannel) lastKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.key
}

// fakeBroker выдает новую сессию на каждый dial и умеет оборвать соединение
type fakeBroker struct {
	mu       sync.Mutex
	channels []*fakeChannel
	drops    []chan *amqp.Error
	gate     chan struct{}
	failures int
}

func (b *fakeBroker) dial() (*session, error) {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return nil, errors.New("connection refused")
	}
	ch := &fakeChannel{}
	drop := make(chan *amqp.Error, 1)
	b.channels = append(b.channels, ch)
	b.drops = append(b.drops, drop)
	return &session{
		channel:    ch,
		connClosed: drop,
		chanClosed: make(chan *amqp.Error),
		close:      ch.Close,
	}, nil
}

func (b *fakeBroker) dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

func (b *fakeBroker) channel(i int) *fakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[i]
}

func (b *fakeBroker) drop(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drops[i] <- &amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED"}
}

func newTestPublisher(t *testing.T, broker *fakeBroker) *RabbitMQPublisher {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	p, err := newRabbitMQPublisher(broker.dial, "alerto360.incidents", time.Millisecond, logger)
	require.NoError(t, err)
	return p
}

func newChannelPublisher(t *testing.T, ch *fakeChannel) *RabbitMQPublisher {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	dial := func() (*session, error) {
		return &session{channel: ch, connClosed: make(chan *amqp.Error), chanClosed: make(chan *amqp.Error), close: ch.Close}, nil
	}
	p, err := newRabbitMQPublisher(dial, "alerto360.incidents", time.Millisecond, logger)
	require.NoError(t, err)
	return p
}

func TestRabbitMQPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := newChannelPublisher(t, ch)
	defer p.Close()

	event := webhook.WebhookEvent{
		ID:         "evt-1",
		Type:       webhook.EventIncidentAccepted,
		IncidentID: 7,
		Status:     models.StatusAccepted,
		Timestamp:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	assert.Equal(t, "alerto360.incidents", ch.exchange)
	assert.Equal(t, "incident.accepted", ch.key)
	assert.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, "evt-1", ch.msg.MessageId)

	var decoded webhook.WebhookEvent
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, int64(7), decoded.IncidentID)
}

func TestRabbitMQPublisher_PublishError(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newChannelPublisher(t, ch)
	defer p.Close()

	err := p.Publish(context.Background(), webhook.WebhookEvent{Type: webhook.EventIncidentCreated})
	assert.ErrorContains(t, err, "failed to publish incident.created event")
}

func TestRabbitMQPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p := newChannelPublisher(t, ch)

	assert.NoError(t, p.Close())
	assert.True(t, ch.isClosed())
}

func TestRabbitMQPublisher_InitialConnectFails(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	broker := &fakeBroker{failures: connectAttempts}

	_, err := newRabbitMQPublisher(broker.dial, "alerto360.incidents", time.Millisecond, logger)
	assert.ErrorContains(t, err, "failed to connect to RabbitMQ")
	assert.Equal(t, 0, broker.dials())
}

func TestRabbitMQPublisher_ReconnectsAfterConnectionLoss(t *testing.T) {
	broker := &fakeBroker{}
	p := newTestPublisher(t, broker)
	defer p.Close()
	event := webhook.WebhookEvent{Type: webhook.EventIncidentCreated, IncidentID: 1}

	require.NoError(t, p.Publish(context.Background(), event))
	assert.Equal(t, "incident.created", broker.channel(0).lastKey())

	// следующее подключение ждет, пока тест не откроет gate
	gate := make(chan struct{})
	broker.mu.Lock()
	broker.gate = gate
	broker.failures = 1
	broker.mu.Unlock()

	broker.drop(0)

	assert.Eventually(t, func() bool {
		return errors.Is(p.Publish(context.Background(), event), ErrNotConnected)
	}, time.Second, 5*time.Millisecond)
	assert.True(t, broker.channel(0).isClosed())

	broker.mu.Lock()
	broker.gate = nil
	broker.mu.Unlock()
	close(gate)

	assert.Eventually(t, func() bool {
		return broker.dials() == 2 && p.Publish(context.Background(), event) == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "incident.created", broker.channel(1).lastKey())

	require.NoError(t, p.Close())
	assert.True(t, broker.channel(1).isClosed())
}
