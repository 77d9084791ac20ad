package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shenikar/alerto360/internal/webhook"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

var ErrNotConnected = errors.New("rabbitmq publisher is not connected")

const (
	connectAttempts = 5
	connectDelay    = time.Second
)

// amqpChannel - часть *amqp.Channel, которую использует издатель
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// session - одно подключение к брокеру с открытым каналом
type session struct {
	channel    amqpChannel
	connClosed <-chan *amqp.Error
	chanClosed <-chan *amqp.Error
	close      func() error
}

type dialFunc func() (*session, error)

// RabbitMQPublisher публикует события жизненного цикла в topic exchange.
// Ключ маршрутизации совпадает с типом события, например incident.accepted.
// После обрыва соединения или канала переподключается в фоне.
type RabbitMQPublisher struct {
	dial       dialFunc
	session    *session
	exchange   string
	retryDelay time.Duration
	logger     *logrus.Logger
	mu         sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRabbitMQPublisher подключается к брокеру с повторами и объявляет exchange
func NewRabbitMQPublisher(url, exchange string, logger *logrus.Logger) (*RabbitMQPublisher, error) {
	dial := func() (*session, error) {
		return dialSession(url, exchange)
	}
	return newRabbitMQPublisher(dial, exchange, connectDelay, logger)
}

func newRabbitMQPublisher(dial dialFunc, exchange string, retryDelay time.Duration, logger *logrus.Logger) (*RabbitMQPublisher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &RabbitMQPublisher{
		dial:       dial,
		exchange:   exchange,
		retryDelay: retryDelay,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	sess, err := p.connect()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	p.session = sess
	go p.watch(sess)

	logger.WithField("exchange", exchange).Info("RabbitMQ publisher ready")
	return p, nil
}

func dialSession(url, exchange string) (*session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &session{
		channel:    ch,
		connClosed: conn.NotifyClose(make(chan *amqp.Error, 1)),
		chanClosed: ch.NotifyClose(make(chan *amqp.Error, 1)),
		close: func() error {
			_ = ch.Close()
			return conn.Close()
		},
	}, nil
}

func (p *RabbitMQPublisher) connect() (*session, error) {
	var sess *session
	err := retry.Do(
		func() error {
			var err error
			sess, err = p.dial()
			return err
		},
		retry.Context(p.ctx),
		retry.Attempts(connectAttempts),
		retry.Delay(p.retryDelay),
		retry.MaxDelay(10*p.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.WithError(err).Warnf("RabbitMQ connection attempt %d failed", n+1)
		}),
	)
	return sess, err
}

// watch ждет закрытия соединения или канала и поднимает новую сессию, пока издатель не закрыт
func (p *RabbitMQPublisher) watch(sess *session) {
	defer close(p.done)
	for {
		var cause *amqp.Error
		select {
		case <-p.ctx.Done():
			return
		case cause = <-sess.connClosed:
		case cause = <-sess.chanClosed:
		}

		p.mu.Lock()
		if p.session == sess {
			p.session = nil
		}
		p.mu.Unlock()
		_ = sess.close()

		log := p.logger.WithField("exchange", p.exchange)
		if cause != nil {
			log = log.WithField("reason", cause.Reason).WithField("code", cause.Code)
		}
		log.Warn("RabbitMQ connection lost, reconnecting")

		next, ok := p.reconnect()
		if !ok {
			return
		}

		p.mu.Lock()
		if p.ctx.Err() != nil {
			p.mu.Unlock()
			_ = next.close()
			return
		}
		p.session = next
		p.mu.Unlock()

		log.Info("RabbitMQ publisher reconnected")
		sess = next
	}
}

func (p *RabbitMQPublisher) reconnect() (*session, bool) {
	for {
		sess, err := p.connect()
		if err == nil {
			return sess, true
		}
		if p.ctx.Err() != nil {
			return nil, false
		}
		p.logger.WithError(err).Error("RabbitMQ reconnect failed, will keep trying")
	}
}

// Publish отправляет событие как persistent JSON-сообщение
func (p *RabbitMQPublisher) Publish(ctx context.Context, event webhook.WebhookEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, ErrNotConnected)
	}

	err = p.session.channel.PublishWithContext(
		ctx,
		p.exchange,
		string(event.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ID,
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	p.logger.WithFields(logrus.Fields{"event_type": event.Type, "incident_id": event.IncidentID}).Debug("Published event to RabbitMQ")
	return nil
}

// Close останавливает переподключение и закрывает текущую сессию
func (p *RabbitMQPublisher) Close() error {
	p.cancel()
	<-p.done

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil
	}
	err := p.session.close()
	p.session = nil
	return err
}
