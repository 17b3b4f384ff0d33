// Package rabbitmq: транспорт уведомлений через topic exchange RabbitMQ.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

const (
	// DefaultExchange: topic exchange уведомлений.
	DefaultExchange = "fooddelivery.notify"

	// HeaderNotifyKey хранит ключ уведомления (ID владельца или заказа).
	HeaderNotifyKey = "x-notify-key"

	contentTypeJSON = "application/json"

	confirmBuffer = 16
)

var (
	// ErrNack: брокер не подтвердил публикацию.
	ErrNack = errors.New("publish NACK from broker")
	// ErrClosed: соединение или канал закрыты.
	ErrClosed = errors.New("rabbitmq connection is closed")
)

// Channel: используемое подмножество *amqp.Channel.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	GetNextPublishSeqNo() uint64
	Close() error
}

// Client публикует уведомления в exchange и читает их обратно для локальных подписчиков.
type Client struct {
	conn     *amqp.Connection
	ch       Channel
	exchange string
	logger   *log.Entry

	// publishMu удерживается от GetNextPublishSeqNo до конца публикации.
	publishMu sync.Mutex

	waitMu  sync.Mutex
	waiters map[uint64]chan amqp.Confirmation
	// confirmsDone закрыт, когда брокер закрыл канал подтверждений.
	confirmsDone chan struct{}
}

// Dial подключается к брокеру, включает publisher confirms и объявляет exchange.
func Dial(url, exchange string, logger *log.Entry) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	client, err := newClient(ch, exchange, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	client.conn = conn
	return client, nil
}

func newClient(ch Channel, exchange string, logger *log.Entry) (*Client, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = log.WithField("component", "rabbitmq")
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))

	client := &Client{
		ch:           ch,
		exchange:     exchange,
		logger:       logger,
		waiters:      make(map[uint64]chan amqp.Confirmation),
		confirmsDone: make(chan struct{}),
	}
	go client.dispatchConfirms(acks)
	return client, nil
}

// dispatchConfirms вычитывает подтверждения без остановки и отдаёт их ожидающим по DeliveryTag.
// Подтверждение публикации, которую уже перестали ждать, отбрасывается.
func (c *Client) dispatchConfirms(acks <-chan amqp.Confirmation) {
	defer close(c.confirmsDone)
	for conf := range acks {
		c.waitMu.Lock()
		waiter, ok := c.waiters[conf.DeliveryTag]
		delete(c.waiters, conf.DeliveryTag)
		c.waitMu.Unlock()

		if !ok {
			c.logger.WithFields(log.Fields{
				"delivery_tag": conf.DeliveryTag,
				"ack":          conf.Ack,
			}).Debug("dropping confirmation of abandoned publish")
			continue
		}
		waiter <- conf
	}
}

func (c *Client) expect(tag uint64) chan amqp.Confirmation {
	waiter := make(chan amqp.Confirmation, 1)
	c.waitMu.Lock()
	c.waiters[tag] = waiter
	c.waitMu.Unlock()
	return waiter
}

func (c *Client) forget(tag uint64) {
	c.waitMu.Lock()
	delete(c.waiters, tag)
	c.waitMu.Unlock()
}

// Send публикует уведомление с routing key = топик и ждёт ack/nack брокера.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	if !msg.Topic.Valid() {
		return notify.ErrUnknownTopic
	}

	publishedAt := msg.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}

	c.publishMu.Lock()
	tag := c.ch.GetNextPublishSeqNo()
	waiter := c.expect(tag)
	err := c.ch.PublishWithContext(ctx, c.exchange, string(msg.Topic), false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  contentTypeJSON,
		Timestamp:    publishedAt,
		Headers:      amqp.Table{HeaderNotifyKey: msg.Key},
		Body:         msg.Payload,
	})
	c.publishMu.Unlock()
	if err != nil {
		c.forget(tag)
		return fmt.Errorf("publish %s: %w", msg.Topic, err)
	}

	select {
	case conf := <-waiter:
		if !conf.Ack {
			return ErrNack
		}
		c.logger.WithFields(log.Fields{
			"topic":        msg.Topic,
			"key":          msg.Key,
			"delivery_tag": conf.DeliveryTag,
		}).Debug("notification confirmed by rabbitmq")
		return nil
	case <-c.confirmsDone:
		c.forget(tag)
		return ErrClosed
	case <-ctx.Done():
		c.forget(tag)
		return ctx.Err()
	}
}

// Name используется проверками готовности.
func (c *Client) Name() string {
	return "rabbitmq"
}

// Ping: лёгкая проверка соединения.
func (c *Client) Ping(context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return ErrClosed
	}
	return nil
}

// Close закрывает канал и соединение.
func (c *Client) Close() error {
	var errs []error
	if c.ch != nil {
		if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

var _ notify.Transport = (*Client)(nil)
