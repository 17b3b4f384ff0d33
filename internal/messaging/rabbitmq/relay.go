package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

// MessageHandler получает уведомление, прочитанное из очереди.
type MessageHandler func(ctx context.Context, msg notify.Message) error

// ErrRelayStopped: брокер закрыл очередь ретрансляции до отмены контекста.
var ErrRelayStopped = errors.New("rabbitmq relay stopped")

// RunRelay запускает ретрансляцию и блокируется до её завершения.
// Возвращает nil после отмены ctx и ErrRelayStopped, если поток доставок оборвался раньше.
func (c *Client) RunRelay(ctx context.Context, handler MessageHandler) error {
	done, err := c.StartRelay(ctx, handler)
	if err != nil {
		return err
	}
	<-done
	if ctx.Err() != nil {
		return nil
	}
	return ErrRelayStopped
}

// StartRelay объявляет эксклюзивную очередь экземпляра, привязывает её ко всем
// топикам уведомлений и передаёт сообщения handler до отмены ctx.
// Сообщения подтверждаются автоматически: доставка не чаще одного раза.
func (c *Client) StartRelay(ctx context.Context, handler MessageHandler) (<-chan struct{}, error) {
	queue, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare relay queue: %w", err)
	}
	for _, topic := range notify.Topics {
		if err := c.ch.QueueBind(queue.Name, string(topic), c.exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind relay queue to %s: %w", topic, err)
		}
	}

	deliveries, err := c.ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume relay queue: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					c.logger.Warn("relay delivery channel closed")
					return
				}
				c.relay(ctx, delivery, handler)
			}
		}
	}()

	c.logger.WithField("queue", queue.Name).Info("rabbitmq relay started")
	return done, nil
}

func (c *Client) relay(ctx context.Context, delivery amqp.Delivery, handler MessageHandler) {
	fields := log.Fields{
		"routing_key":  delivery.RoutingKey,
		"delivery_tag": delivery.DeliveryTag,
	}

	msg, err := decodeDelivery(delivery)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("skipping undecodable delivery")
		return
	}
	if err := handler(ctx, msg); err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("notification handler failed")
	}
}

func decodeDelivery(delivery amqp.Delivery) (notify.Message, error) {
	topic := notify.Topic(delivery.RoutingKey)
	if !topic.Valid() {
		return notify.Message{}, fmt.Errorf("%w: %s", notify.ErrUnknownTopic, delivery.RoutingKey)
	}

	key, _ := delivery.Headers[HeaderNotifyKey].(string)
	return notify.Message{
		Topic:       topic,
		Key:         key,
		Payload:     append([]byte(nil), delivery.Body...),
		PublishedAt: delivery.Timestamp,
	}, nil
}
