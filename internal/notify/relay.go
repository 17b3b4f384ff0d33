package notify

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Transport отправляет сообщения во внешний брокер (Kafka, RabbitMQ).
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Relay публикует сообщения через внешний брокер, а подписки обслуживает локально.
// Сообщения из внешнего брокера передаются подписчикам через Deliver,
// поэтому каждый экземпляр сервиса видит события всех экземпляров.
type Relay struct {
	transport Transport
	local     *Broker
	logger    *log.Entry
}

// NewRelay связывает транспорт с локальным брокером.
func NewRelay(transport Transport, local *Broker, logger *log.Entry) *Relay {
	if logger == nil {
		logger = log.WithField("component", "notify-relay")
	}
	return &Relay{
		transport: transport,
		local:     local,
		logger:    logger,
	}
}

// Publish отправляет сообщение во внешний брокер.
func (r *Relay) Publish(ctx context.Context, msg Message) error {
	if !msg.Topic.Valid() {
		return ErrUnknownTopic
	}
	if err := r.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("relay %s: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe подписывает на локальную доставку.
func (r *Relay) Subscribe(ctx context.Context, topic Topic, filter Filter) (*Subscription, error) {
	return r.local.Subscribe(ctx, topic, filter)
}

// Deliver передаёт сообщение, полученное из внешнего брокера, локальным подписчикам.
func (r *Relay) Deliver(ctx context.Context, msg Message) error {
	if err := r.local.Publish(ctx, msg); err != nil {
		r.logger.WithError(err).WithField("topic", msg.Topic).Warn("failed to deliver relayed message")
		return err
	}
	return nil
}

// Close закрывает транспорт и локальный брокер.
func (r *Relay) Close() error {
	transportErr := r.transport.Close()
	_ = r.local.Close()
	if transportErr != nil {
		return fmt.Errorf("close relay transport: %w", transportErr)
	}
	return nil
}

var _ Bus = (*Relay)(nil)
