package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

// consumeRetryDelay: пауза перед повторным Consume после ошибки.
const consumeRetryDelay = time.Second

// MessageHandler получает уведомление, прочитанное из Kafka.
type MessageHandler func(ctx context.Context, msg notify.Message) error

// Consumer читает топики уведомлений и передаёт сообщения локальным подписчикам.
// Каждый экземпляр сервиса использует собственную consumer group, чтобы видеть все сообщения.
type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	handler  MessageHandler
	logger   *log.Entry
	wg       sync.WaitGroup

	retryDelay time.Duration
}

// NewConsumer создает consumer на все топики уведомлений.
func NewConsumer(brokers []string, groupID string, handler MessageHandler) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	// Уведомления не переигрываются: новый экземпляр получает только свежие события.
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return newConsumerWithGroup(group, KafkaTopics(), handler, nil), nil
}

func newConsumerWithGroup(group sarama.ConsumerGroup, topics []string, handler MessageHandler, logger *log.Entry) *Consumer {
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}
	return &Consumer{
		consumer: group,
		topics:   topics,
		handler:  handler,
		logger:   logger,

		retryDelay: consumeRetryDelay,
	}
}

// Start запускает consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume завершается при каждом rebalance, поэтому вызывается в цикле.
			err := c.consumer.Consume(ctx, c.topics, c)
			if ctx.Err() != nil || errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			if err == nil {
				continue
			}
			c.logger.WithError(err).WithField("retry_in", c.retryDelay).Error("error from consumer")
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay):
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim передаёт сообщения обработчику. Доставка не чаще одного раза:
// сообщение помечается обработанным даже при ошибке обработчика.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			c.handle(session.Context(), message)
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) {
	fields := log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}

	msg, err := decodeMessage(message)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("skipping undecodable message")
		return
	}
	if err := c.handler(ctx, msg); err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("notification handler failed")
		return
	}
	c.logger.WithFields(fields).Debug("notification relayed")
}
