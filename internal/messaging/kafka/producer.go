package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

// Producer публикует уведомления в Kafka и служит транспортом notify.Relay.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
}

// NewProducer создает новый Kafka producer
func NewProducer(brokers []string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1 // требование идемпотентного producer

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return NewProducerWithSync(producer, nil), nil
}

// NewProducerWithSync оборачивает готовый SyncProducer.
func NewProducerWithSync(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{producer: producer, logger: logger}
}

// Send публикует уведомление. SendMessage не принимает контекст, поэтому ожидание
// ограничивается ctx, а сама отправка завершается в фоне.
func (p *Producer) Send(ctx context.Context, msg notify.Message) error {
	if !msg.Topic.Valid() {
		return notify.ErrUnknownTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	type result struct {
		partition int32
		offset    int64
		err       error
	}
	done := make(chan result, 1)
	go func() {
		partition, offset, err := p.producer.SendMessage(encodeMessage(msg))
		done <- result{partition: partition, offset: offset, err: err}
	}()

	fields := log.Fields{
		"topic": msg.Topic,
		"key":   msg.Key,
	}
	select {
	case <-ctx.Done():
		p.logger.WithFields(fields).Warn("kafka send is still in flight after context deadline")
		return ctx.Err()
	case res := <-done:
		if res.err != nil {
			p.logger.WithError(res.err).WithFields(fields).Error("failed to send message to kafka")
			return fmt.Errorf("failed to send message: %w", res.err)
		}
		fields["partition"] = res.partition
		fields["offset"] = res.offset
		p.logger.WithFields(fields).Debug("message sent to kafka")
		return nil
	}
}

// Close закрывает producer
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

var _ notify.Transport = (*Producer)(nil)
