package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

// TopicPrefix: общий префикс Kafka-топиков уведомлений.
const TopicPrefix = "fooddelivery.notify."

// Kafka headers уведомления.
const (
	HeaderNotifyTopic = "x-notify-topic"
	HeaderPublishedAt = "x-published-at"
)

// KafkaTopic возвращает имя Kafka-топика для топика уведомлений.
func KafkaTopic(topic notify.Topic) string {
	return TopicPrefix + string(topic)
}

// KafkaTopics возвращает имена всех Kafka-топиков уведомлений.
func KafkaTopics() []string {
	topics := make([]string, 0, len(notify.Topics))
	for _, topic := range notify.Topics {
		topics = append(topics, KafkaTopic(topic))
	}
	return topics
}

// NotifyTopic восстанавливает топик уведомлений по имени Kafka-топика.
func NotifyTopic(kafkaTopic string) (notify.Topic, bool) {
	topic := notify.Topic(strings.TrimPrefix(kafkaTopic, TopicPrefix))
	if !strings.HasPrefix(kafkaTopic, TopicPrefix) || !topic.Valid() {
		return "", false
	}
	return topic, true
}

func encodeMessage(msg notify.Message) *sarama.ProducerMessage {
	publishedAt := msg.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now().UTC()
	}
	return &sarama.ProducerMessage{
		Topic: KafkaTopic(msg.Topic),
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderNotifyTopic), Value: []byte(msg.Topic)},
			{Key: []byte(HeaderPublishedAt), Value: []byte(publishedAt.Format(time.RFC3339Nano))},
		},
		Timestamp: publishedAt,
	}
}

func decodeMessage(message *sarama.ConsumerMessage) (notify.Message, error) {
	topic, ok := NotifyTopic(message.Topic)
	if !ok {
		return notify.Message{}, fmt.Errorf("%w: %s", notify.ErrUnknownTopic, message.Topic)
	}

	msg := notify.Message{
		Topic:       topic,
		Key:         string(message.Key),
		Payload:     append([]byte(nil), message.Value...),
		PublishedAt: message.Timestamp,
	}
	for _, header := range message.Headers {
		if header == nil || string(header.Key) != HeaderPublishedAt {
			continue
		}
		if ts, err := time.Parse(time.RFC3339Nano, string(header.Value)); err == nil {
			msg.PublishedAt = ts
		}
	}
	return msg, nil
}
