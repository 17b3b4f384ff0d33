// Package notify рассылает события жизненного цикла заказов подписчикам:
// владельцам ресторанов, курьерам и клиентам.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Topic: именованный канал уведомлений.
type Topic string

const (
	// TopicPendingOrders: новые заказы, ключ сообщения = ID владельца ресторана.
	TopicPendingOrders Topic = "pendingOrders"
	// TopicCookedOrders: заказы, готовые к выдаче курьеру.
	TopicCookedOrders Topic = "cookedOrders"
	// TopicOrderUpdates: любые изменения заказа, ключ сообщения = ID заказа.
	TopicOrderUpdates Topic = "orderUpdates"
)

// Topics перечисляет все известные топики.
var Topics = []Topic{TopicPendingOrders, TopicCookedOrders, TopicOrderUpdates}

// Valid сообщает, известен ли топик.
func (t Topic) Valid() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

var (
	// ErrUnknownTopic возвращается при публикации или подписке на неизвестный топик.
	ErrUnknownTopic = errors.New("unknown notification topic")
	// ErrClosed возвращается после остановки шины.
	ErrClosed = errors.New("notification bus is closed")
)

// Message: единица доставки уведомления.
type Message struct {
	Topic       Topic           `json:"topic"`
	Key         string          `json:"key,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Publisher публикует сообщения. Доставка не чаще одного раза, без подтверждений подписчиков.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber открывает подписку на топик. Подписка закрывается при отмене ctx.
type Subscriber interface {
	Subscribe(ctx context.Context, topic Topic, filter Filter) (*Subscription, error)
}

// Bus объединяет публикацию и подписку.
type Bus interface {
	Publisher
	Subscriber
}

// Recorder принимает метрики шины; nil допустим.
type Recorder interface {
	RecordNotificationPublished(topic string, err error)
	RecordNotificationDropped(topic string)
	RecordSubscriptionOpened(topic string)
	RecordSubscriptionClosed(topic string)
}
