package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
)

// PendingOrderEvent: полезная нагрузка топика pendingOrders.
type PendingOrderEvent struct {
	Order   domain.Order `json:"order"`
	OwnerID string       `json:"ownerId"`
}

// OrderUpdateEvent: полезная нагрузка топика orderUpdates.
type OrderUpdateEvent struct {
	OrderUpdates domain.Order `json:"orderUpdates"`
}

// NewPendingOrderMessage формирует уведомление о новом заказе для владельца ресторана.
func NewPendingOrderMessage(order domain.Order, ownerID string) (Message, error) {
	return newMessage(TopicPendingOrders, ownerID, PendingOrderEvent{Order: order, OwnerID: ownerID})
}

// NewCookedOrderMessage формирует уведомление о готовом заказе; полезная нагрузка: сам заказ.
func NewCookedOrderMessage(order domain.Order) (Message, error) {
	return newMessage(TopicCookedOrders, "", order)
}

// NewOrderUpdateMessage формирует уведомление об изменении заказа.
func NewOrderUpdateMessage(order domain.Order) (Message, error) {
	return newMessage(TopicOrderUpdates, order.ID, OrderUpdateEvent{OrderUpdates: order})
}

func newMessage(topic Topic, key string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return Message{
		Topic:       topic,
		Key:         key,
		Payload:     data,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// DecodePendingOrder разбирает полезную нагрузку pendingOrders.
func DecodePendingOrder(msg Message) (PendingOrderEvent, error) {
	var event PendingOrderEvent
	if err := decode(msg, TopicPendingOrders, &event); err != nil {
		return PendingOrderEvent{}, err
	}
	return event, nil
}

// DecodeCookedOrder разбирает полезную нагрузку cookedOrders.
func DecodeCookedOrder(msg Message) (domain.Order, error) {
	var order domain.Order
	if err := decode(msg, TopicCookedOrders, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// DecodeOrderUpdate разбирает полезную нагрузку orderUpdates.
func DecodeOrderUpdate(msg Message) (OrderUpdateEvent, error) {
	var event OrderUpdateEvent
	if err := decode(msg, TopicOrderUpdates, &event); err != nil {
		return OrderUpdateEvent{}, err
	}
	return event, nil
}

func decode(msg Message, want Topic, dst any) error {
	if msg.Topic != want {
		return fmt.Errorf("expected %s message, got %s", want, msg.Topic)
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", want, err)
	}
	return nil
}
