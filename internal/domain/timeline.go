package domain

import "time"

const (
	// TimelineOrderCreated: заказ создан клиентом.
	TimelineOrderCreated = "OrderCreated"
	// TimelineOrderStatusChanged: статус заказа изменён владельцем или курьером.
	TimelineOrderStatusChanged = "OrderStatusChanged"
	// TimelineDriverAssigned: курьер взял заказ.
	TimelineDriverAssigned = "DriverAssigned"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string    `json:"orderId"`
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	ActorID  string    `json:"actorId,omitempty"`
	Occurred time.Time `json:"occurred"`
}
