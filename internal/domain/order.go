package domain

import "time"

// OrderStatus описывает жизненный цикл заказа доставки.
type OrderStatus string

const (
	// OrderStatusPending: заказ создан и ждёт подтверждения рестораном.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusCooking: ресторан готовит заказ.
	OrderStatusCooking OrderStatus = "Cooking"
	// OrderStatusCooked: заказ готов и ждёт курьера.
	OrderStatusCooked OrderStatus = "Cooked"
	// OrderStatusPickedUp: курьер забрал заказ.
	OrderStatusPickedUp OrderStatus = "PickedUp"
	// OrderStatusDelivered: заказ доставлен клиенту.
	OrderStatusDelivered OrderStatus = "Delivered"
)

var orderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:   {},
	OrderStatusCooking:   {},
	OrderStatusCooked:    {},
	OrderStatusPickedUp:  {},
	OrderStatusDelivered: {},
}

// Valid сообщает, входит ли статус в известный набор.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatuses[s]
	return ok
}

// ParseOrderStatus проверяет строковое значение статуса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", ErrStatusInvalid
	}
	return status, nil
}

// OrderItemOption: выбранная клиентом опция блюда.
type OrderItemOption struct {
	Name string `json:"name"`
	// Choice пустой, если у опции нет вариантов.
	Choice string `json:"choice,omitempty"`
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID      string            `json:"id"`
	DishID  string            `json:"dishId"`
	Options []OrderItemOption `json:"options,omitempty"`
	// PriceMinor: рассчитанная цена позиции на момент создания заказа.
	PriceMinor int64     `json:"priceMinor"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID           string      `json:"id"`
	CustomerID   string      `json:"customerId"`
	DriverID     string      `json:"driverId,omitempty"`
	RestaurantID string      `json:"restaurantId"`
	Items        []OrderItem `json:"items"`
	// TotalMinor фиксируется при создании и больше не пересчитывается.
	TotalMinor int64       `json:"totalMinor"`
	Status     OrderStatus `json:"status"`
	Version    int64       `json:"version"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// HasDriver сообщает, назначен ли курьер.
func (o *Order) HasDriver() bool {
	return o.DriverID != ""
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.RestaurantID == "" {
		errs = append(errs, ErrRestaurantRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrTotalNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}

	var calc int64
	for _, item := range o.Items {
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
		calc += item.PriceMinor
	}
	if calc != o.TotalMinor {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
