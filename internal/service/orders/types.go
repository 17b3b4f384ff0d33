package orders

import "github.com/vladislavdragonenkov/fooddelivery/internal/domain"

// CoreOutput: общая часть результата любой операции.
type CoreOutput struct {
	OK    bool             `json:"ok"`
	Error string           `json:"error,omitempty"`
	Kind  domain.ErrorKind `json:"-"`
}

// CreateOrderItemInput: позиция нового заказа.
type CreateOrderItemInput struct {
	DishID  string                   `json:"dishId"`
	Options []domain.OrderItemOption `json:"options,omitempty"`
}

// CreateOrderInput: запрос на создание заказа.
type CreateOrderInput struct {
	RestaurantID string                 `json:"restaurantId"`
	Items        []CreateOrderItemInput `json:"items"`
}

// CreateOrderOutput: результат создания заказа.
type CreateOrderOutput struct {
	CoreOutput
	OrderID string `json:"orderId,omitempty"`
}

// GetOrdersInput: фильтр списка заказов; пустой статус означает все статусы.
type GetOrdersInput struct {
	Status domain.OrderStatus `json:"status,omitempty"`
}

// GetOrdersOutput: список заказов.
type GetOrdersOutput struct {
	CoreOutput
	Orders []domain.Order `json:"orders,omitempty"`
}

// GetOrderInput идентифицирует заказ.
type GetOrderInput struct {
	ID string `json:"id"`
}

// GetOrderOutput: найденный заказ.
type GetOrderOutput struct {
	CoreOutput
	Order *domain.Order `json:"order,omitempty"`
}

// EditOrderInput: запрос на смену статуса.
type EditOrderInput struct {
	ID     string             `json:"id"`
	Status domain.OrderStatus `json:"status"`
}

// EditOrderOutput: результат смены статуса.
type EditOrderOutput struct {
	CoreOutput
}

// TakeOrderInput: запрос курьера на заказ.
type TakeOrderInput struct {
	ID string `json:"id"`
}

// TakeOrderOutput: результат назначения курьера.
type TakeOrderOutput struct {
	CoreOutput
}

// GetOrderTimelineOutput: история заказа.
type GetOrderTimelineOutput struct {
	CoreOutput
	Events []domain.TimelineEvent `json:"events,omitempty"`
}
