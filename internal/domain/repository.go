package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create атомарно сохраняет заказ вместе с позициями.
	// Возвращает ErrAlreadyExists, если запись с таким ID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми.
	ListByCustomer(ctx context.Context, customerID string) ([]Order, error)
	// ListByRestaurants возвращает заказы перечисленных ресторанов, новые первыми.
	ListByRestaurants(ctx context.Context, restaurantIDs []string) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// RestaurantRepository: доступ к ресторанам.
type RestaurantRepository interface {
	Create(ctx context.Context, restaurant Restaurant) error
	// Get возвращает ресторан или ErrRestaurantNotFound.
	Get(ctx context.Context, id string) (Restaurant, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Restaurant, error)
}

// DishRepository: доступ к блюдам меню.
type DishRepository interface {
	Create(ctx context.Context, dish Dish) error
	// Get возвращает блюдо или ErrDishNotFound.
	Get(ctx context.Context, id string) (Dish, error)
}

// UserRepository: доступ к пользователям.
type UserRepository interface {
	Create(ctx context.Context, user User) error
	// Get возвращает пользователя или ErrUserNotFound.
	Get(ctx context.Context, id string) (User, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}
