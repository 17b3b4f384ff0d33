package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

func (s *Service) createOrder(ctx context.Context, customer domain.User, input CreateOrderInput) (string, error) {
	if len(input.Items) == 0 {
		return "", domain.NewOpError(domain.KindInvalid, MsgNoItems)
	}

	restaurant, err := s.restaurants.Get(ctx, input.RestaurantID)
	if err != nil {
		if errors.Is(err, domain.ErrRestaurantNotFound) {
			return "", domain.NewOpError(domain.KindNotFound, MsgRestaurantNotFound)
		}
		return "", fmt.Errorf("load restaurant %s: %w", input.RestaurantID, err)
	}

	// Все блюда разрешаются и оцениваются до записи, поэтому неполный заказ не сохраняется.
	now := s.now()
	items := make([]domain.OrderItem, 0, len(input.Items))
	for _, item := range input.Items {
		dish, err := s.dishes.Get(ctx, item.DishID)
		if err != nil {
			if errors.Is(err, domain.ErrDishNotFound) {
				return "", domain.NewOpError(domain.KindNotFound, MsgDishNotFound)
			}
			return "", fmt.Errorf("load dish %s: %w", item.DishID, err)
		}
		if dish.RestaurantID != restaurant.ID {
			return "", domain.NewOpError(domain.KindNotFound, MsgDishNotFound)
		}

		items = append(items, domain.OrderItem{
			ID:         s.newID(),
			DishID:     dish.ID,
			Options:    append([]domain.OrderItemOption(nil), item.Options...),
			PriceMinor: domain.ItemPrice(dish, item.Options),
			CreatedAt:  now,
		})
	}

	order := domain.Order{
		ID:           s.newID(),
		CustomerID:   customer.ID,
		RestaurantID: restaurant.ID,
		Items:        items,
		TotalMinor:   domain.OrderTotal(items),
		Status:       domain.OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return "", fmt.Errorf("order invariants: %w", errors.Join(errs...))
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}

	s.appendTimeline(ctx, order.ID, domain.TimelineOrderCreated, "", customer.ID)
	s.metrics.RecordOrderCreated()

	msg, err := notify.NewPendingOrderMessage(order, restaurant.OwnerID)
	s.publish(ctx, notify.TopicPendingOrders, msg, err)

	return order.ID, nil
}

// getOrders выбирает заказы по роли.
// Client и Delivery получают заказы, где они указаны клиентом: так исторически
// работает выборка, курьерские заказы по DriverID здесь не ищутся.
func (s *Service) getOrders(ctx context.Context, user domain.User, input GetOrdersInput) ([]domain.Order, error) {
	var (
		orders []domain.Order
		err    error
	)

	switch user.Role {
	case domain.RoleClient, domain.RoleDelivery:
		orders, err = s.orders.ListByCustomer(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("list customer orders: %w", err)
		}
	case domain.RoleOwner:
		restaurants, err := s.restaurants.ListByOwner(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("list owner restaurants: %w", err)
		}
		ids := make([]string, 0, len(restaurants))
		for _, r := range restaurants {
			ids = append(ids, r.ID)
		}
		orders, err = s.orders.ListByRestaurants(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("list restaurant orders: %w", err)
		}
	default:
		return []domain.Order{}, nil
	}

	if input.Status == "" {
		return orders, nil
	}
	filtered := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		if order.Status == input.Status {
			filtered = append(filtered, order)
		}
	}
	return filtered, nil
}

func (s *Service) editOrder(ctx context.Context, user domain.User, input EditOrderInput) error {
	order, err := s.loadVisibleOrder(ctx, user, input.ID)
	if err != nil {
		return err
	}
	if !domain.CanSetStatus(user.Role, input.Status) {
		return domain.NewOpError(domain.KindForbidden, MsgNotAllowed)
	}

	previous := order.Status
	order.Status = input.Status
	order.UpdatedAt = s.now()
	if err := s.orders.Save(ctx, order); err != nil {
		switch {
		case domain.IsVersionConflict(err):
			return domain.WrapOpError(domain.KindConflict, MsgChangedConcurrently, err)
		case errors.Is(err, domain.ErrOrderNotFound):
			return domain.NewOpError(domain.KindNotFound, MsgOrderNotFound)
		default:
			return fmt.Errorf("save order: %w", err)
		}
	}
	order.Version++

	s.appendTimeline(ctx, order.ID, domain.TimelineOrderStatusChanged,
		fmt.Sprintf("%s -> %s", previous, order.Status), user.ID)
	s.metrics.RecordStatusTransition(string(order.Status))

	if order.Status == domain.OrderStatusCooked {
		msg, err := notify.NewCookedOrderMessage(order)
		s.publish(ctx, notify.TopicCookedOrders, msg, err)
	}
	msg, err := notify.NewOrderUpdateMessage(order)
	s.publish(ctx, notify.TopicOrderUpdates, msg, err)

	return nil
}

// takeOrder назначает курьера с optimistic locking: при конфликте версий заказ
// перечитывается, и если курьер уже появился, возвращается Conflict.
func (s *Service) takeOrder(ctx context.Context, driver domain.User, input TakeOrderInput) error {
	var order domain.Order
	for attempt := 1; ; attempt++ {
		current, err := s.orders.Get(ctx, input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				return domain.NewOpError(domain.KindNotFound, MsgOrderNotFound)
			}
			return fmt.Errorf("load order %s: %w", input.ID, err)
		}
		if current.HasDriver() {
			return domain.NewOpError(domain.KindConflict, MsgAlreadyHasDriver)
		}

		current.DriverID = driver.ID
		current.UpdatedAt = s.now()
		err = s.orders.Save(ctx, current)
		if err == nil {
			current.Version++
			order = current
			break
		}
		if !domain.IsVersionConflict(err) {
			return fmt.Errorf("save order: %w", err)
		}
		if attempt >= takeOrderAttempts {
			return domain.WrapOpError(domain.KindConflict, MsgChangedConcurrently, err)
		}
	}

	s.appendTimeline(ctx, order.ID, domain.TimelineDriverAssigned, "", driver.ID)

	msg, err := notify.NewOrderUpdateMessage(order)
	s.publish(ctx, notify.TopicOrderUpdates, msg, err)

	return nil
}
