// Package orders реализует жизненный цикл заказа: создание, просмотр,
// смену статуса и назначение курьера с рассылкой уведомлений.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

const (
	opCreateOrder      = "createOrder"
	opGetOrders        = "getOrders"
	opGetOrder         = "getOrder"
	opEditOrder        = "editOrder"
	opTakeOrder        = "takeOrder"
	opGetOrderTimeline = "getOrderTimeline"

	defaultPublishTimeout = 3 * time.Second
	takeOrderAttempts     = 2
)

// Сообщения об ошибках, которые видит вызывающая сторона.
const (
	MsgRestaurantNotFound  = "Restaurant not found"
	MsgDishNotFound        = "Dish not found"
	MsgOrderNotFound       = "Order not found"
	MsgCannotSee           = "You cannot see that"
	MsgNotAllowed          = "You are not allowed to do that"
	MsgAlreadyHasDriver    = "This order already has a driver"
	MsgChangedConcurrently = "Order was changed concurrently"
	MsgNoItems             = "Order must contain at least one item"
	MsgCannotCreateOrder   = "Cannot create order"
	MsgCannotGetOrders     = "Cannot get orders"
	MsgCannotGetOrder      = "Cannot get order"
	MsgCannotEditOrder     = "Cannot edit order"
	MsgCannotTakeOrder     = "Cannot take order"
	MsgCannotGetTimeline   = "Cannot get order timeline"
)

// Metrics: метрики, которые пишет сервис. nil отключает запись.
type Metrics interface {
	RecordOperation(operation, kind string, duration time.Duration)
	RecordOrderCreated()
	RecordStatusTransition(status string)
	RecordNotificationPublished(topic string, err error)
}

// Dependencies содержит зависимости сервиса заказов.
type Dependencies struct {
	Orders      domain.OrderRepository
	Restaurants domain.RestaurantRepository
	Dishes      domain.DishRepository
	Timeline    domain.TimelineRepository
	Publisher   notify.Publisher
	// Subscriber обслуживает подписки; если nil, используется Publisher, когда он реализует notify.Subscriber.
	Subscriber notify.Subscriber
	Metrics    Metrics
	Logger     *log.Entry
	// PublishTimeout ограничивает ожидание публикации одного уведомления.
	PublishTimeout time.Duration
	Clock          domain.Clock
	NewID          func() string
}

// Service: менеджер жизненного цикла заказа.
type Service struct {
	orders         domain.OrderRepository
	restaurants    domain.RestaurantRepository
	dishes         domain.DishRepository
	timeline       domain.TimelineRepository
	publisher      notify.Publisher
	subscriber     notify.Subscriber
	metrics        Metrics
	logger         *log.Entry
	publishTimeout time.Duration
	now            domain.Clock
	newID          func() string
}

// NewService конструирует сервис с зависимостями.
func NewService(deps Dependencies) *Service {
	s := &Service{
		orders:         deps.Orders,
		restaurants:    deps.Restaurants,
		dishes:         deps.Dishes,
		timeline:       deps.Timeline,
		publisher:      deps.Publisher,
		subscriber:     deps.Subscriber,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		publishTimeout: deps.PublishTimeout,
		now:            deps.Clock,
		newID:          deps.NewID,
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "order-service")
	}
	if s.subscriber == nil {
		if sub, ok := deps.Publisher.(notify.Subscriber); ok {
			s.subscriber = sub
		}
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = defaultPublishTimeout
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// CreateOrder создаёт заказ клиента в статусе Pending и уведомляет владельца ресторана.
func (s *Service) CreateOrder(ctx context.Context, customer domain.User, input CreateOrderInput) CreateOrderOutput {
	var orderID string
	core := s.run(ctx, opCreateOrder, MsgCannotCreateOrder, customer, input.RestaurantID, func(ctx context.Context) error {
		id, err := s.createOrder(ctx, customer, input)
		orderID = id
		return err
	})
	if !core.OK {
		return CreateOrderOutput{CoreOutput: core}
	}
	return CreateOrderOutput{CoreOutput: core, OrderID: orderID}
}

// GetOrders возвращает заказы, видимые пользователю.
func (s *Service) GetOrders(ctx context.Context, user domain.User, input GetOrdersInput) GetOrdersOutput {
	var orders []domain.Order
	core := s.run(ctx, opGetOrders, MsgCannotGetOrders, user, "", func(ctx context.Context) error {
		result, err := s.getOrders(ctx, user, input)
		orders = result
		return err
	})
	if !core.OK {
		return GetOrdersOutput{CoreOutput: core}
	}
	return GetOrdersOutput{CoreOutput: core, Orders: orders}
}

// GetOrder возвращает заказ, если пользователь может его видеть.
func (s *Service) GetOrder(ctx context.Context, user domain.User, input GetOrderInput) GetOrderOutput {
	var order domain.Order
	core := s.run(ctx, opGetOrder, MsgCannotGetOrder, user, input.ID, func(ctx context.Context) error {
		result, err := s.loadVisibleOrder(ctx, user, input.ID)
		order = result
		return err
	})
	if !core.OK {
		return GetOrderOutput{CoreOutput: core}
	}
	return GetOrderOutput{CoreOutput: core, Order: &order}
}

// EditOrder меняет статус заказа по матрице прав ролей.
func (s *Service) EditOrder(ctx context.Context, user domain.User, input EditOrderInput) EditOrderOutput {
	core := s.run(ctx, opEditOrder, MsgCannotEditOrder, user, input.ID, func(ctx context.Context) error {
		return s.editOrder(ctx, user, input)
	})
	return EditOrderOutput{CoreOutput: core}
}

// TakeOrder назначает курьера на заказ. Переназначение запрещено.
// Роль вызывающего здесь не проверяется, доступ ограничивает транспортный слой.
func (s *Service) TakeOrder(ctx context.Context, driver domain.User, input TakeOrderInput) TakeOrderOutput {
	core := s.run(ctx, opTakeOrder, MsgCannotTakeOrder, driver, input.ID, func(ctx context.Context) error {
		return s.takeOrder(ctx, driver, input)
	})
	return TakeOrderOutput{CoreOutput: core}
}

// GetOrderTimeline возвращает историю заказа, если пользователь может его видеть.
func (s *Service) GetOrderTimeline(ctx context.Context, user domain.User, input GetOrderInput) GetOrderTimelineOutput {
	var events []domain.TimelineEvent
	core := s.run(ctx, opGetOrderTimeline, MsgCannotGetTimeline, user, input.ID, func(ctx context.Context) error {
		if _, err := s.loadVisibleOrder(ctx, user, input.ID); err != nil {
			return err
		}
		result, err := s.timeline.List(ctx, input.ID)
		if err != nil {
			return fmt.Errorf("list timeline: %w", err)
		}
		events = result
		return nil
	})
	if !core.OK {
		return GetOrderTimelineOutput{CoreOutput: core}
	}
	return GetOrderTimelineOutput{CoreOutput: core, Events: events}
}

// CanSeeOrder проверяет видимость заказа для пользователя.
func (s *Service) CanSeeOrder(ctx context.Context, user domain.User, order domain.Order) (bool, error) {
	ownerID := ""
	if user.Role == domain.RoleOwner {
		restaurant, err := s.restaurants.Get(ctx, order.RestaurantID)
		switch {
		case err == nil:
			ownerID = restaurant.OwnerID
		case errors.Is(err, domain.ErrRestaurantNotFound):
		default:
			return false, fmt.Errorf("load restaurant %s: %w", order.RestaurantID, err)
		}
	}
	return domain.CanSeeOrder(user, order, ownerID), nil
}

// run выполняет операцию и переводит любой сбой в результат {ok:false, error}.
// Ожидаемые отказы отдаются как есть, остальные ошибки и паники становятся Internal с internalMsg.
func (s *Service) run(
	ctx context.Context,
	operation, internalMsg string,
	user domain.User,
	orderID string,
	fn func(context.Context) error,
) (out CoreOutput) {
	start := time.Now()
	fields := log.Fields{
		"operation": operation,
		"user_id":   user.ID,
		"role":      user.Role,
	}
	if orderID != "" {
		fields["order_id"] = orderID
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(fields).Errorf("panic in order operation: %v", r)
			out = failure(domain.KindInternal, internalMsg)
		}
		s.metrics.RecordOperation(operation, string(out.Kind), time.Since(start))
	}()

	err := fn(ctx)
	if err == nil {
		return CoreOutput{OK: true}
	}

	if opErr, ok := domain.AsOpError(err); ok && opErr.Kind != domain.KindInternal {
		s.logger.WithFields(fields).WithField("kind", opErr.Kind).Debug(opErr.Message)
		return failure(opErr.Kind, opErr.Message)
	}

	s.logger.WithError(err).WithFields(fields).Error("order operation failed")
	return failure(domain.KindInternal, internalMsg)
}

// loadVisibleOrder загружает заказ и проверяет, что пользователь может его видеть.
func (s *Service) loadVisibleOrder(ctx context.Context, user domain.User, orderID string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return domain.Order{}, domain.NewOpError(domain.KindNotFound, MsgOrderNotFound)
		}
		return domain.Order{}, fmt.Errorf("load order %s: %w", orderID, err)
	}

	visible, err := s.CanSeeOrder(ctx, user, order)
	if err != nil {
		return domain.Order{}, err
	}
	if !visible {
		return domain.Order{}, domain.NewOpError(domain.KindForbidden, MsgCannotSee)
	}
	return order, nil
}

func (s *Service) appendTimeline(ctx context.Context, orderID, eventType, reason, actorID string) {
	if s.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		ActorID:  actorID,
		Occurred: s.now(),
	}
	if err := s.timeline.Append(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("failed to append timeline event")
	}
}

// publish отправляет уведомление с ограничением по времени.
// Ошибка публикации логируется и не меняет результат операции.
func (s *Service) publish(ctx context.Context, topic notify.Topic, msg notify.Message, buildErr error) {
	if s.publisher == nil {
		return
	}
	logger := s.logger.WithFields(log.Fields{
		"topic": topic,
		"key":   msg.Key,
	})
	if buildErr != nil {
		s.metrics.RecordNotificationPublished(string(topic), buildErr)
		logger.WithError(buildErr).Error("failed to build notification")
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	err := s.publisher.Publish(pubCtx, msg)
	s.metrics.RecordNotificationPublished(string(topic), err)
	if err != nil {
		logger.WithError(err).Warn("failed to publish notification")
	}
}

func failure(kind domain.ErrorKind, message string) CoreOutput {
	return CoreOutput{OK: false, Error: message, Kind: kind}
}

type noopMetrics struct{}

func (noopMetrics) RecordOperation(string, string, time.Duration) {}
func (noopMetrics) RecordOrderCreated()                           {}
func (noopMetrics) RecordStatusTransition(string)                 {}
func (noopMetrics) RecordNotificationPublished(string, error)     {}
