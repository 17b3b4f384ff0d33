// Package grpcsvc публикует менеджер заказов как gRPC-сервис fooddelivery.v1.OrderService.
package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/fooddelivery/internal/auth"
	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
	"github.com/vladislavdragonenkov/fooddelivery/internal/service/orders"
)

// OrderService реализует gRPC API поверх менеджера заказов.
// Бизнес-отказы возвращаются в теле ответа {ok,error}; статусы gRPC только для
// сбоев транспорта: аутентификация и некорректный запрос.
type OrderService struct {
	orders *orders.Service
	logger *log.Entry
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(svc *orders.Service, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-service")
	}
	return &OrderService{orders: svc, logger: logger}
}

var _ OrderServiceServer = (*OrderService)(nil)

// CreateOrder создаёт заказ от имени клиента.
func (s *OrderService) CreateOrder(ctx context.Context, req *orders.CreateOrderInput) (*orders.CreateOrderOutput, error) {
	user, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.RestaurantID == "" {
		return nil, status.Error(codes.InvalidArgument, "restaurantId is required")
	}
	if len(req.Items) == 0 {
		return nil, status.Error(codes.InvalidArgument, "order must contain at least one item")
	}
	for idx, item := range req.Items {
		if item.DishID == "" {
			return nil, status.Errorf(codes.InvalidArgument, "items[%d].dishId is required", idx)
		}
	}

	out := s.orders.CreateOrder(ctx, user, *req)
	return &out, nil
}

// GetOrders возвращает видимые пользователю заказы.
func (s *OrderService) GetOrders(ctx context.Context, req *orders.GetOrdersInput) (*orders.GetOrdersOutput, error) {
	user, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.Status != "" && !req.Status.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", req.Status)
	}

	out := s.orders.GetOrders(ctx, user, *req)
	return &out, nil
}

// GetOrder возвращает заказ по ID.
func (s *OrderService) GetOrder(ctx context.Context, req *orders.GetOrderInput) (*orders.GetOrderOutput, error) {
	user, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	out := s.orders.GetOrder(ctx, user, *req)
	return &out, nil
}

// EditOrder меняет статус заказа.
func (s *OrderService) EditOrder(ctx context.Context, req *orders.EditOrderInput) (*orders.EditOrderOutput, error) {
	user, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	if !req.Status.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown status %q", req.Status)
	}

	out := s.orders.EditOrder(ctx, user, *req)
	return &out, nil
}

// TakeOrder назначает вызывающего курьера на заказ.
func (s *OrderService) TakeOrder(ctx context.Context, req *orders.TakeOrderInput) (*orders.TakeOrderOutput, error) {
	user, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	out := s.orders.TakeOrder(ctx, user, *req)
	return &out, nil
}

// GetOrderTimeline возвращает историю заказа.
func (s *OrderService) GetOrderTimeline(ctx context.Context, req *orders.GetOrderInput) (*orders.GetOrderTimelineOutput, error) {
	user, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if req.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	out := s.orders.GetOrderTimeline(ctx, user, *req)
	return &out, nil
}

// PendingOrders передаёт владельцу новые заказы его ресторанов.
func (s *OrderService) PendingOrders(req *SubscribeRequest, stream NotificationStream) error {
	ctx := stream.Context()
	user, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	sub, err := s.orders.SubscribePendingOrders(ctx, user, req.Filter)
	if err != nil {
		return subscribeStatus(err)
	}
	return s.forward(ctx, sub, stream, user)
}

// CookedOrders передаёт курьерам заказы, готовые к выдаче.
func (s *OrderService) CookedOrders(req *SubscribeRequest, stream NotificationStream) error {
	ctx := stream.Context()
	user, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	sub, err := s.orders.SubscribeCookedOrders(ctx, user, req.Filter)
	if err != nil {
		return subscribeStatus(err)
	}
	return s.forward(ctx, sub, stream, user)
}

// OrderUpdates передаёт изменения одного заказа тем, кто может его видеть.
func (s *OrderService) OrderUpdates(req *SubscribeRequest, stream NotificationStream) error {
	ctx := stream.Context()
	user, err := callerFrom(ctx)
	if err != nil {
		return err
	}
	if req.OrderID == "" {
		return status.Error(codes.InvalidArgument, "orderId is required")
	}
	sub, err := s.orders.SubscribeOrderUpdates(ctx, user, req.OrderID, req.Filter)
	if err != nil {
		return subscribeStatus(err)
	}
	return s.forward(ctx, sub, stream, user)
}

// forward пересылает сообщения подписки в поток до отмены контекста или закрытия подписки.
func (s *OrderService) forward(ctx context.Context, sub *notify.Subscription, stream NotificationStream, user domain.User) error {
	defer sub.Close()

	logger := s.logger.WithFields(log.Fields{
		"topic":   sub.Topic(),
		"user_id": user.ID,
	})
	logger.Debug("subscription stream opened")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("subscription stream closed by client")
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return status.Error(codes.Unavailable, "notification bus is closed")
			}
			if err := stream.Send(&msg); err != nil {
				logger.WithError(err).Debug("failed to send notification")
				return err
			}
		}
	}
}

func callerFrom(ctx context.Context) (domain.User, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return domain.User{}, status.Error(codes.Unauthenticated, "caller identity is missing")
	}
	return user, nil
}

func subscribeStatus(err error) error {
	if opErr, ok := domain.AsOpError(err); ok {
		switch opErr.Kind {
		case domain.KindNotFound:
			return status.Error(codes.NotFound, opErr.Message)
		case domain.KindForbidden:
			return status.Error(codes.PermissionDenied, opErr.Message)
		default:
			return status.Error(codes.Internal, opErr.Message)
		}
	}
	switch {
	case errors.Is(err, orders.ErrInvalidFilter):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, orders.ErrSubscriptionsDisabled), errors.Is(err, notify.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, "cannot open subscription")
	}
}
