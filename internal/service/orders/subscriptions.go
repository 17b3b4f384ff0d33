package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

var (
	// ErrInvalidFilter: пользовательский CEL-фильтр не компилируется.
	ErrInvalidFilter = errors.New("invalid subscription filter")
	// ErrSubscriptionsDisabled: сервис собран без подписчика уведомлений.
	ErrSubscriptionsDisabled = errors.New("subscriptions are not configured")
)

// SubscribePendingOrders подписывает владельца на новые заказы его ресторанов.
func (s *Service) SubscribePendingOrders(ctx context.Context, owner domain.User, filterExpr string) (*notify.Subscription, error) {
	return s.subscribe(ctx, notify.TopicPendingOrders, notify.KeyFilter(owner.ID), filterExpr)
}

// SubscribeCookedOrders подписывает на все заказы, готовые к выдаче курьеру.
func (s *Service) SubscribeCookedOrders(ctx context.Context, _ domain.User, filterExpr string) (*notify.Subscription, error) {
	return s.subscribe(ctx, notify.TopicCookedOrders, nil, filterExpr)
}

// SubscribeOrderUpdates подписывает на изменения одного заказа.
// Видимость проверяется так же, как в GetOrder; отказ возвращается как *domain.OpError.
func (s *Service) SubscribeOrderUpdates(ctx context.Context, user domain.User, orderID, filterExpr string) (*notify.Subscription, error) {
	if _, err := s.loadVisibleOrder(ctx, user, orderID); err != nil {
		if _, ok := domain.AsOpError(err); ok {
			return nil, err
		}
		s.logger.WithError(err).WithField("order_id", orderID).Error("failed to check order visibility for subscription")
		return nil, domain.WrapOpError(domain.KindInternal, MsgCannotGetOrder, err)
	}
	return s.subscribe(ctx, notify.TopicOrderUpdates, notify.KeyFilter(orderID), filterExpr)
}

func (s *Service) subscribe(ctx context.Context, topic notify.Topic, base notify.Filter, filterExpr string) (*notify.Subscription, error) {
	if s.subscriber == nil {
		return nil, ErrSubscriptionsDisabled
	}

	custom, err := notify.CompileCELFilter(filterExpr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	sub, err := s.subscriber.Subscribe(ctx, topic, notify.AllOf(base, custom))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return sub, nil
}
