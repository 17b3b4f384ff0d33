package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
)

type recorderStub struct {
	mu        sync.Mutex
	dropped   map[string]int
	opened    map[string]int
	closed    map[string]int
	published map[string]int
}

func newRecorderStub() *recorderStub {
	return &recorderStub{
		dropped:   map[string]int{},
		opened:    map[string]int{},
		closed:    map[string]int{},
		published: map[string]int{},
	}
}

func (r *recorderStub) RecordNotificationPublished(topic string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published[topic]++
}

func (r *recorderStub) RecordNotificationDropped(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[topic]++
}

func (r *recorderStub) RecordSubscriptionOpened(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened[topic]++
}

func (r *recorderStub) RecordSubscriptionClosed(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[topic]++
}

func (r *recorderStub) closedCount(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed[topic]
}

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func assertNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_FanOutToAllSubscribers(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()
	ctx := context.Background()

	first, err := broker.Subscribe(ctx, TopicCookedOrders, nil)
	require.NoError(t, err)
	second, err := broker.Subscribe(ctx, TopicCookedOrders, nil)
	require.NoError(t, err)
	other, err := broker.Subscribe(ctx, TopicOrderUpdates, nil)
	require.NoError(t, err)

	msg, err := NewCookedOrderMessage(domain.Order{ID: "order-1", Status: domain.OrderStatusCooked})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, msg))

	require.Equal(t, "order-1", mustCooked(t, receive(t, first)).ID)
	require.Equal(t, "order-1", mustCooked(t, receive(t, second)).ID)
	assertNoMessage(t, other)
}

func TestBroker_KeyFilter(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, TopicPendingOrders, KeyFilter("owner-1"))
	require.NoError(t, err)

	foreign, err := NewPendingOrderMessage(domain.Order{ID: "order-1"}, "owner-2")
	require.NoError(t, err)
	own, err := NewPendingOrderMessage(domain.Order{ID: "order-2"}, "owner-1")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, foreign))
	require.NoError(t, broker.Publish(ctx, own))

	event, err := DecodePendingOrder(receive(t, sub))
	require.NoError(t, err)
	require.Equal(t, "order-2", event.Order.ID)
	require.Equal(t, "owner-1", event.OwnerID)
	assertNoMessage(t, sub)
}

func TestBroker_UnknownTopic(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	_, err := broker.Subscribe(context.Background(), Topic("payments"), nil)
	require.ErrorIs(t, err, ErrUnknownTopic)

	err = broker.Publish(context.Background(), Message{Topic: "payments"})
	require.ErrorIs(t, err, ErrUnknownTopic)
}

func TestBroker_SubscriptionClosedOnContextCancel(t *testing.T) {
	recorder := newRecorderStub()
	broker := NewBroker(WithRecorder(recorder))
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := broker.Subscribe(ctx, TopicOrderUpdates, nil)
	require.NoError(t, err)
	require.Equal(t, 1, broker.SubscriberCount(TopicOrderUpdates))

	cancel()

	select {
	case _, ok := <-sub.C():
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed after cancel")
	}
	require.Equal(t, 0, broker.SubscriberCount(TopicOrderUpdates))
	require.Eventually(t, func() bool {
		return recorder.closedCount(string(TopicOrderUpdates)) == 1
	}, time.Second, 10*time.Millisecond)

	sub.Close()
}

func TestBroker_SlowSubscriberDropsMessages(t *testing.T) {
	recorder := newRecorderStub()
	broker := NewBroker(WithBufferSize(1), WithRecorder(recorder))
	defer broker.Close()
	ctx := context.Background()

	sub, err := broker.Subscribe(ctx, TopicOrderUpdates, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		msg, err := NewOrderUpdateMessage(domain.Order{ID: "order-1"})
		require.NoError(t, err)
		require.NoError(t, broker.Publish(ctx, msg))
	}

	receive(t, sub)
	assertNoMessage(t, sub)

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.Equal(t, 2, recorder.dropped[string(TopicOrderUpdates)])
	require.Equal(t, 1, recorder.opened[string(TopicOrderUpdates)])
}

func TestBroker_Close(t *testing.T) {
	broker := NewBroker()
	sub, err := broker.Subscribe(context.Background(), TopicCookedOrders, nil)
	require.NoError(t, err)

	require.NoError(t, broker.Close())
	require.NoError(t, broker.Close())

	_, ok := <-sub.C()
	require.False(t, ok)

	_, err = broker.Subscribe(context.Background(), TopicCookedOrders, nil)
	require.ErrorIs(t, err, ErrClosed)
	msg, err := NewCookedOrderMessage(domain.Order{ID: "o"})
	require.NoError(t, err)
	require.ErrorIs(t, broker.Publish(context.Background(), msg), ErrClosed)
}

func TestBroker_PublishWithCanceledContext(t *testing.T) {
	broker := NewBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg, err := NewOrderUpdateMessage(domain.Order{ID: "o"})
	require.NoError(t, err)
	require.True(t, errors.Is(broker.Publish(ctx, msg), context.Canceled))
}

func mustCooked(t *testing.T, msg Message) domain.Order {
	t.Helper()
	order, err := DecodeCookedOrder(msg)
	require.NoError(t, err)
	return order
}
