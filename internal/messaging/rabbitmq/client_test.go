package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

type fakeChannel struct {
	mu         sync.Mutex
	exchanges  map[string]string
	bindings   map[string]bool
	published  []amqp.Publishing
	keys       []string
	acks       chan amqp.Confirmation
	deliveries chan amqp.Delivery
	tag        uint64

	nack       bool
	withoutAck bool
	// confirmDelay откладывает подтверждение публикации с данным тегом.
	confirmDelay map[uint64]time.Duration
	nackTags     map[uint64]bool
	publishErr error
	declareErr error
	confirmErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges:  map[string]string{},
		bindings:   map[string]bool{},
		deliveries: make(chan amqp.Delivery, 16),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	if f.declareErr != nil {
		return f.declareErr
	}
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(string, bool, bool, bool, bool, amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{Name: "amq.gen-test"}, nil
}

func (f *fakeChannel) QueueBind(_, key, _ string, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings[key] = true
	return nil
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.tag++
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)

	if f.bindings[key] {
		f.deliveries <- amqp.Delivery{
			RoutingKey:  key,
			Headers:     msg.Headers,
			Body:        msg.Body,
			Timestamp:   msg.Timestamp,
			DeliveryTag: f.tag,
		}
	}
	if f.withoutAck {
		return nil
	}
	conf := amqp.Confirmation{DeliveryTag: f.tag, Ack: !f.nack && !f.nackTags[f.tag]}
	if delay, ok := f.confirmDelay[f.tag]; ok {
		go func() {
			time.Sleep(delay)
			f.mu.Lock()
			defer f.mu.Unlock()
			if !f.closed {
				f.acks <- conf
			}
		}()
		return nil
	}
	f.acks <- conf
	return nil
}

func (f *fakeChannel) GetNextPublishSeqNo() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tag + 1
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) Confirm(bool) error {
	return f.confirmErr
}

func (f *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	f.acks = confirm
	return confirm
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		if f.acks != nil {
			close(f.acks)
		}
	}
	return nil
}

func newTestClient(t *testing.T, ch *fakeChannel) *Client {
	t.Helper()

	client, err := newClient(ch, "", log.NewEntry(log.New()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientDeclaresTopicExchange(t *testing.T) {
	ch := newFakeChannel()
	newTestClient(t, ch)

	if kind := ch.exchanges[DefaultExchange]; kind != amqp.ExchangeTopic {
		t.Fatalf("expected topic exchange %s, got %q", DefaultExchange, kind)
	}
}

func TestNewClientErrors(t *testing.T) {
	ch := newFakeChannel()
	ch.declareErr = errors.New("access refused")
	if _, err := newClient(ch, "", nil); err == nil {
		t.Fatal("expected declare error")
	}

	ch = newFakeChannel()
	ch.confirmErr = errors.New("confirm not supported")
	if _, err := newClient(ch, "", nil); err == nil {
		t.Fatal("expected confirm error")
	}
}

func TestSendPublishesWithRoutingKeyAndHeaders(t *testing.T) {
	ch := newFakeChannel()
	client := newTestClient(t, ch)

	publishedAt := time.Date(2026, 4, 17, 12, 0, 0, 0, time.UTC)
	err := client.Send(context.Background(), notify.Message{
		Topic:       notify.TopicPendingOrders,
		Key:         "owner-1",
		Payload:     []byte(`{"ownerId":"owner-1"}`),
		PublishedAt: publishedAt,
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(ch.published) != 1 {
		t.Fatalf("expected one publishing, got %d", len(ch.published))
	}
	if ch.keys[0] != string(notify.TopicPendingOrders) {
		t.Fatalf("unexpected routing key %q", ch.keys[0])
	}
	pub := ch.published[0]
	if pub.Headers[HeaderNotifyKey] != "owner-1" {
		t.Fatalf("unexpected key header: %v", pub.Headers)
	}
	if !pub.Timestamp.Equal(publishedAt) || pub.ContentType != contentTypeJSON {
		t.Fatalf("unexpected publishing: %+v", pub)
	}
}

func TestSendFailures(t *testing.T) {
	msg := notify.Message{Topic: notify.TopicOrderUpdates, Key: "order-1", Payload: []byte(`{}`)}

	t.Run("unknown topic", func(t *testing.T) {
		client := newTestClient(t, newFakeChannel())
		if err := client.Send(context.Background(), notify.Message{Topic: "bogus"}); !errors.Is(err, notify.ErrUnknownTopic) {
			t.Fatalf("expected ErrUnknownTopic, got %v", err)
		}
	})

	t.Run("nack", func(t *testing.T) {
		ch := newFakeChannel()
		ch.nack = true
		client := newTestClient(t, ch)
		if err := client.Send(context.Background(), msg); !errors.Is(err, ErrNack) {
			t.Fatalf("expected ErrNack, got %v", err)
		}
	})

	t.Run("publish error", func(t *testing.T) {
		ch := newFakeChannel()
		ch.publishErr = amqp.ErrClosed
		client := newTestClient(t, ch)
		if err := client.Send(context.Background(), msg); !errors.Is(err, amqp.ErrClosed) {
			t.Fatalf("expected wrapped amqp.ErrClosed, got %v", err)
		}
	})

	t.Run("confirm timeout", func(t *testing.T) {
		ch := newFakeChannel()
		ch.withoutAck = true
		client := newTestClient(t, ch)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := client.Send(ctx, msg); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestSendIgnoresConfirmOfAbandonedPublish(t *testing.T) {
	ch := newFakeChannel()
	ch.confirmDelay = map[uint64]time.Duration{1: 50 * time.Millisecond}
	ch.nackTags = map[uint64]bool{1: true}
	client := newTestClient(t, ch)
	msg := notify.Message{Topic: notify.TopicOrderUpdates, Key: "order-1", Payload: []byte(`{}`)}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := client.Send(ctx, msg); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first send: expected deadline exceeded, got %v", err)
	}

	// Поздний NACK первой публикации приходит, пока вторая ждёт своего ACK.
	ch.mu.Lock()
	ch.confirmDelay[2] = 100 * time.Millisecond
	ch.mu.Unlock()
	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("second send must get its own ack, got %v", err)
	}
	if err := client.Send(context.Background(), msg); err != nil {
		t.Fatalf("third send: %v", err)
	}

	client.waitMu.Lock()
	defer client.waitMu.Unlock()
	if len(client.waiters) != 0 {
		t.Fatalf("expected no pending confirmations, got %d", len(client.waiters))
	}
}

func TestSendReportsClosedConfirmChannel(t *testing.T) {
	ch := newFakeChannel()
	ch.withoutAck = true
	client := newTestClient(t, ch)

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Send(context.Background(), notify.Message{Topic: notify.TopicCookedOrders, Payload: []byte(`{}`)})
	}()

	time.Sleep(20 * time.Millisecond)
	_ = ch.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("send did not return after confirm channel closed")
	}
}

func TestPingAndClose(t *testing.T) {
	ch := newFakeChannel()
	client := newTestClient(t, ch)

	if err := client.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("client without connection should report closed, got %v", err)
	}
	if client.Name() != "rabbitmq" {
		t.Fatalf("unexpected name %q", client.Name())
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ch.closed {
		t.Fatal("channel should be closed")
	}
}
