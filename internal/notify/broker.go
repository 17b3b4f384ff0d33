package notify

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

const defaultBufferSize = 64

// BrokerOptions задаёт параметры in-process брокера.
type BrokerOptions struct {
	// BufferSize: размер очереди одной подписки. Переполненная подписка теряет сообщения.
	BufferSize int
	Logger     *log.Entry
	Recorder   Recorder
}

// Option изменяет BrokerOptions.
type Option func(*BrokerOptions)

// WithBufferSize задаёт размер очереди подписки.
func WithBufferSize(size int) Option {
	return func(o *BrokerOptions) {
		if size > 0 {
			o.BufferSize = size
		}
	}
}

// WithLogger задаёт логгер брокера.
func WithLogger(logger *log.Entry) Option {
	return func(o *BrokerOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithRecorder подключает метрики.
func WithRecorder(recorder Recorder) Option {
	return func(o *BrokerOptions) {
		o.Recorder = recorder
	}
}

// Broker: in-process шина: рассылает каждое сообщение всем подходящим подпискам топика.
type Broker struct {
	opts BrokerOptions

	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic]map[uint64]*Subscription
	closed bool
}

// NewBroker создаёт брокер.
func NewBroker(opts ...Option) *Broker {
	options := BrokerOptions{
		BufferSize: defaultBufferSize,
		Logger:     log.WithField("component", "notify-broker"),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Broker{
		opts: options,
		subs: make(map[Topic]map[uint64]*Subscription),
	}
}

// Publish рассылает сообщение без блокировки: если очередь подписки заполнена, сообщение для неё теряется.
func (b *Broker) Publish(ctx context.Context, msg Message) error {
	if !msg.Topic.Valid() {
		return ErrUnknownTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	delivered := 0
	for _, sub := range b.subs[msg.Topic] {
		if sub.filter != nil && !sub.filter.Match(msg) {
			continue
		}
		select {
		case sub.ch <- msg:
			delivered++
		default:
			b.opts.Logger.WithFields(log.Fields{
				"topic":           msg.Topic,
				"key":             msg.Key,
				"subscription_id": sub.id,
			}).Warn("subscription buffer is full, message dropped")
			if b.opts.Recorder != nil {
				b.opts.Recorder.RecordNotificationDropped(string(msg.Topic))
			}
		}
	}

	b.opts.Logger.WithFields(log.Fields{
		"topic":     msg.Topic,
		"key":       msg.Key,
		"delivered": delivered,
	}).Debug("notification dispatched")

	return nil
}

// Subscribe регистрирует подписку. Она закрывается при отмене ctx, вызове Close или остановке брокера.
func (b *Broker) Subscribe(ctx context.Context, topic Topic, filter Filter) (*Subscription, error) {
	if !topic.Valid() {
		return nil, ErrUnknownTopic
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		topic:  topic,
		filter: filter,
		ch:     make(chan Message, b.opts.BufferSize),
		done:   make(chan struct{}),
		broker: b,
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*Subscription)
	}
	b.subs[topic][sub.id] = sub
	b.mu.Unlock()

	if b.opts.Recorder != nil {
		b.opts.Recorder.RecordSubscriptionOpened(string(topic))
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Close останавливает брокер и закрывает все подписки.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Subscription, 0)
	for _, byID := range b.subs {
		for _, sub := range byID {
			subs = append(subs, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}

// SubscriberCount возвращает число активных подписок на топик.
func (b *Broker) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs[sub.topic], sub.id)
	close(sub.ch)
	b.mu.Unlock()

	if b.opts.Recorder != nil {
		b.opts.Recorder.RecordSubscriptionClosed(string(sub.topic))
	}
}

// Subscription: активная подписка на топик.
type Subscription struct {
	id     uint64
	topic  Topic
	filter Filter
	ch     chan Message
	done   chan struct{}
	once   sync.Once
	broker *Broker
}

// C возвращает канал сообщений; канал закрывается при завершении подписки.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Topic возвращает топик подписки.
func (s *Subscription) Topic() Topic {
	return s.topic
}

// Close завершает подписку. Повторные вызовы безопасны.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.broker.remove(s)
	})
}

var _ Bus = (*Broker)(nil)
