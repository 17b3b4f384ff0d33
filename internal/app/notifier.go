package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/fooddelivery/internal/health"
	"github.com/vladislavdragonenkov/fooddelivery/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fooddelivery/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/fooddelivery/internal/notify"
)

// notifier: шина уведомлений с выбранным транспортом.
type notifier struct {
	bus notify.Bus
	// local обслуживает подписки этого экземпляра.
	local *notify.Broker
	// checker nil для шины в памяти.
	checker healthcheck.Checker
	// run читает сообщения внешнего брокера до отмены ctx; nil для шины в памяти.
	run     func(ctx context.Context) error
	closeFn func() error
}

func (n *notifier) close(logger *log.Entry) {
	if n == nil || n.closeFn == nil {
		return
	}
	if err := n.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close notification bus")
	} else {
		logger.Info("notification bus closed")
	}
}

// relayConsumer: потребитель внешнего брокера с явной остановкой.
type relayConsumer interface {
	Start(ctx context.Context) error
	Stop() error
}

// initNotifier создаёт шину для cfg.NotifyDriver. Внешние брокеры работают через notify.Relay:
// публикация уходит в брокер, а полученные сообщения раздаются локальным подписчикам.
func initNotifier(cfg Config, recorder notify.Recorder, logger *log.Entry) (*notifier, error) {
	local := notify.NewBroker(
		notify.WithRecorder(recorder),
		notify.WithLogger(logger.WithField("layer", "notify")),
	)

	switch cfg.NotifyDriver {
	case NotifyDriverMemory, "":
		logger.Info("using in-process notification bus")
		return &notifier{bus: local, local: local, closeFn: local.Close}, nil

	case NotifyDriverKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			_ = local.Close()
			return nil, err
		}
		relay := notify.NewRelay(producer, local, logger.WithField("layer", "notify-relay"))
		// Каждому экземпляру своя группа: сообщение должно дойти до подписчиков всех экземпляров.
		groupID := cfg.KafkaGroup + "-" + uuid.NewString()
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, groupID, relay.Deliver)
		if err != nil {
			_ = relay.Close()
			return nil, err
		}
		logger.WithFields(log.Fields{
			"brokers":  cfg.KafkaBrokers,
			"group_id": groupID,
		}).Info("kafka notification relay initialized")
		return &notifier{
			bus:     relay,
			local:   local,
			run:     func(ctx context.Context) error { return runRelayConsumer(ctx, consumer, logger) },
			closeFn: relay.Close,
		}, nil

	case NotifyDriverRabbitMQ:
		client, err := rabbitmq.Dial(cfg.RabbitMQURL, rabbitmq.DefaultExchange, logger.WithField("layer", "rabbitmq"))
		if err != nil {
			_ = local.Close()
			return nil, err
		}
		relay := notify.NewRelay(client, local, logger.WithField("layer", "notify-relay"))
		logger.Info("rabbitmq notification relay initialized")
		return &notifier{
			bus:     relay,
			local:   local,
			checker: healthcheck.NewPingChecker(client, false),
			run: func(ctx context.Context) error {
				if err := client.RunRelay(ctx, relay.Deliver); err != nil {
					return fmt.Errorf("rabbitmq relay: %w", err)
				}
				return nil
			},
			closeFn: relay.Close,
		}, nil

	default:
		_ = local.Close()
		return nil, fmt.Errorf("unsupported notify driver: %q", cfg.NotifyDriver)
	}
}

// runRelayConsumer запускает потребителя и останавливает его после отмены ctx.
func runRelayConsumer(ctx context.Context, consumer relayConsumer, logger *log.Entry) error {
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start relay consumer: %w", err)
	}
	<-ctx.Done()
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop relay consumer")
	}
	return nil
}
