package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/fooddelivery/internal/health"
	"github.com/vladislavdragonenkov/fooddelivery/internal/storage/memory"
	"github.com/vladislavdragonenkov/fooddelivery/internal/storage/postgres"
)

// runtimeDependencies: репозитории выбранного хранилища.
type runtimeDependencies struct {
	orders         domain.OrderRepository
	restaurants    domain.RestaurantRepository
	dishes         domain.DishRepository
	users          domain.UserRepository
	timeline       domain.TimelineRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d runtimeDependencies) close(logger *log.Entry) {
	if d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// initRuntimeDependencies создаёт репозитории для cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Info("using in-memory storage")
		return runtimeDependencies{
			orders:      memory.NewOrderRepository(),
			restaurants: memory.NewRestaurantRepository(),
			dishes:      memory.NewDishRepository(),
			users:       memory.NewUserRepository(),
			timeline:    memory.NewTimelineRepository(),
			storageChecker: healthcheck.NewFuncChecker(StorageDriverMemory, func(context.Context) error {
				return nil
			}),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return runtimeDependencies{}, errors.New("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("migrate postgres schema: %w", err)
			}
		}
		logger.Info("using postgres storage")
		return runtimeDependencies{
			orders:         postgres.NewOrderRepository(store),
			restaurants:    postgres.NewRestaurantRepository(store),
			dishes:         postgres.NewDishRepository(store),
			users:          postgres.NewUserRepository(store),
			timeline:       postgres.NewTimelineRepository(store),
			storageChecker: healthcheck.NewPingChecker(store, true),
			closeFn:        store.Close,
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}
