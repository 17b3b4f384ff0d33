package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
)

// seedData: пользователи и каталог для стенда. Регистрация и CRUD ресторанов
// живут во внешних сервисах, поэтому локально данные загружаются из файла.
type seedData struct {
	Users       []domain.User       `json:"users"`
	Restaurants []domain.Restaurant `json:"restaurants"`
	Dishes      []domain.Dish       `json:"dishes"`
}

type seedStats struct {
	Users       int
	Restaurants int
	Dishes      int
	Skipped     int
}

func loadSeedFile(ctx context.Context, path string, deps runtimeDependencies, logger *log.Entry) (seedStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return seedStats{}, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	stats, err := loadSeed(ctx, f, deps)
	if err != nil {
		return stats, fmt.Errorf("load seed %s: %w", path, err)
	}
	logger.WithFields(log.Fields{
		"path":        path,
		"users":       stats.Users,
		"restaurants": stats.Restaurants,
		"dishes":      stats.Dishes,
		"skipped":     stats.Skipped,
	}).Info("seed data loaded")
	return stats, nil
}

// loadSeed создаёт записи из r. Уже существующие записи пропускаются,
// так что повторный запуск с PostgreSQL безопасен.
func loadSeed(ctx context.Context, r io.Reader, deps runtimeDependencies) (seedStats, error) {
	var data seedData
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return seedStats{}, fmt.Errorf("decode seed: %w", err)
	}

	var stats seedStats
	for _, user := range data.Users {
		if !user.Role.Valid() {
			return stats, fmt.Errorf("user %s: %w", user.ID, domain.ErrRoleInvalid)
		}
		created, err := skipExisting(deps.users.Create(ctx, user))
		if err != nil {
			return stats, fmt.Errorf("user %s: %w", user.ID, err)
		}
		stats.count(created, &stats.Users)
	}
	for _, restaurant := range data.Restaurants {
		created, err := skipExisting(deps.restaurants.Create(ctx, restaurant))
		if err != nil {
			return stats, fmt.Errorf("restaurant %s: %w", restaurant.ID, err)
		}
		stats.count(created, &stats.Restaurants)
	}
	for _, dish := range data.Dishes {
		if err := dish.Validate(); err != nil {
			return stats, fmt.Errorf("dish %s: %w", dish.ID, err)
		}
		created, err := skipExisting(deps.dishes.Create(ctx, dish))
		if err != nil {
			return stats, fmt.Errorf("dish %s: %w", dish.ID, err)
		}
		stats.count(created, &stats.Dishes)
	}
	return stats, nil
}

func skipExisting(err error) (bool, error) {
	if errors.Is(err, domain.ErrAlreadyExists) {
		return false, nil
	}
	return err == nil, err
}

func (s *seedStats) count(created bool, counter *int) {
	if created {
		*counter++
		return
	}
	s.Skipped++
}
