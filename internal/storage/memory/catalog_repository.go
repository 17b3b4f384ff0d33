package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
)

// restaurantRepositoryInMemory хранит рестораны в памяти.
type restaurantRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Restaurant
}

// NewRestaurantRepository создаёт in-memory реализацию RestaurantRepository.
func NewRestaurantRepository() domain.RestaurantRepository {
	return &restaurantRepositoryInMemory{items: make(map[string]domain.Restaurant)}
}

func (r *restaurantRepositoryInMemory) Create(_ context.Context, restaurant domain.Restaurant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[restaurant.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.items[restaurant.ID] = restaurant
	return nil
}

func (r *restaurantRepositoryInMemory) Get(_ context.Context, id string) (domain.Restaurant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	restaurant, ok := r.items[id]
	if !ok {
		return domain.Restaurant{}, domain.ErrRestaurantNotFound
	}
	return restaurant, nil
}

func (r *restaurantRepositoryInMemory) ListByOwner(_ context.Context, ownerID string) ([]domain.Restaurant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Restaurant, 0)
	for _, restaurant := range r.items {
		if restaurant.OwnerID == ownerID {
			result = append(result, restaurant)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// dishRepositoryInMemory хранит блюда в памяти.
type dishRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Dish
}

// NewDishRepository создаёт in-memory реализацию DishRepository.
func NewDishRepository() domain.DishRepository {
	return &dishRepositoryInMemory{items: make(map[string]domain.Dish)}
}

func (r *dishRepositoryInMemory) Create(_ context.Context, dish domain.Dish) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[dish.ID]; exists {
		return domain.ErrAlreadyExists
	}
	dish.Options = append([]domain.DishOption(nil), dish.Options...)
	r.items[dish.ID] = dish
	return nil
}

func (r *dishRepositoryInMemory) Get(_ context.Context, id string) (domain.Dish, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dish, ok := r.items[id]
	if !ok {
		return domain.Dish{}, domain.ErrDishNotFound
	}
	return dish, nil
}

// userRepositoryInMemory хранит пользователей в памяти.
type userRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.User
}

// NewUserRepository создаёт in-memory реализацию UserRepository.
func NewUserRepository() domain.UserRepository {
	return &userRepositoryInMemory{items: make(map[string]domain.User)}
}

func (r *userRepositoryInMemory) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[user.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.items[user.ID] = user
	return nil
}

func (r *userRepositoryInMemory) Get(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.items[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

var (
	_ domain.RestaurantRepository = (*restaurantRepositoryInMemory)(nil)
	_ domain.DishRepository       = (*dishRepositoryInMemory)(nil)
	_ domain.UserRepository       = (*userRepositoryInMemory)(nil)
)
