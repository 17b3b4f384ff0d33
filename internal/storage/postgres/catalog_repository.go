package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fooddelivery/internal/domain"
)

type restaurantRepository struct {
	db *sql.DB
}

// NewRestaurantRepository создаёт PostgreSQL-реализацию RestaurantRepository.
func NewRestaurantRepository(store *Store) domain.RestaurantRepository {
	return &restaurantRepository{db: store.DB()}
}

func (r *restaurantRepository) Create(ctx context.Context, restaurant domain.Restaurant) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO restaurants (id, name, address, cover_image, owner_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		restaurant.ID, restaurant.Name, restaurant.Address, restaurant.CoverImage,
		restaurant.OwnerID, restaurant.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert restaurant: %w", err)
	}
	return nil
}

func (r *restaurantRepository) Get(ctx context.Context, id string) (domain.Restaurant, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var restaurant domain.Restaurant
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, address, cover_image, owner_id, created_at
		FROM restaurants
		WHERE id = $1
	`, id).Scan(
		&restaurant.ID, &restaurant.Name, &restaurant.Address,
		&restaurant.CoverImage, &restaurant.OwnerID, &restaurant.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Restaurant{}, domain.ErrRestaurantNotFound
		}
		return domain.Restaurant{}, fmt.Errorf("select restaurant: %w", err)
	}
	return restaurant, nil
}

func (r *restaurantRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Restaurant, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, address, cover_image, owner_id, created_at
		FROM restaurants
		WHERE owner_id = $1
		ORDER BY id ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	restaurants := make([]domain.Restaurant, 0)
	for rows.Next() {
		var restaurant domain.Restaurant
		if err := rows.Scan(
			&restaurant.ID, &restaurant.Name, &restaurant.Address,
			&restaurant.CoverImage, &restaurant.OwnerID, &restaurant.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		restaurants = append(restaurants, restaurant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restaurants: %w", err)
	}
	return restaurants, nil
}

type dishRepository struct {
	db *sql.DB
}

// NewDishRepository создаёт PostgreSQL-реализацию DishRepository.
// Опции блюда хранятся в jsonb как есть.
func NewDishRepository(store *Store) domain.DishRepository {
	return &dishRepository{db: store.DB()}
}

func (r *dishRepository) Create(ctx context.Context, dish domain.Dish) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	options, err := marshalJSONB(dish.Options)
	if err != nil {
		return fmt.Errorf("encode dish options: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO dishes (id, restaurant_id, name, description, photo, price_minor, options, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		dish.ID, dish.RestaurantID, dish.Name, dish.Description, dish.Photo,
		dish.PriceMinor, string(options), dish.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert dish: %w", err)
	}
	return nil
}

func (r *dishRepository) Get(ctx context.Context, id string) (domain.Dish, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		dish    domain.Dish
		options []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, restaurant_id, name, description, photo, price_minor, options, created_at
		FROM dishes
		WHERE id = $1
	`, id).Scan(
		&dish.ID, &dish.RestaurantID, &dish.Name, &dish.Description,
		&dish.Photo, &dish.PriceMinor, &options, &dish.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Dish{}, domain.ErrDishNotFound
		}
		return domain.Dish{}, fmt.Errorf("select dish: %w", err)
	}
	if err := unmarshalJSONB(options, &dish.Options); err != nil {
		return domain.Dish{}, fmt.Errorf("decode dish options: %w", err)
	}
	return dish, nil
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, role, verified, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.ID, user.Email, string(user.Role), user.Verified, user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		user domain.User
		role string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, role, verified, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &role, &user.Verified, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	user.Role = domain.Role(role)
	return user, nil
}

var (
	_ domain.RestaurantRepository = (*restaurantRepository)(nil)
	_ domain.DishRepository       = (*dishRepository)(nil)
	_ domain.UserRepository       = (*userRepository)(nil)
)
