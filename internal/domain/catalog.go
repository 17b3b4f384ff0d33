package domain

import (
	"fmt"
	"time"
)

// Restaurant: ресторан, которым владеет пользователь с ролью Owner.
type Restaurant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Address    string    `json:"address"`
	CoverImage string    `json:"coverImage,omitempty"`
	OwnerID    string    `json:"ownerId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// DishChoice: вариант внутри опции блюда.
type DishChoice struct {
	Name       string `json:"name"`
	ExtraMinor *int64 `json:"extraMinor,omitempty"`
}

// DishOption: настраиваемая опция блюда.
// Опция либо несёт фиксированную надбавку ExtraMinor, либо список вариантов Choices.
type DishOption struct {
	Name       string       `json:"name"`
	ExtraMinor *int64       `json:"extraMinor,omitempty"`
	Choices    []DishChoice `json:"choices,omitempty"`
}

// Dish: блюдо из меню ресторана.
type Dish struct {
	ID           string       `json:"id"`
	RestaurantID string       `json:"restaurantId"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Photo        string       `json:"photo,omitempty"`
	PriceMinor   int64        `json:"priceMinor"`
	Options      []DishOption `json:"options,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Validate проверяет цены блюда и форму его опций.
func (d Dish) Validate() error {
	if d.PriceMinor < 0 {
		return ErrDishPriceInvalid
	}
	for _, option := range d.Options {
		if option.ExtraMinor != nil && len(option.Choices) > 0 {
			return fmt.Errorf("option %q: %w", option.Name, ErrDishOptionInvalid)
		}
		if option.ExtraMinor != nil && *option.ExtraMinor < 0 {
			return fmt.Errorf("option %q: %w", option.Name, ErrDishPriceInvalid)
		}
		for _, choice := range option.Choices {
			if choice.ExtraMinor != nil && *choice.ExtraMinor < 0 {
				return fmt.Errorf("option %q choice %q: %w", option.Name, choice.Name, ErrDishPriceInvalid)
			}
		}
	}
	return nil
}

// Extra возвращает указатель на сумму надбавки для литералов опций.
func Extra(amountMinor int64) *int64 {
	return &amountMinor
}
