package domain

// ItemPrice рассчитывает цену позиции: базовая цена блюда плюс надбавки выбранных опций.
//
// Опции сопоставляются по имени, неизвестные игнорируются. Для опции с
// фиксированной надбавкой добавляется ExtraMinor, иначе ищется вариант по имени
// Choice. Отсутствующий вариант или вариант без надбавки добавляет ноль.
func ItemPrice(dish Dish, selected []OrderItemOption) int64 {
	price := dish.PriceMinor
	for _, sel := range selected {
		option, ok := findOption(dish.Options, sel.Name)
		if !ok {
			continue
		}
		if option.ExtraMinor != nil && *option.ExtraMinor != 0 {
			price += *option.ExtraMinor
			continue
		}
		for _, choice := range option.Choices {
			if choice.Name != sel.Choice {
				continue
			}
			if choice.ExtraMinor != nil {
				price += *choice.ExtraMinor
			}
			break
		}
	}
	return price
}

// OrderTotal суммирует цены позиций.
func OrderTotal(items []OrderItem) int64 {
	var total int64
	for _, item := range items {
		total += item.PriceMinor
	}
	return total
}

func findOption(options []DishOption, name string) (DishOption, bool) {
	for _, option := range options {
		if option.Name == name {
			return option, true
		}
	}
	return DishOption{}, false
}
