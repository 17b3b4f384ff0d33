package domain

// statusPermissions: какие статусы может выставлять каждая роль.
// Статус Pending не выставляется никем: заказ получает его только при создании.
var statusPermissions = map[Role]map[OrderStatus]struct{}{
	RoleClient: {},
	RoleOwner: {
		OrderStatusCooking: {},
		OrderStatusCooked:  {},
	},
	RoleDelivery: {
		OrderStatusPickedUp:  {},
		OrderStatusDelivered: {},
	},
}

// CanSetStatus проверяет, может ли роль перевести заказ в указанный статус.
// Текущий статус заказа не учитывается.
func CanSetStatus(role Role, status OrderStatus) bool {
	allowed, ok := statusPermissions[role]
	if !ok {
		return false
	}
	_, ok = allowed[status]
	return ok
}

// AllowedStatuses возвращает статусы, доступные роли.
func AllowedStatuses(role Role) []OrderStatus {
	result := make([]OrderStatus, 0, 2)
	for _, status := range []OrderStatus{
		OrderStatusPending,
		OrderStatusCooking,
		OrderStatusCooked,
		OrderStatusPickedUp,
		OrderStatusDelivered,
	} {
		if CanSetStatus(role, status) {
			result = append(result, status)
		}
	}
	return result
}

// CanSeeOrder проверяет видимость заказа для пользователя.
// Для каждой роли работает ровно одно правило: клиент видит свои заказы,
// курьер назначенные ему, владелец заказы своих ресторанов.
func CanSeeOrder(user User, order Order, restaurantOwnerID string) bool {
	switch user.Role {
	case RoleClient:
		return order.CustomerID == user.ID
	case RoleDelivery:
		return order.DriverID != "" && order.DriverID == user.ID
	case RoleOwner:
		return restaurantOwnerID != "" && restaurantOwnerID == user.ID
	default:
		return false
	}
}
