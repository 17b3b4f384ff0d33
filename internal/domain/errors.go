package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего ресторана в заказе.
	ErrRestaurantRequired = errors.New("restaurant_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrTotalNegative = errors.New("total_minor must be non-negative")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrTotalMismatch = errors.New("order total does not match items sum")
	// Ошибка неизвестного статуса заказа.
	ErrStatusInvalid = errors.New("order status is invalid")
	// Ошибка неизвестной роли пользователя.
	ErrRoleInvalid = errors.New("user role is invalid")
	// Ошибка отрицательной цены блюда или надбавки.
	ErrDishPriceInvalid = errors.New("dish price and extras must be non-negative")
	// Ошибка опции, у которой одновременно фиксированная надбавка и варианты.
	ErrDishOptionInvalid = errors.New("dish option must have either a flat extra or choices")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrRestaurantNotFound возвращается, если ресторан не найден.
	ErrRestaurantNotFound = errors.New("restaurant not found")
	// ErrDishNotFound возвращается, если блюдо не найдено.
	ErrDishNotFound = errors.New("dish not found")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyExists сигнализирует о попытке создать запись с занятым ID.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// ErrorKind классифицирует отказ операции над заказом.
type ErrorKind string

const (
	// KindNotFound: запрошенная сущность отсутствует.
	KindNotFound ErrorKind = "NotFound"
	// KindForbidden: пользователь аутентифицирован, но действие ему запрещено.
	KindForbidden ErrorKind = "Forbidden"
	// KindConflict: нарушено предусловие состояния (например, курьер уже назначен).
	KindConflict ErrorKind = "Conflict"
	// KindInvalid: запрос не проходит проверку входных данных.
	KindInvalid ErrorKind = "Invalid"
	// KindInternal: непредвиденный сбой хранилища или уведомлений.
	KindInternal ErrorKind = "Internal"
)

// OpError: ожидаемый отказ операции с сообщением для вызывающей стороны.
type OpError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewOpError создаёт отказ заданного типа.
func NewOpError(kind ErrorKind, message string) *OpError {
	return &OpError{Kind: kind, Message: message}
}

// WrapOpError создаёт отказ, сохраняя исходную причину для логов.
func WrapOpError(kind ErrorKind, message string, err error) *OpError {
	return &OpError{Kind: kind, Message: message, Err: err}
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// AsOpError извлекает OpError из цепочки ошибок.
func AsOpError(err error) (*OpError, bool) {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}
