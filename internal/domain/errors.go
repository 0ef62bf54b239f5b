package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Базовые категории ошибок. Конкретные ошибки ниже оборачивают одну из них,
// поэтому транспортный слой проверяет только категорию через errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("authentication required")
	ErrConflict        = errors.New("conflict")
)

var (
	// ErrCartNotFound возвращается, если корзина с указанным идентификатором не найдена.
	ErrCartNotFound = kindError(ErrNotFound, "No cart found.")
	// ErrCartItemNotFound возвращается, если позиции нет в корзине.
	ErrCartItemNotFound = kindError(ErrNotFound, "cart item not found")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = kindError(ErrNotFound, "product not found")
	// ErrCollectionNotFound возвращается, если коллекция не найдена.
	ErrCollectionNotFound = kindError(ErrNotFound, "collection not found")
	// ErrReviewNotFound возвращается, если отзыв не найден у товара.
	ErrReviewNotFound = kindError(ErrNotFound, "review not found")
	// ErrCustomerNotFound возвращается, если профиль покупателя не найден.
	ErrCustomerNotFound = kindError(ErrNotFound, "customer not found")
	// ErrOrderNotFound возвращается, если заказ не найден или не виден текущему пользователю.
	ErrOrderNotFound = kindError(ErrNotFound, "order not found")
	// ErrInvalidPage возвращается для страницы за пределами выборки.
	ErrInvalidPage = kindError(ErrNotFound, "Invalid page.")

	// ErrCartEmpty: попытка оформить заказ из пустой корзины.
	ErrCartEmpty = kindError(ErrValidation, "Cart is empty.")
	// ErrPaymentStatusInvalid: неизвестный статус оплаты.
	ErrPaymentStatusInvalid = kindError(ErrValidation, "payment_status must be one of pending, complete, failed")

	// ErrProductInUse: товар нельзя удалить, пока на него ссылаются позиции заказов.
	ErrProductInUse = kindError(ErrConflict, "Cannot delete product because it is associated with an order item.")
	// ErrCollectionHasProducts: коллекцию нельзя удалить, пока в ней есть товары.
	ErrCollectionHasProducts = kindError(ErrConflict, "Collection cannot be deleted because it includes one or more products.")
	// ErrCustomerExists: профиль для пользователя уже создан.
	ErrCustomerExists = kindError(ErrConflict, "customer for this user already exists")

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// kindedError связывает конкретное сообщение с базовой категорией.
type kindedError struct {
	kind error
	msg  string
}

func kindError(kind error, msg string) error {
	return &kindedError{kind: kind, msg: msg}
}

func (e *kindedError) Error() string { return e.msg }

func (e *kindedError) Unwrap() error { return e.kind }

// FieldError описывает ошибку конкретного поля запроса.
type FieldError struct {
	Field   string
	Message string
	// Kind: базовая категория; по умолчанию ErrValidation.
	Kind  error
	cause error
}

// NewFieldError создаёт ошибку валидации поля.
func NewFieldError(field, message string) *FieldError {
	return &FieldError{Field: field, Message: message, Kind: ErrValidation}
}

// FieldErrorFrom привязывает уже существующую ошибку к полю, сохраняя её категорию.
func FieldErrorFrom(field string, err error) *FieldError {
	fe := &FieldError{Field: field, Message: err.Error(), Kind: ErrValidation, cause: err}
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrForbidden, ErrUnauthenticated} {
		if errors.Is(err, kind) {
			fe.Kind = kind
			break
		}
	}
	return fe
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() []error {
	kind := e.Kind
	if kind == nil {
		kind = ErrValidation
	}
	if e.cause == nil {
		return []error{kind}
	}
	return []error{kind, e.cause}
}

// IsNotFound сообщает, относится ли ошибка к категории «не найдено».
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation сообщает, является ли ошибка ошибкой валидации входных данных.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// ValidationErrors собирает ошибки нескольких полей в одну ошибку.
type ValidationErrors []*FieldError

func (v ValidationErrors) Error() string {
	b := strings.Builder{}
	for i, fe := range v {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Error())
	}
	return b.String()
}

func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v))
	for _, fe := range v {
		errs = append(errs, fe)
	}
	return errs
}

// Err возвращает nil, если ошибок нет.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
