package domain

// Actor: пользователь, от имени которого выполняется операция.
// Идентичность приходит от внешнего провайдера аутентификации.
type Actor struct {
	UserID  int64
	IsStaff bool
}

// Authenticated сообщает, известен ли пользователь.
func (a Actor) Authenticated() bool {
	return a.UserID > 0
}

// OrderAction: действие над заказами, проверяемое политикой доступа.
type OrderAction string

const (
	OrderActionList   OrderAction = "list"
	OrderActionView   OrderAction = "view"
	OrderActionCreate OrderAction = "create"
	OrderActionUpdate OrderAction = "update"
	OrderActionDelete OrderAction = "delete"
)

// AuthorizeOrder решает, может ли actor выполнить action над order.
// own: профиль покупателя, принадлежащий actor (nil, если его нет);
// order может быть nil для list/create и для проверок до загрузки заказа.
func AuthorizeOrder(actor Actor, action OrderAction, order *Order, own *Customer) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if actor.IsStaff {
		return nil
	}

	switch action {
	case OrderActionList, OrderActionCreate:
		return nil
	case OrderActionView:
		if order == nil || own == nil || order.CustomerID != own.ID {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}

// RequireStaff пропускает только сотрудников.
func RequireStaff(actor Actor) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	if !actor.IsStaff {
		return ErrForbidden
	}
	return nil
}

// RequireAuthenticated пропускает любого известного пользователя.
func RequireAuthenticated(actor Actor) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}
	return nil
}

// CanViewCustomer: сотрудник видит всех, пользователь: только свой профиль.
func CanViewCustomer(actor Actor, customer Customer) error {
	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	if actor.IsStaff || customer.UserID == actor.UserID {
		return nil
	}
	return ErrForbidden
}
