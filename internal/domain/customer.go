package domain

import "time"

// Membership: уровень программы лояльности.
type Membership string

const (
	MembershipBronze Membership = "bronze"
	MembershipSilver Membership = "silver"
	MembershipGold   Membership = "gold"
)

// Valid проверяет, что уровень относится к поддерживаемым значениям.
func (m Membership) Valid() bool {
	switch m {
	case MembershipBronze, MembershipSilver, MembershipGold:
		return true
	default:
		return false
	}
}

// Customer: профиль покупателя, привязанный к учётной записи пользователя.
type Customer struct {
	ID     int64
	UserID int64
	Phone  string
	// BirthDate может быть не указана.
	BirthDate  *time.Time
	Membership Membership
}

// NewCustomer возвращает профиль по умолчанию для пользователя.
func NewCustomer(userID int64) Customer {
	return Customer{UserID: userID, Membership: MembershipBronze}
}

// Validate проверяет изменяемые поля профиля.
func (c *Customer) Validate() error {
	var errs ValidationErrors
	if c.UserID <= 0 {
		errs = append(errs, NewFieldError("user_id", "This field is required."))
	}
	if len(c.Phone) > 255 {
		errs = append(errs, NewFieldError("phone", "Ensure this field has no more than 255 characters."))
	}
	if !c.Membership.Valid() {
		errs = append(errs, NewFieldError("membership", "Must be one of bronze, silver, gold."))
	}
	return errs.Err()
}
