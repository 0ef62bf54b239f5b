package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cart: корзина покупателя, идентифицируемая непрозрачным UUID.
type Cart struct {
	ID        string
	CreatedAt time.Time
	Items     []CartItem
}

// NewCart создаёт пустую корзину с новым идентификатором.
func NewCart(now time.Time) Cart {
	return Cart{ID: uuid.NewString(), CreatedAt: now.UTC()}
}

// TotalPrice: сумма стоимостей всех позиций по текущим ценам.
func (c Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

// CartItem: позиция корзины. Пара (CartID, ProductID) уникальна.
type CartItem struct {
	ID        int64
	CartID    string
	ProductID int64
	// Product заполняется при чтении текущими данными каталога.
	Product  ProductSummary
	Quantity int
}

// TotalPrice: стоимость позиции по текущей цене товара.
func (i CartItem) TotalPrice() decimal.Decimal {
	return i.Product.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// MaxCartItemQuantity: верхняя граница количества в позиции корзины и заказа (smallint).
const MaxCartItemQuantity = 32767

// ErrQuantityTooLarge: количество, в том числе накопленное несколькими добавлениями, выше MaxCartItemQuantity.
var ErrQuantityTooLarge = NewFieldError("quantity", fmt.Sprintf("Ensure this value is less than or equal to %d.", MaxCartItemQuantity))

// ValidateQuantity проверяет количество товара в позиции.
func ValidateQuantity(qty int) error {
	if qty < 1 {
		return NewFieldError("quantity", "Ensure this value is greater than or equal to 1.")
	}
	if qty > MaxCartItemQuantity {
		return ErrQuantityTooLarge
	}
	return nil
}

// ParseCartID проверяет, что идентификатор корзины: корректный UUID, и нормализует его.
func ParseCartID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", NewFieldError("cart_id", "Must be a valid UUID.")
	}
	return id.String(), nil
}
