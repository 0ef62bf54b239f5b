package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает состояние оплаты заказа.
type PaymentStatus string

const (
	// PaymentStatusPending: заказ оформлен, оплата ещё не подтверждена.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusComplete: оплата получена.
	PaymentStatusComplete PaymentStatus = "complete"
	// PaymentStatusFailed: оплата не прошла.
	PaymentStatusFailed PaymentStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusComplete, PaymentStatusFailed:
		return true
	default:
		return false
	}
}

// OrderItem: позиция заказа.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	// Product заполняется при чтении и отражает текущий каталог; для расчётов не используется.
	Product  ProductSummary
	Quantity int
	// UnitPrice: цена, зафиксированная в момент оформления заказа.
	UnitPrice decimal.Decimal
}

// TotalPrice: стоимость позиции по зафиксированной цене.
func (i OrderItem) TotalPrice() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order: оформленный заказ. Позиции не меняются после создания.
type Order struct {
	ID            int64
	CustomerID    int64
	PlacedAt      time.Time
	PaymentStatus PaymentStatus
	Items         []OrderItem
}

// Total: сумма заказа по зафиксированным ценам позиций.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.TotalPrice())
	}
	return total
}

// NewOrderFromCart строит новый заказ из позиций корзины, копируя текущую цену
// каждого товара в позицию заказа. Связь с корзиной не сохраняется.
func NewOrderFromCart(customerID int64, cart Cart, now time.Time) (Order, error) {
	if len(cart.Items) == 0 {
		return Order{}, ErrCartEmpty
	}

	items := make([]OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, OrderItem{
			ProductID: item.ProductID,
			Product:   item.Product,
			Quantity:  item.Quantity,
			UnitPrice: item.Product.UnitPrice,
		})
	}

	return Order{
		CustomerID:    customerID,
		PlacedAt:      now.UTC(),
		PaymentStatus: PaymentStatusPending,
		Items:         items,
	}, nil
}

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	// CustomerID == 0 означает «все покупатели».
	CustomerID int64
	Limit      int
}
