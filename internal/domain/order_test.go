package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func makeCart() domain.Cart {
	return domain.Cart{
		ID: "0b7c6a3e-3f0e-4be5-9d59-5c3a2f0e9a11",
		Items: []domain.CartItem{
			{
				ID: 1, ProductID: 10, Quantity: 2,
				Product: domain.ProductSummary{ID: 10, Title: "Coffee", UnitPrice: decimal.RequireFromString("10.00")},
			},
			{
				ID: 2, ProductID: 20, Quantity: 1,
				Product: domain.ProductSummary{ID: 20, Title: "Tea", UnitPrice: decimal.RequireFromString("5.00")},
			},
		},
	}
}

func TestNewOrderFromCart_CopiesItemsAndPrices(t *testing.T) {
	cart := makeCart()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	order, err := domain.NewOrderFromCart(7, cart, now)
	require.NoError(t, err)

	assert.Equal(t, int64(7), order.CustomerID)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.True(t, order.PlacedAt.Equal(now))
	require.Len(t, order.Items, 2)
	for i, item := range order.Items {
		assert.Equal(t, cart.Items[i].ProductID, item.ProductID)
		assert.Equal(t, cart.Items[i].Quantity, item.Quantity)
		assert.True(t, item.UnitPrice.Equal(cart.Items[i].Product.UnitPrice))
	}
	assert.Equal(t, "25.00", order.Total().StringFixed(2))
}

func TestNewOrderFromCart_PriceIsSnapshot(t *testing.T) {
	cart := makeCart()

	order, err := domain.NewOrderFromCart(1, cart, time.Now())
	require.NoError(t, err)

	cart.Items[0].Product.UnitPrice = decimal.RequireFromString("99.00")

	assert.Equal(t, "25.00", order.Total().StringFixed(2))
}

func TestNewOrderFromCart_EmptyCart(t *testing.T) {
	_, err := domain.NewOrderFromCart(1, domain.Cart{ID: "c"}, time.Now())
	if !errors.Is(err, domain.ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}
	if !domain.IsValidation(err) {
		t.Fatal("empty cart must be a validation error")
	}
}

func TestPaymentStatusValid(t *testing.T) {
	tests := []struct {
		status domain.PaymentStatus
		want   bool
	}{
		{domain.PaymentStatusPending, true},
		{domain.PaymentStatusComplete, true},
		{domain.PaymentStatusFailed, true},
		{"P", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := tc.status.Valid(); got != tc.want {
			t.Errorf("status %q valid=%v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestCartTotalPrice(t *testing.T) {
	assert.Equal(t, "25.00", makeCart().TotalPrice().StringFixed(2))
	assert.True(t, domain.Cart{}.TotalPrice().IsZero())
}

func TestParseCartID(t *testing.T) {
	id, err := domain.ParseCartID("0B7C6A3E-3F0E-4BE5-9D59-5C3A2F0E9A11")
	require.NoError(t, err)
	assert.Equal(t, "0b7c6a3e-3f0e-4be5-9d59-5c3a2f0e9a11", id)

	_, err = domain.ParseCartID("not-a-uuid")
	var fe *domain.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "cart_id", fe.Field)
}
