package cart_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newService(t *testing.T) (*cart.Service, domain.Product) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	repos := store.Repos()

	collection, err := repos.Collections.Create(ctx, domain.Collection{Title: "Beverages"})
	require.NoError(t, err)
	product, err := repos.Products.Create(ctx, domain.Product{
		Title: "Coffee", Slug: "coffee", UnitPrice: decimal.RequireFromString("10.00"),
		Inventory: 10, CollectionID: collection.ID,
	})
	require.NoError(t, err)

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return cart.NewService(store, cart.WithLogger(logger.WithField("component", "cart-test"))), product
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var fe *domain.FieldError
	require.ErrorAs(t, err, &fe)
	return fe.Field
}

func TestUpsertItem_Increments(t *testing.T) {
	ctx := context.Background()
	svc, product := newService(t)
	c, err := svc.Create(ctx)
	require.NoError(t, err)

	first, err := svc.UpsertItem(ctx, c.ID, product.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Quantity)

	second, err := svc.UpsertItem(ctx, c.ID, product.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.Quantity)

	items, err := svc.ListItems(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", got.TotalPrice().StringFixed(2))
}

func TestUpsertItem_ValidationOrder(t *testing.T) {
	ctx := context.Background()
	svc, product := newService(t)
	c, err := svc.Create(ctx)
	require.NoError(t, err)

	// несуществующая корзина проверяется раньше количества и товара
	_, err = svc.UpsertItem(ctx, "00000000-0000-4000-8000-000000000000", 999, 0)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)

	_, err = svc.UpsertItem(ctx, c.ID, 999, 0)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, "quantity", fieldOf(t, err))

	_, err = svc.UpsertItem(ctx, c.ID, 999, 1)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, "product_id", fieldOf(t, err))
	assert.Contains(t, err.Error(), "No product found for given id.")

	_, err = svc.UpsertItem(ctx, c.ID, product.ID, 1)
	assert.NoError(t, err)
}

func TestUpsertItem_QuantityUpperBound(t *testing.T) {
	ctx := context.Background()
	svc, product := newService(t)
	c, err := svc.Create(ctx)
	require.NoError(t, err)

	for _, qty := range []int{domain.MaxCartItemQuantity + 1, math.MaxInt} {
		_, err = svc.UpsertItem(ctx, c.ID, product.ID, qty)
		require.ErrorIs(t, err, domain.ErrQuantityTooLarge, "qty=%d", qty)
		assert.Equal(t, "quantity", fieldOf(t, err))
	}

	item, err := svc.UpsertItem(ctx, c.ID, product.ID, domain.MaxCartItemQuantity)
	require.NoError(t, err)

	// накопленная сумма не может перешагнуть предел
	_, err = svc.UpsertItem(ctx, c.ID, product.ID, 1)
	require.ErrorIs(t, err, domain.ErrQuantityTooLarge)
	assert.True(t, domain.IsValidation(err))

	got, err := svc.GetItem(ctx, c.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MaxCartItemQuantity, got.Quantity, "rejected upsert leaves quantity untouched")

	_, err = svc.UpdateItemQuantity(ctx, c.ID, item.ID, domain.MaxCartItemQuantity+1)
	assert.ErrorIs(t, err, domain.ErrQuantityTooLarge)
}

func TestUpsertItem_Concurrent(t *testing.T) {
	ctx := context.Background()
	svc, product := newService(t)
	c, err := svc.Create(ctx)
	require.NoError(t, err)

	const workers = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.UpsertItem(ctx, c.ID, product.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	items, err := svc.ListItems(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, workers, items[0].Quantity)
}

func TestItemLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, product := newService(t)
	c, err := svc.Create(ctx)
	require.NoError(t, err)

	item, err := svc.UpsertItem(ctx, c.ID, product.ID, 2)
	require.NoError(t, err)

	updated, err := svc.UpdateItemQuantity(ctx, c.ID, item.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Quantity)

	_, err = svc.UpdateItemQuantity(ctx, c.ID, item.ID, 0)
	assert.Equal(t, "quantity", fieldOf(t, err))

	got, err := svc.GetItem(ctx, c.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, product.Title, got.Product.Title)

	require.NoError(t, svc.DeleteItem(ctx, c.ID, item.ID))
	_, err = svc.GetItem(ctx, c.ID, item.ID)
	assert.ErrorIs(t, err, domain.ErrCartItemNotFound)

	require.NoError(t, svc.Delete(ctx, c.ID))
	_, err = svc.Get(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
}

func TestMalformedCartIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Get(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
	_, err = svc.ListItems(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrCartNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "nope"), domain.ErrCartNotFound)
}
