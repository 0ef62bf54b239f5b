package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var (
	customerActor = domain.Actor{UserID: 7}
	otherActor    = domain.Actor{UserID: 8}
	staffActor    = domain.Actor{UserID: 1, IsStaff: true}
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "order-service-test")
}

type fixture struct {
	store *memory.Store
	repos domain.Repositories
	a     domain.Product
	b     domain.Product
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	repos := store.Repos()

	collection, err := repos.Collections.Create(ctx, domain.Collection{Title: "Beverages"})
	require.NoError(t, err)
	a, err := repos.Products.Create(ctx, domain.Product{
		Title: "Coffee", Slug: "coffee", UnitPrice: decimal.RequireFromString("10.00"),
		Inventory: 10, CollectionID: collection.ID,
	})
	require.NoError(t, err)
	b, err := repos.Products.Create(ctx, domain.Product{
		Title: "Tea", Slug: "tea", UnitPrice: decimal.RequireFromString("5.00"),
		Inventory: 10, CollectionID: collection.ID,
	})
	require.NoError(t, err)

	return fixture{store: store, repos: repos, a: a, b: b}
}

// seedCart создаёт корзину C1 {A×2, B×1}.
func (f fixture) seedCart(t *testing.T) domain.Cart {
	t.Helper()
	ctx := context.Background()
	cart := domain.NewCart(time.Now())
	require.NoError(t, f.repos.Carts.Create(ctx, cart))
	_, err := f.repos.Carts.UpsertItem(ctx, cart.ID, f.a.ID, 2)
	require.NoError(t, err)
	_, err = f.repos.Carts.UpsertItem(ctx, cart.ID, f.b.ID, 1)
	require.NoError(t, err)
	return cart
}

func (f fixture) orderCount(t *testing.T) int {
	t.Helper()
	orders, err := f.repos.Orders.List(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	return len(orders)
}

func newService(store domain.Store, opts ...order.Option) *order.Service {
	opts = append([]order.Option{order.WithLogger(quietLogger())}, opts...)
	return order.NewService(store, opts...)
}

func TestPlaceOrder_FromCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cart := f.seedCart(t)
	placedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc := newService(f.store, order.WithClock(func() time.Time { return placedAt }))

	placed, err := svc.PlaceOrder(ctx, customerActor, cart.ID)
	require.NoError(t, err)

	assert.NotZero(t, placed.ID)
	assert.Equal(t, domain.PaymentStatusPending, placed.PaymentStatus)
	assert.True(t, placed.PlacedAt.Equal(placedAt))
	assert.Equal(t, "25.00", placed.Total().StringFixed(2))
	require.Len(t, placed.Items, 2)

	quantities := map[int64]int{}
	for _, item := range placed.Items {
		assert.NotZero(t, item.ID)
		quantities[item.ProductID] = item.Quantity
	}
	assert.Equal(t, map[int64]int{f.a.ID: 2, f.b.ID: 1}, quantities)

	customer, err := f.repos.Customers.GetByUser(ctx, customerActor.UserID)
	require.NoError(t, err, "customer must be created on first order")
	assert.Equal(t, customer.ID, placed.CustomerID)
	assert.Equal(t, domain.MembershipBronze, customer.Membership)

	// корзина сохраняется после оформления
	kept, err := f.repos.Carts.Get(ctx, cart.ID)
	require.NoError(t, err)
	assert.Len(t, kept.Items, 2)
}

func TestPlaceOrder_PriceSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cart := f.seedCart(t)
	svc := newService(f.store)

	placed, err := svc.PlaceOrder(ctx, customerActor, cart.ID)
	require.NoError(t, err)

	f.a.UnitPrice = decimal.RequireFromString("99.00")
	_, err = f.repos.Products.Update(ctx, f.a)
	require.NoError(t, err)

	stored, err := svc.GetOrder(ctx, customerActor, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, "25.00", stored.Total().StringFixed(2))
	for _, item := range stored.Items {
		if item.ProductID == f.a.ID {
			assert.Equal(t, "10.00", item.UnitPrice.StringFixed(2))
		}
	}
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cart := domain.NewCart(time.Now())
	require.NoError(t, f.repos.Carts.Create(ctx, cart))
	svc := newService(f.store)

	_, err := svc.PlaceOrder(ctx, customerActor, cart.ID)
	require.ErrorIs(t, err, domain.ErrCartEmpty)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 0, f.orderCount(t))

	_, err = f.repos.Customers.GetByUser(ctx, customerActor.UserID)
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound, "customer creation must be rolled back")
}

func TestPlaceOrder_CartErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newService(f.store)

	_, err := svc.PlaceOrder(ctx, customerActor, "00000000-0000-4000-8000-000000000000")
	require.ErrorIs(t, err, domain.ErrCartNotFound)
	assert.True(t, domain.IsNotFound(err))

	_, err = svc.PlaceOrder(ctx, customerActor, "not-a-uuid")
	var fieldErr *domain.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "cart_id", fieldErr.Field)

	_, err = svc.PlaceOrder(ctx, domain.Actor{}, f.seedCart(t).ID)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Equal(t, 0, f.orderCount(t))
}

type failingOutbox struct {
	domain.OutboxRepository
}

func (failingOutbox) Enqueue(context.Context, domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox unavailable")
}

// failingOutboxStore подменяет outbox внутри транзакции, чтобы ошибка возникла после вставки заказа.
type failingOutboxStore struct {
	*memory.Store
}

func (s failingOutboxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		repos.Outbox = failingOutbox{repos.Outbox}
		return fn(ctx, repos)
	})
}

func TestPlaceOrder_RollsBackOnLateFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cart := f.seedCart(t)
	svc := newService(failingOutboxStore{f.store})

	_, err := svc.PlaceOrder(ctx, customerActor, cart.ID)
	require.Error(t, err)
	assert.Equal(t, 0, f.orderCount(t))

	_, err = f.repos.Customers.GetByUser(ctx, customerActor.UserID)
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)
	stats, err := f.repos.Outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
}

func TestPlaceOrder_EnqueuesOrderPlacedEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	cart := f.seedCart(t)
	svc := newService(f.store)

	placed, err := svc.PlaceOrder(ctx, customerActor, cart.ID)
	require.NoError(t, err)

	pending, err := f.repos.Outbox.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventTypeOrderPlaced, pending[0].EventType)

	var event domain.OrderEvent
	require.NoError(t, json.Unmarshal(pending[0].Payload, &event))
	assert.Equal(t, placed.ID, event.OrderID)
	assert.Equal(t, "25.00", event.Total)
	assert.Len(t, event.Items, 2)
}

func TestPlaceOrder_ConcurrentPlacementsReuseCustomer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newService(f.store)

	carts := []domain.Cart{f.seedCart(t), f.seedCart(t), f.seedCart(t), f.seedCart(t)}
	var wg sync.WaitGroup
	errs := make(chan error, len(carts))
	for _, cart := range carts {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.PlaceOrder(ctx, customerActor, id)
			errs <- err
		}(cart.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	orders, err := svc.ListOrders(ctx, customerActor)
	require.NoError(t, err)
	require.Len(t, orders, len(carts))
	for _, o := range orders {
		assert.Equal(t, orders[0].CustomerID, o.CustomerID)
	}
}

func TestListOrders_Scoping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newService(f.store)

	_, err := svc.PlaceOrder(ctx, customerActor, f.seedCart(t).ID)
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, otherActor, f.seedCart(t).ID)
	require.NoError(t, err)

	own, err := svc.ListOrders(ctx, customerActor)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	all, err := svc.ListOrders(ctx, staffActor)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := svc.ListOrders(ctx, domain.Actor{UserID: 99})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = svc.ListOrders(ctx, domain.Actor{})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestGetOrder_ForeignOrderIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newService(f.store)

	placed, err := svc.PlaceOrder(ctx, customerActor, f.seedCart(t).ID)
	require.NoError(t, err)

	_, err = svc.GetOrder(ctx, otherActor, placed.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	got, err := svc.GetOrder(ctx, staffActor, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, got.ID)

	_, err = svc.GetOrder(ctx, staffActor, placed.ID+100)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUpdateOrderStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newService(f.store)

	placed, err := svc.PlaceOrder(ctx, customerActor, f.seedCart(t).ID)
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(ctx, customerActor, placed.ID, domain.PaymentStatusComplete)
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.UpdateOrderStatus(ctx, customerActor, placed.ID+100, domain.PaymentStatusComplete)
	require.ErrorIs(t, err, domain.ErrForbidden, "permission is checked before lookup")

	updated, err := svc.UpdateOrderStatus(ctx, staffActor, placed.ID, domain.PaymentStatusComplete)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusComplete, updated.PaymentStatus)

	_, err = svc.UpdateOrderStatus(ctx, staffActor, placed.ID, domain.PaymentStatus("shipped"))
	require.ErrorIs(t, err, domain.ErrPaymentStatusInvalid)
	assert.True(t, domain.IsValidation(err))

	_, err = svc.UpdateOrderStatus(ctx, staffActor, placed.ID+100, domain.PaymentStatusFailed)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	pending, err := f.repos.Outbox.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, domain.EventTypeOrderPaymentStatusChanged, pending[1].EventType)
}

func TestDeleteOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newService(f.store)

	placed, err := svc.PlaceOrder(ctx, customerActor, f.seedCart(t).ID)
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteOrder(ctx, customerActor, placed.ID), domain.ErrForbidden)
	require.NoError(t, svc.DeleteOrder(ctx, staffActor, placed.ID))
	assert.Equal(t, 0, f.orderCount(t))
	require.ErrorIs(t, svc.DeleteOrder(ctx, staffActor, placed.ID), domain.ErrOrderNotFound)
}

func TestPlaceOrder_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	registry := prometheus.NewRegistry()
	svc := newService(f.store, order.WithMetrics(metrics.NewStoreMetricsWithRegisterer(registry)))

	_, err := svc.PlaceOrder(ctx, customerActor, f.seedCart(t).ID)
	require.NoError(t, err)

	empty := domain.NewCart(time.Now())
	require.NoError(t, f.repos.Carts.Create(ctx, empty))
	_, err = svc.PlaceOrder(ctx, customerActor, empty.ID)
	require.ErrorIs(t, err, domain.ErrCartEmpty)

	expected := `
# HELP storefront_order_placement_failures_total Total number of rejected or failed order placements grouped by reason
# TYPE storefront_order_placement_failures_total counter
storefront_order_placement_failures_total{reason="cart_empty"} 1
# HELP storefront_orders_placed_total Total number of orders placed from carts
# TYPE storefront_orders_placed_total counter
storefront_orders_placed_total 1
`
	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(expected),
		"storefront_orders_placed_total", "storefront_order_placement_failures_total"))
}
