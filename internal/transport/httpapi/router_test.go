package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/customer"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
)

const (
	staffUser    = "1"
	customerUser = "7"
	otherUser    = "8"
)

type testServer struct {
	t       *testing.T
	store   *memory.Store
	handler http.Handler
	reg     *prometheus.Registry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := logger.WithField("component", "http-api-test")

	reg := prometheus.NewRegistry()
	storeMetrics := metrics.NewStoreMetricsWithRegisterer(reg)
	store := memory.NewStore()

	handler := httpapi.NewRouter(httpapi.Services{
		Catalog:     catalog.NewService(store, catalog.WithLogger(entry)),
		Carts:       cart.NewService(store, cart.WithLogger(entry), cart.WithMetrics(storeMetrics)),
		Customers:   customer.NewService(store, customer.WithLogger(entry)),
		Orders:      order.NewService(store, order.WithLogger(entry), order.WithMetrics(storeMetrics)),
		Idempotency: memory.NewIdempotencyRepository(),
	}, httpapi.Options{
		Logger:       entry,
		HTTPMetrics:  metrics.NewHTTPMetrics(reg),
		StoreMetrics: storeMetrics,
	})

	return &testServer{t: t, store: store, handler: handler, reg: reg}
}

type call struct {
	method  string
	path    string
	user    string
	staff   bool
	body    any
	headers map[string]string
}

func (s *testServer) do(c call) *httptest.ResponseRecorder {
	s.t.Helper()

	var body bytes.Buffer
	if c.body != nil {
		require.NoError(s.t, json.NewEncoder(&body).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set(httpapi.HeaderUserID, c.user)
	}
	if c.staff {
		req.Header.Set(httpapi.HeaderUserStaff, "true")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

// seedCatalog создаёт коллекцию и два товара по 10.00 и 5.00.
func (s *testServer) seedCatalog() (int64, int64) {
	s.t.Helper()
	ctx := context.Background()
	repos := s.store.Repos()

	collection, err := repos.Collections.Create(ctx, domain.Collection{Title: "Beverages"})
	require.NoError(s.t, err)
	a, err := repos.Products.Create(ctx, domain.Product{
		Title: "Coffee", Slug: "coffee", UnitPrice: decimal.RequireFromString("10.00"),
		Inventory: 10, CollectionID: collection.ID,
	})
	require.NoError(s.t, err)
	b, err := repos.Products.Create(ctx, domain.Product{
		Title: "Tea", Slug: "tea", UnitPrice: decimal.RequireFromString("5.00"),
		Inventory: 10, CollectionID: collection.ID,
	})
	require.NoError(s.t, err)
	return a.ID, b.ID
}

func (s *testServer) newCart() string {
	s.t.Helper()
	rec := s.do(call{method: http.MethodPost, path: "/store/carts"})
	require.Equal(s.t, http.StatusCreated, rec.Code)
	return decode[map[string]any](s.t, rec)["id"].(string)
}

func (s *testServer) addItem(cartID string, productID int64, qty int) *httptest.ResponseRecorder {
	s.t.Helper()
	return s.do(call{
		method: http.MethodPost,
		path:   "/store/carts/" + cartID + "/items",
		body:   map[string]any{"product_id": productID, "quantity": qty},
	})
}

func TestPlaceOrderFlow(t *testing.T) {
	srv := newTestServer(t)
	a, b := srv.seedCatalog()
	cartID := srv.newCart()

	require.Equal(t, http.StatusCreated, srv.addItem(cartID, a, 2).Code)
	require.Equal(t, http.StatusCreated, srv.addItem(cartID, b, 1).Code)

	rec := srv.do(call{method: http.MethodPost, path: "/store/orders", user: customerUser, body: map[string]string{"cart_id": cartID}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	placed := decode[map[string]any](t, rec)
	assert.Equal(t, "25.00", placed["total"])
	assert.Equal(t, "pending", placed["payment_status"])
	assert.Len(t, placed["items"], 2)
	orderID := int64(placed["id"].(float64))

	// корзина сохраняется после оформления
	rec = srv.do(call{method: http.MethodGet, path: "/store/carts/" + cartID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "25.00", decode[map[string]any](t, rec)["total_price"])

	rec = srv.do(call{method: http.MethodGet, path: "/store/customers/me", user: customerUser})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bronze", decode[map[string]any](t, rec)["membership"])

	orderPath := "/store/orders/" + strconv.FormatInt(orderID, 10)

	rec = srv.do(call{method: http.MethodGet, path: orderPath, user: customerUser})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(call{method: http.MethodGet, path: orderPath, user: otherUser})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(call{method: http.MethodGet, path: "/store/orders", user: otherUser})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]any](t, rec))

	rec = srv.do(call{method: http.MethodGet, path: "/store/orders", user: staffUser, staff: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = srv.do(call{method: http.MethodPatch, path: orderPath, user: customerUser, body: map[string]string{"payment_status": "complete"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You do not have permission to perform this action.", decode[map[string]string](t, rec)["detail"])

	rec = srv.do(call{method: http.MethodPatch, path: orderPath, user: staffUser, staff: true, body: map[string]string{"payment_status": "complete"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "complete", decode[map[string]any](t, rec)["payment_status"])

	rec = srv.do(call{method: http.MethodDelete, path: orderPath, user: staffUser, staff: true})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateOrderErrors(t *testing.T) {
	srv := newTestServer(t)
	emptyCart := srv.newCart()

	tests := []struct {
		name   string
		user   string
		body   any
		status int
		field  string
	}{
		{name: "anonymous", body: map[string]string{"cart_id": emptyCart}, status: http.StatusUnauthorized},
		{name: "empty cart", user: customerUser, body: map[string]string{"cart_id": emptyCart}, status: http.StatusBadRequest, field: "cart_id"},
		{name: "malformed cart id", user: customerUser, body: map[string]string{"cart_id": "nope"}, status: http.StatusBadRequest, field: "cart_id"},
		{name: "unknown cart", user: customerUser, body: map[string]string{"cart_id": "a3f1c2d4-5b6e-4f70-8a9b-0c1d2e3f4a5b"}, status: http.StatusNotFound},
		{name: "wrong type", user: customerUser, body: map[string]int{"cart_id": 5}, status: http.StatusBadRequest, field: "cart_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(call{method: http.MethodPost, path: "/store/orders", user: tt.user, body: tt.body})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.field != "" {
				fields := decode[map[string][]string](t, rec)
				assert.NotEmpty(t, fields[tt.field])
			}
		})
	}

	orders, err := srv.store.Repos().Orders.List(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	srv := newTestServer(t)
	a, _ := srv.seedCatalog()
	cartID := srv.newCart()
	require.Equal(t, http.StatusCreated, srv.addItem(cartID, a, 1).Code)

	submit := func(user string, body any) *httptest.ResponseRecorder {
		return srv.do(call{
			method:  http.MethodPost,
			path:    "/store/orders",
			user:    user,
			body:    body,
			headers: map[string]string{httpapi.HeaderIdempotencyKey: "checkout-1"},
		})
	}

	first := submit(customerUser, map[string]string{"cart_id": cartID})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	assert.Empty(t, first.Header().Get(httpapi.HeaderIdempotentReplayed))

	second := submit(customerUser, map[string]string{"cart_id": cartID})
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(httpapi.HeaderIdempotentReplayed))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	mismatch := submit(customerUser, map[string]string{"cart_id": srv.newCart()})
	assert.Equal(t, http.StatusConflict, mismatch.Code)

	// ключи разных пользователей не пересекаются
	other := submit(otherUser, map[string]string{"cart_id": cartID})
	require.Equal(t, http.StatusCreated, other.Code)
	assert.Empty(t, other.Header().Get(httpapi.HeaderIdempotentReplayed))

	orders, err := srv.store.Repos().Orders.List(context.Background(), domain.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	assert.Equal(t, float64(1), counterValue(t, srv.reg, "storefront_idempotent_replays_total"))
}

func TestCreateOrderIdempotencyReplaysClientError(t *testing.T) {
	srv := newTestServer(t)
	cartID := srv.newCart()

	for i := 0; i < 2; i++ {
		rec := srv.do(call{
			method:  http.MethodPost,
			path:    "/store/orders",
			user:    customerUser,
			body:    map[string]string{"cart_id": cartID},
			headers: map[string]string{httpapi.HeaderIdempotencyKey: "empty-cart"},
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		if i == 1 {
			assert.Equal(t, "true", rec.Header().Get(httpapi.HeaderIdempotentReplayed))
		}
	}
}

func TestCartItemUpsert(t *testing.T) {
	srv := newTestServer(t)
	a, _ := srv.seedCatalog()
	cartID := srv.newCart()

	require.Equal(t, http.StatusCreated, srv.addItem(cartID, a, 2).Code)
	rec := srv.addItem(cartID, a, 3)
	require.Equal(t, http.StatusCreated, rec.Code)

	item := decode[map[string]any](t, rec)
	assert.Equal(t, float64(5), item["quantity"])
	assert.Equal(t, "50.00", item["total_price"])

	rec = srv.do(call{method: http.MethodGet, path: "/store/carts/" + cartID + "/items"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	itemPath := fmt.Sprintf("/store/carts/%s/items/%d", cartID, int64(item["id"].(float64)))
	rec = srv.do(call{method: http.MethodPatch, path: itemPath, body: map[string]int{"quantity": 1}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode[map[string]any](t, rec)["quantity"])

	rec = srv.addItem(cartID, a, 0)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode[map[string][]string](t, rec)["quantity"])

	rec = srv.addItem(cartID, 999, 1)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"No product found for given id."}, decode[map[string][]string](t, rec)["product_id"])

	rec = srv.do(call{method: http.MethodDelete, path: itemPath})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(call{method: http.MethodGet, path: "/store/carts/not-a-uuid"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductListPagination(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	collection, err := srv.store.Repos().Collections.Create(ctx, domain.Collection{Title: "Tools"})
	require.NoError(t, err)
	for i := 1; i <= 12; i++ {
		_, err := srv.store.Repos().Products.Create(ctx, domain.Product{
			Title:        fmt.Sprintf("Hammer %d", i),
			Slug:         fmt.Sprintf("hammer-%d", i),
			UnitPrice:    decimal.NewFromInt(int64(i)),
			CollectionID: collection.ID,
		})
		require.NoError(t, err)
	}

	type page struct {
		Count    int              `json:"count"`
		Next     *string          `json:"next"`
		Previous *string          `json:"previous"`
		Results  []map[string]any `json:"results"`
	}

	rec := srv.do(call{method: http.MethodGet, path: "/store/products?ordering=-unit_price"})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[page](t, rec)
	assert.Equal(t, 12, first.Count)
	assert.Len(t, first.Results, 10)
	assert.Nil(t, first.Previous)
	require.NotNil(t, first.Next)
	assert.Contains(t, *first.Next, "page=2")
	assert.Contains(t, *first.Next, "ordering=-unit_price")
	assert.Equal(t, "12.00", first.Results[0]["unit_price"])
	assert.Equal(t, "13.20", first.Results[0]["price_with_tax"])

	rec = srv.do(call{method: http.MethodGet, path: "/store/products?page=2"})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[page](t, rec)
	assert.Len(t, second.Results, 2)
	assert.Nil(t, second.Next)
	assert.NotNil(t, second.Previous)

	rec = srv.do(call{method: http.MethodGet, path: "/store/products?page=3"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Invalid page.", decode[map[string]string](t, rec)["detail"])

	rec = srv.do(call{method: http.MethodGet, path: "/store/products?unit_price__gt=abc"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode[map[string][]string](t, rec)["unit_price__gt"])

	rec = srv.do(call{method: http.MethodGet, path: "/store/products?unit_price__gt=10&unit_price__lt=12"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[page](t, rec).Count)
}

func TestProductWritesRequireStaff(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	collection, err := srv.store.Repos().Collections.Create(ctx, domain.Collection{Title: "Tools"})
	require.NoError(t, err)

	body := map[string]any{
		"title":      "Saw",
		"slug":       "saw",
		"unit_price": "12.50",
		"inventory":  3,
		"collection": collection.ID,
	}

	rec := srv.do(call{method: http.MethodPost, path: "/store/products", body: body})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(call{method: http.MethodPost, path: "/store/products", user: customerUser, body: body})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(call{method: http.MethodPost, path: "/store/products", user: staffUser, staff: true, body: body})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	productPath := fmt.Sprintf("/store/products/%d", int64(created["id"].(float64)))

	rec = srv.do(call{method: http.MethodPatch, path: productPath, user: staffUser, staff: true, body: map[string]any{"inventory": 9}})
	require.Equal(t, http.StatusOK, rec.Code)
	patched := decode[map[string]any](t, rec)
	assert.Equal(t, float64(9), patched["inventory"])
	assert.Equal(t, "Saw", patched["title"])

	rec = srv.do(call{method: http.MethodPut, path: productPath, user: staffUser, staff: true, body: map[string]any{"title": "Saw"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode[map[string][]string](t, rec)
	assert.NotEmpty(t, fields["slug"])
	assert.NotEmpty(t, fields["collection"])

	rec = srv.do(call{method: http.MethodPost, path: "/store/products", user: staffUser, staff: true, body: map[string]any{
		"title": "Drill", "slug": "drill", "unit_price": "1.00", "collection": 404,
	}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{`Invalid pk "404" - object does not exist.`}, decode[map[string][]string](t, rec)["collection"])

	rec = srv.do(call{method: http.MethodDelete, path: productPath, user: staffUser, staff: true})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(call{method: http.MethodGet, path: productPath})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollectionsAndReviews(t *testing.T) {
	srv := newTestServer(t)
	a, _ := srv.seedCatalog()

	rec := srv.do(call{method: http.MethodGet, path: "/store/collections"})
	require.Equal(t, http.StatusOK, rec.Code)
	collections := decode[[]map[string]any](t, rec)
	require.Len(t, collections, 1)
	assert.Equal(t, float64(2), collections[0]["products_count"])

	collectionPath := fmt.Sprintf("/store/collections/%d", int64(collections[0]["id"].(float64)))
	rec = srv.do(call{method: http.MethodDelete, path: collectionPath, user: staffUser, staff: true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	reviewsPath := fmt.Sprintf("/store/products/%d/reviews", a)
	rec = srv.do(call{method: http.MethodPost, path: reviewsPath, body: map[string]string{"name": "Ann", "description": "Strong"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	review := decode[map[string]any](t, rec)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}$`, review["date"])

	rec = srv.do(call{method: http.MethodGet, path: reviewsPath})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = srv.do(call{method: http.MethodPost, path: "/store/products/999/reviews", body: map[string]string{"name": "Ann", "description": "x"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomerEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(call{method: http.MethodGet, path: "/store/customers/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(call{method: http.MethodPut, path: "/store/customers/me", user: customerUser, body: map[string]string{
		"phone": "555-0100", "birth_date": "1990-04-01", "membership": "gold",
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decode[map[string]any](t, rec)
	assert.Equal(t, "gold", me["membership"])
	assert.Equal(t, "1990-04-01", me["birth_date"])
	customerPath := fmt.Sprintf("/store/customers/%d", int64(me["id"].(float64)))

	rec = srv.do(call{method: http.MethodPut, path: "/store/customers/me", user: customerUser, body: map[string]string{"birth_date": "01.04.1990"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode[map[string][]string](t, rec)["birth_date"])

	rec = srv.do(call{method: http.MethodGet, path: customerPath, user: customerUser})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = srv.do(call{method: http.MethodGet, path: customerPath, user: otherUser})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(call{method: http.MethodPost, path: "/store/customers", user: staffUser, staff: true, body: map[string]any{"user_id": 7}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(call{method: http.MethodPost, path: "/store/customers", user: staffUser, staff: true, body: map[string]any{"user_id": 42}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "bronze", decode[map[string]any](t, rec)["membership"])

	rec = srv.do(call{method: http.MethodGet, path: customerPath + "/history", user: customerUser})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = srv.do(call{method: http.MethodGet, path: customerPath + "/history", user: staffUser, staff: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]map[string]any](t, rec))
}

func TestIdentityAndRouting(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(call{method: http.MethodGet, path: "/store/orders", user: "abc"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid user identity.", decode[map[string]string](t, rec)["detail"])

	rec = srv.do(call{method: http.MethodGet, path: "/store/unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(call{method: http.MethodPut, path: "/store/carts"})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	srv.do(call{method: http.MethodGet, path: "/store/products"})
	count, err := testutil.GatherAndCount(srv.reg, "storefront_http_requests_total")
	require.NoError(t, err)
	assert.Positive(t, count)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name && len(mf.GetMetric()) > 0 {
			return mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}
