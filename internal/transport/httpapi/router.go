package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/customer"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
)

const (
	// Prefix: общий префикс маршрутов магазина.
	Prefix = "/store"

	defaultRequestTimeout = 30 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
)

// Services: прикладные сервисы, обслуживаемые REST API.
type Services struct {
	Catalog   *catalog.Service
	Carts     *cart.Service
	Customers *customer.Service
	Orders    *order.Service
	// Idempotency включает поддержку заголовка Idempotency-Key для POST /orders.
	Idempotency domain.IdempotencyRepository
}

// Options задаёт параметры HTTP слоя.
type Options struct {
	Logger         *log.Entry
	HTTPMetrics    *metrics.HTTPMetrics
	StoreMetrics   *metrics.StoreMetrics
	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
}

// Handler обслуживает REST API магазина.
type Handler struct {
	svc            Services
	logger         *log.Entry
	metrics        *metrics.StoreMetrics
	idempotencyTTL time.Duration
	now            func() time.Time
}

// NewRouter собирает chi-роутер со всеми маршрутами под префиксом /store.
func NewRouter(svc Services, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}

	h := &Handler{
		svc:            svc,
		logger:         logger,
		metrics:        opts.StoreMetrics,
		idempotencyTTL: opts.IdempotencyTTL,
		now:            time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observeMiddleware(logger, opts.HTTPMetrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(identityMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusNotFound, detailResponse{Detail: "Not found."})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, detailResponse{Detail: "Method \"" + r.Method + "\" not allowed."})
	})

	r.Route(Prefix, func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Post("/", h.createProduct)
			r.Route("/{productID}", func(r chi.Router) {
				r.Get("/", h.getProduct)
				r.Put("/", h.replaceProduct)
				r.Patch("/", h.patchProduct)
				r.Delete("/", h.deleteProduct)

				r.Route("/reviews", func(r chi.Router) {
					r.Get("/", h.listReviews)
					r.Post("/", h.createReview)
					r.Get("/{reviewID}", h.getReview)
					r.Put("/{reviewID}", h.updateReview)
					r.Delete("/{reviewID}", h.deleteReview)
				})
			})
		})

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", h.listCollections)
			r.Post("/", h.createCollection)
			r.Get("/{collectionID}", h.getCollection)
			r.Put("/{collectionID}", h.updateCollection)
			r.Delete("/{collectionID}", h.deleteCollection)
		})

		r.Route("/carts", func(r chi.Router) {
			r.Post("/", h.createCart)
			r.Route("/{cartID}", func(r chi.Router) {
				r.Get("/", h.getCart)
				r.Delete("/", h.deleteCart)

				r.Get("/items", h.listCartItems)
				r.Post("/items", h.addCartItem)
				r.Get("/items/{itemID}", h.getCartItem)
				r.Patch("/items/{itemID}", h.updateCartItem)
				r.Delete("/items/{itemID}", h.deleteCartItem)
			})
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.createCustomer)
			r.Get("/me", h.getMe)
			r.Put("/me", h.updateMe)
			r.Get("/{customerID}", h.getCustomer)
			r.Put("/{customerID}", h.updateCustomer)
			r.Get("/{customerID}/history", h.customerHistory)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", h.listOrders)
			r.Post("/", h.createOrder)
			r.Get("/{orderID}", h.getOrder)
			r.Patch("/{orderID}", h.updateOrder)
			r.Delete("/{orderID}", h.deleteOrder)
		})
	})

	return r
}
