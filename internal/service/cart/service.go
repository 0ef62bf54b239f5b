package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Service управляет анонимными корзинами и их позициями.
type Service struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.StoreMetrics
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает бизнес-метрики.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService создаёт сервис корзин.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New().WithField("component", "cart-service"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create создаёт пустую корзину.
func (s *Service) Create(ctx context.Context) (domain.Cart, error) {
	cart := domain.NewCart(s.now())
	if err := s.store.Repos().Carts.Create(ctx, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("create cart: %w", err)
	}
	s.logger.WithField("cart_id", cart.ID).Debug("cart created")
	return cart, nil
}

// Get возвращает корзину с позициями.
func (s *Service) Get(ctx context.Context, rawID string) (domain.Cart, error) {
	id, err := parsePathID(rawID)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.store.Repos().Carts.Get(ctx, id)
}

// Delete удаляет корзину вместе с позициями.
func (s *Service) Delete(ctx context.Context, rawID string) error {
	id, err := parsePathID(rawID)
	if err != nil {
		return err
	}
	return s.store.Repos().Carts.Delete(ctx, id)
}

func (s *Service) ListItems(ctx context.Context, rawID string) ([]domain.CartItem, error) {
	id, err := parsePathID(rawID)
	if err != nil {
		return nil, err
	}
	return s.store.Repos().Carts.ListItems(ctx, id)
}

func (s *Service) GetItem(ctx context.Context, rawID string, itemID int64) (domain.CartItem, error) {
	id, err := parsePathID(rawID)
	if err != nil {
		return domain.CartItem{}, err
	}
	return s.store.Repos().Carts.GetItem(ctx, id, itemID)
}

// UpsertItem добавляет товар в корзину либо увеличивает количество уже добавленного.
// Проверки выполняются в порядке: корзина, количество, товар.
func (s *Service) UpsertItem(ctx context.Context, rawID string, productID int64, qty int) (domain.CartItem, error) {
	id, err := parsePathID(rawID)
	if err != nil {
		return domain.CartItem{}, err
	}

	var item domain.CartItem
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Carts.Lock(ctx, id); err != nil {
			return err
		}
		if err := domain.ValidateQuantity(qty); err != nil {
			return err
		}
		if _, err := repos.Products.Get(ctx, productID); err != nil {
			return productFieldError(err)
		}

		item, err = repos.Carts.UpsertItem(ctx, id, productID, qty)
		if err != nil {
			return productFieldError(err)
		}
		return nil
	})
	if err != nil {
		return domain.CartItem{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordCartItemUpsert()
	}
	s.logger.WithFields(log.Fields{
		"cart_id":    id,
		"product_id": productID,
		"quantity":   item.Quantity,
	}).Debug("cart item upserted")
	return item, nil
}

// UpdateItemQuantity перезаписывает количество товара в позиции.
func (s *Service) UpdateItemQuantity(ctx context.Context, rawID string, itemID int64, qty int) (domain.CartItem, error) {
	id, err := parsePathID(rawID)
	if err != nil {
		return domain.CartItem{}, err
	}
	if err := domain.ValidateQuantity(qty); err != nil {
		return domain.CartItem{}, err
	}
	return s.store.Repos().Carts.UpdateItemQuantity(ctx, id, itemID, qty)
}

func (s *Service) DeleteItem(ctx context.Context, rawID string, itemID int64) error {
	id, err := parsePathID(rawID)
	if err != nil {
		return err
	}
	return s.store.Repos().Carts.DeleteItem(ctx, id, itemID)
}

// parsePathID: некорректный идентификатор в пути означает несуществующую корзину.
func parsePathID(raw string) (string, error) {
	id, err := domain.ParseCartID(raw)
	if err != nil {
		return "", domain.ErrCartNotFound
	}
	return id, nil
}

func productFieldError(err error) error {
	if errors.Is(err, domain.ErrProductNotFound) {
		return domain.NewFieldError("product_id", "No product found for given id.")
	}
	return err
}
