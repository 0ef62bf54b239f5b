package catalog

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// PageSize: размер страницы списка товаров.
const PageSize = 10

// ProductCache: кеш карточек товаров.
type ProductCache interface {
	Get(ctx context.Context, id int64) (domain.Product, error)
	Set(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, id int64) error
}

// Service реализует каталог: товары, коллекции и отзывы.
type Service struct {
	store  domain.Store
	cache  ProductCache
	logger *log.Entry
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

// WithProductCache включает кеширование карточек товаров.
func WithProductCache(c ProductCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// NewService создаёт сервис каталога.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New().WithField("component", "catalog-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProductQuery: параметры списка товаров в виде, пришедшем от клиента.
type ProductQuery struct {
	CollectionID int64
	PriceGT      string
	PriceLT      string
	Search       string
	Ordering     string
	// Page нумеруется с 1; значения < 1 означают первую страницу.
	Page int
}

// ProductPage: страница списка товаров.
type ProductPage struct {
	Items   []domain.Product
	Count   int
	Page    int
	HasNext bool
	HasPrev bool
}

// ListProducts возвращает страницу товаров. Неизвестное значение ordering игнорируется.
func (s *Service) ListProducts(ctx context.Context, q ProductQuery) (ProductPage, error) {
	low, high, err := domain.ParsePriceRange(q.PriceGT, q.PriceLT)
	if err != nil {
		return ProductPage{}, err
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	ordering := q.Ordering
	if !domain.ValidProductOrdering(ordering) {
		ordering = domain.ProductOrderDefault
	}

	items, count, err := s.store.Repos().Products.List(ctx, domain.ProductFilter{
		CollectionID: q.CollectionID,
		PriceGT:      low,
		PriceLT:      high,
		Search:       q.Search,
		Ordering:     ordering,
		Offset:       (page - 1) * PageSize,
		Limit:        PageSize,
	})
	if err != nil {
		return ProductPage{}, fmt.Errorf("list products: %w", err)
	}
	if page > 1 && len(items) == 0 {
		return ProductPage{}, domain.ErrInvalidPage
	}

	return ProductPage{
		Items:   items,
		Count:   count,
		Page:    page,
		HasNext: page*PageSize < count,
		HasPrev: page > 1,
	}, nil
}

// GetProduct читает товар через кеш, если он настроен.
func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if s.cache != nil {
		product, err := s.cache.Get(ctx, id)
		if err == nil {
			return product, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.WithError(err).WithField("product_id", id).Warn("product cache read failed")
		}
	}

	product, err := s.store.Repos().Products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, product); err != nil {
			s.logger.WithError(err).WithField("product_id", id).Warn("product cache write failed")
		}
	}
	return product, nil
}

// CreateProduct добавляет товар. Доступно только сотрудникам.
func (s *Service) CreateProduct(ctx context.Context, actor domain.Actor, product domain.Product) (domain.Product, error) {
	if err := domain.RequireStaff(actor); err != nil {
		return domain.Product{}, err
	}
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	created, err := s.store.Repos().Products.Create(ctx, product)
	if err != nil {
		return domain.Product{}, collectionFieldError(err, product.CollectionID)
	}
	s.logger.WithFields(log.Fields{"product_id": created.ID, "user_id": actor.UserID}).Info("product created")
	return created, nil
}

// UpdateProduct применяет apply к текущему состоянию товара и сохраняет результат.
func (s *Service) UpdateProduct(ctx context.Context, actor domain.Actor, id int64, apply func(*domain.Product)) (domain.Product, error) {
	if err := domain.RequireStaff(actor); err != nil {
		return domain.Product{}, err
	}

	repos := s.store.Repos()
	product, err := repos.Products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	apply(&product)
	product.ID = id
	if err := product.Validate(); err != nil {
		return domain.Product{}, err
	}

	updated, err := repos.Products.Update(ctx, product)
	if err != nil {
		return domain.Product{}, collectionFieldError(err, product.CollectionID)
	}
	s.invalidate(ctx, id)
	return updated, nil
}

// DeleteProduct удаляет товар, если на него не ссылаются заказы.
func (s *Service) DeleteProduct(ctx context.Context, actor domain.Actor, id int64) error {
	if err := domain.RequireStaff(actor); err != nil {
		return err
	}
	if err := s.store.Repos().Products.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.logger.WithFields(log.Fields{"product_id": id, "user_id": actor.UserID}).Info("product deleted")
	return nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.WithError(err).WithField("product_id", id).Warn("product cache invalidation failed")
	}
}

func collectionFieldError(err error, collectionID int64) error {
	if errors.Is(err, domain.ErrCollectionNotFound) {
		return domain.NewFieldError("collection", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", collectionID))
	}
	return err
}
