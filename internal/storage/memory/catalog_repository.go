package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct{ view }

func (r *productRepository) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	err := r.write(ctx, func(s *state) error {
		if _, ok := s.collections[product.CollectionID]; !ok {
			return domain.ErrCollectionNotFound
		}
		s.seq.product++
		product.ID = s.seq.product
		product.LastUpdate = time.Now().UTC()
		s.products[product.ID] = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (r *productRepository) Get(ctx context.Context, id int64) (domain.Product, error) {
	var product domain.Product
	err := r.read(ctx, func(s *state) error {
		p, ok := s.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		product = p
		return nil
	})
	return product, err
}

func (r *productRepository) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	var (
		result []domain.Product
		total  int
	)
	err := r.read(ctx, func(s *state) error {
		search := strings.ToLower(strings.TrimSpace(filter.Search))
		for _, p := range s.products {
			if !matchProduct(s, p, filter, search) {
				continue
			}
			result = append(result, p)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sortProducts(result, filter.Ordering)
	total = len(result)

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			result = nil
		} else {
			result = result[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, total, nil
}

func matchProduct(s *state, p domain.Product, filter domain.ProductFilter, search string) bool {
	if filter.CollectionID > 0 && p.CollectionID != filter.CollectionID {
		return false
	}
	if filter.PriceGT != nil && !p.UnitPrice.GreaterThan(*filter.PriceGT) {
		return false
	}
	if filter.PriceLT != nil && !p.UnitPrice.LessThan(*filter.PriceLT) {
		return false
	}
	if search == "" {
		return true
	}
	if strings.Contains(strings.ToLower(p.Title), search) ||
		strings.Contains(strings.ToLower(p.Description), search) {
		return true
	}
	c, ok := s.collections[p.CollectionID]
	return ok && strings.Contains(strings.ToLower(c.Title), search)
}

func sortProducts(items []domain.Product, ordering string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch ordering {
		case domain.ProductOrderPriceAsc:
			if !a.UnitPrice.Equal(b.UnitPrice) {
				return a.UnitPrice.LessThan(b.UnitPrice)
			}
		case domain.ProductOrderPriceDesc:
			if !a.UnitPrice.Equal(b.UnitPrice) {
				return a.UnitPrice.GreaterThan(b.UnitPrice)
			}
		case domain.ProductOrderLastUpdateAsc:
			if !a.LastUpdate.Equal(b.LastUpdate) {
				return a.LastUpdate.Before(b.LastUpdate)
			}
		case domain.ProductOrderLastUpdateDesc:
			if !a.LastUpdate.Equal(b.LastUpdate) {
				return a.LastUpdate.After(b.LastUpdate)
			}
		}
		return a.ID < b.ID
	})
}

func (r *productRepository) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	err := r.write(ctx, func(s *state) error {
		if _, ok := s.products[product.ID]; !ok {
			return domain.ErrProductNotFound
		}
		if _, ok := s.collections[product.CollectionID]; !ok {
			return domain.ErrCollectionNotFound
		}
		product.LastUpdate = time.Now().UTC()
		s.products[product.ID] = product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// Delete удаляет товар вместе с его отзывами и позициями корзин.
// Товар, на который ссылаются позиции заказов, не удаляется.
func (r *productRepository) Delete(ctx context.Context, id int64) error {
	return r.write(ctx, func(s *state) error {
		if _, ok := s.products[id]; !ok {
			return domain.ErrProductNotFound
		}
		if productOrdered(s, id) {
			return domain.ErrProductInUse
		}

		delete(s.products, id)
		for rid, review := range s.reviews {
			if review.ProductID == id {
				delete(s.reviews, rid)
			}
		}
		for iid, item := range s.cartItems {
			if item.ProductID == id {
				delete(s.cartItems, iid)
			}
		}
		for cid, c := range s.collections {
			if c.FeaturedProductID != nil && *c.FeaturedProductID == id {
				c.FeaturedProductID = nil
				s.collections[cid] = c
			}
		}
		return nil
	})
}

type collectionRepository struct{ view }

func (r *collectionRepository) Create(ctx context.Context, collection domain.Collection) (domain.Collection, error) {
	err := r.write(ctx, func(s *state) error {
		if err := checkFeatured(s, collection.FeaturedProductID); err != nil {
			return err
		}
		s.seq.collection++
		collection.ID = s.seq.collection
		collection.ProductsCount = 0
		s.collections[collection.ID] = collection
		return nil
	})
	if err != nil {
		return domain.Collection{}, err
	}
	return collection, nil
}

func (r *collectionRepository) Get(ctx context.Context, id int64) (domain.Collection, error) {
	var collection domain.Collection
	err := r.read(ctx, func(s *state) error {
		c, ok := s.collections[id]
		if !ok {
			return domain.ErrCollectionNotFound
		}
		c.ProductsCount = countProducts(s, id)
		collection = c
		return nil
	})
	return collection, err
}

func (r *collectionRepository) List(ctx context.Context) ([]domain.Collection, error) {
	var result []domain.Collection
	err := r.read(ctx, func(s *state) error {
		result = make([]domain.Collection, 0, len(s.collections))
		for id, c := range s.collections {
			c.ProductsCount = countProducts(s, id)
			result = append(result, c)
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

func (r *collectionRepository) Update(ctx context.Context, collection domain.Collection) (domain.Collection, error) {
	err := r.write(ctx, func(s *state) error {
		if _, ok := s.collections[collection.ID]; !ok {
			return domain.ErrCollectionNotFound
		}
		if err := checkFeatured(s, collection.FeaturedProductID); err != nil {
			return err
		}
		collection.ProductsCount = 0
		s.collections[collection.ID] = collection
		collection.ProductsCount = countProducts(s, collection.ID)
		return nil
	})
	if err != nil {
		return domain.Collection{}, err
	}
	return collection, nil
}

func (r *collectionRepository) Delete(ctx context.Context, id int64) error {
	return r.write(ctx, func(s *state) error {
		if _, ok := s.collections[id]; !ok {
			return domain.ErrCollectionNotFound
		}
		if countProducts(s, id) > 0 {
			return domain.ErrCollectionHasProducts
		}
		delete(s.collections, id)
		return nil
	})
}

func checkFeatured(s *state, productID *int64) error {
	if productID == nil {
		return nil
	}
	if _, ok := s.products[*productID]; !ok {
		return domain.ErrProductNotFound
	}
	return nil
}

func countProducts(s *state, collectionID int64) int {
	n := 0
	for _, p := range s.products {
		if p.CollectionID == collectionID {
			n++
		}
	}
	return n
}

type reviewRepository struct{ view }

func (r *reviewRepository) Create(ctx context.Context, review domain.Review) (domain.Review, error) {
	err := r.write(ctx, func(s *state) error {
		if _, ok := s.products[review.ProductID]; !ok {
			return domain.ErrProductNotFound
		}
		s.seq.review++
		review.ID = s.seq.review
		if review.Date.IsZero() {
			review.Date = time.Now().UTC()
		}
		s.reviews[review.ID] = review
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

func (r *reviewRepository) Get(ctx context.Context, productID, id int64) (domain.Review, error) {
	var review domain.Review
	err := r.read(ctx, func(s *state) error {
		rv, ok := s.reviews[id]
		if !ok || rv.ProductID != productID {
			return domain.ErrReviewNotFound
		}
		review = rv
		return nil
	})
	return review, err
}

func (r *reviewRepository) ListByProduct(ctx context.Context, productID int64) ([]domain.Review, error) {
	var result []domain.Review
	err := r.read(ctx, func(s *state) error {
		for _, rv := range s.reviews {
			if rv.ProductID == productID {
				result = append(result, rv)
			}
		}
		return nil
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, err
}

func (r *reviewRepository) Update(ctx context.Context, review domain.Review) (domain.Review, error) {
	err := r.write(ctx, func(s *state) error {
		current, ok := s.reviews[review.ID]
		if !ok || current.ProductID != review.ProductID {
			return domain.ErrReviewNotFound
		}
		review.Date = current.Date
		s.reviews[review.ID] = review
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

func (r *reviewRepository) Delete(ctx context.Context, productID, id int64) error {
	return r.write(ctx, func(s *state) error {
		current, ok := s.reviews[id]
		if !ok || current.ProductID != productID {
			return domain.ErrReviewNotFound
		}
		delete(s.reviews, id)
		return nil
	})
}

var (
	_ domain.ProductRepository    = (*productRepository)(nil)
	_ domain.CollectionRepository = (*collectionRepository)(nil)
	_ domain.ReviewRepository     = (*reviewRepository)(nil)
)
