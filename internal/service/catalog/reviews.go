package catalog

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ListReviews возвращает отзывы существующего товара.
func (s *Service) ListReviews(ctx context.Context, productID int64) ([]domain.Review, error) {
	repos := s.store.Repos()
	if _, err := repos.Products.Get(ctx, productID); err != nil {
		return nil, err
	}
	reviews, err := repos.Reviews.ListByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

func (s *Service) GetReview(ctx context.Context, productID, id int64) (domain.Review, error) {
	return s.store.Repos().Reviews.Get(ctx, productID, id)
}

// CreateReview добавляет отзыв к товару из пути запроса.
func (s *Service) CreateReview(ctx context.Context, productID int64, review domain.Review) (domain.Review, error) {
	review.ProductID = productID
	if err := review.Validate(); err != nil {
		return domain.Review{}, err
	}
	if _, err := s.store.Repos().Products.Get(ctx, productID); err != nil {
		return domain.Review{}, err
	}
	return s.store.Repos().Reviews.Create(ctx, review)
}

func (s *Service) UpdateReview(ctx context.Context, productID, id int64, apply func(*domain.Review)) (domain.Review, error) {
	repos := s.store.Repos()
	review, err := repos.Reviews.Get(ctx, productID, id)
	if err != nil {
		return domain.Review{}, err
	}
	apply(&review)
	review.ID, review.ProductID = id, productID
	if err := review.Validate(); err != nil {
		return domain.Review{}, err
	}
	return repos.Reviews.Update(ctx, review)
}

func (s *Service) DeleteReview(ctx context.Context, productID, id int64) error {
	return s.store.Repos().Reviews.Delete(ctx, productID, id)
}
