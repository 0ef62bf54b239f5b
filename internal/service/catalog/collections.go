package catalog

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func (s *Service) ListCollections(ctx context.Context) ([]domain.Collection, error) {
	collections, err := s.store.Repos().Collections.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return collections, nil
}

func (s *Service) GetCollection(ctx context.Context, id int64) (domain.Collection, error) {
	return s.store.Repos().Collections.Get(ctx, id)
}

// CreateCollection добавляет коллекцию. Доступно только сотрудникам.
func (s *Service) CreateCollection(ctx context.Context, actor domain.Actor, collection domain.Collection) (domain.Collection, error) {
	if err := domain.RequireStaff(actor); err != nil {
		return domain.Collection{}, err
	}
	if err := collection.Validate(); err != nil {
		return domain.Collection{}, err
	}

	created, err := s.store.Repos().Collections.Create(ctx, collection)
	if err != nil {
		return domain.Collection{}, featuredFieldError(err, collection.FeaturedProductID)
	}
	s.logger.WithFields(log.Fields{"collection_id": created.ID, "user_id": actor.UserID}).Info("collection created")
	return created, nil
}

// UpdateCollection применяет apply к текущему состоянию коллекции и сохраняет результат.
func (s *Service) UpdateCollection(ctx context.Context, actor domain.Actor, id int64, apply func(*domain.Collection)) (domain.Collection, error) {
	if err := domain.RequireStaff(actor); err != nil {
		return domain.Collection{}, err
	}

	repos := s.store.Repos()
	collection, err := repos.Collections.Get(ctx, id)
	if err != nil {
		return domain.Collection{}, err
	}
	apply(&collection)
	collection.ID = id
	if err := collection.Validate(); err != nil {
		return domain.Collection{}, err
	}

	updated, err := repos.Collections.Update(ctx, collection)
	if err != nil {
		return domain.Collection{}, featuredFieldError(err, collection.FeaturedProductID)
	}
	return updated, nil
}

// DeleteCollection удаляет пустую коллекцию.
func (s *Service) DeleteCollection(ctx context.Context, actor domain.Actor, id int64) error {
	if err := domain.RequireStaff(actor); err != nil {
		return err
	}
	if err := s.store.Repos().Collections.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithFields(log.Fields{"collection_id": id, "user_id": actor.UserID}).Info("collection deleted")
	return nil
}

func featuredFieldError(err error, featured *int64) error {
	if errors.Is(err, domain.ErrProductNotFound) && featured != nil {
		return domain.NewFieldError("featured_product", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *featured))
	}
	return err
}
