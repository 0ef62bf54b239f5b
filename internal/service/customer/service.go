package customer

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service управляет профилями покупателей.
type Service struct {
	store  domain.Store
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

// NewService создаёт сервис профилей.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New().WithField("component", "customer-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Me возвращает профиль текущего пользователя, создавая его при первом обращении.
func (s *Service) Me(ctx context.Context, actor domain.Actor) (domain.Customer, error) {
	if err := domain.RequireAuthenticated(actor); err != nil {
		return domain.Customer{}, err
	}
	customer, created, err := s.store.Repos().Customers.GetOrCreateByUser(ctx, actor.UserID)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("get or create customer: %w", err)
	}
	if created {
		s.logger.WithFields(log.Fields{"customer_id": customer.ID, "user_id": actor.UserID}).Info("customer profile created")
	}
	return customer, nil
}

// UpdateMe меняет собственный профиль. Привязка к пользователю не меняется.
func (s *Service) UpdateMe(ctx context.Context, actor domain.Actor, apply func(*domain.Customer)) (domain.Customer, error) {
	if err := domain.RequireAuthenticated(actor); err != nil {
		return domain.Customer{}, err
	}

	var updated domain.Customer
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, _, err := repos.Customers.GetOrCreateByUser(ctx, actor.UserID)
		if err != nil {
			return fmt.Errorf("get or create customer: %w", err)
		}
		apply(&current)
		current.UserID = actor.UserID
		if err := current.Validate(); err != nil {
			return err
		}
		updated, err = repos.Customers.Update(ctx, current)
		return err
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return updated, nil
}

// Create заводит профиль для произвольного пользователя. Доступно только сотрудникам.
func (s *Service) Create(ctx context.Context, actor domain.Actor, customer domain.Customer) (domain.Customer, error) {
	if err := domain.RequireStaff(actor); err != nil {
		return domain.Customer{}, err
	}
	if customer.Membership == "" {
		customer.Membership = domain.MembershipBronze
	}
	if err := customer.Validate(); err != nil {
		return domain.Customer{}, err
	}

	created, err := s.store.Repos().Customers.Create(ctx, customer)
	if err != nil {
		if errors.Is(err, domain.ErrCustomerExists) {
			return domain.Customer{}, domain.FieldErrorFrom("user_id", err)
		}
		return domain.Customer{}, err
	}
	return created, nil
}

// Get возвращает профиль сотруднику или владельцу; остальным профиль не виден.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id int64) (domain.Customer, error) {
	if err := domain.RequireAuthenticated(actor); err != nil {
		return domain.Customer{}, err
	}
	customer, err := s.store.Repos().Customers.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if err := domain.CanViewCustomer(actor, customer); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, err
	}
	return customer, nil
}

// Update меняет профиль по идентификатору. Доступно только сотрудникам.
func (s *Service) Update(ctx context.Context, actor domain.Actor, id int64, apply func(*domain.Customer)) (domain.Customer, error) {
	if err := domain.RequireStaff(actor); err != nil {
		return domain.Customer{}, err
	}

	repos := s.store.Repos()
	current, err := repos.Customers.Get(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	userID := current.UserID
	apply(&current)
	current.ID, current.UserID = id, userID
	if err := current.Validate(); err != nil {
		return domain.Customer{}, err
	}
	return repos.Customers.Update(ctx, current)
}

// History возвращает заказы покупателя. Доступно только сотрудникам.
func (s *Service) History(ctx context.Context, actor domain.Actor, id int64) ([]domain.Order, error) {
	if err := domain.RequireStaff(actor); err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	if _, err := repos.Customers.Get(ctx, id); err != nil {
		return nil, err
	}
	orders, err := repos.Orders.List(ctx, domain.OrderFilter{CustomerID: id})
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	return orders, nil
}
