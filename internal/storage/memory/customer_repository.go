package memory

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type customerRepository struct{ view }

func (r *customerRepository) GetOrCreateByUser(ctx context.Context, userID int64) (domain.Customer, bool, error) {
	var (
		customer domain.Customer
		created  bool
	)
	err := r.write(ctx, func(s *state) error {
		if c, ok := findCustomer(s, userID); ok {
			customer = c
			return nil
		}
		s.seq.customer++
		customer = domain.NewCustomer(userID)
		customer.ID = s.seq.customer
		s.customers[customer.ID] = customer
		created = true
		return nil
	})
	return customer, created, err
}

func (r *customerRepository) GetByUser(ctx context.Context, userID int64) (domain.Customer, error) {
	var customer domain.Customer
	err := r.read(ctx, func(s *state) error {
		c, ok := findCustomer(s, userID)
		if !ok {
			return domain.ErrCustomerNotFound
		}
		customer = c
		return nil
	})
	return customer, err
}

func (r *customerRepository) Get(ctx context.Context, id int64) (domain.Customer, error) {
	var customer domain.Customer
	err := r.read(ctx, func(s *state) error {
		c, ok := s.customers[id]
		if !ok {
			return domain.ErrCustomerNotFound
		}
		customer = c
		return nil
	})
	return customer, err
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	err := r.write(ctx, func(s *state) error {
		if _, ok := findCustomer(s, customer.UserID); ok {
			return domain.ErrCustomerExists
		}
		s.seq.customer++
		customer.ID = s.seq.customer
		s.customers[customer.ID] = customer
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

// Update меняет phone, birth_date и membership; user_id профиля не меняется.
func (r *customerRepository) Update(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	err := r.write(ctx, func(s *state) error {
		current, ok := s.customers[customer.ID]
		if !ok {
			return domain.ErrCustomerNotFound
		}
		customer.UserID = current.UserID
		s.customers[customer.ID] = customer
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

func findCustomer(s *state, userID int64) (domain.Customer, bool) {
	for _, c := range s.customers {
		if c.UserID == userID {
			return c, true
		}
	}
	return domain.Customer{}, false
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
