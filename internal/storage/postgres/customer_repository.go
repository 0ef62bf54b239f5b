package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const customerColumns = `id, user_id, phone, birth_date, membership`

type customerRepository struct {
	q querier
}

func scanCustomer(row interface{ Scan(...any) error }, extra ...any) (domain.Customer, error) {
	var (
		c          domain.Customer
		birthDate  sql.NullTime
		membership string
	)
	dest := append([]any{&c.ID, &c.UserID, &c.Phone, &birthDate, &membership}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Customer{}, err
	}
	if birthDate.Valid {
		d := birthDate.Time
		c.BirthDate = &d
	}
	c.Membership = domain.Membership(membership)
	return c, nil
}

// GetOrCreateByUser опирается на уникальность customers.user_id: конкурирующие
// вставки сходятся в одну строку, xmax = 0 только у только что вставленной.
func (r *customerRepository) GetOrCreateByUser(ctx context.Context, userID int64) (domain.Customer, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var created bool
	c, err := scanCustomer(r.q.QueryRowContext(ctx, `
		INSERT INTO customers (user_id, membership)
		VALUES ($1,$2)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING `+customerColumns+`, (xmax = 0) AS inserted
	`, userID, string(domain.MembershipBronze)), &created)
	if err != nil {
		return domain.Customer{}, false, fmt.Errorf("get or create customer: %w", err)
	}
	return c, created, nil
}

func (r *customerRepository) GetByUser(ctx context.Context, userID int64) (domain.Customer, error) {
	return r.getBy(ctx, "user_id", userID)
}

func (r *customerRepository) Get(ctx context.Context, id int64) (domain.Customer, error) {
	return r.getBy(ctx, "id", id)
}

func (r *customerRepository) getBy(ctx context.Context, column string, value int64) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c, err := scanCustomer(r.q.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE `+column+` = $1
	`, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}
	return c, nil
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO customers (user_id, phone, birth_date, membership)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, customer.UserID, customer.Phone, nullableDate(customer), string(customer.Membership)).Scan(&customer.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Customer{}, domain.ErrCustomerExists
		}
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return customer, nil
}

func (r *customerRepository) Update(ctx context.Context, customer domain.Customer) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	c, err := scanCustomer(r.q.QueryRowContext(ctx, `
		UPDATE customers
		SET phone = $2,
		    birth_date = $3,
		    membership = $4
		WHERE id = $1
		RETURNING `+customerColumns,
		customer.ID, customer.Phone, nullableDate(customer), string(customer.Membership)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("update customer: %w", err)
	}
	return c, nil
}

func nullableDate(c domain.Customer) sql.NullTime {
	if c.BirthDate == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *c.BirthDate, Valid: true}
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
