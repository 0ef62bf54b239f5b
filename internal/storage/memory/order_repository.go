package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderRepository struct{ view }

// Create сохраняет заказ и присваивает идентификаторы ему и всем позициям.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	err := r.write(ctx, func(s *state) error {
		if _, ok := s.customers[order.CustomerID]; !ok {
			return domain.ErrCustomerNotFound
		}
		for _, item := range order.Items {
			if _, ok := s.products[item.ProductID]; !ok {
				return domain.ErrProductNotFound
			}
		}

		s.seq.order++
		order = cloneOrder(order)
		order.ID = s.seq.order
		for i := range order.Items {
			s.seq.orderItem++
			order.Items[i].ID = s.seq.orderItem
			order.Items[i].OrderID = order.ID
		}
		s.orders[order.ID] = cloneOrder(order)
		order = withProducts(s, order)
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	var order domain.Order
	err := r.read(ctx, func(s *state) error {
		o, ok := s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = withProducts(s, cloneOrder(o))
		return nil
	})
	return order, err
}

// List возвращает заказы от новых к старым, ограничивая выборку filter.Limit (если >0).
func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var result []domain.Order
	err := r.read(ctx, func(s *state) error {
		result = make([]domain.Order, 0, len(s.orders))
		for _, o := range s.orders {
			if filter.CustomerID > 0 && o.CustomerID != filter.CustomerID {
				continue
			}
			result = append(result, withProducts(s, cloneOrder(o)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].PlacedAt.Equal(result[j].PlacedAt) {
			return result[i].PlacedAt.After(result[j].PlacedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (domain.Order, error) {
	var order domain.Order
	err := r.write(ctx, func(s *state) error {
		o, ok := s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		o.PaymentStatus = status
		s.orders[id] = o
		order = withProducts(s, cloneOrder(o))
		return nil
	})
	return order, err
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	return r.write(ctx, func(s *state) error {
		if _, ok := s.orders[id]; !ok {
			return domain.ErrOrderNotFound
		}
		delete(s.orders, id)
		return nil
	})
}

func (r *orderRepository) ProductOrdered(ctx context.Context, productID int64) (bool, error) {
	var ordered bool
	err := r.read(ctx, func(s *state) error {
		ordered = productOrdered(s, productID)
		return nil
	})
	return ordered, err
}

func productOrdered(s *state, productID int64) bool {
	for _, o := range s.orders {
		for _, item := range o.Items {
			if item.ProductID == productID {
				return true
			}
		}
	}
	return false
}

// withProducts подставляет текущие данные каталога для отображения; UnitPrice позиций не меняется.
func withProducts(s *state, order domain.Order) domain.Order {
	for i, item := range order.Items {
		if p, ok := s.products[item.ProductID]; ok {
			order.Items[i].Product = p.Summary()
		}
	}
	return order
}

var _ domain.OrderRepository = (*orderRepository)(nil)
