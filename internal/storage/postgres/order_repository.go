package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `id, customer_id, placed_at, payment_status`

type orderRepository struct {
	q querier
}

func scanOrder(row interface{ Scan(...any) error }) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(&order.ID, &order.CustomerID, &order.PlacedAt, &status); err != nil {
		return domain.Order{}, err
	}
	order.PaymentStatus = domain.PaymentStatus(status)
	return order, nil
}

// Create вставляет заказ и все позиции одним многострочным INSERT.
func (r *orderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.q.QueryRowContext(ctx, `
		INSERT INTO orders (customer_id, placed_at, payment_status)
		VALUES ($1,$2,$3)
		RETURNING id
	`, order.CustomerID, order.PlacedAt, string(order.PaymentStatus)).Scan(&order.ID)
	if err != nil {
		if constraint, ok := foreignKeyViolation(err); ok && constraint == fkOrdersCustomer {
			return domain.Order{}, domain.ErrCustomerNotFound
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	if len(order.Items) == 0 {
		return order, nil
	}

	items := append([]domain.OrderItem(nil), order.Items...)
	values := make([]string, 0, len(items))
	args := make([]any, 0, len(items)*4)
	for _, item := range items {
		n := len(args)
		values = append(values, "($"+strconv.Itoa(n+1)+",$"+strconv.Itoa(n+2)+",$"+strconv.Itoa(n+3)+",$"+strconv.Itoa(n+4)+")")
		args = append(args, order.ID, item.ProductID, item.Quantity, item.UnitPrice)
	}

	rows, err := r.q.QueryContext(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES `+strings.Join(values, ",")+`
		RETURNING id
	`, args...)
	if err != nil {
		if constraint, ok := foreignKeyViolation(err); ok && constraint == fkOrderItemsProduct {
			return domain.Order{}, domain.ErrProductNotFound
		}
		return domain.Order{}, fmt.Errorf("insert order items: %w", err)
	}
	defer rows.Close()

	i := 0
	for rows.Next() {
		if i >= len(items) {
			return domain.Order{}, fmt.Errorf("insert order items: unexpected extra row")
		}
		if err := rows.Scan(&items[i].ID); err != nil {
			return domain.Order{}, fmt.Errorf("scan order item id: %w", err)
		}
		items[i].OrderID = order.ID
		i++
	}
	if err := rows.Err(); err != nil {
		if constraint, ok := foreignKeyViolation(err); ok && constraint == fkOrderItemsProduct {
			return domain.Order{}, domain.ErrProductNotFound
		}
		return domain.Order{}, fmt.Errorf("iterate order item ids: %w", err)
	}
	if i != len(items) {
		return domain.Order{}, fmt.Errorf("insert order items: expected %d rows, got %d", len(items), i)
	}

	order.Items = items
	return order, nil
}

func (r *orderRepository) Get(ctx context.Context, id int64) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	orders := []domain.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *orderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		query += ` WHERE customer_id = $1`
	}
	query += ` ORDER BY placed_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	rows.Close()

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems загружает позиции всех заказов одним запросом; Product: текущие данные каталога.
func (r *orderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		index[o.ID] = i
		orders[i].Items = make([]domain.OrderItem, 0)
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.unit_price, p.title, p.unit_price
		FROM order_items oi
		JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id
	`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice,
			&item.Product.Title, &item.Product.UnitPrice,
		); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		item.Product.ID = item.ProductID
		i, ok := index[item.OrderID]
		if !ok {
			continue
		}
		orders[i].Items = append(orders[i].Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate order items: %w", err)
	}
	return nil
}

func (r *orderRepository) UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `
		UPDATE orders
		SET payment_status = $2
		WHERE id = $1
		RETURNING `+orderColumns, id, string(status)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("update order payment status: %w", err)
	}

	orders := []domain.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (r *orderRepository) ProductOrdered(ctx context.Context, productID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var ordered bool
	if err := r.q.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM order_items WHERE product_id = $1)
	`, productID).Scan(&ordered); err != nil {
		return false, fmt.Errorf("check product ordered: %w", err)
	}
	return ordered, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
