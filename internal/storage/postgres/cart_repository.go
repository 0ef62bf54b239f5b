package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const cartItemSelect = `
	SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, p.title, p.unit_price
	FROM cart_items ci
	JOIN products p ON p.id = ci.product_id
`

type cartRepository struct {
	q querier
}

func scanCartItem(row interface{ Scan(...any) error }) (domain.CartItem, error) {
	var item domain.CartItem
	err := row.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Product.Title, &item.Product.UnitPrice)
	item.Product.ID = item.ProductID
	return item, err
}

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO carts (id, created_at) VALUES ($1,$2)
	`, cart.ID, cart.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Get(ctx context.Context, id string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var cart domain.Cart
	err := r.q.QueryRowContext(ctx, `SELECT id, created_at FROM carts WHERE id = $1`, id).Scan(&cart.ID, &cart.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Cart{}, domain.ErrCartNotFound
		}
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return domain.Cart{}, err
	}
	cart.Items = items
	return cart, nil
}

// Lock блокирует строку корзины до конца транзакции. Вставка позиций берёт
// на неё KEY SHARE через внешний ключ, поэтому параллельные upsert ждут оформления заказа.
func (r *cartRepository) Lock(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var locked string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrCartNotFound
		}
		return fmt.Errorf("lock cart: %w", err)
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return expectAffected(res, domain.ErrCartNotFound)
}

func (r *cartRepository) ListItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM carts WHERE id = $1)`, cartID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check cart exists: %w", err)
	}
	if !exists {
		return nil, domain.ErrCartNotFound
	}
	return r.loadItems(ctx, cartID)
}

func (r *cartRepository) loadItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	rows, err := r.q.QueryContext(ctx, cartItemSelect+`
		WHERE ci.cart_id = $1
		ORDER BY ci.id
	`, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}
	return items, nil
}

func (r *cartRepository) GetItem(ctx context.Context, cartID string, itemID int64) (domain.CartItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item, err := scanCartItem(r.q.QueryRowContext(ctx, cartItemSelect+`
		WHERE ci.cart_id = $1 AND ci.id = $2
	`, cartID, itemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		return domain.CartItem{}, fmt.Errorf("select cart item: %w", err)
	}
	return item, nil
}

// UpsertItem увеличивает количество одним оператором, поэтому параллельные вызовы не теряют обновления.
func (r *cartRepository) UpsertItem(ctx context.Context, cartID string, productID int64, qty int) (domain.CartItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item, err := scanCartItem(r.q.QueryRowContext(ctx, `
		WITH upserted AS (
			INSERT INTO cart_items (cart_id, product_id, quantity)
			VALUES ($1,$2,$3)
			ON CONFLICT (cart_id, product_id)
			DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
			RETURNING id, cart_id, product_id, quantity
		)
		SELECT u.id, u.cart_id, u.product_id, u.quantity, p.title, p.unit_price
		FROM upserted u
		JOIN products p ON p.id = u.product_id
	`, cartID, productID, qty))
	if err != nil {
		if isQuantityOverflow(err) {
			return domain.CartItem{}, domain.ErrQuantityTooLarge
		}
		if constraint, ok := foreignKeyViolation(err); ok {
			if constraint == fkCartItemsProduct {
				return domain.CartItem{}, domain.ErrProductNotFound
			}
			return domain.CartItem{}, domain.ErrCartNotFound
		}
		return domain.CartItem{}, fmt.Errorf("upsert cart item: %w", err)
	}
	return item, nil
}

func (r *cartRepository) UpdateItemQuantity(ctx context.Context, cartID string, itemID int64, qty int) (domain.CartItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	item, err := scanCartItem(r.q.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE cart_items
			SET quantity = $3
			WHERE cart_id = $1 AND id = $2
			RETURNING id, cart_id, product_id, quantity
		)
		SELECT u.id, u.cart_id, u.product_id, u.quantity, p.title, p.unit_price
		FROM updated u
		JOIN products p ON p.id = u.product_id
	`, cartID, itemID, qty))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		if isQuantityOverflow(err) {
			return domain.CartItem{}, domain.ErrQuantityTooLarge
		}
		return domain.CartItem{}, fmt.Errorf("update cart item: %w", err)
	}
	return item, nil
}

func (r *cartRepository) DeleteItem(ctx context.Context, cartID string, itemID int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND id = $2`, cartID, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	return expectAffected(res, domain.ErrCartItemNotFound)
}

var _ domain.CartRepository = (*cartRepository)(nil)
