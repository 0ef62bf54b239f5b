package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepository struct{ view }

func (r *cartRepository) Create(ctx context.Context, cart domain.Cart) error {
	return r.write(ctx, func(s *state) error {
		if _, ok := s.carts[cart.ID]; ok {
			return domain.ErrConflict
		}
		cart.Items = nil
		s.carts[cart.ID] = cart
		return nil
	})
}

func (r *cartRepository) Get(ctx context.Context, id string) (domain.Cart, error) {
	var cart domain.Cart
	err := r.read(ctx, func(s *state) error {
		c, ok := s.carts[id]
		if !ok {
			return domain.ErrCartNotFound
		}
		c.Items = cartItems(s, id)
		cart = c
		return nil
	})
	return cart, err
}

// Lock только проверяет существование: транзакции in-memory хранилища уже сериализованы.
func (r *cartRepository) Lock(ctx context.Context, id string) error {
	return r.read(ctx, func(s *state) error {
		if _, ok := s.carts[id]; !ok {
			return domain.ErrCartNotFound
		}
		return nil
	})
}

func (r *cartRepository) Delete(ctx context.Context, id string) error {
	return r.write(ctx, func(s *state) error {
		if _, ok := s.carts[id]; !ok {
			return domain.ErrCartNotFound
		}
		delete(s.carts, id)
		for itemID, item := range s.cartItems {
			if item.CartID == id {
				delete(s.cartItems, itemID)
			}
		}
		return nil
	})
}

func (r *cartRepository) ListItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	var items []domain.CartItem
	err := r.read(ctx, func(s *state) error {
		if _, ok := s.carts[cartID]; !ok {
			return domain.ErrCartNotFound
		}
		items = cartItems(s, cartID)
		return nil
	})
	return items, err
}

func (r *cartRepository) GetItem(ctx context.Context, cartID string, itemID int64) (domain.CartItem, error) {
	var item domain.CartItem
	err := r.read(ctx, func(s *state) error {
		it, ok := s.cartItems[itemID]
		if !ok || it.CartID != cartID {
			return domain.ErrCartItemNotFound
		}
		item = withProduct(s, it)
		return nil
	})
	return item, err
}

func (r *cartRepository) UpsertItem(ctx context.Context, cartID string, productID int64, qty int) (domain.CartItem, error) {
	if err := domain.ValidateQuantity(qty); err != nil {
		return domain.CartItem{}, err
	}
	var item domain.CartItem
	err := r.write(ctx, func(s *state) error {
		if _, ok := s.carts[cartID]; !ok {
			return domain.ErrCartNotFound
		}
		if _, ok := s.products[productID]; !ok {
			return domain.ErrProductNotFound
		}

		for id, existing := range s.cartItems {
			if existing.CartID == cartID && existing.ProductID == productID {
				if qty > domain.MaxCartItemQuantity-existing.Quantity {
					return domain.ErrQuantityTooLarge
				}
				existing.Quantity += qty
				s.cartItems[id] = existing
				item = withProduct(s, existing)
				return nil
			}
		}

		s.seq.cartItem++
		created := domain.CartItem{
			ID:        s.seq.cartItem,
			CartID:    cartID,
			ProductID: productID,
			Quantity:  qty,
		}
		s.cartItems[created.ID] = created
		item = withProduct(s, created)
		return nil
	})
	return item, err
}

func (r *cartRepository) UpdateItemQuantity(ctx context.Context, cartID string, itemID int64, qty int) (domain.CartItem, error) {
	var item domain.CartItem
	err := r.write(ctx, func(s *state) error {
		it, ok := s.cartItems[itemID]
		if !ok || it.CartID != cartID {
			return domain.ErrCartItemNotFound
		}
		it.Quantity = qty
		s.cartItems[itemID] = it
		item = withProduct(s, it)
		return nil
	})
	return item, err
}

func (r *cartRepository) DeleteItem(ctx context.Context, cartID string, itemID int64) error {
	return r.write(ctx, func(s *state) error {
		it, ok := s.cartItems[itemID]
		if !ok || it.CartID != cartID {
			return domain.ErrCartItemNotFound
		}
		delete(s.cartItems, itemID)
		return nil
	})
}

func cartItems(s *state, cartID string) []domain.CartItem {
	items := make([]domain.CartItem, 0)
	for _, it := range s.cartItems {
		if it.CartID == cartID {
			items = append(items, withProduct(s, it))
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func withProduct(s *state, item domain.CartItem) domain.CartItem {
	if p, ok := s.products[item.ProductID]; ok {
		item.Product = p.Summary()
	}
	return item
}

var _ domain.CartRepository = (*cartRepository)(nil)
