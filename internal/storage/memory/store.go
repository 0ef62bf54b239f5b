package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// state: всё содержимое in-memory хранилища. Значения хранятся копиями,
// поэтому clone достаточно скопировать карты и срезы позиций заказов.
type state struct {
	collections map[int64]domain.Collection
	products    map[int64]domain.Product
	reviews     map[int64]domain.Review
	carts       map[string]domain.Cart
	cartItems   map[int64]domain.CartItem
	customers   map[int64]domain.Customer
	orders      map[int64]domain.Order
	outbox      map[string]outboxRecord

	seq sequences
}

type sequences struct {
	collection int64
	product    int64
	review     int64
	cartItem   int64
	customer   int64
	order      int64
	orderItem  int64
}

func newState() *state {
	return &state{
		collections: make(map[int64]domain.Collection),
		products:    make(map[int64]domain.Product),
		reviews:     make(map[int64]domain.Review),
		carts:       make(map[string]domain.Cart),
		cartItems:   make(map[int64]domain.CartItem),
		customers:   make(map[int64]domain.Customer),
		orders:      make(map[int64]domain.Order),
		outbox:      make(map[string]outboxRecord),
	}
}

func (s *state) clone() *state {
	dst := &state{
		collections: cloneMap(s.collections),
		products:    cloneMap(s.products),
		reviews:     cloneMap(s.reviews),
		carts:       cloneMap(s.carts),
		cartItems:   cloneMap(s.cartItems),
		customers:   cloneMap(s.customers),
		orders:      make(map[int64]domain.Order, len(s.orders)),
		outbox:      cloneMap(s.outbox),
		seq:         s.seq,
	}
	for id, order := range s.orders {
		dst.orders[id] = cloneOrder(order)
	}
	return dst
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

// Store: in-memory хранилище для локальной разработки и тестов.
// Транзакции сериализуются одной блокировкой и работают над копией состояния,
// которая подменяет текущее только при успешном завершении.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Repos возвращает репозитории, каждый вызов которых выполняется под блокировкой хранилища.
func (s *Store) Repos() domain.Repositories {
	return s.repositories(view{store: s})
}

// WithinTx выполняет fn над копией состояния. Внутри fn нельзя обращаться к Repos().
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(ctx, s.repositories(view{store: s, tx: tx})); err != nil {
		return err
	}
	s.state = tx
	return nil
}

// Ping всегда успешен для in-memory хранилища.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) repositories(v view) domain.Repositories {
	return domain.Repositories{
		Products:    &productRepository{v},
		Collections: &collectionRepository{v},
		Reviews:     &reviewRepository{v},
		Carts:       &cartRepository{v},
		Customers:   &customerRepository{v},
		Orders:      &orderRepository{v},
		Outbox:      &outboxRepository{v},
	}
}

// view направляет операции репозитория либо в транзакционную копию, либо в общее состояние.
type view struct {
	store *Store
	tx    *state
}

func (v view) read(ctx context.Context, fn func(s *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.state)
}

// write выполняет fn вне транзакции без отката: fn должна проверять всё до первой мутации.
func (v view) write(ctx context.Context, fn func(s *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

var _ domain.Store = (*Store)(nil)
