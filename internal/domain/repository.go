package domain

import "context"

// ProductRepository описывает хранилище товаров.
type ProductRepository interface {
	// Create сохраняет товар и возвращает его с присвоенным ID.
	Create(ctx context.Context, product Product) (Product, error)
	// Get возвращает товар или ErrProductNotFound.
	Get(ctx context.Context, id int64) (Product, error)
	// List возвращает страницу товаров и общее количество подходящих под фильтр.
	List(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	Update(ctx context.Context, product Product) (Product, error)
	Delete(ctx context.Context, id int64) error
}

// CollectionRepository описывает хранилище коллекций.
type CollectionRepository interface {
	Create(ctx context.Context, collection Collection) (Collection, error)
	// Get возвращает коллекцию с посчитанным ProductsCount.
	Get(ctx context.Context, id int64) (Collection, error)
	List(ctx context.Context) ([]Collection, error)
	Update(ctx context.Context, collection Collection) (Collection, error)
	Delete(ctx context.Context, id int64) error
}

// ReviewRepository описывает хранилище отзывов.
type ReviewRepository interface {
	Create(ctx context.Context, review Review) (Review, error)
	Get(ctx context.Context, productID, id int64) (Review, error)
	ListByProduct(ctx context.Context, productID int64) ([]Review, error)
	Update(ctx context.Context, review Review) (Review, error)
	Delete(ctx context.Context, productID, id int64) error
}

// CartRepository описывает хранилище корзин и их позиций.
type CartRepository interface {
	Create(ctx context.Context, cart Cart) error
	// Get возвращает корзину с позициями или ErrCartNotFound.
	Get(ctx context.Context, id string) (Cart, error)
	// Lock проверяет существование корзины и блокирует её до конца транзакции.
	Lock(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error

	ListItems(ctx context.Context, cartID string) ([]CartItem, error)
	GetItem(ctx context.Context, cartID string, itemID int64) (CartItem, error)
	// UpsertItem атомарно увеличивает количество существующей позиции
	// (cartID, productID) на qty либо создаёт новую.
	UpsertItem(ctx context.Context, cartID string, productID int64, qty int) (CartItem, error)
	UpdateItemQuantity(ctx context.Context, cartID string, itemID int64, qty int) (CartItem, error)
	DeleteItem(ctx context.Context, cartID string, itemID int64) error
}

// CustomerRepository описывает хранилище профилей покупателей.
type CustomerRepository interface {
	// GetOrCreateByUser атомарно возвращает профиль пользователя, создавая его при отсутствии.
	GetOrCreateByUser(ctx context.Context, userID int64) (Customer, bool, error)
	// GetByUser возвращает профиль пользователя или ErrCustomerNotFound.
	GetByUser(ctx context.Context, userID int64) (Customer, error)
	Get(ctx context.Context, id int64) (Customer, error)
	// Create возвращает ErrCustomerExists, если профиль для пользователя уже есть.
	Create(ctx context.Context, customer Customer) (Customer, error)
	Update(ctx context.Context, customer Customer) (Customer, error)
}

// OrderRepository описывает хранилище заказов.
type OrderRepository interface {
	// Create сохраняет заказ и все его позиции одной пачкой.
	Create(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ или ErrOrderNotFound.
	Get(ctx context.Context, id int64) (Order, error)
	// List возвращает заказы от новых к старым.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status PaymentStatus) (Order, error)
	Delete(ctx context.Context, id int64) error
	// ProductOrdered сообщает, есть ли позиции заказов с этим товаром.
	ProductOrdered(ctx context.Context, productID int64) (bool, error)
}

// Repositories: набор репозиториев, работающих поверх одного подключения или транзакции.
type Repositories struct {
	Products    ProductRepository
	Collections CollectionRepository
	Reviews     ReviewRepository
	Carts       CartRepository
	Customers   CustomerRepository
	Orders      OrderRepository
	Outbox      OutboxRepository
}

// Store даёт доступ к репозиториям и транзакциям над ними.
type Store interface {
	// Repos возвращает репозитории вне транзакции.
	Repos() Repositories
	// WithinTx выполняет fn в одной транзакции: при ошибке все изменения откатываются.
	// Вложенные вызовы WithinTx не поддерживаются.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
}
