package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Service реализует оформление заказов из корзины и доступ к заказам.
type Service struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.StoreMetrics
	now     func() time.Time
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

// WithMetrics включает бизнес-метрики.
func WithMetrics(m *metrics.StoreMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис заказов поверх store.
func NewService(store domain.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: log.New().WithField("component", "order-service"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder превращает корзину в заказ одной транзакцией: заказ, его позиции
// и событие order.placed либо сохраняются вместе, либо не сохраняется ничего.
// Корзина после оформления не удаляется.
func (s *Service) PlaceOrder(ctx context.Context, actor domain.Actor, rawCartID string) (domain.Order, error) {
	if err := domain.AuthorizeOrder(actor, domain.OrderActionCreate, nil, nil); err != nil {
		return domain.Order{}, err
	}
	cartID, err := domain.ParseCartID(rawCartID)
	if err != nil {
		return domain.Order{}, err
	}

	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordPlacementStarted()
		defer func() { s.metrics.RecordPlacementFinished(time.Since(start)) }()
	}

	var (
		placed          domain.Order
		customerCreated bool
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Carts.Lock(ctx, cartID); err != nil {
			return err
		}
		cart, err := repos.Carts.Get(ctx, cartID)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return domain.ErrCartEmpty
		}

		customer, created, err := repos.Customers.GetOrCreateByUser(ctx, actor.UserID)
		if err != nil {
			return fmt.Errorf("get or create customer: %w", err)
		}
		customerCreated = created

		now := s.now()
		order, err := domain.NewOrderFromCart(customer.ID, cart, now)
		if err != nil {
			return err
		}
		order, err = repos.Orders.Create(ctx, order)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		msg, err := domain.NewOrderOutboxMessage(domain.EventTypeOrderPlaced, order, now)
		if err != nil {
			return fmt.Errorf("build order event: %w", err)
		}
		if _, err := repos.Outbox.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}

		placed = order
		return nil
	})
	if err != nil {
		s.recordFailure(err)
		entry := s.logger.WithError(err).WithField("cart_id", cartID)
		if isClientError(err) {
			entry.Debug("order placement rejected")
		} else {
			entry.Error("order placement failed")
		}
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderPlaced()
		s.metrics.RecordOutboxEnqueued()
	}
	s.logger.WithFields(log.Fields{
		"order_id":         placed.ID,
		"customer_id":      placed.CustomerID,
		"cart_id":          cartID,
		"items":            len(placed.Items),
		"total":            placed.Total().StringFixed(2),
		"customer_created": customerCreated,
	}).Info("order placed")

	return placed, nil
}

// ListOrders возвращает все заказы сотруднику и только собственные заказы покупателю.
// У пользователя без профиля покупателя заказов нет.
func (s *Service) ListOrders(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	if err := domain.AuthorizeOrder(actor, domain.OrderActionList, nil, nil); err != nil {
		return nil, err
	}
	repos := s.store.Repos()

	filter := domain.OrderFilter{}
	if !actor.IsStaff {
		customer, err := repos.Customers.GetByUser(ctx, actor.UserID)
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return []domain.Order{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get customer: %w", err)
		}
		filter.CustomerID = customer.ID
	}

	orders, err := repos.Orders.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// GetOrder возвращает заказ. Чужой заказ для покупателя неотличим от отсутствующего.
func (s *Service) GetOrder(ctx context.Context, actor domain.Actor, id int64) (domain.Order, error) {
	if err := domain.RequireAuthenticated(actor); err != nil {
		return domain.Order{}, err
	}
	repos := s.store.Repos()

	order, err := repos.Orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if actor.IsStaff {
		return order, nil
	}

	var own *domain.Customer
	customer, err := repos.Customers.GetByUser(ctx, actor.UserID)
	switch {
	case err == nil:
		own = &customer
	case !errors.Is(err, domain.ErrCustomerNotFound):
		return domain.Order{}, fmt.Errorf("get customer: %w", err)
	}

	if err := domain.AuthorizeOrder(actor, domain.OrderActionView, &order, own); err != nil {
		if errors.Is(err, domain.ErrForbidden) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	return order, nil
}

// UpdateOrderStatus меняет статус оплаты. Доступно только сотрудникам;
// проверка прав выполняется до чтения заказа.
func (s *Service) UpdateOrderStatus(ctx context.Context, actor domain.Actor, id int64, status domain.PaymentStatus) (domain.Order, error) {
	if err := domain.AuthorizeOrder(actor, domain.OrderActionUpdate, nil, nil); err != nil {
		return domain.Order{}, err
	}
	if !status.Valid() {
		return domain.Order{}, domain.FieldErrorFrom("payment_status", domain.ErrPaymentStatusInvalid)
	}

	var updated domain.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order, err := repos.Orders.UpdatePaymentStatus(ctx, id, status)
		if err != nil {
			return err
		}
		msg, err := domain.NewOrderOutboxMessage(domain.EventTypeOrderPaymentStatusChanged, order, s.now())
		if err != nil {
			return fmt.Errorf("build order event: %w", err)
		}
		if _, err := repos.Outbox.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}
		updated = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordPaymentStatus(string(status))
		s.metrics.RecordOutboxEnqueued()
	}
	s.logger.WithFields(log.Fields{
		"order_id":       updated.ID,
		"payment_status": updated.PaymentStatus,
		"user_id":        actor.UserID,
	}).Info("order payment status updated")

	return updated, nil
}

// DeleteOrder удаляет заказ вместе с позициями. Доступно только сотрудникам.
func (s *Service) DeleteOrder(ctx context.Context, actor domain.Actor, id int64) error {
	if err := domain.AuthorizeOrder(actor, domain.OrderActionDelete, nil, nil); err != nil {
		return err
	}

	err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		order, err := repos.Orders.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := repos.Orders.Delete(ctx, id); err != nil {
			return err
		}
		msg, err := domain.NewOrderOutboxMessage(domain.EventTypeOrderDeleted, order, s.now())
		if err != nil {
			return fmt.Errorf("build order event: %w", err)
		}
		if _, err := repos.Outbox.Enqueue(ctx, msg); err != nil {
			return fmt.Errorf("enqueue order event: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordOutboxEnqueued()
	}
	s.logger.WithFields(log.Fields{"order_id": id, "user_id": actor.UserID}).Info("order deleted")
	return nil
}

func (s *Service) recordFailure(err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOrderFailed(failureReason(err))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, domain.ErrCartNotFound):
		return "cart_not_found"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound)
}
