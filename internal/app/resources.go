package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/cache"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const redisConnectTimeout = 2 * time.Second

// resources держит внешние подключения процесса. Close освобождает их
// в порядке, обратном открытию.
type resources struct {
	store        domain.Store
	idempotency  domain.IdempotencyRepository
	storage      healthcheck.Checker
	productCache *cache.ProductCache
	producer     *kafka.Producer

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

func (r *resources) onClose(name string, fn func() error) {
	r.closers = append(r.closers, namedCloser{name: name, close: fn})
}

// Close закрывает все ресурсы; ошибки только логируются.
func (r *resources) Close(logger *log.Entry) {
	if r == nil {
		return
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.close(); err != nil {
			logger.WithError(err).WithField("resource", c.name).Warn("failed to close resource")
			continue
		}
		logger.WithField("resource", c.name).Debug("resource closed")
	}
	r.closers = nil
}

// openStorage выбирает хранилище по cfg.StorageDriver.
func openStorage(ctx context.Context, cfg Config, logger *log.Entry) (*resources, error) {
	res := &resources{}

	switch driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver)); driver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		res.store = store
		res.idempotency = memory.NewIdempotencyRepository()

	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("storage driver %q needs a postgres dsn", driver)
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		res.onClose("postgres", store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				res.Close(logger)
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}
		res.store = store
		res.idempotency = postgres.NewIdempotencyRepository(store)

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}

	res.storage = healthcheck.NewPingChecker("storage", res.store, true)
	logger.WithFields(log.Fields{
		"driver":       cfg.StorageDriver,
		"auto_migrate": cfg.PostgresAutoMigrate,
	}).Info("storage initialized")
	return res, nil
}

// connectProductCache подключает Redis-кеш карточек. Недоступный Redis
// не мешает запуску: каталог читает из хранилища напрямую.
func (r *resources) connectProductCache(ctx context.Context, cfg Config, logger *log.Entry) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return
	}

	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: redisConnectTimeout})
	pingCtx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.WithError(err).WithField("addr", addr).Warn("redis is unavailable, product cache disabled")
		_ = client.Close()
		return
	}

	r.productCache = cache.NewProductCache(client, cfg.ProductCacheTTL)
	r.onClose("redis", client.Close)
	logger.WithFields(log.Fields{"addr": addr, "ttl": cfg.ProductCacheTTL}).Info("product cache initialized")
}

// connectKafka создаёт producer для outbox. Без брокеров ничего не делает.
func (r *resources) connectKafka(cfg Config, logger *log.Entry) error {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil
	}

	producer, err := kafka.NewProducer(brokers, logger.WithField("component", "kafka-producer"))
	if err != nil {
		return fmt.Errorf("connect kafka %v: %w", brokers, err)
	}
	r.producer = producer
	r.onClose("kafka", producer.Close)
	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return nil
}
