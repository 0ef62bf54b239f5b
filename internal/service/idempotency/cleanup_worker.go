// Package idempotency обслуживает ключи Idempotency-Key оформления заказов.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Значения по умолчанию для CleanupConfig.
const (
	DefaultCleanupInterval  = 10 * time.Minute
	DefaultCleanupBatchSize = 500
)

// CleanupConfig задаёт расписание очистки. Нулевые поля заменяются значениями по умолчанию.
type CleanupConfig struct {
	Interval  time.Duration
	BatchSize int
	Logger    *log.Entry
	// Metrics может быть nil.
	Metrics *metrics.WorkerMetrics
	// Now подменяется в тестах.
	Now func() time.Time
}

func (c CleanupConfig) withDefaults() CleanupConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultCleanupInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultCleanupBatchSize
	}
	if c.Logger == nil {
		c.Logger = log.WithField("component", "idempotency-cleanup")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CleanupWorker удаляет просроченные ключи идемпотентности, чтобы повтор
// запроса с тем же ключом после TTL оформлял новый заказ.
type CleanupWorker struct {
	repo domain.IdempotencyRepository
	cfg  CleanupConfig
}

// NewCleanupWorker создаёт воркер очистки.
func NewCleanupWorker(repo domain.IdempotencyRepository, cfg CleanupConfig) *CleanupWorker {
	return &CleanupWorker{repo: repo, cfg: cfg.withDefaults()}
}

// Run чистит ключи сразу и затем раз в Interval, пока ctx не отменён.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.cfg.Logger.Warn("idempotency cleanup is disabled: no repository")
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.cfg.Now().UTC())
	if errors.Is(err, context.Canceled) {
		return
	}
	w.cfg.Metrics.RecordCleanup(deleted, err)

	entry := w.cfg.Logger.WithField("deleted", deleted)
	switch {
	case err != nil:
		entry.WithError(err).Warn("idempotency cleanup failed")
	case deleted > 0:
		entry.Info("expired idempotency keys removed")
	}
}

// DeleteExpired удаляет записи с истёкшим сроком до before порциями по BatchSize.
// Возвращает число удалённых записей, включая удалённые до ошибки.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.repo.DeleteExpired(ctx, before, w.cfg.BatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.cfg.BatchSize {
			return total, nil
		}
	}
}
