// Package outbox доставляет события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

// Значения по умолчанию для Config.
const (
	DefaultPollInterval = time.Second
	DefaultBatchSize    = 100
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = 100 * time.Millisecond

	maxRetryDelay = 30 * time.Second
)

// Config задаёт параметры Worker. Нулевые поля заменяются значениями по умолчанию.
type Config struct {
	// DeadLetter получает события, не доставленные за MaxAttempts попыток; может быть nil.
	DeadLetter   domain.OutboxPublisher
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// RetryDelay: задержка перед второй попыткой, далее удваивается до maxRetryDelay.
	// Отрицательное значение отключает задержку.
	RetryDelay time.Duration
	Logger     *log.Entry
	Metrics    *metrics.WorkerMetrics
	Now        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Logger == nil {
		c.Logger = log.WithField("component", "outbox-worker")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Worker публикует pending-события outbox. Доставка at-least-once:
// событие уходит повторно, если отметить его отправленным не удалось.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       Config
}

// NewWorker создаёт воркер поверх репозитория outbox и основного publisher.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config) *Worker {
	return &Worker{repo: repo, publisher: publisher, cfg: cfg.withDefaults()}
}

// Run опрашивает outbox раз в PollInterval, пока ctx не отменён.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.cfg.Logger.Warn("outbox worker is disabled: repository or publisher is missing")
		return
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// BatchResult: итог одного прохода по outbox.
type BatchResult struct {
	Sent   int
	Failed int
	// Deferred: события, которые не удалось ни доставить, ни положить в dead letter; они остаются pending.
	Deferred int
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeDeferred
)

// ProcessOnce забирает до BatchSize pending-событий и пытается доставить каждое.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}

	batch, err := w.repo.PullPending(ctx, w.cfg.BatchSize)
	if err != nil {
		w.cfg.Logger.WithError(err).Warn("pull pending outbox events")
		return result
	}

	for _, msg := range batch {
		res, err := w.deliver(ctx, msg)
		if err != nil {
			break
		}
		switch res {
		case outcomeSent:
			result.Sent++
		case outcomeFailed:
			result.Failed++
		case outcomeDeferred:
			result.Deferred++
		}
	}

	w.observeBacklog(ctx)
	if result.Sent+result.Failed+result.Deferred > 0 {
		w.cfg.Logger.WithFields(log.Fields{
			"sent":     result.Sent,
			"failed":   result.Failed,
			"deferred": result.Deferred,
		}).Debug("outbox batch processed")
	}
	return result
}

// deliver публикует событие и переводит его в sent либо, исчерпав попытки,
// в failed с копией в dead letter. Если dead letter тоже недоступен, событие
// остаётся pending до следующего прохода. Ошибка возвращается только при отмене ctx.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) (outcome, error) {
	entry := w.cfg.Logger.WithFields(log.Fields{
		"outbox_id":    msg.ID,
		"event_type":   msg.EventType,
		"aggregate_id": msg.AggregateID,
	})

	publishErr := w.publishWithRetry(ctx, msg)
	if publishErr == nil {
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			entry.WithError(err).Warn("mark outbox event sent")
		}
		return outcomeSent, nil
	}
	if ctx.Err() != nil {
		return outcomeDeferred, ctx.Err()
	}

	if err := w.deadLetter(msg, publishErr); err != nil {
		w.cfg.Metrics.RecordOutboxPublish(metrics.OutboxResultDLQFailed)
		entry.WithError(err).WithField("publish_error", publishErr.Error()).
			Warn("dead letter publish failed, outbox event stays pending")
		return outcomeDeferred, nil
	}

	entry.WithError(publishErr).Error("outbox event moved to failed")
	w.cfg.Metrics.RecordOutboxPublish(metrics.OutboxResultFailed)
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("mark outbox event failed")
	}
	return outcomeFailed, nil
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		if err = w.publisher.Publish(msg); err == nil {
			w.cfg.Metrics.RecordOutboxPublish(metrics.OutboxResultSent)
			return nil
		}
		w.cfg.Metrics.RecordOutboxPublish(metrics.OutboxResultRetry)
		if attempt == w.cfg.MaxAttempts {
			break
		}

		if delay := w.retryDelay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", msg.ID, w.cfg.MaxAttempts, err)
}

// retryDelay возвращает паузу после неудачной попытки attempt (с 1).
func (w *Worker) retryDelay(attempt int) time.Duration {
	if w.cfg.RetryDelay <= 0 {
		return 0
	}
	delay := w.cfg.RetryDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.cfg.Metrics == nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.cfg.Logger.WithError(err).Warn("collect outbox backlog stats")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.cfg.Now().Sub(stats.OldestPendingAt)
	}
	w.cfg.Metrics.SetOutboxBacklog(stats.PendingCount, age)
}

// deadLetterEnvelope: тело сообщения в dead letter topic.
type deadLetterEnvelope struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"error"`
	FailedAt      time.Time       `json:"failed_at"`
}

func (w *Worker) deadLetter(msg domain.OutboxMessage, cause error) error {
	if w.cfg.DeadLetter == nil {
		return nil
	}

	payload := json.RawMessage("null")
	if json.Valid(msg.Payload) {
		payload = msg.Payload
	}
	body, err := json.Marshal(deadLetterEnvelope{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		Error:         cause.Error(),
		FailedAt:      w.cfg.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	dead := msg
	dead.Payload = body
	return w.cfg.DeadLetter.Publish(dead)
}
