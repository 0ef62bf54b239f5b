package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka publisher is not initialized")

// OutboxTopicPublisher публикует события outbox в topic, завернув их в Envelope.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт паблишер; пустой topic означает TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// Publish использует идентификатор агрегата как ключ партиционирования:
// события одного заказа читаются в порядке записи.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	value, err := encodeEnvelope(event, p.now().UTC())
	if err != nil {
		return err
	}
	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	return p.producer.Send(Message{
		Topic:   p.topic,
		Key:     key,
		Value:   value,
		Headers: eventHeaders(event),
	})
}

func encodeEnvelope(event domain.OutboxMessage, publishedAt time.Time) ([]byte, error) {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 || !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	value, err := json.Marshal(Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope %s: %w", event.ID, err)
	}
	return value, nil
}

func eventHeaders(event domain.OutboxMessage) map[string]string {
	return map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
	}
}

// DeadLetterPublisher отправляет недоставленные события в TopicDeadLetterQueue.
// Тело формирует воркер outbox, здесь оно уходит без обёртки.
type DeadLetterPublisher struct {
	producer      *Producer
	originalTopic string
}

// NewDeadLetterPublisher: originalTopic попадает в заголовок, чтобы событие
// можно было переиграть в исходный topic.
func NewDeadLetterPublisher(producer *Producer, originalTopic string) *DeadLetterPublisher {
	return &DeadLetterPublisher{producer: producer, originalTopic: originalTopic}
}

func (p *DeadLetterPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}
	headers := eventHeaders(event)
	headers[HeaderOriginalTopic] = p.originalTopic
	return p.producer.Send(Message{
		Topic:   TopicDeadLetterQueue,
		Key:     event.ID,
		Value:   event.Payload,
		Headers: headers,
	})
}

var (
	_ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
	_ domain.OutboxPublisher = (*DeadLetterPublisher)(nil)
)
