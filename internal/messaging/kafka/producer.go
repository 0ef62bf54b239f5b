package kafka

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	clientID         = "storefront"
	sendRetries      = 5
	sendRetryBackoff = 250 * time.Millisecond
)

var errProducerClosed = errors.New("kafka producer is closed")

// Message: запись для отправки. Заголовки уходят отсортированными по имени.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Producer синхронно пишет сообщения в Kafka и дожидается подтверждения всех реплик.
type Producer struct {
	sp       sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
	closeMu  sync.Mutex
	isClosed bool
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, logger *log.Entry) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}

	sp, err := sarama.NewSyncProducer(brokers, newSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(sp, logger), nil
}

// newSaramaConfig включает идемпотентную запись: sarama требует для неё
// acks=all и один запрос в полёте на соединение.
func newSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = sendRetries
	cfg.Producer.Retry.Backoff = sendRetryBackoff
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

func newProducer(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{sp: sp, logger: logger, now: time.Now}
}

// Send блокируется до подтверждения записи брокером.
func (p *Producer) Send(msg Message) error {
	if p.closed() {
		return errProducerClosed
	}

	pm := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(msg.Value),
		Headers:   recordHeaders(msg.Headers),
		Timestamp: p.now(),
	}
	fields := log.Fields{"topic": msg.Topic, "key": msg.Key}

	partition, offset, err := p.sp.SendMessage(pm)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka message sent")
	return nil
}

func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]sarama.RecordHeader, 0, len(names))
	for _, name := range names {
		out = append(out, sarama.RecordHeader{Key: []byte(name), Value: []byte(headers[name])})
	}
	return out
}

func (p *Producer) closed() bool {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.isClosed
}

// Close можно вызывать повторно.
func (p *Producer) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.isClosed {
		return nil
	}
	p.isClosed = true
	if err := p.sp.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
