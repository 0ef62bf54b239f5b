// Command dlq-replay переигрывает события из storefront.dlq в исходный topic.
// По умолчанию работает в режиме dry-run и только логирует кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	envKafkaBrokers    = "KAFKA_BROKERS"
	defaultLimit       = 100
	defaultIdleTimeout = 2 * time.Second
)

var errNotDeadLetter = errors.New("message is not an outbox dead letter")

type options struct {
	brokers       []string
	source        string
	fallbackTopic string
	limit         int
	execute       bool
	idleTimeout   time.Duration
}

func parseOptions(args []string, lookup func(string) (string, bool), stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts    options
		brokers string
	)
	fs.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (default $"+envKafkaBrokers+")")
	fs.StringVar(&opts.source, "source", kafka.TopicDeadLetterQueue, "dead letter topic to scan")
	fs.StringVar(&opts.fallbackTopic, "fallback-topic", kafka.TopicOrderEvents, "target topic when x-original-topic is missing")
	fs.IntVar(&opts.limit, "limit", defaultLimit, "max messages to scan")
	fs.BoolVar(&opts.execute, "execute", false, "publish events instead of a dry run")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers, _ = lookup(envKafkaBrokers)
	}
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			opts.brokers = append(opts.brokers, b)
		}
	}
	opts.source = strings.TrimSpace(opts.source)
	opts.fallbackTopic = strings.TrimSpace(opts.fallbackTopic)

	switch {
	case len(opts.brokers) == 0:
		return options{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case opts.source == "":
		return options{}, errors.New("-source must not be empty")
	case opts.fallbackTopic == "":
		return options{}, errors.New("-fallback-topic must not be empty")
	case opts.limit <= 0:
		return options{}, fmt.Errorf("-limit must be positive, got %d", opts.limit)
	case opts.idleTimeout <= 0:
		return options{}, fmt.Errorf("-idle-timeout must be positive, got %s", opts.idleTimeout)
	}
	return opts, nil
}

// deadLetter: тело, которое воркер outbox пишет в DLQ.
type deadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"error"`
}

// decodeDeadLetter восстанавливает исходное событие и topic, в который его нужно вернуть.
func decodeDeadLetter(msg *sarama.ConsumerMessage, fallbackTopic string) (string, domain.OutboxMessage, error) {
	var dl deadLetter
	if err := json.Unmarshal(msg.Value, &dl); err != nil {
		return "", domain.OutboxMessage{}, fmt.Errorf("%w: %v", errNotDeadLetter, err)
	}
	if dl.OutboxID == "" || dl.EventType == "" {
		return "", domain.OutboxMessage{}, fmt.Errorf("%w: outbox_id and event_type are required", errNotDeadLetter)
	}
	if len(dl.Payload) == 0 || string(dl.Payload) == "null" {
		return "", domain.OutboxMessage{}, fmt.Errorf("%w: event %s has no payload", errNotDeadLetter, dl.OutboxID)
	}

	topic := fallbackTopic
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == kafka.HeaderOriginalTopic && len(h.Value) > 0 {
			topic = string(h.Value)
		}
	}
	return topic, domain.OutboxMessage{
		ID:            dl.OutboxID,
		AggregateType: dl.AggregateType,
		AggregateID:   dl.AggregateID,
		EventType:     dl.EventType,
		Payload:       dl.Payload,
	}, nil
}

type publisher interface {
	Publish(topic string, event domain.OutboxMessage) error
}

// kafkaPublisher публикует событие в том же Envelope, что и воркер outbox.
type kafkaPublisher struct {
	producer *kafka.Producer
	byTopic  map[string]*kafka.OutboxTopicPublisher
}

func (p *kafkaPublisher) Publish(topic string, event domain.OutboxMessage) error {
	pub, ok := p.byTopic[topic]
	if !ok {
		pub = kafka.NewOutboxPublisher(p.producer, topic)
		p.byTopic[topic] = pub
	}
	return pub.Publish(event)
}

type dryRun struct{ logger *log.Entry }

func (d dryRun) Publish(topic string, event domain.OutboxMessage) error {
	d.logger.WithFields(log.Fields{
		"target_topic": topic,
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
	}).Info("dlq replay candidate")
	return nil
}

type offsetReader interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

type replayStats struct {
	Scanned  int
	Replayed int
	Skipped  int
}

func (s *replayStats) add(o replayStats) {
	s.Scanned += o.Scanned
	s.Replayed += o.Replayed
	s.Skipped += o.Skipped
}

type replayer struct {
	consumer sarama.Consumer
	offsets  offsetReader
	out      publisher
	opts     options
	logger   *log.Entry
}

// Run читает партиции источника по возрастанию номера, пока не исчерпан limit.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats

	partitions, err := r.consumer.Partitions(r.opts.source)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.opts.source, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, p := range partitions {
		budget := r.opts.limit - total.Scanned
		if budget <= 0 {
			break
		}
		st, err := r.replayPartition(ctx, p, budget)
		total.add(st)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// replayPartition читает сообщения, существовавшие на момент старта, не дальше budget.
func (r *replayer) replayPartition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var st replayStats

	oldest, err := r.offsets.GetOffset(r.opts.source, partition, sarama.OffsetOldest)
	if err != nil {
		return st, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.opts.source, partition, sarama.OffsetNewest)
	if err != nil {
		return st, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	want := min(int(newest-oldest), budget)
	if want <= 0 {
		return st, nil
	}

	pc, err := r.consumer.ConsumePartition(r.opts.source, partition, oldest)
	if err != nil {
		return st, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.opts.idleTimeout)
	defer idle.Stop()

	for st.Scanned < want {
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-idle.C:
			r.logger.WithField("partition", partition).Debug("partition is idle, moving on")
			return st, nil
		case cerr, ok := <-pc.Errors():
			if !ok {
				return st, nil
			}
			if cerr != nil {
				return st, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok {
				return st, nil
			}
			idle.Reset(r.opts.idleTimeout)
			st.Scanned++

			topic, event, err := decodeDeadLetter(msg, r.opts.fallbackTopic)
			if err != nil {
				st.Skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip dead letter")
				continue
			}
			if err := r.out.Publish(topic, event); err != nil {
				return st, fmt.Errorf("replay %s to %s: %w", event.ID, topic, err)
			}
			st.Replayed++
		}
	}
	return st, nil
}

func run(ctx context.Context, opts options, logger *log.Entry) (replayStats, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "storefront-dlq-replay"
	cfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, cfg)
	if err != nil {
		return replayStats{}, fmt.Errorf("connect kafka: %w", err)
	}
	defer client.Close()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return replayStats{}, fmt.Errorf("create consumer: %w", err)
	}
	defer consumer.Close()

	var out publisher = dryRun{logger: logger}
	if opts.execute {
		producer, err := kafka.NewProducer(opts.brokers, logger.WithField("component", "kafka-producer"))
		if err != nil {
			return replayStats{}, err
		}
		defer producer.Close()
		out = &kafkaPublisher{producer: producer, byTopic: map[string]*kafka.OutboxTopicPublisher{}}
	}

	r := &replayer{consumer: consumer, offsets: client, out: out, opts: opts, logger: logger}
	return r.Run(ctx)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "dlq-replay")

	opts, err := parseOptions(os.Args[1:], os.LookupEnv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.WithError(err).Fatal("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := run(ctx, opts, logger)
	fields := log.Fields{
		"source":   opts.source,
		"execute":  opts.execute,
		"scanned":  stats.Scanned,
		"replayed": stats.Replayed,
		"skipped":  stats.Skipped,
	}
	if err != nil {
		logger.WithError(err).WithFields(fields).Fatal("dlq replay failed")
	}
	logger.WithFields(fields).Info("dlq replay finished")
}
