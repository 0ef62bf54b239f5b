package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_SendBuildsRecord(t *testing.T) {
	sentAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, TopicOrderEvents, msg.Topic)
		key, _ := msg.Key.Encode()
		assert.Equal(t, "42", string(key))
		value, _ := msg.Value.Encode()
		assert.JSONEq(t, `{"id":42}`, string(value))
		assert.Equal(t, sentAt, msg.Timestamp)

		require.Len(t, msg.Headers, 2)
		assert.Equal(t, HeaderAggregateType, string(msg.Headers[0].Key), "headers are sorted by name")
		assert.Equal(t, HeaderEventType, string(msg.Headers[1].Key))
		return nil
	})

	producer := newProducer(mockProducer, nil)
	producer.now = func() time.Time { return sentAt }

	err := producer.Send(Message{
		Topic: TopicOrderEvents,
		Key:   "42",
		Value: []byte(`{"id":42}`),
		Headers: map[string]string{
			HeaderEventType:     "order.placed",
			HeaderAggregateType: "order",
		},
	})
	require.NoError(t, err)
	require.NoError(t, producer.Close())
}

func TestProducer_SendError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer := newProducer(mockProducer, log.WithField("component", "kafka-producer-test"))

	err := producer.Send(Message{Topic: TopicOrderEvents, Key: "42"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	assert.Contains(t, err.Error(), TopicOrderEvents)
	require.NoError(t, producer.Close())
}

func TestProducer_CloseIsIdempotent(t *testing.T) {
	producer := newProducer(mocks.NewSyncProducer(t, nil), nil)

	require.NoError(t, producer.Close())
	require.NoError(t, producer.Close())
	assert.ErrorIs(t, producer.Send(Message{Topic: TopicOrderEvents}), errProducerClosed)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(nil, nil)
	assert.Error(t, err)
}

func TestNewSaramaConfig(t *testing.T) {
	cfg := newSaramaConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, clientID, cfg.ClientID)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)
	assert.True(t, cfg.Producer.Return.Successes)
}
