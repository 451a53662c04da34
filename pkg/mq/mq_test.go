package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue(t *testing.T) {
	q := NewInMemoryQueue()

	var received [][]byte
	require.NoError(t, q.Subscribe("docstore.users.set", func(msg []byte) error {
		received = append(received, msg)
		return nil
	}))

	require.NoError(t, q.Publish("docstore.users.set", []byte("a")))
	require.NoError(t, q.Publish("docstore.users.delete", []byte("b")))

	assert.Equal(t, [][]byte{[]byte("a")}, received)
	assert.Len(t, q.GetMessages("docstore.users.set"), 1)
	assert.Len(t, q.GetMessages("docstore.users.delete"), 1)
	assert.ElementsMatch(t, []string{"docstore.users.set", "docstore.users.delete"}, q.Topics())

	t.Run("handler error is returned", func(t *testing.T) {
		boom := errors.New("boom")
		require.NoError(t, q.Subscribe("t", func([]byte) error { return boom }))
		assert.ErrorIs(t, q.Publish("t", []byte("x")), boom)
	})
}

func TestKafkaConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     KafkaConfig
		wantErr bool
	}{
		{name: "disabled", cfg: KafkaConfig{}, wantErr: false},
		{name: "no brokers", cfg: KafkaConfig{Enabled: true}, wantErr: true},
		{name: "negative retry", cfg: KafkaConfig{Enabled: true, Brokers: []string{"b:9092"}, RetryMax: -1}, wantErr: true},
		{name: "valid", cfg: KafkaConfig{Enabled: true, Brokers: []string{"b:9092"}}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKafkaProducer(t *testing.T) {
	t.Run("disabled returns nil producer", func(t *testing.T) {
		p, err := NewKafkaProducer(KafkaConfig{})
		require.NoError(t, err)
		assert.Nil(t, p)
		assert.NoError(t, p.Publish("t", []byte("x")))
		assert.NoError(t, p.Close())
	})

	t.Run("publishes through sync producer", func(t *testing.T) {
		cfg := KafkaConfig{Enabled: true, Brokers: []string{"b:9092"}}
		mock := mocks.NewSyncProducer(t, cfg.saramaConfig())
		mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			if string(val) != "payload" {
				return errors.New("unexpected payload")
			}
			return nil
		})

		p := NewKafkaProducerFromClient(mock)
		require.NoError(t, p.Publish("docstore.users.set", []byte("payload")))
		require.NoError(t, p.Close())
	})

	t.Run("send failure is returned", func(t *testing.T) {
		mock := mocks.NewSyncProducer(t, sarama.NewConfig())
		mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		p := NewKafkaProducerFromClient(mock)
		assert.ErrorIs(t, p.Publish("t", []byte("x")), sarama.ErrOutOfBrokers)
		require.NoError(t, p.Close())
	})

	t.Run("subscribe unsupported", func(t *testing.T) {
		p := NewKafkaProducerFromClient(mocks.NewSyncProducer(t, nil))
		assert.Error(t, p.Subscribe("t", nil))
		require.NoError(t, p.Close())
	})
}
