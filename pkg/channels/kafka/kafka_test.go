package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/stockflow/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Brokers(t *testing.T) {
	config := Config{Brokers: " kafka-1:9092, ,kafka-2:9092,"}

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, config.brokers())
}

func TestCreateChannel_NoBrokers(t *testing.T) {
	pub, sub, err := CreateChannel(watermill.NopLogger{}, Config{Brokers: " , "})

	require.ErrorIs(t, err, ErrNoBrokers)
	assert.Nil(t, pub)
	assert.Nil(t, sub)
}

func TestPartitionByEventKey(t *testing.T) {
	msg := message.NewMessage("1", []byte(`{}`))
	msg.Metadata.Set(events.EventMetadataKey, "inst-7")

	key, err := partitionByEventKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "inst-7", key)
}
