package outbox

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaProducerReusesWriterPerTopic(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"})

	first, err := p.writer("activity_recorded")
	require.NoError(t, err)
	again, err := p.writer("activity_recorded")
	require.NoError(t, err)
	other, err := p.writer("activity_finalized")
	require.NoError(t, err)

	require.Same(t, first, again)
	require.NotSame(t, first, other)
	require.Equal(t, "activity_finalized", other.Topic)
	require.IsType(t, &kafka.Hash{}, first.Balancer)
}

func TestKafkaProducerRejectsWritesAfterClose(t *testing.T) {
	p := NewKafkaProducer([]string{"localhost:9092"})
	_, err := p.writer("activity_expired")
	require.NoError(t, err)
	require.NoError(t, p.Close())

	err = p.WriteMessages(context.Background(), "activity_expired", kafka.Message{Key: []byte("a-1")})
	require.ErrorContains(t, err, "closed")
}
